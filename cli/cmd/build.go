package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/groupcat/adapter"
	"github.com/pithecene-io/groupcat/adapter/redis"
	"github.com/pithecene-io/groupcat/adapter/webhook"
	"github.com/pithecene-io/groupcat/cli/config"
	"github.com/pithecene-io/groupcat/engine"
	"github.com/pithecene-io/groupcat/lode"
	"github.com/pithecene-io/groupcat/log"
	"github.com/pithecene-io/groupcat/metrics"
	"github.com/pithecene-io/groupcat/rules"
	"github.com/pithecene-io/groupcat/source"
)

// Storage backends handled by the CLI on top of the lode store backends.
const (
	backendFrames = "frames"
	stdinSource   = "-"
)

// loadConfig reads the config file named by --config and applies flag
// overrides. A missing file is an error only when --config was set
// explicitly.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || c.IsSet("config") {
			return nil, err
		}
		cfg = &config.Config{}
	}

	if v := c.String("source"); v != "" {
		cfg.Source.URL = v
	}
	if v := c.String("storage-backend"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := c.String("storage-path"); v != "" {
		cfg.Storage.Path = v
	}
	if v := c.String("storage-region"); v != "" {
		cfg.Storage.Region = v
	}
	if v := c.String("storage-dataset"); v != "" {
		cfg.Storage.Dataset = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = lode.BackendFS
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEngineConfig compiles the rules and group table of cfg.
func buildEngineConfig(cfg *config.Config, logger *log.Logger) (engine.Config, error) {
	ruleList := make([]rules.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		ruleList = append(ruleList, rules.Rule{Pattern: r.Pattern, Group: r.Group})
	}
	classifier, err := rules.NewClassifier(ruleList)
	if err != nil {
		return engine.Config{}, err
	}

	specs := make(map[string]rules.GroupSpec, len(cfg.Groups))
	for id, g := range cfg.Groups {
		specs[id] = rules.GroupSpec{
			Output:     g.Output,
			OutputBase: g.OutputBase,
			Members:    g.Members,
			SourceMaps: g.SourceMaps,
		}
	}
	table, err := rules.NewTable(specs)
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		Classifier: classifier,
		Resolver:   table,
		Separator:  cfg.Separator,
		Logger:     logger,
	}, nil
}

// openSource opens the configured source. "-" reads record frames from stdin.
func openSource(ctx context.Context, cfg config.SourceConfig, stdin io.Reader, logger *log.Logger, m *metrics.Collector) (source.Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: source.url is required (or pass --source)", source.ErrSource)
	}
	if cfg.URL == stdinSource {
		return source.NewFrameSource(stdin, "stdin", logger, m), nil
	}
	return source.OpenBucket(ctx, source.BucketConfig{
		URL:         cfg.URL,
		Prefix:      cfg.Prefix,
		Include:     cfg.Include,
		Concurrency: cfg.Concurrency,
		LoadMaps:    cfg.LoadMaps,
		Logger:      logger,
		Metrics:     m,
	})
}

// storage is the assembled output side of a run.
type storage struct {
	sink     lode.Sink
	manifest *lode.Manifest
	path     string
}

// storeConfig maps the storage section onto a lode store config.
func storeConfig(cfg config.StorageConfig) lode.StoreConfig {
	return lode.StoreConfig{
		Backend:      cfg.Backend,
		Path:         cfg.Path,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.S3PathStyle,
	}
}

// openStorage builds the sink and manifest for cfg. The frames backend
// writes record frames to stdout and keeps no manifest.
func openStorage(ctx context.Context, cfg config.StorageConfig, stdout io.Writer, m *metrics.Collector) (*storage, error) {
	if cfg.Backend == backendFrames {
		return &storage{
			sink: lode.NewInstrumentedSink(lode.NewFrameSink(stdout), m),
			path: "stdout",
		}, nil
	}

	factory, err := newFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st := &storage{
		sink: lode.NewInstrumentedSink(lode.NewStoreSink(factory, lode.SinkConfig{
			Prefix:    cfg.Prefix,
			WriteMaps: cfg.WriteMaps,
		}), m),
		path: storagePath(cfg),
	}
	if cfg.ManifestEnabled() {
		manifest, err := lode.NewManifest(cfg.Dataset, factory)
		if err != nil {
			return nil, err
		}
		st.manifest = manifest
	}
	return st, nil
}

func newFactory(ctx context.Context, cfg config.StorageConfig) (lodelibrary.StoreFactory, error) {
	if cfg.Backend == lode.BackendFS && cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	return lode.NewStoreFactory(ctx, storeConfig(cfg))
}

// storagePath describes where outputs land, for run events and summaries.
func storagePath(cfg config.StorageConfig) string {
	var base string
	switch cfg.Backend {
	case lode.BackendS3:
		base = "s3://" + strings.TrimPrefix(cfg.Path, "s3://")
	case lode.BackendMemory:
		base = "memory://"
	default:
		base = cfg.Path
		if abs, err := filepath.Abs(cfg.Path); err == nil {
			base = abs
		}
	}
	if cfg.Prefix == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.Trim(cfg.Prefix, "/")
}

// buildAdapter creates the configured notification adapter, or nil.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := 0
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		a, err := webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Secret:  cfg.Secret,
			Events:  cfg.Events,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		a, err := redis.New(redis.Config{
			URL:           cfg.URL,
			Channel:       cfg.Channel,
			SplitChannels: cfg.SplitChannels,
			LastRunKey:    cfg.LastRunKey,
			LastRunTTL:    cfg.LastRunTTL.Duration,
			Events:        cfg.Events,
			Timeout:       cfg.Timeout.Duration,
			Retries:       retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}
