package config

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/pithecene-io/groupcat/log"
)

// Storage backends accepted in the config file.
var storageBackends = map[string]bool{"fs": true, "s3": true, "memory": true, "frames": true}

// Config represents a groupcat.yaml configuration file.
// CLI flags always override config values.
type Config struct {
	// Separator is inserted between members. Nil means the platform
	// line terminator; "" means none.
	Separator *string                `yaml:"separator"`
	Rules     []RuleConfig           `yaml:"rules"`
	Groups    map[string]GroupConfig `yaml:"groups"`
	Source    SourceConfig           `yaml:"source"`
	Storage   StorageConfig          `yaml:"storage"`
	Adapter   AdapterConfig          `yaml:"adapter"`
	Watch     WatchConfig            `yaml:"watch"`
	// LogLevel is the minimum level of run logs (default info).
	LogLevel string `yaml:"log_level,omitempty"`
}

// RuleConfig classifies records whose relative path matches Pattern.
type RuleConfig struct {
	Pattern string `yaml:"pattern"`
	Group   string `yaml:"group"`
}

// GroupConfig describes one bundle.
type GroupConfig struct {
	Output     string   `yaml:"output"`
	OutputBase string   `yaml:"output_base,omitempty"`
	Members    []string `yaml:"members,omitempty"`
	SourceMaps bool     `yaml:"source_maps"`
}

// SourceConfig selects where records are read from.
type SourceConfig struct {
	// URL is a bucket URL (file://, mem://, s3://, gs://) or "-" for
	// record frames on stdin.
	URL         string `yaml:"url"`
	Prefix      string `yaml:"prefix,omitempty"`
	Include     string `yaml:"include,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
	LoadMaps    bool   `yaml:"load_maps"`
}

// StorageConfig holds output storage settings.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Prefix      string `yaml:"prefix,omitempty"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	WriteMaps   bool   `yaml:"write_maps"`
	// Manifest disables the run manifest when explicitly false.
	Manifest *bool `yaml:"manifest,omitempty"`
}

// AdapterConfig holds notification adapter settings.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	// Events limits notifications to these event types.
	Events []string `yaml:"events,omitempty"`
	// Secret signs webhook bodies.
	Secret string `yaml:"secret,omitempty"`
	// SplitChannels publishes each redis event type on its own channel.
	SplitChannels bool     `yaml:"split_channels,omitempty"`
	LastRunKey    string   `yaml:"last_run_key,omitempty"`
	LastRunTTL    Duration `yaml:"last_run_ttl,omitempty"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ManifestEnabled reports whether runs append to the manifest dataset.
func (s StorageConfig) ManifestEnabled() bool {
	return s.Manifest == nil || *s.Manifest
}

// Validate reports the first problem in the configuration.
// Sections left empty are not checked; callers decide which are required.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	for i, r := range c.Rules {
		if r.Group == "" {
			return fmt.Errorf("rules[%d]: group is required", i)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("rules[%d]: invalid pattern: %w", i, err)
		}
	}
	for id, g := range c.Groups {
		if g.Output == "" {
			return fmt.Errorf("groups.%s: output is required", id)
		}
		if path.IsAbs(g.Output) {
			return fmt.Errorf("groups.%s: output must be relative", id)
		}
	}
	if c.Source.Include != "" {
		if _, err := path.Match(c.Source.Include, ""); err != nil {
			return fmt.Errorf("source.include: %w", err)
		}
	}
	if c.Source.Concurrency < 0 {
		return errors.New("source.concurrency must be >= 0")
	}
	if c.Storage.Backend != "" && !storageBackends[c.Storage.Backend] {
		return fmt.Errorf("storage.backend: unknown backend %q (want fs, s3, memory or frames)", c.Storage.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type: unknown adapter %q (want webhook or redis)", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required for %s adapter", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return errors.New("adapter.retries must be >= 0")
	}
	return nil
}
