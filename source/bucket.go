package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/groupcat/iox"
	"github.com/pithecene-io/groupcat/log"
	"github.com/pithecene-io/groupcat/metrics"
	"github.com/pithecene-io/groupcat/sourcemap"
	"github.com/pithecene-io/groupcat/types"
)

// DefaultConcurrency is the number of objects read in parallel.
const DefaultConcurrency = 4

// MapExt is the extension of sibling source map objects.
const MapExt = ".map"

// BucketConfig configures a BucketSource.
type BucketConfig struct {
	// URL is a gocloud bucket URL (file:///dir, mem://, s3://b, gs://b).
	URL string
	// Prefix restricts listing to keys under this directory.
	Prefix string
	// Include is an optional path.Match pattern applied to keys relative
	// to Prefix.
	Include string
	// Concurrency bounds parallel reads. Zero means DefaultConcurrency.
	Concurrency int
	// LoadMaps attaches sibling "<key>.map" objects as upstream source maps.
	LoadMaps bool
	// Logger is optional.
	Logger *log.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
}

// BucketSource reads every object under a prefix as one record each.
// Objects are listed, read in parallel, and delivered in key order. A
// listing failure ends the stream; an object that cannot be read or
// decompressed is delivered as an Item with Err set.
type BucketSource struct {
	bucket      *blob.Bucket
	url         string
	prefix      string
	include     string
	concurrency int
	loadMaps    bool
	logger      *log.Logger
	metrics     *metrics.Collector
}

// OpenBucket opens cfg.URL and returns a source over it.
func OpenBucket(ctx context.Context, cfg BucketConfig) (*BucketSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: bucket url is required", ErrSource)
	}
	bucket, err := blob.OpenBucket(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: open bucket %s: %w", ErrSource, cfg.URL, err)
	}
	return NewBucketSource(bucket, cfg)
}

// NewBucketSource wraps an already opened bucket. The source takes
// ownership and closes it on Close.
func NewBucketSource(bucket *blob.Bucket, cfg BucketConfig) (*BucketSource, error) {
	if cfg.Include != "" {
		if _, err := path.Match(cfg.Include, ""); err != nil {
			return nil, fmt.Errorf("%w: include pattern %q: %w", ErrSource, cfg.Include, err)
		}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &BucketSource{
		bucket:      bucket,
		url:         cfg.URL,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		include:     cfg.Include,
		concurrency: concurrency,
		loadMaps:    cfg.LoadMaps,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// Describe implements Source.
func (s *BucketSource) Describe() string {
	if s.prefix == "" {
		return s.url
	}
	return s.url + " prefix=" + s.prefix
}

// Close implements Source.
func (s *BucketSource) Close() error {
	return s.bucket.Close()
}

type object struct {
	key  string
	attr *blob.ListObject
}

// Stream implements Source.
func (s *BucketSource) Stream(ctx context.Context) (<-chan Item, <-chan error) {
	itemCh := make(chan Item, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(itemCh)
		defer close(errCh)

		objects, maps, err := s.list(ctx)
		if err != nil {
			errCh <- fmt.Errorf("%w: list %s: %w", ErrSource, s.Describe(), err)
			return
		}
		s.logDebug("listed objects", map[string]any{
			"source":  s.Describe(),
			"objects": len(objects),
			"maps":    len(maps),
		})

		// Unreadable objects become Item.Err; only cancellation stops the reads.
		items := make([]Item, len(objects))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for i, obj := range objects {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				rec, err := s.read(gctx, obj, maps)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					s.metrics.IncSourceReadErrors()
					items[i] = Item{Err: err}
					return nil
				}
				s.metrics.IncSourceObjectsRead()
				items[i] = Item{Record: rec}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			errCh <- fmt.Errorf("%w: %w", ErrSource, err)
			return
		}

		for _, item := range items {
			select {
			case itemCh <- item:
			case <-ctx.Done():
				errCh <- fmt.Errorf("%w: %w", ErrSource, ctx.Err())
				return
			}
		}
	}()

	return itemCh, errCh
}

// list returns record objects in key order, and the set of map keys when
// maps are loaded.
func (s *BucketSource) list(ctx context.Context) ([]object, map[string]bool, error) {
	opts := &blob.ListOptions{}
	if s.prefix != "" {
		opts.Prefix = s.prefix + "/"
	}

	var objects []object
	maps := make(map[string]bool)
	iter := s.bucket.List(opts)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if obj.IsDir {
			continue
		}
		if s.loadMaps && strings.HasSuffix(obj.Key, MapExt) {
			maps[obj.Key] = true
			continue
		}
		if !s.included(obj.Key) {
			continue
		}
		objects = append(objects, object{key: obj.Key, attr: obj})
	}

	sort.SliceStable(objects, func(i, j int) bool { return objects[i].key < objects[j].key })
	return objects, maps, nil
}

func (s *BucketSource) included(key string) bool {
	if s.include == "" {
		return true
	}
	ok, _ := path.Match(s.include, s.relative(key))
	return ok
}

func (s *BucketSource) relative(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

func (s *BucketSource) read(ctx context.Context, obj object, maps map[string]bool) (*types.Record, error) {
	data, err := s.bucket.ReadAll(ctx, obj.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", obj.key, err)
	}
	data, key, err := iox.Decompress(obj.key, data)
	if err != nil {
		return nil, err
	}

	rec := &types.Record{
		Base:     filepath.FromSlash(s.prefix),
		Path:     filepath.FromSlash(key),
		Contents: data,
		Stat: &types.FileStat{
			ModTime: obj.attr.ModTime,
			Size:    int64(len(data)),
		},
	}

	if mapKey := key + MapExt; maps[mapKey] {
		rec.SourceMap = s.readMap(ctx, mapKey)
	}
	return rec, nil
}

// readMap loads an upstream source map. Unreadable maps are logged and
// ignored; the record is still delivered.
func (s *BucketSource) readMap(ctx context.Context, key string) *sourcemap.Map {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		s.logWarn("source map unreadable", map[string]any{"key": key, "error": err.Error()})
		return nil
	}
	sm, err := sourcemap.Parse(data)
	if err != nil {
		s.logWarn("source map invalid", map[string]any{"key": key, "error": err.Error()})
		return nil
	}
	return sm
}

func (s *BucketSource) logDebug(msg string, fields map[string]any) {
	if s.logger != nil {
		s.logger.Debug(msg, fields)
	}
}

func (s *BucketSource) logWarn(msg string, fields map[string]any) {
	if s.logger != nil {
		s.logger.Warn(msg, fields)
	}
}

// LocalDir returns the directory behind a file:// bucket URL.
func LocalDir(bucketURL string) (string, bool) {
	u, err := url.Parse(bucketURL)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}
