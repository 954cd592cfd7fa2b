package lode

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/groupcat/ipc"
	"github.com/pithecene-io/groupcat/sourcemap"
	"github.com/pithecene-io/groupcat/types"
)

// Written describes one persisted output.
type Written struct {
	// Path is the store key of the output contents.
	Path string
	// MapPath is the store key of the sidecar source map, if written.
	MapPath string
	// Bytes is the size of the contents.
	Bytes int64
	// SHA256 is the hex digest of the contents.
	SHA256 string
}

// Sink persists output records.
type Sink interface {
	// Write persists rec, replacing any previous object at the same path.
	Write(ctx context.Context, rec *types.Record) (Written, error)
	// Close releases sink resources.
	Close() error
}

// SinkConfig configures a StoreSink.
type SinkConfig struct {
	// Prefix is prepended to every output key.
	Prefix string
	// WriteMaps writes attached source maps as "<path>.map" sidecars.
	WriteMaps bool
}

// StoreSink writes outputs as plain objects to a Lode store.
// Keys are the record's path relative to its base, under Prefix.
type StoreSink struct {
	factory lode.StoreFactory
	config  SinkConfig

	storeOnce sync.Once
	store     lode.Store
	storeErr  error
}

// NewStoreSink creates a sink over factory. The store is created lazily
// on first write.
func NewStoreSink(factory lode.StoreFactory, cfg SinkConfig) *StoreSink {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &StoreSink{factory: factory, config: cfg}
}

// Write implements Sink.
func (s *StoreSink) Write(ctx context.Context, rec *types.Record) (Written, error) {
	key, err := s.key(rec)
	if err != nil {
		return Written{}, err
	}
	store, err := s.getOrCreateStore()
	if err != nil {
		return Written{}, wrap("init", key, err)
	}

	if err := replace(ctx, store, key, rec.Contents); err != nil {
		return Written{}, err
	}

	sum := sha256.Sum256(rec.Contents)
	w := Written{
		Path:   key,
		Bytes:  int64(len(rec.Contents)),
		SHA256: hex.EncodeToString(sum[:]),
	}

	if s.config.WriteMaps && rec.SourceMap != nil {
		data, err := rec.SourceMap.Marshal()
		if err != nil {
			return w, wrap("write", key+sourcemapExt, err)
		}
		if err := replace(ctx, store, key+sourcemapExt, data); err != nil {
			return w, err
		}
		w.MapPath = key + sourcemapExt
	}
	return w, nil
}

// Close implements Sink.
func (s *StoreSink) Close() error {
	return nil
}

const sourcemapExt = ".map"

func (s *StoreSink) key(rec *types.Record) (string, error) {
	rel := path.Clean(rec.Relative())
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", wrap("write", rec.Path, fmt.Errorf("%w: %s", ErrInvalidPath, rec.Path))
	}
	if s.config.Prefix == "" {
		return rel, nil
	}
	return s.config.Prefix + "/" + rel, nil
}

func (s *StoreSink) getOrCreateStore() (lode.Store, error) {
	s.storeOnce.Do(func() {
		s.store, s.storeErr = s.factory()
	})
	return s.store, s.storeErr
}

// replace writes data at key, deleting any previous object first since
// Lode stores do not overwrite in place.
func replace(ctx context.Context, store lode.Store, key string, data []byte) error {
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return wrap("read", key, err)
	}
	if exists {
		if err := store.Delete(ctx, key); err != nil {
			return wrap("delete", key, err)
		}
	}
	return wrap("write", key, store.Put(ctx, key, bytes.NewReader(data)))
}

// ReadOutput reads a previously written object back from the store.
func ReadOutput(ctx context.Context, store lode.Store, key string) ([]byte, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, wrap("read", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	return data, wrap("read", key, err)
}

// ReadOutputMap reads and parses a sidecar source map.
func ReadOutputMap(ctx context.Context, store lode.Store, key string) (*sourcemap.Map, error) {
	data, err := ReadOutput(ctx, store, key)
	if err != nil {
		return nil, err
	}
	return sourcemap.Parse(data)
}

// FrameSink writes outputs as msgpack record frames, typically to stdout.
type FrameSink struct {
	mu sync.Mutex
	w  *ipc.RecordWriter
}

// NewFrameSink creates a frame sink over w.
func NewFrameSink(w io.Writer) *FrameSink {
	return &FrameSink{w: ipc.NewRecordWriter(w)}
}

// Write implements Sink.
func (s *FrameSink) Write(_ context.Context, rec *types.Record) (Written, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Write(rec); err != nil {
		return Written{}, wrap("write", rec.Path, err)
	}
	sum := sha256.Sum256(rec.Contents)
	return Written{
		Path:   rec.Relative(),
		Bytes:  int64(len(rec.Contents)),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// Close implements Sink.
func (s *FrameSink) Close() error {
	return nil
}

var (
	_ Sink = (*StoreSink)(nil)
	_ Sink = (*FrameSink)(nil)
)
