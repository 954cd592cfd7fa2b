// Package iox provides I/O helpers for resource cleanup and transparent
// decompression of input objects.
package iox

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZstdExt is the extension of zstd-compressed inputs.
const ZstdExt = ".zst"

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(r)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(bucket))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

// sharedDecoder returns a process-wide stateless zstd decoder.
// DecodeAll is safe for concurrent use.
func sharedDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return decoder, decoderErr
}

// Decompress returns data unchanged unless name ends in ".zst", in which
// case the decoded bytes and the name without the extension are returned.
func Decompress(name string, data []byte) ([]byte, string, error) {
	if !strings.HasSuffix(name, ZstdExt) {
		return data, name, nil
	}
	dec, err := sharedDecoder()
	if err != nil {
		return nil, name, fmt.Errorf("zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, name, fmt.Errorf("zstd decode %s: %w", name, err)
	}
	return out, strings.TrimSuffix(name, ZstdExt), nil
}
