// Package types defines core domain types for groupcat runs.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"time"

	"github.com/pithecene-io/groupcat/sourcemap"
)

// FileStat carries the stat-like metadata of a record.
type FileStat struct {
	// ModTime is the last modification time. Zero means unknown.
	ModTime time.Time
	// Size is the content size in bytes at read time.
	Size int64
	// Mode holds the file mode bits, if known.
	Mode fs.FileMode
}

// Record is one file-like unit flowing through a run.
//
// A record is either null (no contents), buffered (Contents set) or
// streaming (Stream set). The engine only accepts buffered records.
type Record struct {
	// Cwd is the working directory the record was read relative to.
	Cwd string
	// Base is the base directory; Relative() is computed against it.
	Base string
	// Path is the full path of the record.
	Path string
	// Contents holds the materialized bytes. Nil means a null record.
	Contents []byte
	// Stream is set for records whose contents are not yet materialized.
	Stream io.Reader
	// Stat is optional stat metadata.
	Stat *FileStat
	// SourceMap is an optional upstream source map for Contents.
	SourceMap *sourcemap.Map
}

// IsNull reports whether the record has neither contents nor a stream.
func (r *Record) IsNull() bool {
	return r.Contents == nil && r.Stream == nil
}

// IsStream reports whether the record's contents are a stream.
func (r *Record) IsStream() bool {
	return r.Stream != nil
}

// ModTime returns the modification time, if one is known.
func (r *Record) ModTime() (time.Time, bool) {
	if r.Stat == nil || r.Stat.ModTime.IsZero() {
		return time.Time{}, false
	}
	return r.Stat.ModTime, true
}

// Relative returns Path relative to Base using forward slashes.
// Falls back to the cleaned Path when it is not under Base.
func (r *Record) Relative() string {
	if r.Base == "" {
		return filepath.ToSlash(r.Path)
	}
	rel, err := filepath.Rel(r.Base, r.Path)
	if err != nil {
		return filepath.ToSlash(r.Path)
	}
	return filepath.ToSlash(rel)
}

// Ext returns the slash-path extension of the record.
func (r *Record) Ext() string {
	return path.Ext(filepath.ToSlash(r.Path))
}

// CloneMeta returns a copy carrying path and stat metadata only.
// Contents, stream and source map are not copied.
func (r *Record) CloneMeta() *Record {
	out := &Record{
		Cwd:  r.Cwd,
		Base: r.Base,
		Path: r.Path,
	}
	if r.Stat != nil {
		stat := *r.Stat
		out.Stat = &stat
	}
	return out
}
