package ipc

import (
	"bytes"
	"io"
	"io/fs"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/groupcat/sourcemap"
	"github.com/pithecene-io/groupcat/types"
)

// RecordType is the type discriminant for record frames.
const RecordType = "record"

// RecordFrame is the wire form of a record.
type RecordFrame struct {
	Type string `msgpack:"type"`
	Path string `msgpack:"path"`
	Base string `msgpack:"base,omitempty"`
	Cwd  string `msgpack:"cwd,omitempty"`
	// Contents is absent for null records.
	Contents []byte `msgpack:"contents"`
	// Streaming marks contents the producer could not materialize.
	Streaming bool `msgpack:"streaming,omitempty"`
	// ModTime is Unix nanoseconds; 0 means unknown.
	ModTime int64  `msgpack:"mod_time,omitempty"`
	Mode    uint32 `msgpack:"mode,omitempty"`
	// SourceMap is the serialized v3 source map, if any.
	SourceMap string `msgpack:"source_map,omitempty"`
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// DecodeRecord decodes a payload as a record frame and converts it.
// Streaming frames become records whose Stream reads the frame contents.
func DecodeRecord(payload []byte) (*types.Record, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}
	if probe.Type != RecordType {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "unexpected frame type " + probe.Type,
		}
	}

	var frame RecordFrame
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode record frame",
			Err:  err,
		}
	}
	return frame.toRecord()
}

func (f *RecordFrame) toRecord() (*types.Record, error) {
	rec := &types.Record{
		Cwd:  f.Cwd,
		Base: f.Base,
		Path: f.Path,
	}
	if f.Streaming {
		rec.Stream = bytes.NewReader(f.Contents)
	} else {
		rec.Contents = f.Contents
	}

	if f.ModTime != 0 || f.Mode != 0 {
		rec.Stat = &types.FileStat{
			Mode: fs.FileMode(f.Mode),
			Size: int64(len(f.Contents)),
		}
		if f.ModTime != 0 {
			rec.Stat.ModTime = time.Unix(0, f.ModTime).UTC()
		}
	}

	if f.SourceMap != "" {
		sm, err := sourcemap.Parse([]byte(f.SourceMap))
		if err != nil {
			return nil, &FrameError{
				Kind: FrameErrorDecode,
				Msg:  "invalid source map for " + f.Path,
				Err:  err,
			}
		}
		rec.SourceMap = sm
	}
	return rec, nil
}

// EncodeRecord converts rec to its wire form and marshals it.
// Streaming records are drained into the frame.
func EncodeRecord(rec *types.Record) ([]byte, error) {
	frame := RecordFrame{
		Type:     RecordType,
		Path:     rec.Path,
		Base:     rec.Base,
		Cwd:      rec.Cwd,
		Contents: rec.Contents,
	}
	if rec.IsStream() {
		data, err := io.ReadAll(rec.Stream)
		if err != nil {
			return nil, &FrameError{Kind: FrameErrorEncode, Msg: "failed to read record stream", Err: err}
		}
		frame.Contents = data
		frame.Streaming = true
	}
	if rec.Stat != nil {
		if !rec.Stat.ModTime.IsZero() {
			frame.ModTime = rec.Stat.ModTime.UnixNano()
		}
		frame.Mode = uint32(rec.Stat.Mode)
	}
	if rec.SourceMap != nil {
		data, err := rec.SourceMap.Marshal()
		if err != nil {
			return nil, &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode source map", Err: err}
		}
		frame.SourceMap = string(data)
	}

	payload, err := msgpack.Marshal(&frame)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode record frame", Err: err}
	}
	return payload, nil
}

// RecordReader reads records from a framed stream.
type RecordReader struct {
	dec *FrameDecoder
}

// NewRecordReader creates a record reader over r.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{dec: NewFrameDecoder(r)}
}

// Read returns the next record, or io.EOF at the end of the stream.
// Decode errors are non-fatal: the caller may keep reading.
func (r *RecordReader) Read() (*types.Record, error) {
	payload, err := r.dec.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeRecord(payload)
}

// RecordWriter writes records as frames.
type RecordWriter struct {
	enc *FrameEncoder
}

// NewRecordWriter creates a record writer over w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{enc: NewFrameEncoder(w)}
}

// Write encodes and writes one record.
func (w *RecordWriter) Write(rec *types.Record) error {
	payload, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	return w.enc.WriteFrame(payload)
}
