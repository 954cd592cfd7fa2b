package sourcemap

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeVLQ(t *testing.T) {
	tests := []struct {
		value int
		want  string
	}{
		{0, "A"},
		{1, "C"},
		{-1, "D"},
		{15, "e"},
		{16, "gB"},
		{-16, "hB"},
	}
	for _, tt := range tests {
		var b strings.Builder
		encodeVLQ(&b, tt.value)
		if b.String() != tt.want {
			t.Errorf("encodeVLQ(%d) = %q, want %q", tt.value, b.String(), tt.want)
		}
		fields, err := decodeSegment(tt.want)
		if err != nil {
			t.Fatalf("decodeSegment(%q): %v", tt.want, err)
		}
		if len(fields) != 1 || fields[0] != tt.value {
			t.Errorf("decodeSegment(%q) = %v, want [%d]", tt.want, fields, tt.value)
		}
	}
}

func TestDecodeSegment_Invalid(t *testing.T) {
	if _, err := decodeSegment("A!"); !errors.Is(err, ErrInvalidVLQ) {
		t.Errorf("expected ErrInvalidVLQ for bad char, got %v", err)
	}
	// Dangling continuation bit
	if _, err := decodeSegment("g"); !errors.Is(err, ErrInvalidVLQ) {
		t.Errorf("expected ErrInvalidVLQ for truncated value, got %v", err)
	}
}

func TestGenerator_LinePerLine(t *testing.T) {
	g := NewGenerator("bundle.js")
	g.AddMapping(Mapping{GeneratedLine: 1, Source: "a.js", OriginalLine: 1})
	g.AddMapping(Mapping{GeneratedLine: 2, Source: "a.js", OriginalLine: 2})
	g.AddMapping(Mapping{GeneratedLine: 3, Source: "b.js", OriginalLine: 1})
	g.SetSourceContent("b.js", "var b;")

	m := g.Map()
	if m.Mappings != "AAAA;AACA;ACDA" {
		t.Errorf("Mappings = %q, want %q", m.Mappings, "AAAA;AACA;ACDA")
	}
	if diff := cmp.Diff([]string{"a.js", "b.js"}, m.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
	if m.File != "bundle.js" {
		t.Errorf("File = %q, want bundle.js", m.File)
	}
	if len(m.SourcesContent) != 2 || m.SourcesContent[0] != nil || *m.SourcesContent[1] != "var b;" {
		t.Errorf("unexpected SourcesContent: %v", m.SourcesContent)
	}
}

func TestGenerator_SkipsEmptyLinesAndDuplicates(t *testing.T) {
	g := NewGenerator("out.js")
	g.AddMapping(Mapping{GeneratedLine: 1, Source: "a.js", OriginalLine: 1})
	g.AddMapping(Mapping{GeneratedLine: 1, Source: "a.js", OriginalLine: 1})
	g.AddMapping(Mapping{GeneratedLine: 3, GeneratedColumn: 4, Source: "a.js", OriginalLine: 2, OriginalColumn: 2, Name: "x"})

	if got := g.Map().Mappings; got != "AAAA;;IACEA" {
		t.Errorf("Mappings = %q, want %q", got, "AAAA;;IACEA")
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	want := []Mapping{
		{GeneratedLine: 1, GeneratedColumn: 0, Source: "a.js", OriginalLine: 1},
		{GeneratedLine: 1, GeneratedColumn: 7, Source: "a.js", OriginalLine: 1, OriginalColumn: 7, Name: "foo"},
		{GeneratedLine: 2, GeneratedColumn: 2},
		{GeneratedLine: 4, GeneratedColumn: 0, Source: "b.js", OriginalLine: 10, OriginalColumn: 3},
	}

	g := NewGenerator("out.js")
	for _, m := range want {
		g.AddMapping(m)
	}

	data, err := g.Map().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := parsed.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_RejectsOtherVersions(t *testing.T) {
	_, err := Parse([]byte(`{"version":2,"sources":[],"names":[],"mappings":""}`))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestDecode_SourceRoot(t *testing.T) {
	m := &Map{Version: 3, SourceRoot: "src", Sources: []string{"a.js"}, Mappings: "AAAA"}
	got, err := m.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Source != "src/a.js" {
		t.Errorf("expected source src/a.js, got %+v", got)
	}
}
