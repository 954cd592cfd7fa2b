// Package sourcemap models revision 3 source maps: parsing, mapping decode,
// and generation of merged maps for concatenated outputs.
package sourcemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Revision is the only supported source map revision.
const Revision = 3

// ErrUnsupportedVersion is returned when a map declares a revision other than 3.
var ErrUnsupportedVersion = errors.New("unsupported source map version")

// Map is the JSON shape of a revision 3 source map.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// Mapping is one decoded segment.
// GeneratedLine and OriginalLine are 1-based; columns are 0-based.
// A mapping with an empty Source carries no original position.
type Mapping struct {
	GeneratedLine   int
	GeneratedColumn int
	Source          string
	OriginalLine    int
	OriginalColumn  int
	Name            string
}

// HasOriginal reports whether the mapping points back into a source.
func (m Mapping) HasOriginal() bool {
	return m.Source != "" && m.OriginalLine > 0
}

// Parse decodes a serialized source map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid source map: %w", err)
	}
	if m.Version != Revision {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	return &m, nil
}

// Marshal serializes the map.
func (m *Map) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// SourcePath returns sources[i] joined with the source root.
func (m *Map) SourcePath(i int) string {
	if i < 0 || i >= len(m.Sources) {
		return ""
	}
	if m.SourceRoot == "" {
		return m.Sources[i]
	}
	return path.Join(m.SourceRoot, m.Sources[i])
}

// SourceContent returns the embedded content for sources[i], if any.
func (m *Map) SourceContent(i int) (string, bool) {
	if i < 0 || i >= len(m.SourcesContent) || m.SourcesContent[i] == nil {
		return "", false
	}
	return *m.SourcesContent[i], true
}

// Decode expands the VLQ mappings string into individual segments,
// in generated order.
func (m *Map) Decode() ([]Mapping, error) {
	var (
		out      []Mapping
		srcIdx   int
		origLine int
		origCol  int
		nameIdx  int
	)

	for i, lineStr := range strings.Split(m.Mappings, ";") {
		line := i + 1
		genCol := 0
		for _, seg := range strings.Split(lineStr, ",") {
			if seg == "" {
				continue
			}
			fields, err := decodeSegment(seg)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}

			genCol += fields[0]
			mapping := Mapping{GeneratedLine: line, GeneratedColumn: genCol}

			switch len(fields) {
			case 1:
			case 4, 5:
				srcIdx += fields[1]
				origLine += fields[2]
				origCol += fields[3]
				if srcIdx < 0 || srcIdx >= len(m.Sources) {
					return nil, fmt.Errorf("line %d: source index %d out of range", line, srcIdx)
				}
				mapping.Source = m.SourcePath(srcIdx)
				mapping.OriginalLine = origLine + 1
				mapping.OriginalColumn = origCol
				if len(fields) == 5 {
					nameIdx += fields[4]
					if nameIdx < 0 || nameIdx >= len(m.Names) {
						return nil, fmt.Errorf("line %d: name index %d out of range", line, nameIdx)
					}
					mapping.Name = m.Names[nameIdx]
				}
			default:
				return nil, fmt.Errorf("line %d: segment with %d fields", line, len(fields))
			}
			out = append(out, mapping)
		}
	}

	return out, nil
}
