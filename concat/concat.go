// Package concat joins ordered file contents with a separator and,
// optionally, merges their source maps into one map for the result.
package concat

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/groupcat/sourcemap"
)

// Concat accumulates parts in order.
//
// Line and column offsets track where the next part starts in the
// generated output so upstream mappings can be shifted onto it.
type Concat struct {
	useSourceMaps bool
	separator     []byte
	buf           bytes.Buffer
	parts         int
	gen           *sourcemap.Generator

	lineOffset      int
	columnOffset    int
	sepLineOffset   int
	sepColumnOffset int
}

// New creates a concatenator for fileName. When useSourceMaps is false
// no mapping work is done.
func New(useSourceMaps bool, fileName, separator string) *Concat {
	c := &Concat{
		useSourceMaps: useSourceMaps,
		separator:     []byte(separator),
	}
	if useSourceMaps {
		c.gen = sourcemap.NewGenerator(filepath.ToSlash(fileName))
		c.sepLineOffset = strings.Count(separator, "\n")
		c.sepColumnOffset = len(separator) - (strings.LastIndex(separator, "\n") + 1)
	}
	return c
}

// Add appends contents. relPath names the part in the merged map; sm is
// the part's own source map and may be nil.
func (c *Concat) Add(relPath string, contents []byte, sm *sourcemap.Map) {
	if c.parts > 0 {
		c.buf.Write(c.separator)
	}
	c.buf.Write(contents)
	c.parts++

	if !c.useSourceMaps {
		return
	}

	text := string(contents)
	lines := strings.Count(text, "\n") + 1
	relPath = filepath.ToSlash(relPath)

	if mappings, ok := upstreamMappings(sm); ok {
		for _, m := range mappings {
			if m.Source == "" {
				continue
			}
			col := m.GeneratedColumn
			if m.GeneratedLine == 1 {
				col += c.columnOffset
			}
			c.gen.AddMapping(sourcemap.Mapping{
				GeneratedLine:   c.lineOffset + m.GeneratedLine,
				GeneratedColumn: col,
				Source:          m.Source,
				OriginalLine:    m.OriginalLine,
				OriginalColumn:  m.OriginalColumn,
				Name:            m.Name,
			})
		}
		for i := range sm.Sources {
			if content, ok := sm.SourceContent(i); ok {
				c.gen.SetSourceContent(sm.SourcePath(i), content)
			}
		}
	} else {
		source := relPath
		if sm != nil && len(sm.Sources) > 0 {
			source = sm.SourcePath(0)
		}
		if source != "" {
			for i := 1; i <= lines; i++ {
				col := 0
				if i == 1 {
					col = c.columnOffset
				}
				c.gen.AddMapping(sourcemap.Mapping{
					GeneratedLine:   c.lineOffset + i,
					GeneratedColumn: col,
					Source:          source,
					OriginalLine:    i,
				})
			}
			if sm != nil {
				if content, ok := sm.SourceContent(0); ok {
					c.gen.SetSourceContent(source, content)
				}
			}
		}
	}

	if lines > 1 {
		c.columnOffset = 0
	}
	if c.sepLineOffset == 0 {
		c.columnOffset += len(text) - (strings.LastIndex(text, "\n") + 1)
	}
	c.columnOffset += c.sepColumnOffset
	c.lineOffset += lines - 1 + c.sepLineOffset
}

// upstreamMappings decodes sm when it carries usable mappings.
// Undecodable maps are treated as absent.
func upstreamMappings(sm *sourcemap.Map) ([]sourcemap.Mapping, bool) {
	if sm == nil || sm.Mappings == "" {
		return nil, false
	}
	mappings, err := sm.Decode()
	if err != nil {
		return nil, false
	}
	return mappings, true
}

// Content returns the merged bytes.
func (c *Concat) Content() []byte {
	return c.buf.Bytes()
}

// SourceMap returns the serialized merged map, or "" when source maps
// are disabled.
func (c *Concat) SourceMap() string {
	if c.gen == nil {
		return ""
	}
	return c.gen.String()
}

// Len returns the number of parts added.
func (c *Concat) Len() int {
	return c.parts
}
