package sourcemap

import (
	"encoding/json"
	"sort"
	"strings"
)

// Generator accumulates mappings and renders a Map.
// Sources and names are indexed in first-use order.
type Generator struct {
	file      string
	sources   []string
	sourceIdx map[string]int
	names     []string
	nameIdx   map[string]int
	contents  map[string]string
	mappings  []Mapping
}

// NewGenerator creates a generator for the given output file name.
func NewGenerator(file string) *Generator {
	return &Generator{
		file:      file,
		sourceIdx: make(map[string]int),
		nameIdx:   make(map[string]int),
		contents:  make(map[string]string),
	}
}

// AddMapping records a segment. Mappings without a source are emitted as
// generated-only segments.
func (g *Generator) AddMapping(m Mapping) {
	if m.Source != "" {
		if _, ok := g.sourceIdx[m.Source]; !ok {
			g.sourceIdx[m.Source] = len(g.sources)
			g.sources = append(g.sources, m.Source)
		}
		if m.Name != "" {
			if _, ok := g.nameIdx[m.Name]; !ok {
				g.nameIdx[m.Name] = len(g.names)
				g.names = append(g.names, m.Name)
			}
		}
	} else {
		m.OriginalLine, m.OriginalColumn, m.Name = 0, 0, ""
	}
	g.mappings = append(g.mappings, m)
}

// SetSourceContent embeds content for a source. Content for a source that
// never appears in a mapping is not rendered.
func (g *Generator) SetSourceContent(source, content string) {
	g.contents[source] = content
}

// Map renders the accumulated mappings.
func (g *Generator) Map() *Map {
	m := &Map{
		Version:  Revision,
		File:     g.file,
		Sources:  append([]string{}, g.sources...),
		Names:    append([]string{}, g.names...),
		Mappings: g.encode(),
	}

	if len(g.contents) > 0 {
		contents := make([]*string, len(g.sources))
		embedded := false
		for i, src := range g.sources {
			if c, ok := g.contents[src]; ok {
				c := c
				contents[i] = &c
				embedded = true
			}
		}
		if embedded {
			m.SourcesContent = contents
		}
	}

	return m
}

// String renders the map as JSON.
func (g *Generator) String() string {
	data, err := json.Marshal(g.Map())
	if err != nil {
		// Map holds only strings and ints.
		return ""
	}
	return string(data)
}

func (g *Generator) encode() string {
	mappings := append([]Mapping(nil), g.mappings...)
	sort.SliceStable(mappings, func(i, j int) bool {
		if mappings[i].GeneratedLine != mappings[j].GeneratedLine {
			return mappings[i].GeneratedLine < mappings[j].GeneratedLine
		}
		return mappings[i].GeneratedColumn < mappings[j].GeneratedColumn
	})

	var (
		b           strings.Builder
		line        = 1
		prevGenCol  int
		prevSrc     int
		prevOrigLn  int
		prevOrigCol int
		prevName    int
		first       = true
		prev        Mapping
	)

	for i, m := range mappings {
		if i > 0 && m == prev {
			continue
		}
		for line < m.GeneratedLine {
			b.WriteByte(';')
			line++
			prevGenCol = 0
			first = true
		}
		if !first {
			b.WriteByte(',')
		}
		first = false

		encodeVLQ(&b, m.GeneratedColumn-prevGenCol)
		prevGenCol = m.GeneratedColumn

		if m.Source != "" {
			src := g.sourceIdx[m.Source]
			encodeVLQ(&b, src-prevSrc)
			prevSrc = src

			encodeVLQ(&b, m.OriginalLine-1-prevOrigLn)
			prevOrigLn = m.OriginalLine - 1

			encodeVLQ(&b, m.OriginalColumn-prevOrigCol)
			prevOrigCol = m.OriginalColumn

			if m.Name != "" {
				name := g.nameIdx[m.Name]
				encodeVLQ(&b, name-prevName)
				prevName = name
			}
		}
		prev = m
	}

	return b.String()
}
