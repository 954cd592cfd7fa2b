package types

// GroupID identifies a bundle. The empty ID means "no group".
type GroupID string

// OutputKind discriminates OutputDescriptor variants.
type OutputKind int

const (
	// OutputInvalid is the zero value and never produced by constructors.
	OutputInvalid OutputKind = iota
	// OutputPath derives the output record from the latest observed record.
	OutputPath
	// OutputTemplate builds the output record from a full template.
	OutputTemplate
)

// String returns the kind name.
func (k OutputKind) String() string {
	switch k {
	case OutputPath:
		return "path"
	case OutputTemplate:
		return "template"
	default:
		return "invalid"
	}
}

// OutputDescriptor describes where a group's concatenation lands.
// Use PathOutput or TemplateOutput to construct one.
type OutputDescriptor struct {
	kind     OutputKind
	path     string
	template *Record
}

// PathOutput describes an output joined onto the base of the most recently
// modified input record.
func PathOutput(p string) OutputDescriptor {
	return OutputDescriptor{kind: OutputPath, path: p}
}

// TemplateOutput describes an output cloned from a full record template.
func TemplateOutput(tpl *Record) OutputDescriptor {
	if tpl == nil {
		return OutputDescriptor{}
	}
	return OutputDescriptor{kind: OutputTemplate, template: tpl}
}

// Kind returns the descriptor variant.
func (d OutputDescriptor) Kind() OutputKind { return d.kind }

// Path returns the relative path for OutputPath descriptors, or the
// template's relative path for OutputTemplate descriptors.
func (d OutputDescriptor) Path() string {
	switch d.kind {
	case OutputPath:
		return d.path
	case OutputTemplate:
		return d.template.Relative()
	default:
		return ""
	}
}

// Template returns the record template for OutputTemplate descriptors.
func (d OutputDescriptor) Template() *Record {
	return d.template
}

// GroupMetadata is the resolved, cached description of a bundle.
type GroupMetadata struct {
	// Output is where the concatenation is written.
	Output OutputDescriptor
	// Members lists the group buckets to concatenate, in order.
	Members []GroupID
	// UseSourceMaps enables merged source map generation.
	UseSourceMaps bool
}
