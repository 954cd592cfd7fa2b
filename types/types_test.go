package types //nolint:revive // types is a valid package name

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRunMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    RunMeta
		wantErr bool
	}{
		{name: "empty run_id", meta: RunMeta{Iteration: 1}, wantErr: true},
		{name: "iteration zero", meta: RunMeta{RunID: "run-001"}, wantErr: true},
		{name: "valid", meta: RunMeta{RunID: "run-001", Iteration: 1}},
		{name: "valid rerun", meta: RunMeta{RunID: "run-001", Iteration: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecord_States(t *testing.T) {
	null := &Record{Path: "a.js"}
	if !null.IsNull() || null.IsStream() {
		t.Error("record without contents should be null and not streaming")
	}

	empty := &Record{Path: "a.js", Contents: []byte{}}
	if empty.IsNull() {
		t.Error("record with empty (non-nil) contents is not null")
	}
}

func TestRecord_Relative(t *testing.T) {
	base := filepath.Join("src", "js")
	r := &Record{Base: base, Path: filepath.Join(base, "app", "main.js")}
	if got := r.Relative(); got != "app/main.js" {
		t.Errorf("Relative() = %q, want app/main.js", got)
	}

	noBase := &Record{Path: filepath.Join("lib", "x.js")}
	if got := noBase.Relative(); got != "lib/x.js" {
		t.Errorf("Relative() without base = %q, want lib/x.js", got)
	}
}

func TestRecord_ModTime(t *testing.T) {
	r := &Record{Path: "a"}
	if _, ok := r.ModTime(); ok {
		t.Error("record without stat should report no mod time")
	}

	r.Stat = &FileStat{}
	if _, ok := r.ModTime(); ok {
		t.Error("zero mod time should report no mod time")
	}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.Stat.ModTime = ts
	got, ok := r.ModTime()
	if !ok || !got.Equal(ts) {
		t.Errorf("ModTime() = %v, %v; want %v, true", got, ok, ts)
	}
}

func TestRecord_CloneMeta(t *testing.T) {
	r := &Record{
		Cwd:      "/work",
		Base:     "/work/src",
		Path:     "/work/src/a.js",
		Contents: []byte("x"),
		Stat:     &FileStat{Size: 1},
	}
	c := r.CloneMeta()
	if c.Contents != nil || c.Stream != nil || c.SourceMap != nil {
		t.Error("CloneMeta must not copy contents, stream or source map")
	}
	if c.Path != r.Path || c.Base != r.Base || c.Cwd != r.Cwd {
		t.Errorf("CloneMeta path fields differ: %+v", c)
	}
	c.Stat.Size = 99
	if r.Stat.Size != 1 {
		t.Error("CloneMeta must deep-copy Stat")
	}
}

func TestOutputDescriptor(t *testing.T) {
	var zero OutputDescriptor
	if zero.Kind() != OutputInvalid {
		t.Errorf("zero descriptor kind = %v, want invalid", zero.Kind())
	}

	p := PathOutput("dist/app.js")
	if p.Kind() != OutputPath || p.Path() != "dist/app.js" {
		t.Errorf("PathOutput = %v %q", p.Kind(), p.Path())
	}

	tpl := &Record{Base: "/out", Path: "/out/vendor.js"}
	d := TemplateOutput(tpl)
	if d.Kind() != OutputTemplate || d.Template() != tpl || d.Path() != "vendor.js" {
		t.Errorf("TemplateOutput = %v %q", d.Kind(), d.Path())
	}

	if TemplateOutput(nil).Kind() != OutputInvalid {
		t.Error("TemplateOutput(nil) must be invalid")
	}
}
