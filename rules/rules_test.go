package rules_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pithecene-io/groupcat/engine"
	"github.com/pithecene-io/groupcat/rules"
	"github.com/pithecene-io/groupcat/types"
)

func rec(rel string) *types.Record {
	return &types.Record{Base: "/src", Path: filepath.Join("/src", filepath.FromSlash(rel)), Contents: []byte(rel)}
}

func TestClassifier_FirstMatchWins(t *testing.T) {
	c, err := rules.NewClassifier([]rules.Rule{
		{Pattern: `^vendor/`, Group: "vendor"},
		{Pattern: `^pages/([^/]+)/`, Group: "page-$1"},
		{Pattern: `^(?P<kind>css|js)/`, Group: "${kind}-bundle"},
		{Pattern: `\.js$`, Group: "misc"},
	})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	tests := []struct {
		rel  string
		want types.GroupID
	}{
		{"vendor/jquery.js", "vendor"},
		{"pages/home/index.js", "page-home"},
		{"css/site.css", "css-bundle"},
		{"js/app.js", "js-bundle"},
		{"other/x.js", "misc"},
		{"README.md", ""},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := c.Classify(rec(tt.rel)); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.rel, got, tt.want)
			}
		})
	}
}

func TestNewClassifier_Invalid(t *testing.T) {
	if _, err := rules.NewClassifier([]rules.Rule{{Pattern: "(", Group: "g"}}); !errors.Is(err, rules.ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule for bad pattern, got %v", err)
	}
	if _, err := rules.NewClassifier([]rules.Rule{{Pattern: "x"}}); !errors.Is(err, rules.ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule for missing group, got %v", err)
	}
}

func TestTable_Resolve(t *testing.T) {
	table, err := rules.NewTable(map[string]rules.GroupSpec{
		"app":    {Output: "dist/app.js", Members: []string{"vendor", "app"}, SourceMaps: true},
		"styles": {Output: "site.css", OutputBase: "/public"},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	meta, ok := table.Resolve("app", rec("app/a.js"))
	if !ok {
		t.Fatal("expected app to resolve")
	}
	if meta.Output.Kind() != types.OutputPath || meta.Output.Path() != filepath.FromSlash("dist/app.js") {
		t.Errorf("unexpected output %v %q", meta.Output.Kind(), meta.Output.Path())
	}
	if diff := cmp.Diff([]types.GroupID{"vendor", "app"}, meta.Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
	if !meta.UseSourceMaps {
		t.Error("expected source maps enabled")
	}

	meta, ok = table.Resolve("styles", rec("styles/a.css"))
	if !ok {
		t.Fatal("expected styles to resolve")
	}
	if meta.Output.Kind() != types.OutputTemplate {
		t.Fatalf("expected template output, got %v", meta.Output.Kind())
	}
	if got := meta.Output.Template().Path; got != filepath.Join("/public", "site.css") {
		t.Errorf("template path = %q", got)
	}
	if diff := cmp.Diff([]types.GroupID{"styles"}, meta.Members); diff != "" {
		t.Errorf("default members mismatch (-want +got):\n%s", diff)
	}

	if _, ok := table.Resolve("unknown", rec("unknown/a.js")); ok {
		t.Error("unknown group should be declined")
	}
}

func TestTable_Wildcard(t *testing.T) {
	table, err := rules.NewTable(map[string]rules.GroupSpec{
		rules.Wildcard: {Output: "pages/{group}.js", Members: []string{"shared", "{group}"}},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	meta, ok := table.Resolve("home", nil)
	if !ok {
		t.Fatal("expected wildcard to resolve")
	}
	if meta.Output.Path() != filepath.FromSlash("pages/home.js") {
		t.Errorf("output = %q", meta.Output.Path())
	}
	if diff := cmp.Diff([]types.GroupID{"shared", "home"}, meta.Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestNewTable_Invalid(t *testing.T) {
	tests := map[string]map[string]rules.GroupSpec{
		"missing output": {"a": {}},
		"absolute":       {"a": {Output: "/abs.js"}},
		"empty member":   {"a": {Output: "a.js", Members: []string{""}}},
		"empty id":       {"": {Output: "a.js"}},
	}
	for name, groups := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := rules.NewTable(groups); !errors.Is(err, rules.ErrInvalidGroup) {
				t.Errorf("expected ErrInvalidGroup, got %v", err)
			}
		})
	}
}

func TestRules_DriveEngine(t *testing.T) {
	classifier, err := rules.NewClassifier([]rules.Rule{{Pattern: `^([^/]+)/`, Group: "$1"}})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	table, err := rules.NewTable(map[string]rules.GroupSpec{
		"app": {Output: "app.js", Members: []string{"lib", "app"}},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	e, err := engine.New(engine.Config{
		Classifier: classifier,
		Resolver:   table,
		Separator:  engine.Separator(";"),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	for _, r := range []string{"app/main.js", "lib/util.js", "app/extra.js"} {
		if err := e.Consume(rec(r)); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}

	out, err := e.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 output, got %d", len(out))
	}
	if got := string(out[0].Contents); got != "lib/util.js;app/main.js;app/extra.js" {
		t.Errorf("Contents = %q", got)
	}
}
