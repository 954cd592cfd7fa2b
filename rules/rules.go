// Package rules provides config-driven classification and group
// resolution for the engine.
//
// A Classifier maps a record's relative path to a group ID using ordered
// regular expressions. A Table resolves group IDs to output metadata from
// a static table, with an optional "*" wildcard entry for IDs produced by
// capture-group expansion.
package rules

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pithecene-io/groupcat/types"
)

// ErrInvalidRule is returned when a rule cannot be compiled.
var ErrInvalidRule = errors.New("invalid rule")

// ErrInvalidGroup is returned when a group entry is unusable.
var ErrInvalidGroup = errors.New("invalid group")

// Wildcard is the table key that resolves any otherwise unknown group.
const Wildcard = "*"

// GroupPlaceholder is replaced by the group ID in wildcard outputs and
// members.
const GroupPlaceholder = "{group}"

// Rule classifies records whose relative path matches Pattern into Group.
// Group may reference capture groups ($1, ${name}).
type Rule struct {
	Pattern string
	Group   string
}

type compiledRule struct {
	re    *regexp.Regexp
	group string
}

// Classifier applies rules in order; the first match wins.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier compiles rules.
func NewClassifier(rules []Rule) (*Classifier, error) {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Group == "" {
			return nil, fmt.Errorf("%w: rule %d: group is required", ErrInvalidRule, i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %w", ErrInvalidRule, i, err)
		}
		c.rules = append(c.rules, compiledRule{re: re, group: r.Group})
	}
	return c, nil
}

// Classify returns the group of the first rule matching the record's
// relative path, or "" when none match.
func (c *Classifier) Classify(rec *types.Record) types.GroupID {
	rel := rec.Relative()
	for _, r := range c.rules {
		m := r.re.FindStringSubmatchIndex(rel)
		if m == nil {
			continue
		}
		return types.GroupID(r.re.ExpandString(nil, r.group, rel, m))
	}
	return ""
}

// Len returns the number of rules.
func (c *Classifier) Len() int {
	return len(c.rules)
}

// GroupSpec describes one group's output.
type GroupSpec struct {
	// Output is the output path, relative to the output base.
	Output string
	// OutputBase, when set, roots the output at this base directory
	// instead of the base of the most recently modified input.
	OutputBase string
	// Members lists member groups in order. Empty means the group itself.
	Members []string
	// SourceMaps enables merged source map generation.
	SourceMaps bool
}

// Table resolves group metadata from a static table.
type Table struct {
	groups map[string]GroupSpec
}

// NewTable validates groups and returns a resolver over them.
func NewTable(groups map[string]GroupSpec) (*Table, error) {
	for id, g := range groups {
		if id == "" {
			return nil, fmt.Errorf("%w: empty group id", ErrInvalidGroup)
		}
		if strings.TrimSpace(g.Output) == "" {
			return nil, fmt.Errorf("%w: %s: output is required", ErrInvalidGroup, id)
		}
		if filepath.IsAbs(g.Output) {
			return nil, fmt.Errorf("%w: %s: output must be relative", ErrInvalidGroup, id)
		}
		for _, m := range g.Members {
			if m == "" {
				return nil, fmt.Errorf("%w: %s: empty member id", ErrInvalidGroup, id)
			}
		}
	}
	return &Table{groups: groups}, nil
}

// Resolve implements engine.Resolver. Unknown IDs are declined unless a
// wildcard entry exists.
func (t *Table) Resolve(id types.GroupID, trigger *types.Record) (*types.GroupMetadata, bool) {
	spec, ok := t.groups[string(id)]
	if !ok {
		spec, ok = t.groups[Wildcard]
		if !ok {
			return nil, false
		}
	}

	expand := func(s string) string {
		return strings.ReplaceAll(s, GroupPlaceholder, string(id))
	}

	members := make([]types.GroupID, 0, len(spec.Members))
	for _, m := range spec.Members {
		members = append(members, types.GroupID(expand(m)))
	}
	if len(members) == 0 {
		members = append(members, id)
	}

	output := filepath.FromSlash(expand(spec.Output))
	meta := &types.GroupMetadata{
		Members:       members,
		UseSourceMaps: spec.SourceMaps,
	}
	if spec.OutputBase == "" {
		meta.Output = types.PathOutput(output)
		return meta, true
	}

	tpl := &types.Record{
		Base: spec.OutputBase,
		Path: filepath.Join(spec.OutputBase, output),
	}
	if trigger != nil {
		tpl.Cwd = trigger.Cwd
	}
	meta.Output = types.TemplateOutput(tpl)
	return meta, true
}

// IDs returns the configured group IDs, including the wildcard if set.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.groups))
	for id := range t.groups {
		ids = append(ids, id)
	}
	return ids
}
