package index

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/rmodel/internal/model"
)

// Rule decides tag membership for a single node.
//
// Match must depend only on the node's own path and its subtree. The index
// re-evaluates a node only when something at or below it changed, so a rule
// that looks at siblings or ancestors would go stale.
type Rule interface {
	Name() string
	Match(path model.Path, node model.Model) bool
}

// MarkerRule matches map nodes whose Field child is a list containing Marker,
// e.g. {tags: ["editor"]} for Field "tags" and Marker "editor".
type MarkerRule struct {
	Field  string
	Marker model.Model
}

// Marker builds a MarkerRule for a string marker
func Marker(field, marker string) MarkerRule {
	return MarkerRule{Field: field, Marker: model.String(marker)}
}

func (r MarkerRule) Name() string {
	return fmt.Sprintf("marker(%s=%s)", r.Field, model.Format(r.Marker))
}

func (r MarkerRule) Match(_ model.Path, node model.Model) bool {
	m, ok := node.(*model.MapModel)
	if !ok {
		return false
	}
	list, ok := m.Get(r.Field).(*model.ListModel)
	if !ok {
		return false
	}
	return list.Contains(r.Marker)
}

// GlobRule matches present nodes whose slash-joined path (list indexes as
// plain numbers) matches a doublestar pattern such as "workspace/*/editors/*".
type GlobRule struct {
	Pattern string
}

// NewGlobRule validates pattern and builds a GlobRule
func NewGlobRule(pattern string) (GlobRule, error) {
	pattern = strings.Trim(pattern, "/")
	if !doublestar.ValidatePattern(pattern) {
		return GlobRule{}, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	return GlobRule{Pattern: pattern}, nil
}

func (r GlobRule) Name() string { return "glob(" + r.Pattern + ")" }

func (r GlobRule) Match(path model.Path, node model.Model) bool {
	if model.IsAbsent(node) || path.IsRoot() {
		return false
	}
	matched, err := doublestar.Match(r.Pattern, path.Slashed())
	return err == nil && matched
}

// FuncRule adapts a predicate closure
type FuncRule struct {
	Label string
	Fn    func(path model.Path, node model.Model) bool
}

func (r FuncRule) Name() string { return r.Label }

func (r FuncRule) Match(path model.Path, node model.Model) bool {
	return r.Fn(path, node)
}

type allOf []Rule

// AllOf matches nodes accepted by every rule
func AllOf(rules ...Rule) Rule { return allOf(rules) }

func (a allOf) Name() string { return "all(" + joinNames(a) + ")" }

func (a allOf) Match(path model.Path, node model.Model) bool {
	for _, r := range a {
		if !r.Match(path, node) {
			return false
		}
	}
	return len(a) > 0
}

type anyOf []Rule

// AnyOf matches nodes accepted by at least one rule
func AnyOf(rules ...Rule) Rule { return anyOf(rules) }

func (a anyOf) Name() string { return "any(" + joinNames(a) + ")" }

func (a anyOf) Match(path model.Path, node model.Model) bool {
	for _, r := range a {
		if r.Match(path, node) {
			return true
		}
	}
	return false
}

func joinNames(rules []Rule) string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name()
	}
	return strings.Join(names, ",")
}
