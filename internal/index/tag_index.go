// Package index maintains derived tag sets over a model tree. A TagIndex
// tracks every node matching a Rule and keeps that set consistent with each
// committed root by applying diffs instead of rescanning the tree.
package index

import (
	"sort"

	"github.com/standardbeagle/rmodel/internal/debug"
	"github.com/standardbeagle/rmodel/internal/model"
)

// Member is a tagged node
type Member struct {
	Path model.Path
	Node model.Model
}

// Delta summarizes how one Apply changed the member set
type Delta struct {
	Added   []model.Path
	Removed []model.Path
	Updated []model.Path // still members, node content changed
}

// MembershipChanged reports whether paths entered or left the set
func (d Delta) MembershipChanged() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// Empty reports whether nothing about the set changed
func (d Delta) Empty() bool {
	return !d.MembershipChanged() && len(d.Updated) == 0
}

// TagIndex is the incrementally maintained member set of one rule.
// It is not safe for concurrent mutation; the reactive model applies diffs
// under its transaction serialization and publishes immutable TagSets.
type TagIndex struct {
	rule    Rule
	members map[string]Member // keyed by Path.ID
	trie    *trieNode
	sorted  []Member // cached Members() result, nil when stale

	evaluations int64
}

// New creates an empty index for rule
func New(rule Rule) *TagIndex {
	return &TagIndex{
		rule:    rule,
		members: make(map[string]Member),
		trie:    newTrieNode(),
	}
}

// Build creates an index populated by a full scan of root
func Build(rule Rule, root model.Model) *TagIndex {
	idx := New(rule)
	walk(model.Root, root, func(p model.Path, n model.Model) {
		idx.evaluations++
		if rule.Match(p, n) {
			idx.insert(Member{Path: p, Node: n})
		}
	})
	return idx
}

// Rule returns the membership rule
func (idx *TagIndex) Rule() Rule { return idx.rule }

// Len returns the number of members
func (idx *TagIndex) Len() int { return len(idx.members) }

// Contains reports whether the node at p is a member
func (idx *TagIndex) Contains(p model.Path) bool {
	_, ok := idx.members[p.ID()]
	return ok
}

// Get returns the member at p
func (idx *TagIndex) Get(p model.Path) (Member, bool) {
	m, ok := idx.members[p.ID()]
	return m, ok
}

// Evaluations returns how many times the rule has been evaluated
func (idx *TagIndex) Evaluations() int64 { return idx.evaluations }

// Members returns the members ordered by path. The returned slice is shared
// until the next Apply and must not be modified.
func (idx *TagIndex) Members() []Member {
	if idx.sorted != nil {
		return idx.sorted
	}
	out := make([]Member, 0, len(idx.members))
	for _, m := range idx.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.Compare(out[j].Path) < 0 })
	idx.sorted = out
	return out
}

// Apply brings the index in line with newRoot, given the diff from the
// previously applied root. Work is proportional to the number of changes,
// their depth and the size of the subtrees they replaced:
//
//   - members at or below a changed path are dropped through the trie, so
//     deleting an ancestor removes every tagged descendant;
//   - the new subtree at each changed path is scanned;
//   - strict ancestors of changed paths are re-evaluated once each, since
//     their subtrees changed.
func (idx *TagIndex) Apply(newRoot model.Model, changes []model.Change) Delta {
	if len(changes) == 0 {
		return Delta{}
	}

	removed := make(map[string]Member)
	added := make(map[string]Member)

	for _, c := range changes {
		for _, m := range idx.removeSubtree(c.Path) {
			removed[m.Path.ID()] = m
		}
		walk(c.Path, c.New, func(p model.Path, n model.Model) {
			idx.evaluations++
			if idx.rule.Match(p, n) {
				added[p.ID()] = Member{Path: p, Node: n}
			}
		})
	}

	seen := make(map[string]bool)
	for _, c := range changes {
		for depth := c.Path.Len() - 1; depth >= 0; depth-- {
			ancestor := c.Path.Prefix(depth)
			id := ancestor.ID()
			if seen[id] {
				break // every shorter prefix was handled with it
			}
			seen[id] = true

			node := model.GetIn(newRoot, ancestor)
			idx.evaluations++
			old, wasMember := idx.members[id]
			if wasMember {
				delete(idx.members, id)
				idx.trie.remove(ancestor)
				removed[id] = old
			}
			if !model.IsAbsent(node) && idx.rule.Match(ancestor, node) {
				added[id] = Member{Path: ancestor, Node: node}
			}
		}
	}

	var delta Delta
	for id, m := range added {
		idx.insert(m)
		if old, ok := removed[id]; ok {
			if !model.Equal(old.Node, m.Node) {
				delta.Updated = append(delta.Updated, m.Path)
			}
			continue
		}
		delta.Added = append(delta.Added, m.Path)
	}
	for id, m := range removed {
		if _, ok := added[id]; !ok {
			delta.Removed = append(delta.Removed, m.Path)
		}
	}
	idx.sorted = nil

	sortPaths(delta.Added)
	sortPaths(delta.Removed)
	sortPaths(delta.Updated)
	if !delta.Empty() {
		debug.LogIndex("%s: +%d -%d ~%d (members=%d)\n",
			idx.rule.Name(), len(delta.Added), len(delta.Removed), len(delta.Updated), len(idx.members))
	}
	return delta
}

func (idx *TagIndex) insert(m Member) {
	idx.members[m.Path.ID()] = m
	idx.trie.insert(m.Path)
	idx.sorted = nil
}

func (idx *TagIndex) removeSubtree(p model.Path) []Member {
	paths := idx.trie.removeSubtree(p)
	out := make([]Member, 0, len(paths))
	for _, mp := range paths {
		id := mp.ID()
		if m, ok := idx.members[id]; ok {
			out = append(out, m)
			delete(idx.members, id)
		}
	}
	if len(out) > 0 {
		idx.sorted = nil
	}
	return out
}

func sortPaths(paths []model.Path) {
	sort.Slice(paths, func(i, j int) bool { return paths[i].Compare(paths[j]) < 0 })
}

// walk visits node and every present descendant, parents before children
func walk(at model.Path, node model.Model, fn func(model.Path, model.Model)) {
	switch n := node.(type) {
	case *model.MapModel:
		fn(at, n)
		n.Range(func(k string, v model.Model) bool {
			walk(at.Key(k), v, fn)
			return true
		})
	case *model.ListModel:
		fn(at, n)
		n.Range(func(i int, v model.Model) bool {
			walk(at.Index(i), v, fn)
			return true
		})
	case model.PrimitiveModel:
		fn(at, n)
	}
}
