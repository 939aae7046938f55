package reactive

import (
	"sort"
	"sync/atomic"

	"github.com/standardbeagle/rmodel/internal/debug"
	"github.com/standardbeagle/rmodel/internal/index"
	"github.com/standardbeagle/rmodel/internal/lifetime"
	"github.com/standardbeagle/rmodel/internal/model"
)

// Signal is a typed, read-only handle on a value the model keeps current.
// Version advances each time a commit changes the value; reactions fire on
// version changes.
type Signal[T any] interface {
	Name() string
	Value() T
	Version() uint64
	source() *cell[T]
}

// node is the untyped side of a signal that commits refresh
type node interface {
	label() string
	refresh(snap *Snapshot)
}

type cellState[T any] struct {
	value    T
	version  uint64
	revision uint64
}

// cell stores a signal's value. It is written only under the model's
// graphMu and read lock-free.
type cell[T any] struct {
	name  string
	state atomic.Pointer[cellState[T]]
}

func (c *cell[T]) init(name string, v T, revision uint64) {
	c.name = name
	c.state.Store(&cellState[T]{value: v, revision: revision})
}

// set stores v; changed advances the version
func (c *cell[T]) set(v T, revision uint64, changed bool) {
	old := c.state.Load()
	next := &cellState[T]{value: v, version: old.version, revision: revision}
	if changed {
		next.version++
	}
	c.state.Store(next)
}

func (c *cell[T]) load() (T, uint64) {
	s := c.state.Load()
	return s.value, s.version
}

// Name returns the signal name
func (c *cell[T]) Name() string { return c.name }

// Value returns the value as of the latest refreshed commit
func (c *cell[T]) Value() T { return c.state.Load().value }

// Version returns the number of changes since the signal was created
func (c *cell[T]) Version() uint64 { return c.state.Load().version }

// Revision returns the model revision the value was computed at
func (c *cell[T]) Revision() uint64 { return c.state.Load().revision }

func (c *cell[T]) source() *cell[T] { return c }

func (c *cell[T]) label() string { return c.name }

// TagSet is an immutable, path-ordered set of tagged nodes
type TagSet struct {
	members []index.Member
}

// Len returns the number of members
func (s TagSet) Len() int { return len(s.members) }

// Members returns a copy of the members ordered by path
func (s TagSet) Members() []index.Member {
	out := make([]index.Member, len(s.members))
	copy(out, s.members)
	return out
}

// Paths returns the member paths in order
func (s TagSet) Paths() []model.Path {
	out := make([]model.Path, len(s.members))
	for i, m := range s.members {
		out[i] = m.Path
	}
	return out
}

func (s TagSet) find(p model.Path) int {
	i := sort.Search(len(s.members), func(i int) bool { return s.members[i].Path.Compare(p) >= 0 })
	if i < len(s.members) && s.members[i].Path.Equal(p) {
		return i
	}
	return -1
}

// Contains reports whether p is a member
func (s TagSet) Contains(p model.Path) bool { return s.find(p) >= 0 }

// Get returns the member node at p
func (s TagSet) Get(p model.Path) (model.Model, bool) {
	if i := s.find(p); i >= 0 {
		return s.members[i].Node, true
	}
	return model.Absent, false
}

// Compare lists the paths present in s but not in prev, and those present in
// prev but not in s
func (s TagSet) Compare(prev TagSet) (added, removed []model.Path) {
	i, j := 0, 0
	for i < len(s.members) || j < len(prev.members) {
		switch {
		case j == len(prev.members):
			added = append(added, s.members[i].Path)
			i++
		case i == len(s.members):
			removed = append(removed, prev.members[j].Path)
			j++
		default:
			switch c := s.members[i].Path.Compare(prev.members[j].Path); {
			case c < 0:
				added = append(added, s.members[i].Path)
				i++
			case c > 0:
				removed = append(removed, prev.members[j].Path)
				j++
			default:
				i++
				j++
			}
		}
	}
	return added, removed
}

// SubscribeOption configures Subscribe
type SubscribeOption func(*TagSignal)

// WithContentTracking makes content changes of existing members count as
// changes of the tag set, not only members entering or leaving it
func WithContentTracking() SubscribeOption {
	return func(s *TagSignal) { s.trackContent = true }
}

// TagSignal is the set of nodes matching a rule, maintained incrementally
// from each commit's diff
type TagSignal struct {
	cell[TagSet]
	idx          *index.TagIndex
	trackContent bool
	stale        bool // idx may be half updated; guarded by graphMu
}

// Subscribe creates a tag signal over m for rule. The signal stops following
// the model when lt terminates. An empty name defaults to the rule's name.
func Subscribe(m *ReactiveModel, lt *lifetime.Lifetime, name string, rule index.Rule, opts ...SubscribeOption) *TagSignal {
	if name == "" {
		name = rule.Name()
	}
	s := &TagSignal{}
	for _, opt := range opts {
		opt(s)
	}
	m.attach(lt, s, func(snap *Snapshot) {
		s.idx = index.Build(rule, snap.Root)
		s.init(name, TagSet{members: s.idx.Members()}, snap.Revision)
	})
	return s
}

func (s *TagSignal) refresh(snap *Snapshot) {
	if s.stale {
		s.rebuild(snap)
		return
	}
	delta, failure := s.apply(snap)
	if failure != nil {
		debug.LogReaction("tag %s: rule panicked at revision %d, rebuilding: %v\n", s.Name(), snap.Revision, failure)
		s.rebuild(snap)
		return
	}
	if delta.Empty() {
		return
	}
	changed := delta.MembershipChanged() || (s.trackContent && len(delta.Updated) > 0)
	// member nodes are kept current even when only membership is tracked
	s.set(TagSet{members: s.idx.Members()}, snap.Revision, changed)
}

// apply updates the index from the commit's diff. A panicking rule leaves
// the index half updated, so it is reported instead of propagated.
func (s *TagSignal) apply(snap *Snapshot) (delta index.Delta, failure interface{}) {
	defer func() {
		if r := recover(); r != nil {
			failure = r
		}
	}()
	return s.idx.Apply(snap.Root, snap.Changes), nil
}

// rebuild replaces the index with a full scan of the committed root. If the
// rule panics again the signal stays stale and the next commit retries.
func (s *TagSignal) rebuild(snap *Snapshot) {
	s.stale = true
	idx := index.Build(s.idx.Rule(), snap.Root)
	s.idx = idx
	s.stale = false

	prev := s.Value()
	next := TagSet{members: idx.Members()}
	added, removed := next.Compare(prev)
	changed := len(added) > 0 || len(removed) > 0
	if !changed && s.trackContent {
		for _, mem := range next.members {
			if old, ok := prev.Get(mem.Path); !ok || !model.Equal(old, mem.Node) {
				changed = true
				break
			}
		}
	}
	s.set(next, snap.Revision, changed)
}

// Rule returns the membership rule
func (s *TagSignal) Rule() index.Rule { return s.idx.Rule() }

// Evaluations returns how many rule evaluations maintaining the set has cost
func (s *TagSignal) Evaluations() int64 { return s.idx.Evaluations() }

// PathSignal is the value at a path
type PathSignal struct {
	cell[model.Model]
	path model.Path
}

// Watch creates a signal following the value at path. It changes only when
// a commit touches the path and the new value differs from the old one.
func Watch(m *ReactiveModel, lt *lifetime.Lifetime, path model.Path) *PathSignal {
	s := &PathSignal{path: path}
	m.attach(lt, s, func(snap *Snapshot) {
		s.init("watch("+path.String()+")", model.GetIn(snap.Root, path), snap.Revision)
	})
	return s
}

// Path returns the watched path
func (s *PathSignal) Path() model.Path { return s.path }

func (s *PathSignal) refresh(snap *Snapshot) {
	if !model.Touches(snap.Changes, s.path) {
		return
	}
	next := model.GetIn(snap.Root, s.path)
	if model.Equal(s.Value(), next) {
		return
	}
	s.set(next, snap.Revision, true)
}

// Derived is a value computed from the whole root
type Derived[T any] struct {
	cell[T]
	fn func(model.Model) T
	eq func(a, b T) bool
}

// Derive creates a signal recomputed by fn after every commit that changed
// the root. The value changes when eq reports the old and new values
// differ; a nil eq treats every recomputation as a change.
func Derive[T any](m *ReactiveModel, lt *lifetime.Lifetime, name string, fn func(model.Model) T, eq func(a, b T) bool) *Derived[T] {
	d := &Derived[T]{fn: fn, eq: eq}
	m.attach(lt, d, func(snap *Snapshot) {
		d.init(name, fn(snap.Root), snap.Revision)
	})
	return d
}

func (d *Derived[T]) refresh(snap *Snapshot) {
	next := d.fn(snap.Root)
	changed := d.eq == nil || !d.eq(d.Value(), next)
	d.set(next, snap.Revision, changed)
}
