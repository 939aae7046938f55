// Package model implements the persistent, path-addressed value tree that the
// reactive layer publishes as its root.
//
// A Model is one of four variants: *MapModel, *ListModel, PrimitiveModel or
// AbsentModel. Values are immutable; every mutation returns a new tree that
// shares all untouched subtrees with the old one. Use Visit to handle all four
// variants exhaustively.
package model

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Kind identifies the variant of a Model
type Kind uint8

const (
	KindAbsent Kind = iota
	KindMap
	KindList
	KindPrimitive
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	case KindPrimitive:
		return "primitive"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Model is an immutable node of the tree. The set of implementations is
// closed to this package.
type Model interface {
	Kind() Kind
	isModel()
}

// Visitor handles every Model variant. Implementations are forced to cover
// all four cases.
type Visitor[T any] interface {
	Map(m *MapModel) T
	List(l *ListModel) T
	Primitive(p PrimitiveModel) T
	Absent() T
}

// Visit dispatches m to the matching visitor method. A nil Model is treated as Absent.
func Visit[T any](m Model, v Visitor[T]) T {
	switch n := m.(type) {
	case *MapModel:
		if n == nil {
			return v.Absent()
		}
		return v.Map(n)
	case *ListModel:
		if n == nil {
			return v.Absent()
		}
		return v.List(n)
	case PrimitiveModel:
		return v.Primitive(n)
	default:
		return v.Absent()
	}
}

// AbsentModel is the tombstone marking a missing or deleted subtree
type AbsentModel struct{}

// Absent is the single Absent value
var Absent Model = AbsentModel{}

func (AbsentModel) Kind() Kind { return KindAbsent }
func (AbsentModel) isModel()   {}

// IsAbsent reports whether m is Absent or nil
func IsAbsent(m Model) bool {
	switch n := m.(type) {
	case nil:
		return true
	case AbsentModel:
		return true
	case *MapModel:
		return n == nil
	case *ListModel:
		return n == nil
	default:
		return false
	}
}

func normalize(m Model) Model {
	if IsAbsent(m) {
		return Absent
	}
	return m
}

// PrimitiveModel is an opaque leaf. The wrapped value is always one of
// string, int64, float64, bool or nil so primitives compare with ==, except
// that NaN equals NaN.
type PrimitiveModel struct {
	value interface{}
}

func (PrimitiveModel) Kind() Kind { return KindPrimitive }
func (PrimitiveModel) isModel()   {}

// Value returns the wrapped scalar
func (p PrimitiveModel) Value() interface{} { return p.value }

// String creates a string primitive
func String(s string) PrimitiveModel { return PrimitiveModel{value: s} }

// Int creates an integer primitive
func Int(i int64) PrimitiveModel { return PrimitiveModel{value: i} }

// Float creates a floating point primitive
func Float(f float64) PrimitiveModel { return PrimitiveModel{value: f} }

// Bool creates a boolean primitive
func Bool(b bool) PrimitiveModel { return PrimitiveModel{value: b} }

// Null creates the null primitive. Null is a present value, unlike Absent.
func Null() PrimitiveModel { return PrimitiveModel{} }

// NewPrimitive wraps a Go scalar, widening integer and float types.
func NewPrimitive(v interface{}) (PrimitiveModel, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	default:
		return PrimitiveModel{}, fmt.Errorf("unsupported primitive type %T", v)
	}
}

// Entry is a key/value pair of a MapModel
type Entry struct {
	Key   string
	Value Model
}

// MapModel is an ordered map from unique keys to non-absent children.
// Keys keep their insertion order. Entries are held in a persistent hash
// trie, so With and Without copy only the nodes leading to the key.
type MapModel struct {
	root *trieNode
	size int
	next uint64        // insertion sequence for the next new key
	fp   atomic.Uint64 // cached fingerprint, 0 = not computed
}

var emptyMap = &MapModel{}

func (*MapModel) Kind() Kind { return KindMap }
func (*MapModel) isModel()   {}

// EmptyMap returns the shared empty map
func EmptyMap() *MapModel { return emptyMap }

// NewMap builds a map from entries. Later duplicates overwrite earlier ones
// in place; Absent values are skipped.
func NewMap(entries ...Entry) *MapModel {
	m := emptyMap
	for _, e := range entries {
		if IsAbsent(e.Value) {
			continue
		}
		m = m.With(e.Key, e.Value)
	}
	return m
}

// Len returns the number of keys
func (m *MapModel) Len() int { return m.size }

// Get returns the child at key, or Absent
func (m *MapModel) Get(key string) Model {
	if e := m.root.find(hashKey(key), key); e != nil {
		return e.value
	}
	return Absent
}

// Has reports whether key is present
func (m *MapModel) Has(key string) bool {
	return m.root.find(hashKey(key), key) != nil
}

// ordered returns the entries in insertion order
func (m *MapModel) ordered() []*trieEntry {
	out := make([]*trieEntry, 0, m.size)
	m.root.each(func(e *trieEntry) bool {
		out = append(out, e)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Keys returns the keys in insertion order
func (m *MapModel) Keys() []string {
	entries := m.ordered()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out
}

// Range calls fn for every entry in insertion order until fn returns false
func (m *MapModel) Range(fn func(key string, value Model) bool) {
	for _, e := range m.ordered() {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// With returns a map with key bound to value. Writing Absent removes the key.
// The receiver is returned unchanged when nothing would change. An existing
// key keeps its position.
func (m *MapModel) With(key string, value Model) *MapModel {
	if IsAbsent(value) {
		return m.Without(key)
	}
	h := hashKey(key)
	old := m.root.find(h, key)
	if old != nil && same(old.value, value) {
		return m
	}

	e := &trieEntry{key: key, hash: h, value: value, seq: m.next}
	size, next := m.size+1, m.next+1
	if old != nil {
		e.seq = old.seq
		size, next = m.size, m.next
	}
	root, _ := m.root.put(e, 0)
	return &MapModel{root: root, size: size, next: next}
}

// Without returns a map with key removed
func (m *MapModel) Without(key string) *MapModel {
	root, removed := m.root.remove(hashKey(key), key, 0)
	if removed == nil {
		return m
	}
	return &MapModel{root: root, size: m.size - 1, next: m.next}
}

// ListModel is an ordered sequence of children. Deleted slots hold Absent;
// trailing Absent slots are always trimmed.
type ListModel struct {
	items []Model
	fp    atomic.Uint64
}

var emptyList = &ListModel{}

func (*ListModel) Kind() Kind { return KindList }
func (*ListModel) isModel()   {}

// EmptyList returns the shared empty list
func EmptyList() *ListModel { return emptyList }

// NewList builds a list from items
func NewList(items ...Model) *ListModel {
	out := make([]Model, len(items))
	for i, it := range items {
		out[i] = normalize(it)
	}
	return &ListModel{items: trimTrailing(out)}
}

func trimTrailing(items []Model) []Model {
	n := len(items)
	for n > 0 && IsAbsent(items[n-1]) {
		n--
	}
	return items[:n]
}

// Len returns the number of slots, holes included
func (l *ListModel) Len() int { return len(l.items) }

// Get returns the item at i, or Absent when out of range
func (l *ListModel) Get(i int) Model {
	if i < 0 || i >= len(l.items) {
		return Absent
	}
	return l.items[i]
}

// Items returns a copy of the slots
func (l *ListModel) Items() []Model {
	out := make([]Model, len(l.items))
	copy(out, l.items)
	return out
}

// Range calls fn for every present item until fn returns false
func (l *ListModel) Range(fn func(i int, value Model) bool) {
	for i, it := range l.items {
		if IsAbsent(it) {
			continue
		}
		if !fn(i, it) {
			return
		}
	}
}

// With returns a list with slot i set to value. Writing past the end pads
// with holes; writing Absent past the end is a no-op.
func (l *ListModel) With(i int, value Model) *ListModel {
	if i < 0 {
		panic(fmt.Sprintf("model: negative list index %d", i))
	}
	value = normalize(value)
	if i < len(l.items) && same(l.items[i], value) {
		return l
	}
	if i >= len(l.items) && IsAbsent(value) {
		return l
	}

	size := len(l.items)
	if i >= size {
		size = i + 1
	}
	items := make([]Model, size)
	copy(items, l.items)
	for j := len(l.items); j < size; j++ {
		items[j] = Absent
	}
	items[i] = value
	return &ListModel{items: trimTrailing(items)}
}

// Append returns a list with value added at the end
func (l *ListModel) Append(value Model) *ListModel {
	return l.With(len(l.items), value)
}

// Contains reports whether any present item is Equal to value
func (l *ListModel) Contains(value Model) bool {
	for _, it := range l.items {
		if Equal(it, value) {
			return true
		}
	}
	return false
}

// same is identity: pointer equality for containers, value equality for leaves
func same(a, b Model) bool {
	switch x := a.(type) {
	case *MapModel:
		y, ok := b.(*MapModel)
		return ok && x == y
	case *ListModel:
		y, ok := b.(*ListModel)
		return ok && x == y
	case PrimitiveModel:
		y, ok := b.(PrimitiveModel)
		return ok && primitiveEqual(x, y)
	default:
		return IsAbsent(a) && IsAbsent(b)
	}
}
