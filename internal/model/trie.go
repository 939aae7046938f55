package model

import (
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// Map entries live in a hash array mapped trie keyed by the xxhash of the
// key. A write copies only the nodes between the root and the key, so two
// versions of a wide map share every other node and diffing them only
// descends where the node pointers differ.

const (
	trieBits     = 5
	trieWidth    = 1 << trieBits
	trieMask     = trieWidth - 1
	trieMaxShift = 64
)

// trieEntry is an immutable key binding. seq records insertion order.
type trieEntry struct {
	key   string
	hash  uint64
	value Model
	seq   uint64
}

// trieSlot holds either an entry or a child node
type trieSlot struct {
	entry *trieEntry
	node  *trieNode
}

// trieNode is a bitmap-indexed branch. Once the hash bits run out, colliding
// entries are kept in bucket instead.
type trieNode struct {
	bitmap uint32
	slots  []trieSlot
	bucket []*trieEntry
}

func hashKey(key string) uint64 { return xxhash.Sum64String(key) }

func slotBit(h uint64, shift uint) uint32 { return uint32(1) << ((h >> shift) & trieMask) }

func (n *trieNode) slot(bit uint32) (trieSlot, bool) {
	if n.bitmap&bit == 0 {
		return trieSlot{}, false
	}
	return n.slots[bits.OnesCount32(n.bitmap&(bit-1))], true
}

func (n *trieNode) find(h uint64, key string) *trieEntry {
	for shift := uint(0); n != nil; shift += trieBits {
		if shift >= trieMaxShift {
			for _, e := range n.bucket {
				if e.key == key {
					return e
				}
			}
			return nil
		}
		s, ok := n.slot(slotBit(h, shift))
		if !ok {
			return nil
		}
		if s.entry != nil {
			if s.entry.key == key {
				return s.entry
			}
			return nil
		}
		n = s.node
	}
	return nil
}

// put returns a copy of n with e bound, plus the entry e replaced. A nil
// receiver is an empty node.
func (n *trieNode) put(e *trieEntry, shift uint) (*trieNode, *trieEntry) {
	if n == nil {
		n = &trieNode{}
	}
	if shift >= trieMaxShift {
		bucket := make([]*trieEntry, len(n.bucket), len(n.bucket)+1)
		copy(bucket, n.bucket)
		for i, x := range bucket {
			if x.key == e.key {
				bucket[i] = e
				return &trieNode{bucket: bucket}, x
			}
		}
		return &trieNode{bucket: append(bucket, e)}, nil
	}

	bit := slotBit(e.hash, shift)
	pos := bits.OnesCount32(n.bitmap & (bit - 1))
	if n.bitmap&bit == 0 {
		slots := make([]trieSlot, len(n.slots)+1)
		copy(slots, n.slots[:pos])
		slots[pos] = trieSlot{entry: e}
		copy(slots[pos+1:], n.slots[pos:])
		return &trieNode{bitmap: n.bitmap | bit, slots: slots}, nil
	}

	var (
		updated trieSlot
		old     *trieEntry
	)
	cur := n.slots[pos]
	switch {
	case cur.node != nil:
		var child *trieNode
		child, old = cur.node.put(e, shift+trieBits)
		updated = trieSlot{node: child}
	case cur.entry.key == e.key:
		updated, old = trieSlot{entry: e}, cur.entry
	default:
		child, _ := (*trieNode)(nil).put(cur.entry, shift+trieBits)
		child, _ = child.put(e, shift+trieBits)
		updated = trieSlot{node: child}
	}
	slots := make([]trieSlot, len(n.slots))
	copy(slots, n.slots)
	slots[pos] = updated
	return &trieNode{bitmap: n.bitmap, slots: slots}, old
}

// remove returns a copy of n without key and the removed entry. When key is
// not bound it returns n itself and nil. A nil result is an empty node.
func (n *trieNode) remove(h uint64, key string, shift uint) (*trieNode, *trieEntry) {
	if n == nil {
		return nil, nil
	}
	if shift >= trieMaxShift {
		for i, x := range n.bucket {
			if x.key != key {
				continue
			}
			if len(n.bucket) == 1 {
				return nil, x
			}
			bucket := make([]*trieEntry, 0, len(n.bucket)-1)
			bucket = append(bucket, n.bucket[:i]...)
			bucket = append(bucket, n.bucket[i+1:]...)
			return &trieNode{bucket: bucket}, x
		}
		return n, nil
	}

	bit := slotBit(h, shift)
	cur, ok := n.slot(bit)
	if !ok {
		return n, nil
	}
	pos := bits.OnesCount32(n.bitmap & (bit - 1))

	var (
		updated trieSlot
		removed *trieEntry
	)
	if cur.entry != nil {
		if cur.entry.key != key {
			return n, nil
		}
		removed = cur.entry
	} else {
		child, r := cur.node.remove(h, key, shift+trieBits)
		if r == nil {
			return n, nil
		}
		removed = r
		if child != nil {
			// a lone entry moves back up so the trie stays shallow
			if e := child.single(); e != nil {
				updated = trieSlot{entry: e}
			} else {
				updated = trieSlot{node: child}
			}
		}
	}

	if updated.entry == nil && updated.node == nil {
		if len(n.slots) == 1 {
			return nil, removed
		}
		slots := make([]trieSlot, 0, len(n.slots)-1)
		slots = append(slots, n.slots[:pos]...)
		slots = append(slots, n.slots[pos+1:]...)
		return &trieNode{bitmap: n.bitmap &^ bit, slots: slots}, removed
	}
	slots := make([]trieSlot, len(n.slots))
	copy(slots, n.slots)
	slots[pos] = updated
	return &trieNode{bitmap: n.bitmap, slots: slots}, removed
}

// single returns the entry of a node that holds exactly one entry and no children
func (n *trieNode) single() *trieEntry {
	if len(n.bucket) == 1 {
		return n.bucket[0]
	}
	if len(n.bucket) == 0 && len(n.slots) == 1 && n.slots[0].entry != nil {
		return n.slots[0].entry
	}
	return nil
}

// each calls fn for every entry until fn returns false
func (n *trieNode) each(fn func(*trieEntry) bool) bool {
	if n == nil {
		return true
	}
	for _, e := range n.bucket {
		if !fn(e) {
			return false
		}
	}
	for _, s := range n.slots {
		if s.entry != nil {
			if !fn(s.entry) {
				return false
			}
			continue
		}
		if !s.node.each(fn) {
			return false
		}
	}
	return true
}

func (n *trieNode) entries() []*trieEntry {
	var out []*trieEntry
	n.each(func(e *trieEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}

func (s trieSlot) entries() []*trieEntry {
	switch {
	case s.entry != nil:
		return []*trieEntry{s.entry}
	case s.node != nil:
		return s.node.entries()
	default:
		return nil
	}
}

// diffTries calls fn with every pair of bindings that differ between a and
// b, using nil for the missing side, until fn returns false. Nodes both
// tries share are skipped.
func diffTries(a, b *trieNode, shift uint, fn func(old, new *trieEntry) bool) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || shift >= trieMaxShift {
		return diffEntries(a.entries(), b.entries(), fn)
	}
	for i := uint(0); i < trieWidth; i++ {
		bit := uint32(1) << i
		sa, okA := a.slot(bit)
		sb, okB := b.slot(bit)
		switch {
		case !okA && !okB:
			continue
		case okA && okB && sa.node != nil && sb.node != nil:
			if !diffTries(sa.node, sb.node, shift+trieBits, fn) {
				return false
			}
		case okA && okB && sa.entry != nil && sa.entry == sb.entry:
			continue
		default:
			if !diffEntries(sa.entries(), sb.entries(), fn) {
				return false
			}
		}
	}
	return true
}

// diffEntries pairs up two small entry sets by key
func diffEntries(olds, news []*trieEntry, fn func(old, new *trieEntry) bool) bool {
	for _, o := range olds {
		var match *trieEntry
		for _, n := range news {
			if n.key == o.key {
				match = n
				break
			}
		}
		if match == o {
			continue
		}
		if !fn(o, match) {
			return false
		}
	}
	for _, n := range news {
		found := false
		for _, o := range olds {
			if o.key == n.key {
				found = true
				break
			}
		}
		if !found && !fn(nil, n) {
			return false
		}
	}
	return true
}
