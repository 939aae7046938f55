package model

import "sort"

// ChangeKind classifies a Change
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeRemoved
	ChangeReplaced
)

// String returns the change kind name
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Change is one maximal changed subtree between two roots. Containers that
// exist on both sides as the same kind are never reported themselves; the
// diff descends into them instead.
type Change struct {
	Path Path
	Kind ChangeKind
	Old  Model
	New  Model
}

// Diff returns the changed subtrees between oldRoot and newRoot. Subtrees
// shared by reference are skipped, so the work is proportional to the
// rewritten part of the tree rather than its total size.
func Diff(oldRoot, newRoot Model) []Change {
	var changes []Change
	diffInto(&changes, Root, normalize(oldRoot), normalize(newRoot))
	return changes
}

func diffInto(out *[]Change, at Path, oldNode, newNode Model) {
	if same(oldNode, newNode) {
		return
	}

	switch o := oldNode.(type) {
	case *MapModel:
		if n, ok := newNode.(*MapModel); ok {
			diffMaps(out, at, o, n)
			return
		}
	case *ListModel:
		if n, ok := newNode.(*ListModel); ok {
			diffLists(out, at, o, n)
			return
		}
	}

	oldAbsent, newAbsent := IsAbsent(oldNode), IsAbsent(newNode)
	switch {
	case oldAbsent && newAbsent:
		return
	case oldAbsent:
		*out = append(*out, Change{Path: at, Kind: ChangeAdded, Old: Absent, New: newNode})
	case newAbsent:
		*out = append(*out, Change{Path: at, Kind: ChangeRemoved, Old: oldNode, New: Absent})
	case Equal(oldNode, newNode):
		return
	default:
		*out = append(*out, Change{Path: at, Kind: ChangeReplaced, Old: oldNode, New: newNode})
	}
}

// diffMaps walks only the trie nodes the two maps do not share. Changes come
// out in the old map's key order, followed by added keys in insertion order.
func diffMaps(out *[]Change, at Path, o, n *MapModel) {
	type pair struct{ old, new *trieEntry }
	var pairs []pair
	diffTries(o.root, n.root, 0, func(oe, ne *trieEntry) bool {
		pairs = append(pairs, pair{oe, ne})
		return true
	})
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if (a.old == nil) != (b.old == nil) {
			return a.old != nil
		}
		if a.old != nil {
			return a.old.seq < b.old.seq
		}
		return a.new.seq < b.new.seq
	})

	for _, p := range pairs {
		switch {
		case p.new == nil:
			*out = append(*out, Change{Path: at.Key(p.old.key), Kind: ChangeRemoved, Old: p.old.value, New: Absent})
		case p.old == nil:
			*out = append(*out, Change{Path: at.Key(p.new.key), Kind: ChangeAdded, Old: Absent, New: p.new.value})
		case !same(p.old.value, p.new.value):
			diffInto(out, at.Key(p.old.key), p.old.value, p.new.value)
		}
	}
}

func diffLists(out *[]Change, at Path, o, n *ListModel) {
	size := o.Len()
	if n.Len() > size {
		size = n.Len()
	}
	for i := 0; i < size; i++ {
		ov, nv := o.Get(i), n.Get(i)
		if same(ov, nv) {
			continue
		}
		diffInto(out, at.Index(i), ov, nv)
	}
}

// ChangedPaths returns the paths of the changes
func ChangedPaths(changes []Change) []Path {
	out := make([]Path, len(changes))
	for i, c := range changes {
		out[i] = c.Path
	}
	return out
}

// Touches reports whether any change is at, above or below p
func Touches(changes []Change, p Path) bool {
	for _, c := range changes {
		if c.Path.Related(p) {
			return true
		}
	}
	return false
}
