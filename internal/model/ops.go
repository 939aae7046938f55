package model

// GetIn returns the subtree at path, or Absent if any step is missing or
// addresses the wrong kind of container. It never fails.
func GetIn(root Model, path Path) Model {
	node := normalize(root)
	for _, seg := range path.segs {
		switch n := node.(type) {
		case *MapModel:
			if seg.isIndex {
				return Absent
			}
			node = n.Get(seg.key)
		case *ListModel:
			if !seg.isIndex {
				return Absent
			}
			node = n.Get(seg.index)
		default:
			return Absent
		}
	}
	return node
}

// PutIn returns a new root with value installed at path. Only the nodes on
// the path are copied; every other subtree is shared with root.
//
// Writing a present value creates missing intermediate containers, replacing
// any leaf or container of the wrong kind in the way. Writing Absent deletes
// the subtree and never creates anything, so deleting a missing path returns
// root itself.
func PutIn(root Model, path Path, value Model) Model {
	return putIn(normalize(root), path.segs, normalize(value))
}

func putIn(node Model, segs []Segment, value Model) Model {
	if len(segs) == 0 {
		return value
	}
	seg := segs[0]

	if seg.isIndex {
		list, ok := node.(*ListModel)
		if !ok {
			if IsAbsent(value) {
				return node
			}
			list = emptyList
		}
		child := list.Get(seg.index)
		updated := putIn(child, segs[1:], value)
		if ok && same(child, updated) {
			return node
		}
		return list.With(seg.index, updated)
	}

	m, ok := node.(*MapModel)
	if !ok {
		if IsAbsent(value) {
			return node
		}
		m = emptyMap
	}
	child := m.Get(seg.key)
	updated := putIn(child, segs[1:], value)
	if ok && same(child, updated) {
		return node
	}
	return m.With(seg.key, updated)
}

// DeleteIn is PutIn with Absent
func DeleteIn(root Model, path Path) Model {
	return PutIn(root, path, Absent)
}

// UpdateIn replaces the subtree at path with fn applied to its current value
func UpdateIn(root Model, path Path, fn func(Model) Model) Model {
	return PutIn(root, path, fn(GetIn(root, path)))
}
