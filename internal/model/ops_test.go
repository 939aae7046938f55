package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIn_MissingPathsAreAbsent(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a", "b"), Int(1))

	assert.True(t, Equal(Int(1), GetIn(root, NewPath("a", "b"))))
	assert.True(t, IsAbsent(GetIn(root, NewPath("a", "x"))))
	assert.True(t, IsAbsent(GetIn(root, NewPath("a", "b", "c"))), "cannot descend into a primitive")
	assert.True(t, IsAbsent(GetIn(root, Root.Key("a").Index(0))), "index into a map is absent")
	assert.True(t, IsAbsent(GetIn(nil, NewPath("a"))))
	assert.Same(t, root, GetIn(root, Root))
}

func TestPutIn_WriteThroughCreation(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a", "b", "c").Key("edt1"), EmptyMap())

	a, ok := GetIn(root, NewPath("a")).(*MapModel)
	require.True(t, ok, "intermediate map created")
	assert.Equal(t, []string{"b"}, a.Keys())

	withList := PutIn(root, NewPath("a", "b", "c", "edt1", "tags").Index(0), String("editor"))
	tags, ok := GetIn(withList, NewPath("a", "b", "c", "edt1", "tags")).(*ListModel)
	require.True(t, ok, "index segment creates a list")
	assert.True(t, tags.Contains(String("editor")))
}

func TestPutIn_ReplacesWrongKind(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a"), Int(1))
	root = PutIn(root, NewPath("a", "b"), Int(2))

	assert.True(t, Equal(Int(2), GetIn(root, NewPath("a", "b"))))
}

func TestPutIn_RootReplacesTree(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a"), Int(1))
	replaced := PutIn(root, Root, String("whole"))
	assert.True(t, Equal(String("whole"), replaced))
}

func TestPutIn_DeleteMissingIsNoop(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a", "b"), Int(1))

	assert.Same(t, root, PutIn(root, NewPath("x", "y", "z"), Absent))
	assert.Same(t, root, PutIn(root, NewPath("a", "b", "c"), Absent))
	assert.Same(t, root, PutIn(root, Root.Key("a").Index(3), Absent))
}

func TestPutIn_DeleteKeepsEmptyParent(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a", "b"), Int(1))
	root = DeleteIn(root, NewPath("a", "b"))

	a, ok := GetIn(root, NewPath("a")).(*MapModel)
	require.True(t, ok)
	assert.Equal(t, 0, a.Len())
}

func TestPutIn_StructuralSharing(t *testing.T) {
	left := NewMap(Entry{"deep", NewMap(Entry{"x", Int(1)})})
	root := NewMap(Entry{"left", left}, Entry{"right", EmptyMap()})

	next := PutIn(root, NewPath("right", "y"), Int(2))

	assert.Same(t, left, GetIn(next, NewPath("left")), "untouched subtree is shared")
	assert.True(t, IsAbsent(GetIn(root, NewPath("right", "y"))), "old root is unchanged")
}

func TestUpdateIn(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("count"), Int(1))
	root = UpdateIn(root, NewPath("count"), func(m Model) Model {
		return Int(m.(PrimitiveModel).Value().(int64) + 1)
	})
	assert.True(t, Equal(Int(2), GetIn(root, NewPath("count"))))
}

// Property-based tests for the persistent tree
// These tests verify invariants that should hold for all roots and paths

var propertyKeys = []string{"a", "b", "c", "tags", "edt1"}

func randomPath(rng *rand.Rand, maxLen int) Path {
	p := Root
	n := 1 + rng.Intn(maxLen)
	for i := 0; i < n; i++ {
		if rng.Intn(4) == 0 {
			p = p.Index(rng.Intn(3))
		} else {
			p = p.Key(propertyKeys[rng.Intn(len(propertyKeys))])
		}
	}
	return p
}

func randomValue(rng *rand.Rand, depth int) Model {
	switch r := rng.Intn(6); {
	case depth <= 0 || r < 2:
		return Int(int64(rng.Intn(5)))
	case r == 2:
		return String(propertyKeys[rng.Intn(len(propertyKeys))])
	case r == 3:
		items := make([]Model, rng.Intn(3))
		for i := range items {
			items[i] = randomValue(rng, depth-1)
		}
		return NewList(items...)
	default:
		entries := make([]Entry, rng.Intn(3))
		for i := range entries {
			entries[i] = Entry{propertyKeys[rng.Intn(len(propertyKeys))], randomValue(rng, depth-1)}
		}
		return NewMap(entries...)
	}
}

func randomRoot(rng *rand.Rand, writes int) Model {
	root := Model(EmptyMap())
	for i := 0; i < writes; i++ {
		root = PutIn(root, randomPath(rng, 4), randomValue(rng, 2))
	}
	return root
}

// replacesContainer reports whether writing at p swaps an existing container
// for one of the other kind, which discards the old siblings
func replacesContainer(root Model, p Path) bool {
	for i := 0; i < p.Len(); i++ {
		switch GetIn(root, p.Prefix(i)).(type) {
		case *MapModel:
			if p.At(i).IsIndex() {
				return true
			}
		case *ListModel:
			if !p.At(i).IsIndex() {
				return true
			}
		default:
			return false
		}
	}
	return false
}

func TestProperty_PutIn(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	t.Run("unrelated_paths_unchanged", func(t *testing.T) {
		// writes never affect paths that neither prefix nor extend the write path
		for i := 0; i < 300; i++ {
			root := randomRoot(rng, 8)
			writeAt := randomPath(rng, 4)
			readAt := randomPath(rng, 4)
			if writeAt.Related(readAt) || replacesContainer(root, writeAt) {
				continue
			}
			next := PutIn(root, writeAt, randomValue(rng, 2))
			before, after := GetIn(root, readAt), GetIn(next, readAt)
			assert.True(t, Equal(before, after), "write at %s changed %s: %v -> %v", writeAt, readAt, before, after)
		}
	})

	t.Run("write_then_read", func(t *testing.T) {
		// reading back a present value returns it
		for i := 0; i < 300; i++ {
			root := randomRoot(rng, 8)
			p := randomPath(rng, 4)
			v := randomValue(rng, 2)
			got := GetIn(PutIn(root, p, v), p)
			assert.True(t, Equal(v, got), "at %s wrote %v read %v", p, v, got)
		}
	})

	t.Run("delete_propagates", func(t *testing.T) {
		// after deleting an ancestor every descendant reads Absent
		for i := 0; i < 300; i++ {
			root := randomRoot(rng, 8)
			ancestor := randomPath(rng, 3)
			descendant := ancestor.Concat(randomPath(rng, 3))
			next := PutIn(root, ancestor, Absent)
			assert.True(t, IsAbsent(GetIn(next, ancestor)))
			assert.True(t, IsAbsent(GetIn(next, descendant)), "%s survived delete of %s", descendant, ancestor)
		}
	})

	t.Run("old_roots_are_immutable", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			root := randomRoot(rng, 8)
			snapshot := Format(root)
			fp := Fingerprint(root)
			for j := 0; j < 5; j++ {
				PutIn(root, randomPath(rng, 4), randomValue(rng, 2))
			}
			assert.Equal(t, snapshot, Format(root))
			assert.Equal(t, fp, Fingerprint(root))
		}
	})
}
