package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pathStrings(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Kind.String() + " " + c.Path.String()
	}
	return out
}

func TestDiff_Basic(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a", "b"), Int(1))
	root = PutIn(root, NewPath("a", "c"), Int(2))

	next := PutIn(root, NewPath("a", "b"), Int(5))
	next = PutIn(next, NewPath("a", "d"), String("new"))
	next = DeleteIn(next, NewPath("a", "c"))

	assert.ElementsMatch(t, []string{
		"replaced a/b",
		"removed a/c",
		"added a/d",
	}, pathStrings(Diff(root, next)))
}

func TestDiff_IdenticalRoots(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a"), Int(1))
	assert.Empty(t, Diff(root, root))

	// Structurally equal but rebuilt leaves produce no changes either
	rebuilt := PutIn(EmptyMap(), NewPath("a"), Int(1))
	assert.Empty(t, Diff(root, rebuilt))
}

func TestDiff_SubtreeRemovalIsOneChange(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a", "b", "c", "edt1", "tags").Index(0), String("editor"))
	next := DeleteIn(root, NewPath("a", "b", "c", "edt1"))

	changes := Diff(root, next)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeRemoved, changes[0].Kind)
	assert.Equal(t, "a/b/c/edt1", changes[0].Path.String())
	assert.True(t, IsAbsent(changes[0].New))
}

func TestDiff_Lists(t *testing.T) {
	root := PutIn(EmptyMap(), Root.Key("l"), NewList(Int(1), Int(2)))
	next := PutIn(root, Root.Key("l").Index(3), Int(4))
	next = PutIn(next, Root.Key("l").Index(0), Absent)

	assert.ElementsMatch(t, []string{
		"removed l/[0]",
		"added l/[3]",
	}, pathStrings(Diff(root, next)))
}

func TestDiff_KindChangeIsReplace(t *testing.T) {
	root := PutIn(EmptyMap(), NewPath("a"), NewList(Int(1)))
	next := PutIn(root, NewPath("a"), NewMap(Entry{"x", Int(1)}))

	changes := Diff(root, next)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeReplaced, changes[0].Kind)
	assert.Equal(t, "a", changes[0].Path.String())
}

func TestTouches(t *testing.T) {
	changes := []Change{{Path: NewPath("a", "b", "c")}}

	assert.True(t, Touches(changes, NewPath("a")), "ancestor")
	assert.True(t, Touches(changes, NewPath("a", "b", "c", "d")), "descendant")
	assert.False(t, Touches(changes, NewPath("a", "x")))
	assert.Len(t, ChangedPaths(changes), 1)
}

func TestProperty_DiffReplays(t *testing.T) {
	// Applying every change's New value onto the old root reproduces the new root
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		old := randomRoot(rng, 6)
		next := old
		for j := 0; j < 1+rng.Intn(4); j++ {
			if rng.Intn(3) == 0 {
				next = DeleteIn(next, randomPath(rng, 3))
			} else {
				next = PutIn(next, randomPath(rng, 4), randomValue(rng, 2))
			}
		}

		replayed := old
		for _, c := range Diff(old, next) {
			replayed = PutIn(replayed, c.Path, c.New)
		}
		assert.True(t, Equal(next, replayed), "replay mismatch:\nold  %v\nnew  %v\ngot  %v", old, next, replayed)
	}
}
