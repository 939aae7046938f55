package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath_Composition(t *testing.T) {
	base := NewPath("a", "b", "c")
	edt := base.Key("edt1")

	assert.Equal(t, 3, base.Len(), "composition must not mutate the receiver")
	assert.Equal(t, 4, edt.Len())
	assert.Equal(t, "a/b/c/edt1", edt.String())
	assert.True(t, edt.Parent().Equal(base))
	assert.Equal(t, "edt1", edt.Last().Name())

	tag := edt.Key("tags").Index(0)
	assert.Equal(t, "a/b/c/edt1/tags/[0]", tag.String())
	assert.Equal(t, "a/b/c/edt1/tags/0", tag.Slashed())
	assert.True(t, tag.Last().IsIndex())
	assert.Equal(t, 0, tag.Last().Pos())
}

func TestPath_SiblingsDoNotAlias(t *testing.T) {
	base := NewPath("a")
	parent := base.Key("b").Parent()
	x := parent.Key("x")
	y := parent.Key("y")

	assert.Equal(t, "a/x", x.String())
	assert.Equal(t, "a/y", y.String())
}

func TestPath_Relations(t *testing.T) {
	a := NewPath("a")
	ab := NewPath("a", "b")
	ac := NewPath("a", "c")

	assert.True(t, a.IsPrefixOf(ab))
	assert.True(t, ab.IsPrefixOf(ab))
	assert.True(t, a.IsAncestorOf(ab))
	assert.False(t, ab.IsAncestorOf(ab))
	assert.False(t, ab.IsPrefixOf(ac))
	assert.True(t, ab.Related(a))
	assert.False(t, ab.Related(ac))
	assert.True(t, Root.IsPrefixOf(ab))
	assert.True(t, Root.IsRoot())
	assert.True(t, Root.Parent().IsRoot())
}

func TestPath_IDIsUnambiguous(t *testing.T) {
	// Keys that would collide under naive joining
	p1 := NewPath("a/b")
	p2 := NewPath("a", "b")
	p3 := NewPath("0")
	p4 := Root.Index(0)

	ids := map[string]bool{}
	for _, p := range []Path{p1, p2, p3, p4} {
		ids[p.ID()] = true
	}
	assert.Len(t, ids, 4)

	assert.Equal(t, NewPath("x", "y").ID(), NewPath("x").Key("y").ID())
	assert.Equal(t, NewPath("x", "y").Hash(), NewPath("x").Key("y").Hash())
	assert.NotEqual(t, p1.Hash(), p2.Hash())
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("/a/b/[2]/c/")
	require.NoError(t, err)
	assert.True(t, p.Equal(NewPath("a", "b").Index(2).Key("c")))

	root, err := ParsePath("")
	require.NoError(t, err)
	assert.True(t, root.IsRoot())

	_, err = ParsePath("a/[x]")
	assert.Error(t, err)
	_, err = ParsePath("a/[-1]")
	assert.Error(t, err)

	round := NewPath("editors").Index(4).Key("tags")
	assert.True(t, MustParsePath(round.String()).Equal(round))
}

func TestPath_Compare(t *testing.T) {
	assert.Equal(t, 0, NewPath("a", "b").Compare(NewPath("a", "b")))
	assert.Equal(t, -1, NewPath("a").Compare(NewPath("a", "b")))
	assert.Equal(t, 1, NewPath("b").Compare(NewPath("a", "z")))
	assert.Equal(t, -1, Root.Key("z").Compare(Root.Index(0)), "keys sort before indexes")
	assert.Equal(t, -1, Root.Index(2).Compare(Root.Index(10)))
}

func TestIndex_NegativePanics(t *testing.T) {
	assert.Panics(t, func() { Index(-1) })
}
