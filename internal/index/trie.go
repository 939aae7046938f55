package index

import "github.com/standardbeagle/rmodel/internal/model"

// trieNode mirrors the shape of the member paths so that every member under
// a given path can be found without touching the rest of the set.
type trieNode struct {
	children map[model.Segment]*trieNode
	member   bool
	path     model.Path
	count    int // members in this subtree, self included
}

func newTrieNode() *trieNode {
	return &trieNode{}
}

func (t *trieNode) insert(p model.Path) {
	// Walk down once to check for an existing member so counts stay exact.
	if n := t.find(p); n != nil && n.member {
		return
	}
	node := t
	node.count++
	for i := 0; i < p.Len(); i++ {
		seg := p.At(i)
		if node.children == nil {
			node.children = make(map[model.Segment]*trieNode)
		}
		child, ok := node.children[seg]
		if !ok {
			child = newTrieNode()
			node.children[seg] = child
		}
		child.count++
		node = child
	}
	node.member = true
	node.path = p
}

func (t *trieNode) find(p model.Path) *trieNode {
	node := t
	for i := 0; i < p.Len(); i++ {
		child, ok := node.children[p.At(i)]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

// remove clears the member flag at exactly p
func (t *trieNode) remove(p model.Path) {
	n := t.find(p)
	if n == nil || !n.member {
		return
	}
	n.member = false
	n.path = model.Root
	t.decrement(p, 1)
}

// removeSubtree detaches everything at or below p and returns the member paths
func (t *trieNode) removeSubtree(p model.Path) []model.Path {
	n := t.find(p)
	if n == nil || n.count == 0 {
		return nil
	}

	var out []model.Path
	n.collect(&out)
	removed := n.count

	if p.IsRoot() {
		t.children = nil
		t.member = false
		t.path = model.Root
		t.count = 0
		return out
	}

	t.decrement(p.Parent(), removed)
	if parent := t.find(p.Parent()); parent != nil {
		delete(parent.children, p.Last())
	}
	return out
}

// decrement lowers the counts along p by n and prunes emptied branches
func (t *trieNode) decrement(p model.Path, n int) {
	node := t
	node.count -= n
	for i := 0; i < p.Len(); i++ {
		seg := p.At(i)
		child := node.children[seg]
		child.count -= n
		if child.count == 0 {
			delete(node.children, seg)
			return
		}
		node = child
	}
}

func (t *trieNode) collect(out *[]model.Path) {
	if t.member {
		*out = append(*out, t.path)
	}
	for _, c := range t.children {
		c.collect(out)
	}
}
