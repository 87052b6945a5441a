// Package tree builds an in-memory reply tree from a flat batch of
// messages fetched from the persistent store, and answers the O(1)
// navigation queries the block layout and cursor-movement code need.
package tree

import (
	"fmt"
	"sort"

	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/wire"
)

// Node is one entry in a Tree: either a real message or a placeholder
// standing in for a parent id referenced by a child but not present in
// the batch the tree was built from (§3: "the tree model tolerates
// missing parents by rendering a placeholder").
type Node struct {
	ID            euphid.ID
	Parent        euphid.ID // zero (euphid.None) if this is the tree root
	HasParent     bool
	Message       wire.Message
	Placeholder   bool
	children      []euphid.ID // sorted ascending
	subtreeSize   int         // memoized, includes the node itself
}

// Tree is the transitive closure of the children of a root id within one
// room. Exactly one root; no cycles, guaranteed by id monotonicity on
// the way in.
type Tree struct {
	root  euphid.ID
	nodes map[euphid.ID]*Node
}

// Build constructs a Tree rooted at rootID from msgs, which must all
// belong to the same room. Messages are linked by their Parent field;
// any parent id referenced by a message but absent from msgs becomes a
// Placeholder node.
func Build(rootID euphid.ID, msgs []wire.Message) (*Tree, error) {
	t := &Tree{
		root:  rootID,
		nodes: make(map[euphid.ID]*Node, len(msgs)+1),
	}

	if _, ok := t.nodes[rootID]; !ok {
		t.nodes[rootID] = &Node{ID: rootID, Placeholder: true}
	}

	for _, m := range msgs {
		n, ok := t.nodes[m.ID]
		if !ok {
			n = &Node{ID: m.ID}
			t.nodes[m.ID] = n
		}
		n.Message = m
		n.Placeholder = false

		if m.Parent != nil {
			if m.ID == rootID {
				return nil, fmt.Errorf("tree: root %s must not have a parent", rootID)
			}
			n.Parent = *m.Parent
			n.HasParent = true
			parent, ok := t.nodes[*m.Parent]
			if !ok {
				parent = &Node{ID: *m.Parent, Placeholder: true}
				t.nodes[*m.Parent] = parent
			}
			parent.children = append(parent.children, m.ID)
		}
	}

	for _, n := range t.nodes {
		sort.Slice(n.children, func(i, j int) bool { return n.children[i] < n.children[j] })
	}

	return t, nil
}

// Root returns the tree's root id.
func (t *Tree) Root() euphid.ID { return t.root }

// Node returns the node for id, if the tree contains it.
func (t *Tree) Node(id euphid.ID) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Contains reports whether id is part of the tree.
func (t *Tree) Contains(id euphid.ID) bool {
	_, ok := t.nodes[id]
	return ok
}

// Children returns id's children, sorted ascending. O(1).
func (t *Tree) Children(id euphid.ID) []euphid.ID {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return n.children
}

// Parent returns id's parent, or (zero, false) if id is the root or
// unknown.
func (t *Tree) Parent(id euphid.ID) (euphid.ID, bool) {
	n, ok := t.nodes[id]
	if !ok || !n.HasParent {
		return euphid.None, false
	}
	return n.Parent, true
}

// PrevSibling returns the next-lowest-id sibling of id, if any.
func (t *Tree) PrevSibling(id euphid.ID) (euphid.ID, bool) {
	return t.sibling(id, -1)
}

// NextSibling returns the next-highest-id sibling of id, if any.
func (t *Tree) NextSibling(id euphid.ID) (euphid.ID, bool) {
	return t.sibling(id, +1)
}

func (t *Tree) sibling(id euphid.ID, dir int) (euphid.ID, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return euphid.None, false
	}
	var siblings []euphid.ID
	if !n.HasParent {
		if id != t.root {
			return euphid.None, false
		}
		return euphid.None, false
	}
	parent := t.nodes[n.Parent]
	siblings = parent.children

	idx := sort.Search(len(siblings), func(i int) bool { return siblings[i] >= id })
	if idx >= len(siblings) || siblings[idx] != id {
		return euphid.None, false
	}
	j := idx + dir
	if j < 0 || j >= len(siblings) {
		return euphid.None, false
	}
	return siblings[j], true
}

// LastChild returns the highest-id child of id, if any.
func (t *Tree) LastChild(id euphid.ID) (euphid.ID, bool) {
	children := t.Children(id)
	if len(children) == 0 {
		return euphid.None, false
	}
	return children[len(children)-1], true
}

// FirstChild returns the lowest-id child of id, if any.
func (t *Tree) FirstChild(id euphid.ID) (euphid.ID, bool) {
	children := t.Children(id)
	if len(children) == 0 {
		return euphid.None, false
	}
	return children[0], true
}

// SubtreeSize returns the number of nodes in id's subtree, including id
// itself. Memoized on first call per node.
func (t *Tree) SubtreeSize(id euphid.ID) int {
	n, ok := t.nodes[id]
	if !ok {
		return 0
	}
	if n.subtreeSize != 0 {
		return n.subtreeSize
	}
	size := 1
	for _, c := range n.children {
		size += t.SubtreeSize(c)
	}
	n.subtreeSize = size
	return size
}

// Walk visits every node in the tree in depth-first pre-order, children
// visited ascending by id.
func (t *Tree) Walk(visit func(*Node)) {
	var rec func(id euphid.ID)
	rec = func(id euphid.ID) {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		visit(n)
		for _, c := range n.children {
			rec(c)
		}
	}
	rec(t.root)
}
