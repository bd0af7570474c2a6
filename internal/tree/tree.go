// CLAUDE:SUMMARY Arena-backed capture tree: flat slots with parent indexes, key index, children materialized on read.
// Package tree holds the hierarchy of captures recorded during a session.
//
// Nodes live in a flat arena in insertion order. Each slot stores the index
// of its parent slot, and a key index gives O(1) parent lookup. Children are
// only materialized when the tree is read, so the structure can never hold a
// cycle: a slot may only point at a slot inserted before it.
package tree

import (
	"errors"
	"fmt"
)

// ErrDuplicateKey is returned when a key is already present anywhere in the tree.
var ErrDuplicateKey = errors.New("tree: duplicate key")

// ErrParentNotFound is returned when the requested parent key is not in the tree.
var ErrParentNotFound = errors.New("tree: parent not found")

const root = -1

// Node is a materialized capture with its children in insertion order.
type Node struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Children []Node `json:"children"`
}

type slot struct {
	key    string
	title  string
	url    string
	parent int
}

// Tree is an append-only capture hierarchy. It is not safe for concurrent
// use; callers serialise access.
type Tree struct {
	slots []slot
	index map[string]int
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{index: make(map[string]int)}
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.slots) }

// Has reports whether key is present.
func (t *Tree) Has(key string) bool {
	_, ok := t.index[key]
	return ok
}

// Parent returns the parent key of key. ok is false when key is unknown;
// an empty parent with ok true means key sits at the root.
func (t *Tree) Parent(key string) (parent string, ok bool) {
	i, ok := t.index[key]
	if !ok {
		return "", false
	}
	if p := t.slots[i].parent; p != root {
		return t.slots[p].key, true
	}
	return "", true
}

// Insert appends n under parentKey, or at the root when parentKey is empty.
// n.Children is ignored. The tree is left unchanged on error.
func (t *Tree) Insert(n Node, parentKey string) error {
	if _, dup := t.index[n.Key]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, n.Key)
	}

	parent := root
	if parentKey != "" {
		p, ok := t.index[parentKey]
		if !ok {
			return fmt.Errorf("%w: %q", ErrParentNotFound, parentKey)
		}
		parent = p
	}

	t.index[n.Key] = len(t.slots)
	t.slots = append(t.slots, slot{key: n.Key, title: n.Title, url: n.URL, parent: parent})
	return nil
}

// Nodes materializes the root sequence. Slices are never nil so the result
// serialises as [] rather than null.
func (t *Tree) Nodes() []Node {
	children := make([][]int, len(t.slots))
	roots := make([]int, 0)
	for i, s := range t.slots {
		if s.parent == root {
			roots = append(roots, i)
			continue
		}
		children[s.parent] = append(children[s.parent], i)
	}
	return t.build(roots, children)
}

func (t *Tree) build(idx []int, children [][]int) []Node {
	out := make([]Node, 0, len(idx))
	for _, i := range idx {
		s := t.slots[i]
		out = append(out, Node{
			Key:      s.key,
			Title:    s.title,
			URL:      s.url,
			Children: t.build(children[i], children),
		})
	}
	return out
}
