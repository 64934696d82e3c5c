// Package domain defines the persistent entities, path encoding, invariant
// rule primitives, and persistence contract of the tree management core.
package domain

import (
	"sort"
	"time"
)

// MaxNameLength bounds node names in UTF-16 code units, matching the storage
// column width.
const MaxNameLength = 255

// Node is the core entity. A tree is not a standalone record; it is the set
// of all nodes sharing one TreeID, and it exists as long as that set contains
// a root (ParentID == nil).
type Node struct {
	// ID is globally unique across all trees, assigned by the store.
	ID int64 `json:"id"`
	// TreeID groups nodes into one logical tree. Immutable after creation.
	TreeID int64 `json:"treeId"`
	// Name is the caller-supplied label, 1..MaxNameLength code units.
	Name string `json:"name"`
	// ParentID references another node in the same tree; nil marks the root.
	ParentID *int64 `json:"parentId,omitempty"`
	// Path is the materialized ancestor chain, root to self inclusive. It is
	// assigned in the second phase of creation, once ID is known.
	Path TreePath `json:"path"`
	// CreatedAt is set by the store at insertion and never changes.
	CreatedAt time.Time `json:"createdAt"`
}

// IsRoot reports whether the node heads its tree.
func (n Node) IsRoot() bool { return n.ParentID == nil }

// Level is derived from Path on every read so it can never drift from it.
func (n Node) Level() int { return n.Path.Level() }

// TreeNode is the nested read-side projection of a flat node set: each node
// carries its children ordered by identifier ascending.
type TreeNode struct {
	Node
	Children []TreeNode `json:"children"`
}

// TreeSummary describes one tree for listing purposes.
type TreeSummary struct {
	TreeID        int64     `json:"treeId"`
	RootName      string    `json:"rootName"`
	NodeCount     int       `json:"nodeCount"`
	MaxLevel      int       `json:"maxLevel"`
	RootCreatedAt time.Time `json:"rootCreatedAt"`
}

// AssembleForest nests a flat node set. Children attach to their parent in
// identifier order; nodes whose parent is absent from the set (tree roots, or
// the head of a subtree slice) surface at the top level. The transformation
// is pure: it performs no storage access and does not modify the input.
func AssembleForest(nodes []Node) []TreeNode {
	present := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}

	children := make(map[int64][]Node)
	var tops []Node
	for _, n := range nodes {
		if n.ParentID != nil && present[*n.ParentID] {
			children[*n.ParentID] = append(children[*n.ParentID], n)
		} else {
			tops = append(tops, n)
		}
	}
	byID := func(s []Node) {
		sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
	}
	byID(tops)
	for id := range children {
		byID(children[id])
	}

	var build func(n Node) TreeNode
	build = func(n Node) TreeNode {
		tn := TreeNode{Node: n, Children: []TreeNode{}}
		for _, c := range children[n.ID] {
			tn.Children = append(tn.Children, build(c))
		}
		return tn
	}
	out := make([]TreeNode, 0, len(tops))
	for _, t := range tops {
		out = append(out, build(t))
	}
	return out
}
