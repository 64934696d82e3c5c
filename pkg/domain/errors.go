package domain

import "fmt"

// The error types below are the client-correctable precondition failures the
// core can surface. Anything else coming out of a store (connectivity,
// constraint violations) propagates unmodified as an opaque failure.

// ErrTreeNotFound reports a tree identifier with no nodes.
type ErrTreeNotFound struct {
	TreeID int64
}

func (e ErrTreeNotFound) Error() string {
	return fmt.Sprintf("tree %d not found", e.TreeID)
}

// ErrNodeNotFound reports a node that does not exist, or exists in a
// different tree than the one named by the request.
type ErrNodeNotFound struct {
	TreeID int64
	NodeID int64
}

func (e ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node %d not found in tree %d", e.NodeID, e.TreeID)
}

// ErrHasChildren reports a deletion attempt against a node that still has
// children.
type ErrHasChildren struct {
	TreeID int64
	NodeID int64
}

func (e ErrHasChildren) Error() string {
	return fmt.Sprintf("node %d in tree %d has children and cannot be deleted", e.NodeID, e.TreeID)
}

// ErrInvalidParentTree reports a candidate parent that resolved to a node in
// a different tree than the child being attached.
type ErrInvalidParentTree struct {
	TreeID       int64
	ParentID     int64
	ParentTreeID int64
}

func (e ErrInvalidParentTree) Error() string {
	return fmt.Sprintf("parent %d belongs to tree %d, not tree %d", e.ParentID, e.ParentTreeID, e.TreeID)
}

// ErrCircularReference reports a candidate parent that is the node itself or
// one of its descendants. No current operation re-parents nodes, so this is
// only reachable through the validator's cycle check.
type ErrCircularReference struct {
	NodeID   int64
	ParentID int64
}

func (e ErrCircularReference) Error() string {
	return fmt.Sprintf("attaching node %d under %d would create a cycle", e.NodeID, e.ParentID)
}

// ErrInvalidName reports an empty or over-long node name.
type ErrInvalidName struct {
	Reason string
}

func (e ErrInvalidName) Error() string {
	return fmt.Sprintf("invalid node name: %s", e.Reason)
}
