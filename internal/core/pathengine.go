// Package core implements the tree management service: the orchestrator over
// the node store, the materialized-path engine, the relationship validator,
// and the invariant rules evaluated at every transaction boundary.
package core

import (
	"fmt"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// PathEngine derives and repairs materialized paths. It holds no state; both
// operations work against the transaction they are handed.
type PathEngine struct{}

// NewPathEngine constructs a path engine.
func NewPathEngine() *PathEngine {
	return &PathEngine{}
}

// ComputePath derives a node's path from its parent's path and its own
// identifier: "{parent.path}{id}." for children, "{id}." for roots. The node
// must already carry its store-generated identifier, which is why path
// assignment is the second phase of creation.
func (e *PathEngine) ComputePath(node domain.Node, parent *domain.Node) (domain.TreePath, error) {
	if node.ID == 0 {
		return nil, fmt.Errorf("compute path: node has no identifier yet")
	}
	if parent == nil {
		return domain.TreePath{node.ID}, nil
	}
	if parent.Path.IsZero() {
		return nil, fmt.Errorf("compute path: parent %d has no path", parent.ID)
	}
	return parent.Path.Child(node.ID), nil
}

// RepairDescendantPaths recomputes the path of every node under oldPath after
// the node's own path changed. No current operation moves nodes, so nothing
// invokes this yet, but path repair must exist for correctness the moment one
// is added. Each descendant's path is rebuilt by walking its parent chain
// from scratch rather than rewriting the old prefix, so partially corrupted
// paths come out repaired instead of re-corrupted.
func (e *PathEngine) RepairDescendantPaths(tx domain.Transaction, node domain.Node, oldPath domain.TreePath) error {
	descendants, err := tx.GetSubtree(node.TreeID, oldPath)
	if err != nil {
		return fmt.Errorf("repair paths: scan subtree %s: %w", oldPath, err)
	}
	for _, d := range descendants {
		if d.ID == node.ID {
			continue
		}
		rebuilt, err := e.rebuildFromParentChain(tx, d)
		if err != nil {
			return err
		}
		if rebuilt.Equal(d.Path) {
			continue
		}
		d.Path = rebuilt
		if err := tx.Update(d); err != nil {
			return fmt.Errorf("repair paths: update node %d: %w", d.ID, err)
		}
	}
	return nil
}

// rebuildFromParentChain walks parent links up to the root and emits the full
// chain. A visited set turns corrupted cyclic data into an error instead of
// an endless walk.
func (e *PathEngine) rebuildFromParentChain(tx domain.Transaction, node domain.Node) (domain.TreePath, error) {
	var reversed []int64
	visited := make(map[int64]bool)
	current := node
	for {
		if visited[current.ID] {
			return nil, fmt.Errorf("repair paths: parent chain of node %d revisits node %d", node.ID, current.ID)
		}
		visited[current.ID] = true
		reversed = append(reversed, current.ID)
		if current.ParentID == nil {
			break
		}
		parent, err := tx.GetNodeByID(*current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("repair paths: resolve parent %d of node %d: %w", *current.ParentID, current.ID, err)
		}
		current = parent
	}
	path := make(domain.TreePath, len(reversed))
	for i, id := range reversed {
		path[len(reversed)-1-i] = id
	}
	return path, nil
}
