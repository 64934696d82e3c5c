package core

import (
	"errors"
	"fmt"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// Validator confirms parent-child relationships before the orchestrator
// mutates anything. It never writes; a failed validation leaves the store
// untouched.
type Validator struct{}

// NewValidator constructs a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateParent resolves the candidate parent and confirms it belongs to the
// given tree. It returns the parent so callers can reuse its path without a
// second lookup.
func (v *Validator) ValidateParent(tx domain.Transaction, treeID, parentID int64) (domain.Node, error) {
	parent, err := tx.GetNodeByID(parentID)
	if err != nil {
		var notFound domain.ErrNodeNotFound
		if errors.As(err, &notFound) {
			return domain.Node{}, domain.ErrNodeNotFound{TreeID: treeID, NodeID: parentID}
		}
		return domain.Node{}, fmt.Errorf("validate parent %d: %w", parentID, err)
	}
	if parent.TreeID != treeID {
		return domain.Node{}, domain.ErrInvalidParentTree{
			TreeID:       treeID,
			ParentID:     parentID,
			ParentTreeID: parent.TreeID,
		}
	}
	return parent, nil
}

// WouldCreateCycle reports whether attaching nodeID under candidateParentID
// would make the node its own ancestor: true iff the candidate parent's path
// already contains nodeID, meaning the candidate is the node itself or one of
// its descendants. Node creation never trips this (a new node has no
// descendants); the check exists for a future re-parent operation.
func (v *Validator) WouldCreateCycle(tx domain.Transaction, treeID, nodeID, candidateParentID int64) (bool, error) {
	if nodeID == candidateParentID {
		return true, nil
	}
	candidate, err := tx.GetNode(treeID, candidateParentID)
	if err != nil {
		return false, fmt.Errorf("cycle check: resolve candidate parent %d: %w", candidateParentID, err)
	}
	return candidate.Path.Contains(nodeID), nil
}
