package core

import (
	"context"
	"fmt"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// LeafDeletionRule rejects transactions that delete a node while children
// still reference it. The orchestrator checks this precondition up front; the
// rule closes the race where a child is inserted between that check and the
// delete.
func LeafDeletionRule() domain.Rule {
	return leafDeletionRule{}
}

type leafDeletionRule struct{}

func (leafDeletionRule) Name() string { return "leaf_deletion" }

func (leafDeletionRule) Evaluate(_ context.Context, view domain.Transaction, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action != domain.ActionDelete || change.Before == nil {
			continue
		}
		deleted := *change.Before
		hasChildren, err := view.HasChildren(deleted.TreeID, deleted.ID)
		if err != nil {
			return domain.Result{}, err
		}
		if hasChildren {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "leaf_deletion",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("node %d was deleted while children still reference it", deleted.ID),
				NodeID:   deleted.ID,
			})
		}
	}
	return res, nil
}
