package core

import (
	"context"
	"fmt"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// SingleRootRule enforces exactly one parentless node per surviving tree. A
// tree whose last node was deleted simply ceases to exist and is not a
// violation.
func SingleRootRule() domain.Rule {
	return singleRootRule{}
}

type singleRootRule struct{}

func (singleRootRule) Name() string { return "single_root" }

func (singleRootRule) Evaluate(_ context.Context, view domain.Transaction, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	checked := make(map[int64]bool)
	for _, change := range changes {
		treeID := changedTreeID(change)
		if treeID == 0 || checked[treeID] {
			continue
		}
		checked[treeID] = true

		exists, err := view.TreeExists(treeID)
		if err != nil {
			return domain.Result{}, err
		}
		if !exists {
			continue
		}
		roots, err := view.GetRoots(treeID)
		if err != nil {
			return domain.Result{}, err
		}
		if len(roots) != 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "single_root",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("tree %d has %d roots", treeID, len(roots)),
			})
		}
	}
	return res, nil
}

func changedTreeID(change domain.Change) int64 {
	if change.After != nil {
		return change.After.TreeID
	}
	if change.Before != nil {
		return change.Before.TreeID
	}
	return 0
}
