package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// TreeIsolationRule enforces that parent links never cross tree boundaries
// and that a node's tree identifier never changes after creation.
func TreeIsolationRule() domain.Rule {
	return treeIsolationRule{}
}

type treeIsolationRule struct{}

func (treeIsolationRule) Name() string { return "tree_isolation" }

func (treeIsolationRule) Evaluate(_ context.Context, view domain.Transaction, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		node := *change.After

		if change.Action == domain.ActionUpdate && change.Before != nil && change.Before.TreeID != node.TreeID {
			res.Violations = append(res.Violations, isolationViolation(node.ID,
				fmt.Sprintf("node %d moved from tree %d to tree %d", node.ID, change.Before.TreeID, node.TreeID)))
			continue
		}
		if node.ParentID == nil {
			continue
		}
		parent, err := view.GetNodeByID(*node.ParentID)
		if err != nil {
			var notFound domain.ErrNodeNotFound
			if errors.As(err, &notFound) {
				res.Violations = append(res.Violations, isolationViolation(node.ID,
					fmt.Sprintf("node %d references missing parent %d", node.ID, *node.ParentID)))
				continue
			}
			return domain.Result{}, err
		}
		if parent.TreeID != node.TreeID {
			res.Violations = append(res.Violations, isolationViolation(node.ID,
				fmt.Sprintf("node %d in tree %d references parent %d in tree %d", node.ID, node.TreeID, parent.ID, parent.TreeID)))
		}
	}
	return res, nil
}

func isolationViolation(nodeID int64, message string) domain.Violation {
	return domain.Violation{
		Rule:     "tree_isolation",
		Severity: domain.SeverityBlock,
		Message:  message,
		NodeID:   nodeID,
	}
}
