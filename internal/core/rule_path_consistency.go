package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// PathConsistencyRule enforces the materialized-path invariants on every node
// a transaction touches: the path is assigned, terminates in the node's own
// identifier, never revisits an identifier (acyclicity), and equals the
// parent's path extended by the node's id, or just the id for roots.
func PathConsistencyRule() domain.Rule {
	return pathConsistencyRule{}
}

type pathConsistencyRule struct{}

func (pathConsistencyRule) Name() string { return "path_consistency" }

func (pathConsistencyRule) Evaluate(_ context.Context, view domain.Transaction, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		node := *change.After

		if node.Path.IsZero() {
			res.Violations = append(res.Violations, pathViolation(node.ID,
				fmt.Sprintf("node %d committed without a path", node.ID)))
			continue
		}
		if node.Path.NodeID() != node.ID {
			res.Violations = append(res.Violations, pathViolation(node.ID,
				fmt.Sprintf("node %d path %s does not terminate in its own id", node.ID, node.Path)))
			continue
		}
		if seen := countOccurrences(node.Path, node.ID); seen != 1 {
			res.Violations = append(res.Violations, pathViolation(node.ID,
				fmt.Sprintf("node %d appears %d times in its own path %s", node.ID, seen, node.Path)))
			continue
		}

		if node.ParentID == nil {
			if len(node.Path) != 1 {
				res.Violations = append(res.Violations, pathViolation(node.ID,
					fmt.Sprintf("root %d path %s is not a single segment", node.ID, node.Path)))
			}
			continue
		}
		parent, err := view.GetNodeByID(*node.ParentID)
		if err != nil {
			var notFound domain.ErrNodeNotFound
			if errors.As(err, &notFound) {
				// Missing parents are the isolation rule's finding.
				continue
			}
			return domain.Result{}, err
		}
		if !node.Path.Equal(parent.Path.Child(node.ID)) {
			res.Violations = append(res.Violations, pathViolation(node.ID,
				fmt.Sprintf("node %d path %s is not parent path %s plus own id", node.ID, node.Path, parent.Path)))
		}
	}
	return res, nil
}

func countOccurrences(path domain.TreePath, id int64) int {
	count := 0
	for _, seg := range path {
		if seg == id {
			count++
		}
	}
	return count
}

func pathViolation(nodeID int64, message string) domain.Violation {
	return domain.Violation{
		Rule:     "path_consistency",
		Severity: domain.SeverityBlock,
		Message:  message,
		NodeID:   nodeID,
	}
}
