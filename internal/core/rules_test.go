package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AndreyMensh/TreeManagementApi/internal/infra/persistence/memory"
	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

func engineWith(rule domain.Rule) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(rule)
	return engine
}

// expectBlocked runs fn in a transaction and asserts the named rule blocked
// the commit.
func expectBlocked(t *testing.T, store *memory.Store, rule string, fn func(tx domain.Transaction) error) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), fn)
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("transaction error = %v, want RuleViolationError", err)
	}
	for _, v := range violation.Result.Violations {
		if v.Rule == rule && v.Severity == domain.SeverityBlock {
			return
		}
	}
	t.Fatalf("no blocking violation from rule %q: %+v", rule, violation.Result.Violations)
}

func insertWithPath(tx domain.Transaction, node domain.Node, buildPath func(id int64) domain.TreePath) (domain.Node, error) {
	inserted, err := tx.Insert(node)
	if err != nil {
		return domain.Node{}, err
	}
	inserted.Path = buildPath(inserted.ID)
	if err := tx.Update(inserted); err != nil {
		return domain.Node{}, err
	}
	return inserted, nil
}

func rootPath(id int64) domain.TreePath { return domain.TreePath{id} }

func TestTreeIsolationRuleBlocksCrossTreeParent(t *testing.T) {
	store := memory.NewStore(engineWith(TreeIsolationRule()))

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := insertWithPath(tx, domain.Node{TreeID: 1, Name: "r1"}, rootPath)
		return err
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	expectBlocked(t, store, "tree_isolation", func(tx domain.Transaction) error {
		root2, err := insertWithPath(tx, domain.Node{TreeID: 2, Name: "r2"}, rootPath)
		if err != nil {
			return err
		}
		_, err = insertWithPath(tx, domain.Node{TreeID: 2, Name: "stray", ParentID: ptr(1)}, func(id int64) domain.TreePath {
			return root2.Path.Child(id)
		})
		return err
	})
}

func TestTreeIsolationRuleBlocksTreeIDChange(t *testing.T) {
	store := memory.NewStore(engineWith(TreeIsolationRule()))

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := insertWithPath(tx, domain.Node{TreeID: 1, Name: "r1"}, rootPath)
		return err
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	expectBlocked(t, store, "tree_isolation", func(tx domain.Transaction) error {
		node, err := tx.GetNodeByID(1)
		if err != nil {
			return err
		}
		node.TreeID = 7
		return tx.Update(node)
	})
}

func TestPathConsistencyRuleBlocksMissingPath(t *testing.T) {
	store := memory.NewStore(engineWith(PathConsistencyRule()))

	expectBlocked(t, store, "path_consistency", func(tx domain.Transaction) error {
		_, err := tx.Insert(domain.Node{TreeID: 1, Name: "half-created"})
		return err
	})
}

func TestPathConsistencyRuleBlocksWrongTerminalID(t *testing.T) {
	store := memory.NewStore(engineWith(PathConsistencyRule()))

	expectBlocked(t, store, "path_consistency", func(tx domain.Transaction) error {
		_, err := insertWithPath(tx, domain.Node{TreeID: 1, Name: "r"}, func(int64) domain.TreePath {
			return domain.TreePath{42}
		})
		return err
	})
}

func TestPathConsistencyRuleBlocksPathParentMismatch(t *testing.T) {
	store := memory.NewStore(engineWith(PathConsistencyRule()))

	expectBlocked(t, store, "path_consistency", func(tx domain.Transaction) error {
		root, err := insertWithPath(tx, domain.Node{TreeID: 1, Name: "r"}, rootPath)
		if err != nil {
			return err
		}
		// Child path skips the root segment.
		_, err = insertWithPath(tx, domain.Node{TreeID: 1, Name: "c", ParentID: ptr(root.ID)}, func(id int64) domain.TreePath {
			return domain.TreePath{id}
		})
		return err
	})
}

func TestSingleRootRuleBlocksSecondRoot(t *testing.T) {
	store := memory.NewStore(engineWith(SingleRootRule()))

	expectBlocked(t, store, "single_root", func(tx domain.Transaction) error {
		if _, err := insertWithPath(tx, domain.Node{TreeID: 1, Name: "a"}, rootPath); err != nil {
			return err
		}
		_, err := insertWithPath(tx, domain.Node{TreeID: 1, Name: "b"}, rootPath)
		return err
	})
}

func TestSingleRootRuleAllowsTreeRemoval(t *testing.T) {
	store := memory.NewStore(engineWith(SingleRootRule()))

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := insertWithPath(tx, domain.Node{TreeID: 1, Name: "r"}, rootPath)
		return err
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		node, err := tx.GetNodeByID(1)
		if err != nil {
			return err
		}
		return tx.Delete(node)
	})
	if err != nil {
		t.Fatalf("deleting the last node of a tree was blocked: %v", err)
	}
}

func TestLeafDeletionRuleBlocksOrphaningDelete(t *testing.T) {
	store := memory.NewStore(engineWith(LeafDeletionRule()))

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := insertWithPath(tx, domain.Node{TreeID: 1, Name: "r"}, rootPath)
		return err
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// Delete the root, then insert a node that still references it. The
	// store-level leaf check passes at delete time; only the commit-time rule
	// can see the final state.
	expectBlocked(t, store, "leaf_deletion", func(tx domain.Transaction) error {
		root, err := tx.GetNodeByID(1)
		if err != nil {
			return err
		}
		if err := tx.Delete(root); err != nil {
			return err
		}
		_, err = insertWithPath(tx, domain.Node{TreeID: 1, Name: "late child", ParentID: ptr(root.ID)}, func(id int64) domain.TreePath {
			return root.Path.Child(id)
		})
		return err
	})
}

func TestDefaultRulesEnginePassesWellFormedCommit(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())

	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		root, err := insertWithPath(tx, domain.Node{TreeID: 1, Name: "r"}, rootPath)
		if err != nil {
			return err
		}
		_, err = insertWithPath(tx, domain.Node{TreeID: 1, Name: "c", ParentID: ptr(root.ID)}, func(id int64) domain.TreePath {
			return root.Path.Child(id)
		})
		return err
	})
	if err != nil {
		t.Fatalf("well-formed commit rejected: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", res.Violations)
	}
}

func TestRuleViolationMessagesNameTheNode(t *testing.T) {
	store := memory.NewStore(engineWith(PathConsistencyRule()))

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Insert(domain.Node{TreeID: 1, Name: "half-created"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("error = %v, want RuleViolationError", err)
	}
	v := violation.Result.Violations[0]
	if v.NodeID == 0 || !strings.Contains(v.Message, "without a path") {
		t.Fatalf("violation does not identify the node: %+v", v)
	}
}
