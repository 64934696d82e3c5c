// Package persistencetest holds the conformance suite every persistent store
// implementation must pass. Backend test packages call Run with a factory for
// their store.
package persistencetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// Factory opens a fresh, empty store wired to the given rules engine. The
// factory registers cleanup on t itself.
type Factory func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore

// Run executes the full conformance suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("InsertAssignsIdentityAndTimestamp", func(t *testing.T) { testInsert(t, open) })
	t.Run("GetNodeIsTreeScoped", func(t *testing.T) { testGetNodeScope(t, open) })
	t.Run("UpdatePersistsWithinTransaction", func(t *testing.T) { testUpdate(t, open) })
	t.Run("ChildrenOrderedByID", func(t *testing.T) { testChildrenOrder(t, open) })
	t.Run("SubtreePrefixSemantics", func(t *testing.T) { testSubtreePrefix(t, open) })
	t.Run("RootsAndTreeListing", func(t *testing.T) { testRootsAndListing(t, open) })
	t.Run("NextTreeID", func(t *testing.T) { testNextTreeID(t, open) })
	t.Run("DeleteRejectsNonLeaf", func(t *testing.T) { testDeleteNonLeaf(t, open) })
	t.Run("FailedTransactionLeavesNothing", func(t *testing.T) { testRollbackOnError(t, open) })
	t.Run("BlockingRuleAbortsCommit", func(t *testing.T) { testRollbackOnRule(t, open) })
	t.Run("ViewIsReadOnlySnapshot", func(t *testing.T) { testView(t, open) })
}

func ptr(id int64) *int64 { return &id }

// insertNode inserts a node and assigns its path in the same transaction,
// mirroring the two-phase create the service performs.
func insertNode(tx domain.Transaction, treeID int64, name string, parent *domain.Node) (domain.Node, error) {
	node := domain.Node{TreeID: treeID, Name: name}
	if parent != nil {
		node.ParentID = ptr(parent.ID)
	}
	inserted, err := tx.Insert(node)
	if err != nil {
		return domain.Node{}, err
	}
	if parent != nil {
		inserted.Path = parent.Path.Child(inserted.ID)
	} else {
		inserted.Path = domain.TreePath{inserted.ID}
	}
	if err := tx.Update(inserted); err != nil {
		return domain.Node{}, err
	}
	return inserted, nil
}

// seedTree commits a root with the given children and returns them.
func seedTree(t *testing.T, store domain.PersistentStore, treeID int64, childNames ...string) (domain.Node, []domain.Node) {
	t.Helper()
	var root domain.Node
	var children []domain.Node
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		root, err = insertNode(tx, treeID, fmt.Sprintf("root-%d", treeID), nil)
		if err != nil {
			return err
		}
		for _, name := range childNames {
			child, err := insertNode(tx, treeID, name, &root)
			if err != nil {
				return err
			}
			children = append(children, child)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed tree %d: %v", treeID, err)
	}
	return root, children
}

func testInsert(t *testing.T, open Factory) {
	store := open(t, nil)
	root, children := seedTree(t, store, 1, "a", "b")

	if root.ID == 0 {
		t.Fatal("insert did not assign an identifier")
	}
	if root.CreatedAt.IsZero() {
		t.Fatal("insert did not assign a creation timestamp")
	}
	if children[0].ID <= root.ID || children[1].ID <= children[0].ID {
		t.Fatalf("identifiers not increasing: %d, %d, %d", root.ID, children[0].ID, children[1].ID)
	}

	err := store.View(context.Background(), func(tx domain.Transaction) error {
		got, err := tx.GetNodeByID(root.ID)
		if err != nil {
			return err
		}
		if got.Name != root.Name || !got.Path.Equal(root.Path) {
			t.Fatalf("stored root differs: %+v vs %+v", got, root)
		}
		if !got.CreatedAt.Equal(root.CreatedAt) {
			t.Fatalf("creation timestamp did not round-trip: %v vs %v", got.CreatedAt, root.CreatedAt)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func testGetNodeScope(t *testing.T, open Factory) {
	store := open(t, nil)
	root1, _ := seedTree(t, store, 1)
	root2, _ := seedTree(t, store, 2)

	err := store.View(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.GetNode(1, root1.ID); err != nil {
			t.Fatalf("GetNode in own tree failed: %v", err)
		}
		_, err := tx.GetNode(1, root2.ID)
		var notFound domain.ErrNodeNotFound
		if !errors.As(err, &notFound) {
			t.Fatalf("cross-tree GetNode error = %v, want ErrNodeNotFound", err)
		}
		_, err = tx.GetNodeByID(99999)
		if !errors.As(err, &notFound) {
			t.Fatalf("GetNodeByID of missing node error = %v, want ErrNodeNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func testUpdate(t *testing.T, open Factory) {
	store := open(t, nil)
	root, _ := seedTree(t, store, 1)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		node, err := tx.GetNodeByID(root.ID)
		if err != nil {
			return err
		}
		node.Name = "renamed"
		return tx.Update(node)
	})
	if err != nil {
		t.Fatalf("update transaction failed: %v", err)
	}

	err = store.View(context.Background(), func(tx domain.Transaction) error {
		node, err := tx.GetNodeByID(root.ID)
		if err != nil {
			return err
		}
		if node.Name != "renamed" {
			t.Fatalf("name = %q, want \"renamed\"", node.Name)
		}
		if !node.CreatedAt.Equal(root.CreatedAt) {
			t.Fatal("update changed the creation timestamp")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func testChildrenOrder(t *testing.T, open Factory) {
	store := open(t, nil)
	root, children := seedTree(t, store, 1, "c", "a", "b")

	err := store.View(context.Background(), func(tx domain.Transaction) error {
		got, err := tx.GetChildren(1, root.ID)
		if err != nil {
			return err
		}
		if len(got) != len(children) {
			t.Fatalf("got %d children, want %d", len(got), len(children))
		}
		for i := range got {
			if got[i].ID != children[i].ID {
				t.Fatalf("children out of identifier order: %+v", got)
			}
		}
		has, err := tx.HasChildren(1, root.ID)
		if err != nil {
			return err
		}
		if !has {
			t.Fatal("HasChildren(root) = false")
		}
		has, err = tx.HasChildren(1, children[0].ID)
		if err != nil {
			return err
		}
		if has {
			t.Fatal("HasChildren(leaf) = true")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

// testSubtreePrefix drives node identifiers past 20 so that a node with path
// "1.21." exists alongside the prefix "1.2.": decimal overlap that a naive
// substring match would conflate.
func testSubtreePrefix(t *testing.T, open Factory) {
	store := open(t, nil)

	var target, grandchild domain.Node
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		root, err := insertNode(tx, 1, "root", nil)
		if err != nil {
			return err
		}
		target, err = insertNode(tx, 1, "target", &root)
		if err != nil {
			return err
		}
		grandchild, err = insertNode(tx, 1, "inside", &target)
		if err != nil {
			return err
		}
		for {
			sibling, err := insertNode(tx, 1, "filler", &root)
			if err != nil {
				return err
			}
			if sibling.ID >= target.ID*10+1 {
				break
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err = store.View(context.Background(), func(tx domain.Transaction) error {
		nodes, err := tx.GetSubtree(1, target.Path)
		if err != nil {
			return err
		}
		if len(nodes) != 2 {
			t.Fatalf("subtree of %s has %d nodes, want 2: %+v", target.Path, len(nodes), nodes)
		}
		if nodes[0].ID != target.ID || nodes[1].ID != grandchild.ID {
			t.Fatalf("subtree not ordered by path: %+v", nodes)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func testRootsAndListing(t *testing.T, open Factory) {
	store := open(t, nil)
	root1, _ := seedTree(t, store, 1, "x")
	seedTree(t, store, 2)

	err := store.View(context.Background(), func(tx domain.Transaction) error {
		roots, err := tx.GetRoots(1)
		if err != nil {
			return err
		}
		if len(roots) != 1 || roots[0].ID != root1.ID {
			t.Fatalf("roots of tree 1 = %+v", roots)
		}
		ids, err := tx.ListTreeIDs()
		if err != nil {
			return err
		}
		if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
			t.Fatalf("tree ids = %v, want [1 2]", ids)
		}
		for _, tc := range []struct {
			treeID int64
			want   bool
		}{{1, true}, {2, true}, {3, false}} {
			exists, err := tx.TreeExists(tc.treeID)
			if err != nil {
				return err
			}
			if exists != tc.want {
				t.Fatalf("TreeExists(%d) = %v, want %v", tc.treeID, exists, tc.want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func testNextTreeID(t *testing.T, open Factory) {
	store := open(t, nil)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		next, err := tx.NextTreeID()
		if err != nil {
			return err
		}
		if next != 1 {
			t.Fatalf("NextTreeID on empty store = %d, want 1", next)
		}
		if _, err := insertNode(tx, next, "root", nil); err != nil {
			return err
		}
		next, err = tx.NextTreeID()
		if err != nil {
			return err
		}
		if next != 2 {
			t.Fatalf("NextTreeID after tree 1 = %d, want 2", next)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func testDeleteNonLeaf(t *testing.T, open Factory) {
	store := open(t, nil)
	root, children := seedTree(t, store, 1, "leaf")

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.Delete(root)
	})
	var hasChildren domain.ErrHasChildren
	if !errors.As(err, &hasChildren) {
		t.Fatalf("delete of non-leaf error = %v, want ErrHasChildren", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if err := tx.Delete(children[0]); err != nil {
			return err
		}
		return tx.Delete(root)
	})
	if err != nil {
		t.Fatalf("leaf-first deletion failed: %v", err)
	}

	err = store.View(context.Background(), func(tx domain.Transaction) error {
		exists, err := tx.TreeExists(1)
		if err != nil {
			return err
		}
		if exists {
			t.Fatal("tree still exists after all nodes were deleted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func testRollbackOnError(t *testing.T, open Factory) {
	store := open(t, nil)
	boom := errors.New("abort")

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := insertNode(tx, 1, "phantom", nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction error = %v, want %v", err, boom)
	}

	err = store.View(context.Background(), func(tx domain.Transaction) error {
		exists, err := tx.TreeExists(1)
		if err != nil {
			return err
		}
		if exists {
			t.Fatal("failed transaction left data behind")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }

func (blockAllRule) Evaluate(_ context.Context, _ domain.Transaction, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "block_all",
		Severity: domain.SeverityBlock,
		Message:  "every change is rejected",
	}}}, nil
}

func testRollbackOnRule(t *testing.T, open Factory) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAllRule{})
	store := open(t, engine)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := insertNode(tx, 1, "blocked", nil)
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("transaction error = %v, want RuleViolationError", err)
	}

	err = store.View(context.Background(), func(tx domain.Transaction) error {
		exists, err := tx.TreeExists(1)
		if err != nil {
			return err
		}
		if exists {
			t.Fatal("rule-blocked transaction left data behind")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func testView(t *testing.T, open Factory) {
	store := open(t, nil)
	root, _ := seedTree(t, store, 1)

	err := store.View(context.Background(), func(tx domain.Transaction) error {
		node, err := tx.GetNode(1, root.ID)
		if err != nil {
			return err
		}
		node.Name = "mutated"
		// Backends either reject the write outright or roll it back with the
		// snapshot; it must not become visible either way.
		_ = tx.Update(node)
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}

	err = store.View(context.Background(), func(tx domain.Transaction) error {
		node, err := tx.GetNode(1, root.ID)
		if err != nil {
			return err
		}
		if node.Name != root.Name {
			t.Fatalf("write inside View became visible: %q", node.Name)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}
