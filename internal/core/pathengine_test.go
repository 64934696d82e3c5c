package core

import (
	"context"
	"testing"

	"github.com/AndreyMensh/TreeManagementApi/internal/infra/persistence/memory"
	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

func ptr(id int64) *int64 { return &id }

func TestComputePath(t *testing.T) {
	engine := NewPathEngine()

	root := domain.Node{ID: 1, TreeID: 1}
	path, err := engine.ComputePath(root, nil)
	if err != nil {
		t.Fatalf("ComputePath(root) failed: %v", err)
	}
	if !path.Equal(domain.TreePath{1}) {
		t.Fatalf("root path = %v, want 1.", path)
	}

	parent := domain.Node{ID: 1, TreeID: 1, Path: domain.TreePath{1}}
	child := domain.Node{ID: 2, TreeID: 1, ParentID: ptr(1)}
	path, err = engine.ComputePath(child, &parent)
	if err != nil {
		t.Fatalf("ComputePath(child) failed: %v", err)
	}
	if !path.Equal(domain.TreePath{1, 2}) {
		t.Fatalf("child path = %v, want 1.2.", path)
	}

	if _, err := engine.ComputePath(domain.Node{TreeID: 1}, nil); err == nil {
		t.Fatal("ComputePath accepted a node without an identifier")
	}
	if _, err := engine.ComputePath(child, &domain.Node{ID: 1, TreeID: 1}); err == nil {
		t.Fatal("ComputePath accepted a parent without a path")
	}
}

func TestRepairDescendantPaths(t *testing.T) {
	store := memory.NewStore(nil)
	engine := NewPathEngine()

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		root, err := tx.Insert(domain.Node{TreeID: 1, Name: "root"})
		if err != nil {
			return err
		}
		root.Path = domain.TreePath{root.ID}
		if err := tx.Update(root); err != nil {
			return err
		}
		child, err := tx.Insert(domain.Node{TreeID: 1, Name: "child", ParentID: ptr(root.ID)})
		if err != nil {
			return err
		}
		child.Path = root.Path.Child(child.ID)
		if err := tx.Update(child); err != nil {
			return err
		}
		grandchild, err := tx.Insert(domain.Node{TreeID: 1, Name: "grandchild", ParentID: ptr(child.ID)})
		if err != nil {
			return err
		}
		// Store a corrupted path that still lies under the child's prefix.
		grandchild.Path = child.Path.Child(99)
		if err := tx.Update(grandchild); err != nil {
			return err
		}

		if err := engine.RepairDescendantPaths(tx, child, child.Path); err != nil {
			t.Fatalf("RepairDescendantPaths failed: %v", err)
		}
		repaired, err := tx.GetNodeByID(grandchild.ID)
		if err != nil {
			return err
		}
		want := domain.TreePath{root.ID, child.ID, grandchild.ID}
		if !repaired.Path.Equal(want) {
			t.Fatalf("repaired path = %v, want %v", repaired.Path, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestRepairDescendantPathsDetectsParentChainCycle(t *testing.T) {
	store := memory.NewStore(nil)
	engine := NewPathEngine()

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		a, err := tx.Insert(domain.Node{TreeID: 1, Name: "a"})
		if err != nil {
			return err
		}
		b, err := tx.Insert(domain.Node{TreeID: 1, Name: "b", ParentID: ptr(a.ID)})
		if err != nil {
			return err
		}
		// Corrupt the parent links into a two-node cycle.
		a.ParentID = ptr(b.ID)
		a.Path = domain.TreePath{1, a.ID}
		if err := tx.Update(a); err != nil {
			return err
		}
		b.Path = domain.TreePath{1, b.ID}
		if err := tx.Update(b); err != nil {
			return err
		}

		anchor := domain.Node{ID: 100, TreeID: 1, Path: domain.TreePath{1}}
		if err := engine.RepairDescendantPaths(tx, anchor, domain.TreePath{1}); err == nil {
			t.Fatal("repair over a cyclic parent chain succeeded, want error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}
