package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AndreyMensh/TreeManagementApi/internal/infra/persistence/memory"
	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	return NewService(store), store
}

func TestServiceLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	root, _, err := svc.CreateTree(ctx, "Root")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	if root.TreeID != 1 || root.ID != 1 {
		t.Fatalf("first tree got treeID=%d id=%d, want 1/1", root.TreeID, root.ID)
	}
	if got := root.Path.String(); got != "1." {
		t.Fatalf("root path = %q, want \"1.\"", got)
	}
	if root.Level() != 0 || !root.IsRoot() {
		t.Fatalf("root is not level-0 parentless: %+v", root)
	}

	a, _, err := svc.CreateNode(ctx, 1, root.ID, "A")
	if err != nil {
		t.Fatalf("CreateNode(A) failed: %v", err)
	}
	if a.ID != 2 || a.Path.String() != "1.2." || a.Level() != 1 {
		t.Fatalf("unexpected node A: id=%d path=%s level=%d", a.ID, a.Path, a.Level())
	}

	b, _, err := svc.CreateNode(ctx, 1, a.ID, "B")
	if err != nil {
		t.Fatalf("CreateNode(B) failed: %v", err)
	}
	if b.ID != 3 || b.Path.String() != "1.2.3." || b.Level() != 2 {
		t.Fatalf("unexpected node B: id=%d path=%s level=%d", b.ID, b.Path, b.Level())
	}

	subtree, err := svc.GetSubtree(ctx, 1, a.ID)
	if err != nil {
		t.Fatalf("GetSubtree failed: %v", err)
	}
	if subtree.ID != a.ID || len(subtree.Children) != 1 || subtree.Children[0].ID != b.ID {
		t.Fatalf("subtree of A should be A with child B: %+v", subtree)
	}

	if _, err := svc.DeleteNode(ctx, 1, a.ID); err == nil {
		t.Fatal("deleting a node with children succeeded")
	} else {
		var hasChildren domain.ErrHasChildren
		if !errors.As(err, &hasChildren) {
			t.Fatalf("delete error = %v, want ErrHasChildren", err)
		}
	}

	if _, err := svc.DeleteNode(ctx, 1, b.ID); err != nil {
		t.Fatalf("deleting leaf B failed: %v", err)
	}
	if _, err := svc.DeleteNode(ctx, 1, a.ID); err != nil {
		t.Fatalf("deleting A after B failed: %v", err)
	}

	children, err := svc.GetChildren(ctx, 1, root.ID)
	if err != nil {
		t.Fatalf("GetChildren failed: %v", err)
	}
	if len(children) != 0 {
		t.Fatalf("root should have no children left, got %d", len(children))
	}
}

func TestServiceTreeIDsAreIndependentSequences(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.CreateTree(ctx, "first")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	second, _, err := svc.CreateTree(ctx, "second")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	if first.TreeID != 1 || second.TreeID != 2 {
		t.Fatalf("tree ids = %d, %d, want 1, 2", first.TreeID, second.TreeID)
	}
	// Node identifiers are global, so the second root's id is not 1.
	if second.ID != 2 || second.Path.String() != "2." {
		t.Fatalf("second root id=%d path=%s, want 2 / \"2.\"", second.ID, second.Path)
	}
}

func TestServiceCreateNodeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	root, _, err := svc.CreateTree(ctx, "main")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	other, _, err := svc.CreateTree(ctx, "other")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}

	t.Run("unknown tree", func(t *testing.T) {
		_, _, err := svc.CreateNode(ctx, 99, root.ID, "x")
		var notFound domain.ErrTreeNotFound
		if !errors.As(err, &notFound) {
			t.Fatalf("error = %v, want ErrTreeNotFound", err)
		}
	})
	t.Run("unknown parent", func(t *testing.T) {
		_, _, err := svc.CreateNode(ctx, root.TreeID, 999, "x")
		var notFound domain.ErrNodeNotFound
		if !errors.As(err, &notFound) {
			t.Fatalf("error = %v, want ErrNodeNotFound", err)
		}
	})
	t.Run("parent in another tree", func(t *testing.T) {
		_, _, err := svc.CreateNode(ctx, root.TreeID, other.ID, "x")
		var wrongTree domain.ErrInvalidParentTree
		if !errors.As(err, &wrongTree) {
			t.Fatalf("error = %v, want ErrInvalidParentTree", err)
		}
	})
}

func TestServiceNameValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.CreateTree(ctx, ""); err == nil {
		t.Fatal("empty name accepted")
	}

	// The limit counts UTF-16 code units; astral-plane runes cost two each.
	surrogatePair := "\U0001F600"
	atLimit := strings.Repeat("x", 253) + surrogatePair
	if _, _, err := svc.CreateTree(ctx, atLimit); err != nil {
		t.Fatalf("255-code-unit name rejected: %v", err)
	}
	overLimit := strings.Repeat("x", 254) + surrogatePair
	_, _, err := svc.CreateTree(ctx, overLimit)
	var invalid domain.ErrInvalidName
	if !errors.As(err, &invalid) {
		t.Fatalf("256-code-unit name error = %v, want ErrInvalidName", err)
	}

	root, _, err := svc.CreateTree(ctx, "ok")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	if _, _, err := svc.RenameNode(ctx, root.TreeID, root.ID, ""); err == nil {
		t.Fatal("rename to empty name accepted")
	}
}

func TestServiceRenameNode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	root, _, err := svc.CreateTree(ctx, "before")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	renamed, _, err := svc.RenameNode(ctx, root.TreeID, root.ID, "after")
	if err != nil {
		t.Fatalf("RenameNode failed: %v", err)
	}
	if renamed.Name != "after" {
		t.Fatalf("name = %q, want \"after\"", renamed.Name)
	}
	if !renamed.Path.Equal(root.Path) || !renamed.CreatedAt.Equal(root.CreatedAt) {
		t.Fatal("rename changed path or creation time")
	}

	_, _, err = svc.RenameNode(ctx, root.TreeID, 999, "x")
	var notFound domain.ErrNodeNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("rename of missing node error = %v, want ErrNodeNotFound", err)
	}
}

func TestServiceGetNodeScopedByTree(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	root, _, err := svc.CreateTree(ctx, "main")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	if _, _, err := svc.CreateTree(ctx, "other"); err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}

	if _, err := svc.GetNode(ctx, root.TreeID, root.ID); err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	// Root of tree 2 is invisible through tree 1.
	_, err = svc.GetNode(ctx, root.TreeID, 2)
	var notFound domain.ErrNodeNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("cross-tree read error = %v, want ErrNodeNotFound", err)
	}
}

func TestServiceGetTree(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	root, _, err := svc.CreateTree(ctx, "r")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	a, _, err := svc.CreateNode(ctx, root.TreeID, root.ID, "a")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if _, _, err := svc.CreateNode(ctx, root.TreeID, root.ID, "b"); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if _, _, err := svc.CreateNode(ctx, root.TreeID, a.ID, "a1"); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	forest, err := svc.GetTree(ctx, root.TreeID)
	if err != nil {
		t.Fatalf("GetTree failed: %v", err)
	}
	if len(forest) != 1 || forest[0].ID != root.ID {
		t.Fatalf("forest should contain the single root: %+v", forest)
	}
	top := forest[0]
	if len(top.Children) != 2 || top.Children[0].Name != "a" || top.Children[1].Name != "b" {
		t.Fatalf("root children wrong: %+v", top.Children)
	}
	if len(top.Children[0].Children) != 1 || top.Children[0].Children[0].Name != "a1" {
		t.Fatalf("nested child missing: %+v", top.Children[0].Children)
	}

	_, err = svc.GetTree(ctx, 99)
	var notFound domain.ErrTreeNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("missing tree error = %v, want ErrTreeNotFound", err)
	}
}

func TestServiceListTrees(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return created })
	svc := NewService(store)
	ctx := context.Background()

	rootA, _, err := svc.CreateTree(ctx, "alpha")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	child, _, err := svc.CreateNode(ctx, rootA.TreeID, rootA.ID, "c1")
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if _, _, err := svc.CreateNode(ctx, rootA.TreeID, child.ID, "c2"); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if _, _, err := svc.CreateTree(ctx, "beta"); err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}

	summaries, err := svc.ListTrees(ctx)
	if err != nil {
		t.Fatalf("ListTrees failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	alpha := summaries[0]
	if alpha.TreeID != 1 || alpha.RootName != "alpha" || alpha.NodeCount != 3 || alpha.MaxLevel != 2 {
		t.Fatalf("alpha summary wrong: %+v", alpha)
	}
	if !alpha.RootCreatedAt.Equal(created) {
		t.Fatalf("alpha created at %v, want %v", alpha.RootCreatedAt, created)
	}
	beta := summaries[1]
	if beta.TreeID != 2 || beta.RootName != "beta" || beta.NodeCount != 1 || beta.MaxLevel != 0 {
		t.Fatalf("beta summary wrong: %+v", beta)
	}
}

func TestServiceGetSubtreeMissingNode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	root, _, err := svc.CreateTree(ctx, "r")
	if err != nil {
		t.Fatalf("CreateTree failed: %v", err)
	}
	_, err = svc.GetSubtree(ctx, root.TreeID, 999)
	var notFound domain.ErrNodeNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want ErrNodeNotFound", err)
	}
}
