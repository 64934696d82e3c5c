package core

import (
	"context"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// Service is the public operation surface over the node store. It sequences
// store calls, runs the validator before structural mutations, and runs the
// path engine once the store has generated a node identifier. Every mutation
// executes inside a single store transaction so the two-phase create is never
// observed half-done.
type Service struct {
	store     domain.PersistentStore
	paths     *PathEngine
	validator *Validator
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger routes service logging to the supplied logger.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder routes operation observations to the supplied recorder.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer routes operation spans to the supplied tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		paths:     NewPathEngine(),
		validator: NewValidator(),
		logger:    noopLogger{},
		metrics:   noopMetricsRecorder{},
		tracer:    noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

func (s *Service) instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	return ctx, func(err error) {
		span.End(err)
		s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	}
}

// CreateTree allocates a new tree identifier and inserts its root node. The
// root's path is assigned in a second write inside the same transaction,
// because it embeds the store-generated identifier.
func (s *Service) CreateTree(ctx context.Context, name string) (domain.Node, domain.Result, error) {
	ctx, done := s.instrument(ctx, "create_tree")
	var created domain.Node
	var err error
	defer func() { done(err) }()

	if err = validateName(name); err != nil {
		return domain.Node{}, domain.Result{}, err
	}
	var res domain.Result
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		treeID, err := tx.NextTreeID()
		if err != nil {
			return fmt.Errorf("allocate tree id: %w", err)
		}
		inserted, err := tx.Insert(domain.Node{TreeID: treeID, Name: name})
		if err != nil {
			return fmt.Errorf("insert root: %w", err)
		}
		path, err := s.paths.ComputePath(inserted, nil)
		if err != nil {
			return err
		}
		inserted.Path = path
		if err := tx.Update(inserted); err != nil {
			return fmt.Errorf("store root path: %w", err)
		}
		created = inserted
		return nil
	})
	if err != nil {
		return domain.Node{}, res, err
	}
	s.logger.Info("tree created", "tree_id", created.TreeID, "root_id", created.ID)
	return created, res, nil
}

// CreateNode inserts a node under a validated parent in an existing tree.
func (s *Service) CreateNode(ctx context.Context, treeID, parentID int64, name string) (domain.Node, domain.Result, error) {
	ctx, done := s.instrument(ctx, "create_node")
	var created domain.Node
	var err error
	defer func() { done(err) }()

	if err = validateName(name); err != nil {
		return domain.Node{}, domain.Result{}, err
	}
	var res domain.Result
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		exists, err := tx.TreeExists(treeID)
		if err != nil {
			return fmt.Errorf("check tree %d: %w", treeID, err)
		}
		if !exists {
			return domain.ErrTreeNotFound{TreeID: treeID}
		}
		parent, err := s.validator.ValidateParent(tx, treeID, parentID)
		if err != nil {
			return err
		}
		inserted, err := tx.Insert(domain.Node{TreeID: treeID, Name: name, ParentID: &parentID})
		if err != nil {
			return fmt.Errorf("insert node: %w", err)
		}
		path, err := s.paths.ComputePath(inserted, &parent)
		if err != nil {
			return err
		}
		inserted.Path = path
		if err := tx.Update(inserted); err != nil {
			return fmt.Errorf("store node path: %w", err)
		}
		created = inserted
		return nil
	})
	if err != nil {
		return domain.Node{}, res, err
	}
	s.logger.Info("node created", "tree_id", created.TreeID, "node_id", created.ID, "parent_id", parentID, "level", created.Level())
	return created, res, nil
}

// RenameNode updates a node's name in place; path and parent are untouched.
func (s *Service) RenameNode(ctx context.Context, treeID, nodeID int64, newName string) (domain.Node, domain.Result, error) {
	ctx, done := s.instrument(ctx, "rename_node")
	var renamed domain.Node
	var err error
	defer func() { done(err) }()

	if err = validateName(newName); err != nil {
		return domain.Node{}, domain.Result{}, err
	}
	var res domain.Result
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		node, err := tx.GetNode(treeID, nodeID)
		if err != nil {
			return err
		}
		node.Name = newName
		if err := tx.Update(node); err != nil {
			return fmt.Errorf("rename node %d: %w", nodeID, err)
		}
		renamed = node
		return nil
	})
	if err != nil {
		return domain.Node{}, res, err
	}
	s.logger.Info("node renamed", "tree_id", treeID, "node_id", nodeID)
	return renamed, res, nil
}

// DeleteNode removes a childless node. The has-children check and the delete
// share one transaction, and the store plus the leaf-deletion rule reject the
// race where a child appears in between.
func (s *Service) DeleteNode(ctx context.Context, treeID, nodeID int64) (domain.Result, error) {
	ctx, done := s.instrument(ctx, "delete_node")
	var err error
	defer func() { done(err) }()

	var res domain.Result
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		node, err := tx.GetNode(treeID, nodeID)
		if err != nil {
			return err
		}
		hasChildren, err := tx.HasChildren(treeID, nodeID)
		if err != nil {
			return fmt.Errorf("check children of node %d: %w", nodeID, err)
		}
		if hasChildren {
			return domain.ErrHasChildren{TreeID: treeID, NodeID: nodeID}
		}
		return tx.Delete(node)
	})
	if err != nil {
		return res, err
	}
	s.logger.Info("node deleted", "tree_id", treeID, "node_id", nodeID)
	return res, nil
}

// GetNode returns a single node.
func (s *Service) GetNode(ctx context.Context, treeID, nodeID int64) (domain.Node, error) {
	ctx, done := s.instrument(ctx, "get_node")
	var node domain.Node
	var err error
	defer func() { done(err) }()

	err = s.store.View(ctx, func(tx domain.Transaction) error {
		var err error
		node, err = tx.GetNode(treeID, nodeID)
		return err
	})
	return node, err
}

// GetChildren returns a node's immediate children ordered by identifier.
func (s *Service) GetChildren(ctx context.Context, treeID, nodeID int64) ([]domain.Node, error) {
	ctx, done := s.instrument(ctx, "get_children")
	var children []domain.Node
	var err error
	defer func() { done(err) }()

	err = s.store.View(ctx, func(tx domain.Transaction) error {
		if _, err := tx.GetNode(treeID, nodeID); err != nil {
			return err
		}
		var err error
		children, err = tx.GetChildren(treeID, nodeID)
		return err
	})
	return children, err
}

// GetTree returns the whole tree as a nested projection, roots at the top and
// children ordered by identifier. The nesting is a pure transformation over
// one subtree scan.
func (s *Service) GetTree(ctx context.Context, treeID int64) ([]domain.TreeNode, error) {
	ctx, done := s.instrument(ctx, "get_tree")
	var forest []domain.TreeNode
	var err error
	defer func() { done(err) }()

	err = s.store.View(ctx, func(tx domain.Transaction) error {
		roots, err := tx.GetRoots(treeID)
		if err != nil {
			return err
		}
		if len(roots) == 0 {
			return domain.ErrTreeNotFound{TreeID: treeID}
		}
		var nodes []domain.Node
		for _, root := range roots {
			subtree, err := tx.GetSubtree(treeID, root.Path)
			if err != nil {
				return err
			}
			nodes = append(nodes, subtree...)
		}
		forest = domain.AssembleForest(nodes)
		return nil
	})
	return forest, err
}

// GetSubtree returns the node and all of its descendants as a nested
// projection rooted at the node.
func (s *Service) GetSubtree(ctx context.Context, treeID, nodeID int64) (domain.TreeNode, error) {
	ctx, done := s.instrument(ctx, "get_subtree")
	var top domain.TreeNode
	var err error
	defer func() { done(err) }()

	err = s.store.View(ctx, func(tx domain.Transaction) error {
		node, err := tx.GetNode(treeID, nodeID)
		if err != nil {
			return err
		}
		nodes, err := tx.GetSubtree(treeID, node.Path)
		if err != nil {
			return err
		}
		forest := domain.AssembleForest(nodes)
		if len(forest) != 1 {
			return fmt.Errorf("subtree of node %d assembled into %d tops", nodeID, len(forest))
		}
		top = forest[0]
		return nil
	})
	return top, err
}

// ListTrees summarises every tree: root name, node count, maximum level, and
// root creation time.
func (s *Service) ListTrees(ctx context.Context) ([]domain.TreeSummary, error) {
	ctx, done := s.instrument(ctx, "list_trees")
	var summaries []domain.TreeSummary
	var err error
	defer func() { done(err) }()

	err = s.store.View(ctx, func(tx domain.Transaction) error {
		treeIDs, err := tx.ListTreeIDs()
		if err != nil {
			return err
		}
		summaries = make([]domain.TreeSummary, 0, len(treeIDs))
		for _, treeID := range treeIDs {
			roots, err := tx.GetRoots(treeID)
			if err != nil {
				return err
			}
			if len(roots) == 0 {
				// Unreachable while the single-root rule holds; skip rather
				// than fail the whole listing.
				s.logger.Warn("tree without root encountered", "tree_id", treeID)
				continue
			}
			root := roots[0]
			nodes, err := tx.GetSubtree(treeID, root.Path)
			if err != nil {
				return err
			}
			maxLevel := 0
			for _, n := range nodes {
				if lvl := n.Level(); lvl > maxLevel {
					maxLevel = lvl
				}
			}
			summaries = append(summaries, domain.TreeSummary{
				TreeID:        treeID,
				RootName:      root.Name,
				NodeCount:     len(nodes),
				MaxLevel:      maxLevel,
				RootCreatedAt: root.CreatedAt,
			})
		}
		return nil
	})
	return summaries, err
}

func validateName(name string) error {
	if name == "" {
		return domain.ErrInvalidName{Reason: "name must not be empty"}
	}
	// The bound is expressed in UTF-16 code units to match the storage
	// column semantics, not in bytes or runes.
	if len(utf16.Encode([]rune(name))) > domain.MaxNameLength {
		return domain.ErrInvalidName{Reason: fmt.Sprintf("name exceeds %d code units", domain.MaxNameLength)}
	}
	return nil
}
