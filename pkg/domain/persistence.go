package domain

import "context"

// Transaction exposes the node store operations a persistence implementation
// must support within one atomic scope. Every read is scoped by tree
// identifier except GetNodeByID, which the path engine uses while rebuilding
// descendant paths from parent chains.
//
// Absent records surface as ErrNodeNotFound; implementations wrap any
// lower-level failure and return it unmodified otherwise.
type Transaction interface {
	// GetNode returns the node with the given identifier if it belongs to the
	// given tree.
	GetNode(treeID, nodeID int64) (Node, error)
	// GetNodeByID resolves a node by identifier alone.
	GetNodeByID(nodeID int64) (Node, error)
	// GetChildren returns the immediate children of parentID ordered by
	// identifier ascending (insertion order, since identifiers are
	// monotonically increasing).
	GetChildren(treeID, parentID int64) ([]Node, error)
	// GetSubtree returns every node whose path starts with prefix, ordered by
	// path, so parents precede their descendants.
	GetSubtree(treeID int64, prefix TreePath) ([]Node, error)
	// GetRoots returns the nodes of the tree with no parent.
	GetRoots(treeID int64) ([]Node, error)
	// ListTreeIDs returns the distinct tree identifiers ascending.
	ListTreeIDs() ([]int64, error)
	// NextTreeID returns one greater than the current maximum tree id, or 1
	// when no trees exist.
	NextTreeID() (int64, error)
	// Insert persists a new node and returns it with its generated
	// identifier and creation timestamp set.
	Insert(node Node) (Node, error)
	// Update replaces the stored node by identity.
	Update(node Node) error
	// Delete removes the node. It rejects nodes that currently have children
	// regardless of what callers checked beforehand.
	Delete(node Node) error
	// HasChildren reports whether any node references nodeID as its parent.
	HasChildren(treeID, nodeID int64) (bool, error)
	// TreeExists reports whether any node carries the tree identifier.
	TreeExists(treeID int64) (bool, error)
}

// PersistentStore is the abstraction over durable backends. Mutations run
// inside RunInTransaction so that the two-phase create and the
// has-children/delete pair are never observed half-done; reads run inside
// View against a consistent snapshot.
type PersistentStore interface {
	// RunInTransaction executes fn atomically. After fn returns, registered
	// invariant rules are evaluated against the pending state; blocking
	// violations discard the transaction and surface as RuleViolationError.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error)
	// View executes fn against a read-only consistent snapshot.
	View(ctx context.Context, fn func(tx Transaction) error) error
	// Close releases underlying resources.
	Close() error
}
