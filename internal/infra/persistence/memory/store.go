// Package memory provides an in-memory implementation of the node store used
// for tests and ephemeral environments.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

var errReadOnly = errors.New("memory store: mutation inside read-only view")

type state struct {
	nodes map[int64]domain.Node
}

func newState() state {
	return state{nodes: make(map[int64]domain.Node)}
}

func (s state) clone() state {
	out := state{nodes: make(map[int64]domain.Node, len(s.nodes))}
	for id, n := range s.nodes {
		out.nodes[id] = cloneNode(n)
	}
	return out
}

func cloneNode(n domain.Node) domain.Node {
	n.Path = n.Path.Clone()
	if n.ParentID != nil {
		parentID := *n.ParentID
		n.ParentID = &parentID
	}
	return n
}

// Store keeps all nodes in one map guarded by a mutex. Transactions operate
// on a cloned state that replaces the live one only on success, so a failed
// or rule-blocked transaction leaves nothing behind.
type Store struct {
	mu     sync.Mutex
	state  state
	engine *domain.RulesEngine
	nowFn  func() time.Time
	nextID int64
}

// NewStore constructs an empty in-memory store with the given rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	return &Store{
		state:  newState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock, for tests that pin creation timestamps.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

// RunInTransaction executes fn within a transactional copy of the store
// state, evaluates the invariant rules, and commits by swapping states.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state:  s.state.clone(),
		nextID: s.nextID,
		now:    s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	s.nextID = tx.nextID
	return result, nil
}

// View executes fn against a read-only snapshot of the current state.
func (s *Store) View(_ context.Context, fn func(tx domain.Transaction) error) error {
	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()

	tx := &transaction{state: snapshot, readOnly: true}
	return fn(tx)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

type transaction struct {
	state    state
	nextID   int64
	now      time.Time
	changes  []domain.Change
	readOnly bool
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) GetNode(treeID, nodeID int64) (domain.Node, error) {
	n, ok := tx.state.nodes[nodeID]
	if !ok || n.TreeID != treeID {
		return domain.Node{}, domain.ErrNodeNotFound{TreeID: treeID, NodeID: nodeID}
	}
	return cloneNode(n), nil
}

func (tx *transaction) GetNodeByID(nodeID int64) (domain.Node, error) {
	n, ok := tx.state.nodes[nodeID]
	if !ok {
		return domain.Node{}, domain.ErrNodeNotFound{NodeID: nodeID}
	}
	return cloneNode(n), nil
}

func (tx *transaction) GetChildren(treeID, parentID int64) ([]domain.Node, error) {
	var out []domain.Node
	for _, n := range tx.state.nodes {
		if n.TreeID == treeID && n.ParentID != nil && *n.ParentID == parentID {
			out = append(out, cloneNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *transaction) GetSubtree(treeID int64, prefix domain.TreePath) ([]domain.Node, error) {
	var out []domain.Node
	for _, n := range tx.state.nodes {
		if n.TreeID == treeID && n.Path.HasPrefix(prefix) {
			out = append(out, cloneNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.String() < out[j].Path.String() })
	return out, nil
}

func (tx *transaction) GetRoots(treeID int64) ([]domain.Node, error) {
	var out []domain.Node
	for _, n := range tx.state.nodes {
		if n.TreeID == treeID && n.ParentID == nil {
			out = append(out, cloneNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *transaction) ListTreeIDs() ([]int64, error) {
	seen := make(map[int64]bool)
	for _, n := range tx.state.nodes {
		seen[n.TreeID] = true
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (tx *transaction) NextTreeID() (int64, error) {
	var max int64
	for _, n := range tx.state.nodes {
		if n.TreeID > max {
			max = n.TreeID
		}
	}
	return max + 1, nil
}

func (tx *transaction) Insert(node domain.Node) (domain.Node, error) {
	if tx.readOnly {
		return domain.Node{}, errReadOnly
	}
	tx.nextID++
	node.ID = tx.nextID
	if node.CreatedAt.IsZero() {
		node.CreatedAt = tx.now
	}
	stored := cloneNode(node)
	tx.state.nodes[node.ID] = stored
	after := cloneNode(stored)
	tx.recordChange(domain.Change{Entity: domain.EntityNode, Action: domain.ActionCreate, After: &after})
	return cloneNode(stored), nil
}

func (tx *transaction) Update(node domain.Node) error {
	if tx.readOnly {
		return errReadOnly
	}
	existing, ok := tx.state.nodes[node.ID]
	if !ok {
		return domain.ErrNodeNotFound{TreeID: node.TreeID, NodeID: node.ID}
	}
	before := cloneNode(existing)
	stored := cloneNode(node)
	tx.state.nodes[node.ID] = stored
	after := cloneNode(stored)
	tx.recordChange(domain.Change{Entity: domain.EntityNode, Action: domain.ActionUpdate, Before: &before, After: &after})
	return nil
}

func (tx *transaction) Delete(node domain.Node) error {
	if tx.readOnly {
		return errReadOnly
	}
	existing, ok := tx.state.nodes[node.ID]
	if !ok || existing.TreeID != node.TreeID {
		return domain.ErrNodeNotFound{TreeID: node.TreeID, NodeID: node.ID}
	}
	hasChildren, err := tx.HasChildren(existing.TreeID, existing.ID)
	if err != nil {
		return err
	}
	if hasChildren {
		return domain.ErrHasChildren{TreeID: existing.TreeID, NodeID: existing.ID}
	}
	before := cloneNode(existing)
	delete(tx.state.nodes, node.ID)
	tx.recordChange(domain.Change{Entity: domain.EntityNode, Action: domain.ActionDelete, Before: &before})
	return nil
}

func (tx *transaction) HasChildren(treeID, nodeID int64) (bool, error) {
	for _, n := range tx.state.nodes {
		if n.TreeID == treeID && n.ParentID != nil && *n.ParentID == nodeID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *transaction) TreeExists(treeID int64) (bool, error) {
	for _, n := range tx.state.nodes {
		if n.TreeID == treeID {
			return true, nil
		}
	}
	return false, nil
}
