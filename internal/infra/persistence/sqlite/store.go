// Package sqlite provides the embedded single-file node store. It executes
// row-level SQL inside IMMEDIATE transactions, with WAL mode for concurrent
// readers.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AndreyMensh/TreeManagementApi/internal/infra/persistence/sqlutil"
	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

//go:embed schema.sql
var schemaDDL string

// Store persists nodes as rows in a single sqlite file.
type Store struct {
	db     *sql.DB
	engine *domain.RulesEngine
	path   string
}

// NewStore opens (creating if needed) the sqlite database at path and applies
// the schema. An empty path defaults to ./treeapi.db.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "treeapi.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("sqlite: create dirs: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	for _, stmt := range sqlutil.SplitStatements(schemaDDL) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}
	return &Store{db: db, engine: engine, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction executes fn inside one IMMEDIATE sqlite transaction,
// evaluates the invariant rules against the pending state, and commits only
// when nothing blocks.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	tx := &transaction{ctx: ctx, tx: sqlTx}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx, tx.changes)
		if err != nil {
			_ = sqlTx.Rollback()
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			_ = sqlTx.Rollback()
			return res, domain.RuleViolationError{Result: res}
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return result, fmt.Errorf("sqlite: commit: %w", err)
	}
	return result, nil
}

// View executes fn inside a transaction that is always rolled back, giving
// readers a consistent snapshot without publishing writes.
func (s *Store) View(ctx context.Context, fn func(tx domain.Transaction) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin view: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(&transaction{ctx: ctx, tx: sqlTx})
}

type transaction struct {
	ctx     context.Context
	tx      *sql.Tx
	changes []domain.Change
}

const nodeColumns = "id, tree_id, name, parent_id, path, created_at"

func (t *transaction) scanNode(row *sql.Row) (domain.Node, error) {
	var n domain.Node
	var parent sql.NullInt64
	var rawPath, rawCreated string
	if err := row.Scan(&n.ID, &n.TreeID, &n.Name, &parent, &rawPath, &rawCreated); err != nil {
		return domain.Node{}, err
	}
	return decodeNode(n, parent, rawPath, rawCreated)
}

func decodeNode(n domain.Node, parent sql.NullInt64, rawPath, rawCreated string) (domain.Node, error) {
	if parent.Valid {
		parentID := parent.Int64
		n.ParentID = &parentID
	}
	path, err := domain.ParsePath(rawPath)
	if err != nil {
		return domain.Node{}, fmt.Errorf("sqlite: node %d: %w", n.ID, err)
	}
	n.Path = path
	created, err := time.Parse(time.RFC3339Nano, rawCreated)
	if err != nil {
		return domain.Node{}, fmt.Errorf("sqlite: node %d created_at: %w", n.ID, err)
	}
	n.CreatedAt = created
	return n, nil
}

func (t *transaction) queryNodes(query string, args ...any) ([]domain.Node, error) {
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Node
	for rows.Next() {
		var n domain.Node
		var parent sql.NullInt64
		var rawPath, rawCreated string
		if err := rows.Scan(&n.ID, &n.TreeID, &n.Name, &parent, &rawPath, &rawCreated); err != nil {
			return nil, fmt.Errorf("sqlite: scan node: %w", err)
		}
		decoded, err := decodeNode(n, parent, rawPath, rawCreated)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, rows.Err()
}

func (t *transaction) GetNode(treeID, nodeID int64) (domain.Node, error) {
	row := t.tx.QueryRowContext(t.ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE id = ? AND tree_id = ?", nodeID, treeID)
	n, err := t.scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Node{}, domain.ErrNodeNotFound{TreeID: treeID, NodeID: nodeID}
	}
	return n, err
}

func (t *transaction) GetNodeByID(nodeID int64) (domain.Node, error) {
	row := t.tx.QueryRowContext(t.ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE id = ?", nodeID)
	n, err := t.scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Node{}, domain.ErrNodeNotFound{NodeID: nodeID}
	}
	return n, err
}

func (t *transaction) GetChildren(treeID, parentID int64) ([]domain.Node, error) {
	return t.queryNodes(
		"SELECT "+nodeColumns+" FROM nodes WHERE tree_id = ? AND parent_id = ? ORDER BY id",
		treeID, parentID)
}

func (t *transaction) GetSubtree(treeID int64, prefix domain.TreePath) ([]domain.Node, error) {
	// Paths contain only digits and dots, so the prefix needs no LIKE
	// escaping.
	return t.queryNodes(
		"SELECT "+nodeColumns+" FROM nodes WHERE tree_id = ? AND path LIKE ? ORDER BY path",
		treeID, prefix.String()+"%")
}

func (t *transaction) GetRoots(treeID int64) ([]domain.Node, error) {
	return t.queryNodes(
		"SELECT "+nodeColumns+" FROM nodes WHERE tree_id = ? AND parent_id IS NULL ORDER BY id",
		treeID)
}

func (t *transaction) ListTreeIDs() ([]int64, error) {
	rows, err := t.tx.QueryContext(t.ctx, "SELECT DISTINCT tree_id FROM nodes ORDER BY tree_id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tree ids: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan tree id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *transaction) NextTreeID() (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(t.ctx, "SELECT COALESCE(MAX(tree_id), 0) + 1 FROM nodes").Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("sqlite: next tree id: %w", err)
	}
	return next, nil
}

func (t *transaction) Insert(node domain.Node) (domain.Node, error) {
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(t.ctx,
		"INSERT INTO nodes (tree_id, name, parent_id, path, created_at) VALUES (?, ?, ?, ?, ?)",
		node.TreeID, node.Name, nullableID(node.ParentID), node.Path.String(),
		node.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return domain.Node{}, fmt.Errorf("sqlite: insert node: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Node{}, fmt.Errorf("sqlite: last insert id: %w", err)
	}
	node.ID = id
	after := node
	t.changes = append(t.changes, domain.Change{Entity: domain.EntityNode, Action: domain.ActionCreate, After: &after})
	return node, nil
}

func (t *transaction) Update(node domain.Node) error {
	before, err := t.GetNodeByID(node.ID)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE nodes SET tree_id = ?, name = ?, parent_id = ?, path = ? WHERE id = ?",
		node.TreeID, node.Name, nullableID(node.ParentID), node.Path.String(), node.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update node %d: %w", node.ID, err)
	}
	node.CreatedAt = before.CreatedAt
	after := node
	t.changes = append(t.changes, domain.Change{Entity: domain.EntityNode, Action: domain.ActionUpdate, Before: &before, After: &after})
	return nil
}

func (t *transaction) Delete(node domain.Node) error {
	before, err := t.GetNode(node.TreeID, node.ID)
	if err != nil {
		return err
	}
	hasChildren, err := t.HasChildren(before.TreeID, before.ID)
	if err != nil {
		return err
	}
	if hasChildren {
		return domain.ErrHasChildren{TreeID: before.TreeID, NodeID: before.ID}
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM nodes WHERE id = ?", before.ID); err != nil {
		return fmt.Errorf("sqlite: delete node %d: %w", before.ID, err)
	}
	t.changes = append(t.changes, domain.Change{Entity: domain.EntityNode, Action: domain.ActionDelete, Before: &before})
	return nil
}

func (t *transaction) HasChildren(treeID, nodeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT EXISTS(SELECT 1 FROM nodes WHERE tree_id = ? AND parent_id = ?)",
		treeID, nodeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: has children: %w", err)
	}
	return exists, nil
}

func (t *transaction) TreeExists(treeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT EXISTS(SELECT 1 FROM nodes WHERE tree_id = ?)", treeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: tree exists: %w", err)
	}
	return exists, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
