// Package postgres provides the PostgreSQL-backed node store. Mutations run
// in SERIALIZABLE transactions so the check-then-act pairs (has-children then
// delete, two-phase create) cannot interleave with concurrent writers.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/AndreyMensh/TreeManagementApi/internal/infra/persistence/sqlutil"
	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

//go:embed schema.sql
var schemaDDL string

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/treeapi?sslmode=disable"
)

// Store persists nodes as rows in PostgreSQL.
type Store struct {
	db     *sql.DB
	engine *domain.RulesEngine
}

// NewStore opens a PostgreSQL-backed store using the provided DSN (falls back
// to defaultDSN) and applies the schema.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	for _, stmt := range sqlutil.SplitStatements(schemaDDL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres: apply schema: %w", err)
		}
	}
	return &Store{db: db, engine: engine}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction executes fn inside one SERIALIZABLE transaction,
// evaluates the invariant rules against the pending state, and commits only
// when nothing blocks.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.Result{}, fmt.Errorf("postgres: begin: %w", err)
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
		return result, fmt.Errorf("postgres: commit: %w", err)
	}
	return result, nil
}

// View executes fn inside a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx domain.Transaction) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("postgres: begin view: %w", err)
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

func decodeNode(n domain.Node, parent sql.NullInt64, rawPath string) (domain.Node, error) {
	if parent.Valid {
		parentID := parent.Int64
		n.ParentID = &parentID
	}
	path, err := domain.ParsePath(rawPath)
	if err != nil {
		return domain.Node{}, fmt.Errorf("postgres: node %d: %w", n.ID, err)
	}
	n.Path = path
	return n, nil
}

func (t *transaction) scanNode(row *sql.Row) (domain.Node, error) {
	var n domain.Node
	var parent sql.NullInt64
	var rawPath string
	if err := row.Scan(&n.ID, &n.TreeID, &n.Name, &parent, &rawPath, &n.CreatedAt); err != nil {
		return domain.Node{}, err
	}
	return decodeNode(n, parent, rawPath)
}

func (t *transaction) queryNodes(query string, args ...any) ([]domain.Node, error) {
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Node
	for rows.Next() {
		var n domain.Node
		var parent sql.NullInt64
		var rawPath string
		if err := rows.Scan(&n.ID, &n.TreeID, &n.Name, &parent, &rawPath, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan node: %w", err)
		}
		decoded, err := decodeNode(n, parent, rawPath)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, rows.Err()
}

func (t *transaction) GetNode(treeID, nodeID int64) (domain.Node, error) {
	row := t.tx.QueryRowContext(t.ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE id = $1 AND tree_id = $2", nodeID, treeID)
	n, err := t.scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Node{}, domain.ErrNodeNotFound{TreeID: treeID, NodeID: nodeID}
	}
	return n, err
}

func (t *transaction) GetNodeByID(nodeID int64) (domain.Node, error) {
	row := t.tx.QueryRowContext(t.ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE id = $1", nodeID)
	n, err := t.scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Node{}, domain.ErrNodeNotFound{NodeID: nodeID}
	}
	return n, err
}

func (t *transaction) GetChildren(treeID, parentID int64) ([]domain.Node, error) {
	return t.queryNodes(
		"SELECT "+nodeColumns+" FROM nodes WHERE tree_id = $1 AND parent_id = $2 ORDER BY id",
		treeID, parentID)
}

func (t *transaction) GetSubtree(treeID int64, prefix domain.TreePath) ([]domain.Node, error) {
	// Paths contain only digits and dots, so the prefix needs no LIKE
	// escaping.
	return t.queryNodes(
		"SELECT "+nodeColumns+" FROM nodes WHERE tree_id = $1 AND path LIKE $2 ORDER BY path",
		treeID, prefix.String()+"%")
}

func (t *transaction) GetRoots(treeID int64) ([]domain.Node, error) {
	return t.queryNodes(
		"SELECT "+nodeColumns+" FROM nodes WHERE tree_id = $1 AND parent_id IS NULL ORDER BY id",
		treeID)
}

func (t *transaction) ListTreeIDs() ([]int64, error) {
	rows, err := t.tx.QueryContext(t.ctx, "SELECT DISTINCT tree_id FROM nodes ORDER BY tree_id")
	if err != nil {
		return nil, fmt.Errorf("postgres: list tree ids: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan tree id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *transaction) NextTreeID() (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(t.ctx, "SELECT COALESCE(MAX(tree_id), 0) + 1 FROM nodes").Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("postgres: next tree id: %w", err)
	}
	return next, nil
}

func (t *transaction) Insert(node domain.Node) (domain.Node, error) {
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	// timestamptz keeps microseconds; truncate so the stored value equals the
	// returned one.
	node.CreatedAt = node.CreatedAt.Truncate(time.Microsecond)
	err := t.tx.QueryRowContext(t.ctx,
		"INSERT INTO nodes (tree_id, name, parent_id, path, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		node.TreeID, node.Name, nullableID(node.ParentID), node.Path.String(), node.CreatedAt).Scan(&node.ID)
	if err != nil {
		return domain.Node{}, fmt.Errorf("postgres: insert node: %w", err)
	}
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
		"UPDATE nodes SET tree_id = $1, name = $2, parent_id = $3, path = $4 WHERE id = $5",
		node.TreeID, node.Name, nullableID(node.ParentID), node.Path.String(), node.ID)
	if err != nil {
		return fmt.Errorf("postgres: update node %d: %w", node.ID, err)
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
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM nodes WHERE id = $1", before.ID); err != nil {
		return fmt.Errorf("postgres: delete node %d: %w", before.ID, err)
	}
	t.changes = append(t.changes, domain.Change{Entity: domain.EntityNode, Action: domain.ActionDelete, Before: &before})
	return nil
}

func (t *transaction) HasChildren(treeID, nodeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT EXISTS(SELECT 1 FROM nodes WHERE tree_id = $1 AND parent_id = $2)",
		treeID, nodeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has children: %w", err)
	}
	return exists, nil
}

func (t *transaction) TreeExists(treeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT EXISTS(SELECT 1 FROM nodes WHERE tree_id = $1)", treeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: tree exists: %w", err)
	}
	return exists, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
