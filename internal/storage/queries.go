package storage

import (
	"context"
	"database/sql"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Node struct {
	ChildKey string
	Body     string
}

type GetNodeParams struct {
	Root     string
	ChildKey string
}

const getNode = `SELECT body FROM nodes WHERE root = ? AND child_key = ?`

func (q *Queries) GetNode(ctx context.Context, arg GetNodeParams) (string, error) {
	row := q.db.QueryRowContext(ctx, getNode, arg.Root, arg.ChildKey)
	var body string
	err := row.Scan(&body)
	return body, err
}

const listNodes = `SELECT child_key, body FROM nodes WHERE root = ? ORDER BY child_key`

func (q *Queries) ListNodes(ctx context.Context, root string) ([]Node, error) {
	rows, err := q.db.QueryContext(ctx, listNodes, root)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Node
	for rows.Next() {
		var i Node
		if err := rows.Scan(&i.ChildKey, &i.Body); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type UpsertNodeParams struct {
	Root      string
	ChildKey  string
	Body      string
	UpdatedAt time.Time
}

const upsertNode = `INSERT INTO nodes (root, child_key, body, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (root, child_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`

func (q *Queries) UpsertNode(ctx context.Context, arg UpsertNodeParams) error {
	_, err := q.db.ExecContext(ctx, upsertNode, arg.Root, arg.ChildKey, arg.Body, arg.UpdatedAt)
	return err
}

type DeleteNodeParams struct {
	Root     string
	ChildKey string
}

const deleteNode = `DELETE FROM nodes WHERE root = ? AND child_key = ?`

func (q *Queries) DeleteNode(ctx context.Context, arg DeleteNodeParams) error {
	_, err := q.db.ExecContext(ctx, deleteNode, arg.Root, arg.ChildKey)
	return err
}

const getRevision = `SELECT revision FROM revisions WHERE root = ?`

func (q *Queries) GetRevision(ctx context.Context, root string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getRevision, root)
	var revision int64
	err := row.Scan(&revision)
	return revision, err
}

type BumpRevisionParams struct {
	Root      string
	UpdatedAt time.Time
}

const bumpRevision = `INSERT INTO revisions (root, revision, updated_at) VALUES (?, 1, ?)
ON CONFLICT (root) DO UPDATE SET revision = revision + 1, updated_at = excluded.updated_at
RETURNING revision`

func (q *Queries) BumpRevision(ctx context.Context, arg BumpRevisionParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, bumpRevision, arg.Root, arg.UpdatedAt)
	var revision int64
	err := row.Scan(&revision)
	return revision, err
}
