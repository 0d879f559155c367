package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"finanzas/internal/persistence"

	_ "modernc.org/sqlite"
)

// ChangePublisher is notified after every committed write so other
// processes can react to the new revision.
type ChangePublisher interface {
	PublishChange(ctx context.Context, root string, revision int64) error
}

// SQLiteRepository is a persistence.Service backed by a SQLite file. Each
// child of a root is one row; every root carries a revision counter bumped in
// the same transaction as the write.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	hub     *persistence.Hub

	// mu serializes writes with subscription snapshots so the initial
	// delivery is never newer than a change published after it.
	mu        sync.Mutex
	publisher ChangePublisher
}

var _ persistence.Service = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		hub:     persistence.NewHub(),
	}, nil
}

// SetPublisher installs the publisher used after each commit.
func (r *SQLiteRepository) SetPublisher(p ChangePublisher) {
	r.mu.Lock()
	r.publisher = p
	r.mu.Unlock()
}

func (r *SQLiteRepository) Close() error {
	r.hub.Close()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) NewKey() string {
	return persistence.NewKey()
}

func (r *SQLiteRepository) Set(ctx context.Context, path string, value json.RawMessage) error {
	return r.Update(ctx, map[string]json.RawMessage{path: value})
}

func (r *SQLiteRepository) Remove(ctx context.Context, path string) error {
	return r.Update(ctx, map[string]json.RawMessage{path: persistence.Null()})
}

// Update applies every write in one transaction.
func (r *SQLiteRepository) Update(ctx context.Context, values map[string]json.RawMessage) error {
	writes, err := persistence.Plan(values)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	r.mu.Lock()
	snaps, err := r.commit(ctx, writes)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	for _, snap := range snaps {
		r.hub.Publish(snap)
	}
	publisher := r.publisher
	r.mu.Unlock()

	slog.DebugContext(ctx, "Nodes committed", "writes", len(writes), "roots", len(snaps))

	if publisher != nil {
		// The write is durable; a caller that has gone away must not
		// suppress the announcement.
		pubCtx := context.WithoutCancel(ctx)
		for _, snap := range snaps {
			if err := publisher.PublishChange(pubCtx, snap.Root, snap.Revision); err != nil {
				slog.WarnContext(pubCtx, "Failed to publish change message",
					"root", snap.Root,
					"revision", snap.Revision,
					"error", err)
			}
		}
	}
	return nil
}

func (r *SQLiteRepository) commit(ctx context.Context, writes []persistence.Write) ([]persistence.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	now := time.Now().UTC()

	for _, w := range writes {
		var current json.RawMessage
		body, err := qtx.GetNode(ctx, GetNodeParams{Root: w.Path.Root, ChildKey: w.Path.Key})
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, fmt.Errorf("get node %s: %w", w.Path, err)
		default:
			current = json.RawMessage(body)
		}

		next, err := persistence.Apply(current, w)
		if err != nil {
			return nil, err
		}
		if next == nil {
			if current == nil {
				continue
			}
			err = qtx.DeleteNode(ctx, DeleteNodeParams{Root: w.Path.Root, ChildKey: w.Path.Key})
		} else {
			err = qtx.UpsertNode(ctx, UpsertNodeParams{
				Root:      w.Path.Root,
				ChildKey:  w.Path.Key,
				Body:      string(next),
				UpdatedAt: now,
			})
		}
		if err != nil {
			return nil, fmt.Errorf("write node %s: %w", w.Path, err)
		}
	}

	revisions := make(map[string]int64)
	for _, w := range writes {
		if _, ok := revisions[w.Path.Root]; ok {
			continue
		}
		rev, err := qtx.BumpRevision(ctx, BumpRevisionParams{Root: w.Path.Root, UpdatedAt: now})
		if err != nil {
			return nil, fmt.Errorf("bump revision %s: %w", w.Path.Root, err)
		}
		revisions[w.Path.Root] = rev
	}

	// Snapshots are read inside the transaction so a committed write always
	// has a snapshot to publish.
	roots := make([]string, 0, len(revisions))
	for root := range revisions {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	snaps := make([]persistence.Snapshot, 0, len(roots))
	for _, root := range roots {
		snap, err := r.load(ctx, qtx, root)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return snaps, nil
}

func (r *SQLiteRepository) Subscribe(root string, fn func(persistence.Snapshot)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.load(context.Background(), r.queries, root)
	if err != nil {
		return nil, err
	}
	return r.hub.Add(root, fn, snap)
}

// Load reads the current value of root.
func (r *SQLiteRepository) Load(ctx context.Context, root string) (persistence.Snapshot, error) {
	return r.load(ctx, r.queries, root)
}

func (r *SQLiteRepository) load(ctx context.Context, q *Queries, root string) (persistence.Snapshot, error) {
	rev, err := q.GetRevision(ctx, root)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return persistence.Snapshot{}, fmt.Errorf("get revision %s: %w", root, err)
	}
	nodes, err := q.ListNodes(ctx, root)
	if err != nil {
		return persistence.Snapshot{}, fmt.Errorf("list nodes %s: %w", root, err)
	}

	snap := persistence.Snapshot{
		Root:     root,
		Revision: rev,
		Children: make(map[string]json.RawMessage, len(nodes)),
	}
	for _, n := range nodes {
		snap.Children[n.ChildKey] = json.RawMessage(n.Body)
	}
	return snap, nil
}
