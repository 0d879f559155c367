// Package worker keeps a Google Sheets copy of the transaction collection in
// step with the persistence service.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/persistence"
	"finanzas/internal/store"
)

// SnapshotLoader reads the current state of a collection root.
type SnapshotLoader interface {
	Load(ctx context.Context, root string) (persistence.Snapshot, error)
}

// RowWriter replaces the mirrored rows.
type RowWriter interface {
	ReplaceRows(ctx context.Context, txs []core.Transaction) error
}

// MirrorWorker rewrites the sheet whenever the collection moves past the
// last revision it mirrored.
type MirrorWorker struct {
	source SnapshotLoader
	sheet  RowWriter
	root   string

	mu           sync.Mutex
	lastRevision int64
}

func NewMirrorWorker(source SnapshotLoader, sheet RowWriter, root string) *MirrorWorker {
	return &MirrorWorker{source: source, sheet: sheet, root: root}
}

// LastRevision returns the revision currently reflected in the sheet.
func (w *MirrorWorker) LastRevision() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRevision
}

// HandleChange processes one change message from AMQP. Messages for other
// roots and revisions already mirrored are acknowledged without work.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg.Root != w.root {
		slog.DebugContext(ctx, "Ignoring change for another root", "root", msg.Root)
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if msg.Revision <= w.lastRevision {
		slog.DebugContext(ctx, "Change already mirrored",
			"revision", msg.Revision,
			"mirrored", w.lastRevision)
		return nil
	}
	return w.syncLocked(ctx, false)
}

// Resync mirrors the current state. Without force it is a no-op when the
// stored revision has not moved; it is the fallback for lost messages.
func (w *MirrorWorker) Resync(ctx context.Context, force bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked(ctx, force)
}

// Run resyncs every interval until ctx is done.
func (w *MirrorWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Resync(ctx, false); err != nil {
				slog.ErrorContext(ctx, "Periodic resync failed", "error", err)
			}
		}
	}
}

func (w *MirrorWorker) syncLocked(ctx context.Context, force bool) error {
	snap, err := w.source.Load(ctx, w.root)
	if err != nil {
		return fmt.Errorf("load %s: %w", w.root, err)
	}
	if !force && snap.Revision == w.lastRevision {
		return nil
	}

	txs, skipped := store.DecodeSnapshot(snap)
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped undecodable records while mirroring",
			"root", w.root,
			"skipped", skipped)
	}
	if err := w.sheet.ReplaceRows(ctx, txs); err != nil {
		return fmt.Errorf("replace sheet rows: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored collection to sheet",
		"root", w.root,
		"revision", snap.Revision,
		"previous", w.lastRevision,
		"transactions", len(txs))
	w.lastRevision = snap.Revision
	return nil
}
