// Package store keeps the in-memory mirror of the transaction collection.
//
// The Store never changes its own state after a write: the collection is
// replaced only when the persistence subscription delivers a new snapshot.
// Every listener receives the full collection, newest first.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/persistence"

	"github.com/shopspring/decimal"
)

// PersistenceError wraps a failure of the backing service. The operation can
// be retried by the caller; the Store never retries on its own.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Patch lists the fields to change in Update. Nil fields are left as stored.
type Patch struct {
	Kind        *core.Kind
	Amount      *decimal.Decimal
	OccurredAt  *time.Time
	Category    *string
	Description *string
	Comments    *string
}

// PatchFrom builds a patch that replaces every field of t except the id.
func PatchFrom(t core.Transaction) Patch {
	return Patch{
		Kind:        &t.Kind,
		Amount:      &t.Amount,
		OccurredAt:  &t.OccurredAt,
		Category:    &t.Category,
		Description: &t.Description,
		Comments:    &t.Comments,
	}
}

// Apply returns t with the patch applied.
func (p Patch) Apply(t core.Transaction) core.Transaction {
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.OccurredAt != nil {
		t.OccurredAt = *p.OccurredAt
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Comments != nil {
		t.Comments = *p.Comments
	}
	return t
}

func (p Patch) IsEmpty() bool {
	return p.Kind == nil && p.Amount == nil && p.OccurredAt == nil &&
		p.Category == nil && p.Description == nil && p.Comments == nil
}

type Store struct {
	svc  persistence.Service
	root string

	mu        sync.RWMutex
	items     []core.Transaction
	byID      map[string]core.Transaction
	revision  int64
	loaded    bool
	ready     chan struct{}
	cancel    func()
	listeners map[uint64]*listener
	nextID    uint64
}

// listener serializes the calls to one callback and drops a delivery older
// than the last one it made. No Store lock is held while fn runs, so fn may
// subscribe, unsubscribe or write.
type listener struct {
	fn      func([]core.Transaction)
	mu      sync.Mutex
	last    int64
	removed atomic.Bool
}

func (l *listener) deliver(items []core.Transaction, revision int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.removed.Load() || revision < l.last {
		return
	}
	l.last = revision
	l.fn(items)
}

func New(svc persistence.Service, root string) *Store {
	return &Store{
		svc:       svc,
		root:      root,
		byID:      make(map[string]core.Transaction),
		ready:     make(chan struct{}),
		listeners: make(map[uint64]*listener),
	}
}

// Open subscribes to the collection root. It returns once the subscription
// is registered; use WaitReady to wait for the first snapshot.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	cancel, err := s.svc.Subscribe(s.root, s.apply)
	if err != nil {
		return &PersistenceError{Op: "subscribe", Err: err}
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	slog.InfoContext(ctx, "Store subscribed", "root", s.root)
	return nil
}

// Close stops receiving snapshots. Listeners keep the last collection.
func (s *Store) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// WaitReady blocks until the first snapshot has been applied.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the first snapshot has been applied.
func (s *Store) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Root returns the collection root the Store mirrors.
func (s *Store) Root() string {
	return s.root
}

// Subscribe registers fn for every change of the collection. When a snapshot
// has already been applied fn receives it before Subscribe returns.
func (s *Store) Subscribe(fn func([]core.Transaction)) (unsubscribe func()) {
	l := &listener{fn: fn}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	loaded := s.loaded
	revision := s.revision
	items := s.copyLocked()
	s.mu.Unlock()

	if loaded {
		l.deliver(items, revision)
	}

	return func() {
		if l.removed.Swap(true) {
			return
		}
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the last applied collection.
func (s *Store) Snapshot() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Revision returns the revision of the last applied snapshot.
func (s *Store) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// FindByID looks id up in the last applied snapshot.
func (s *Store) FindByID(id string) (core.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	return t, ok
}

// Create stores t under a new key and returns the key. The record shows up
// in the collection when the backing service notifies the change.
func (s *Store) Create(ctx context.Context, t core.Transaction) (string, error) {
	id := s.svc.NewKey()
	body, err := encode(t)
	if err != nil {
		return "", err
	}
	if err := s.svc.Set(ctx, persistence.Join(s.root, id), body); err != nil {
		return "", &PersistenceError{Op: "create", Err: err}
	}
	slog.InfoContext(ctx, "Transaction created",
		"id", id,
		"type", t.Kind,
		"amount", t.Amount.String(),
		"category", t.Category)
	return id, nil
}

// BulkCreate stores all records in one multi-path write. Either every record
// is written or none is.
func (s *Store) BulkCreate(ctx context.Context, txs []core.Transaction) ([]string, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(txs))
	values := make(map[string]json.RawMessage, len(txs))
	for i, t := range txs {
		body, err := encode(t)
		if err != nil {
			return nil, err
		}
		ids[i] = s.svc.NewKey()
		values[persistence.Join(s.root, ids[i])] = body
	}
	if err := s.svc.Update(ctx, values); err != nil {
		return nil, &PersistenceError{Op: "bulk create", Err: err}
	}
	slog.InfoContext(ctx, "Transactions created", "count", len(ids))
	return ids, nil
}

// Update merges the patch into the stored record. Only supplied fields are
// written. The id must be present in the last applied snapshot.
func (s *Store) Update(ctx context.Context, id string, p Patch) error {
	if _, ok := s.FindByID(id); !ok {
		return core.ErrNotFound
	}
	if p.IsEmpty() {
		return nil
	}

	values, err := patchValues(s.root, id, p)
	if err != nil {
		return err
	}
	if err := s.svc.Update(ctx, values); err != nil {
		return &PersistenceError{Op: "update", Err: err}
	}
	slog.InfoContext(ctx, "Transaction updated", "id", id, "fields", len(values))
	return nil
}

// Delete removes id. Deleting an absent id succeeds without effect.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.svc.Remove(ctx, persistence.Join(s.root, id)); err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

func (s *Store) apply(snap persistence.Snapshot) {
	items, skipped := DecodeSnapshot(snap)
	if skipped > 0 {
		slog.Warn("Skipped undecodable records", "root", snap.Root, "revision", snap.Revision, "skipped", skipped)
	}

	s.mu.Lock()
	if s.loaded && snap.Revision < s.revision {
		s.mu.Unlock()
		slog.Debug("Ignoring stale snapshot", "revision", snap.Revision, "current", s.revision)
		return
	}
	s.items = items
	s.byID = make(map[string]core.Transaction, len(items))
	for _, t := range items {
		s.byID[t.ID] = t
	}
	s.revision = snap.Revision
	if !s.loaded {
		s.loaded = true
		close(s.ready)
	}
	listeners := s.listenersInOrderLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l.deliver(copyTransactions(items), snap.Revision)
	}
}

func (s *Store) listenersInOrderLocked() []*listener {
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]*listener, len(ids))
	for i, id := range ids {
		fns[i] = s.listeners[id]
	}
	return fns
}

func (s *Store) copyLocked() []core.Transaction {
	return copyTransactions(s.items)
}

func copyTransactions(items []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(items))
	copy(out, items)
	return out
}
