package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/persistence"
	"finanzas/internal/persistence/memory"

	"github.com/shopspring/decimal"
)

func tx(desc string, day int, amount int64) core.Transaction {
	return core.Transaction{
		Kind:        core.Expense,
		Amount:      decimal.NewFromInt(amount),
		OccurredAt:  time.Date(2024, 7, day, 12, 0, 0, 0, time.UTC),
		Category:    "Alimentacion",
		Description: desc,
	}
}

func openStore(t *testing.T, svc persistence.Service) (*Store, <-chan []core.Transaction) {
	t.Helper()
	s := New(svc, "finanzas")
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)

	ch := make(chan []core.Transaction, 16)
	s.Subscribe(func(items []core.Transaction) { ch <- items })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitReady(ctx); err != nil {
		t.Fatalf("store never became ready: %v", err)
	}
	return s, ch
}

// next waits for a delivery with n items.
func next(t *testing.T, ch <-chan []core.Transaction, n int) []core.Transaction {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case items := <-ch:
			if len(items) == n {
				return items
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %d items", n)
			return nil
		}
	}
}

func TestCreateIsVisibleOnlyThroughSubscription(t *testing.T) {
	svc := memory.New()
	defer svc.Close()
	s, ch := openStore(t, svc)
	ctx := context.Background()

	next(t, ch, 0)
	id, err := s.Create(ctx, tx("Cena", 1, 350))
	if err != nil {
		t.Fatal(err)
	}
	items := next(t, ch, 1)
	if items[0].ID != id || items[0].Description != "Cena" || !items[0].Amount.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("unexpected item %+v", items[0])
	}
	if got, ok := s.FindByID(id); !ok || got.ID != id {
		t.Fatalf("FindByID(%s) = %+v, %v", id, got, ok)
	}
}

func TestDeliveriesAreSortedNewestFirst(t *testing.T) {
	svc := memory.New()
	defer svc.Close()
	s, ch := openStore(t, svc)

	_, err := s.BulkCreate(context.Background(), []core.Transaction{
		tx("uno", 1, 10),
		tx("tres", 3, 30),
		tx("dos", 2, 20),
	})
	if err != nil {
		t.Fatal(err)
	}
	items := next(t, ch, 3)
	for i, want := range []string{"tres", "dos", "uno"} {
		if items[i].Description != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, items[i].Description)
		}
	}

	// callers own their copy
	items[0].Description = "changed"
	if s.Snapshot()[0].Description != "tres" {
		t.Fatalf("listener mutation leaked into the store")
	}
}

func TestBulkCreateIsOneWrite(t *testing.T) {
	svc := &countingService{Service: memory.New()}
	s, ch := openStore(t, svc)

	ids, err := s.BulkCreate(context.Background(), []core.Transaction{tx("a", 1, 1), tx("b", 2, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || svc.updates != 1 {
		t.Fatalf("expected 2 ids from a single update, got %d ids and %d updates", len(ids), svc.updates)
	}
	next(t, ch, 2)
}

func TestUpdateMergesFields(t *testing.T) {
	svc := memory.New()
	defer svc.Close()
	s, ch := openStore(t, svc)
	ctx := context.Background()

	id, _ := s.Create(ctx, tx("Cena", 1, 350))
	next(t, ch, 1)

	amount := decimal.NewFromInt(400)
	if err := s.Update(ctx, id, Patch{Amount: &amount}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case items := <-ch:
			if len(items) == 1 && items[0].Amount.Equal(amount) {
				if items[0].Description != "Cena" || items[0].Category != "Alimentacion" {
					t.Fatalf("omitted fields changed: %+v", items[0])
				}
				return
			}
		case <-deadline:
			t.Fatal("update never delivered")
		}
	}
}

func TestUpdateUnknownID(t *testing.T) {
	svc := memory.New()
	defer svc.Close()
	s, _ := openStore(t, svc)

	desc := "x"
	if err := s.Update(context.Background(), "missing", Patch{Description: &desc}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	svc := memory.New()
	defer svc.Close()
	s, ch := openStore(t, svc)
	ctx := context.Background()

	id, _ := s.Create(ctx, tx("Cena", 1, 350))
	next(t, ch, 1)

	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	next(t, ch, 0)
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	if _, ok := s.FindByID(id); ok {
		t.Fatalf("deleted id still found")
	}
}

func TestPersistenceFailure(t *testing.T) {
	boom := errors.New("unavailable")
	svc := &failingService{Service: memory.New(), err: boom}
	s, _ := openStore(t, svc)

	_, err := s.Create(context.Background(), tx("Cena", 1, 350))
	var perr *PersistenceError
	if !errors.As(err, &perr) || !errors.Is(err, boom) || perr.Op != "create" {
		t.Fatalf("expected PersistenceError wrapping cause, got %v", err)
	}
	if _, err := s.BulkCreate(context.Background(), []core.Transaction{tx("a", 1, 1)}); !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if n := len(s.Snapshot()); n != 0 {
		t.Fatalf("failed writes must not change local state, got %d items", n)
	}
}

func TestListenerMaySubscribe(t *testing.T) {
	svc := memory.New()
	defer svc.Close()
	s, ch := openStore(t, svc)
	next(t, ch, 0)

	inner := make(chan []core.Transaction, 16)
	var once sync.Once
	returned := make(chan struct{})
	go func() {
		s.Subscribe(func([]core.Transaction) {
			once.Do(func() {
				s.Subscribe(func(items []core.Transaction) { inner <- items })
			})
		})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe called from inside a listener never returned")
	}
	next(t, inner, 0)

	// snapshots keep flowing to every listener
	if _, err := s.Create(context.Background(), tx("Cena", 1, 350)); err != nil {
		t.Fatal(err)
	}
	next(t, ch, 1)
	next(t, inner, 1)
}

func TestUnsubscribe(t *testing.T) {
	svc := memory.New()
	defer svc.Close()
	s, ch := openStore(t, svc)
	next(t, ch, 0)

	other := make(chan []core.Transaction, 16)
	unsubscribe := s.Subscribe(func(items []core.Transaction) { other <- items })
	next(t, other, 0)

	unsubscribe()
	unsubscribe()

	if _, err := s.Create(context.Background(), tx("Cena", 1, 350)); err != nil {
		t.Fatal(err)
	}
	next(t, ch, 1)

	select {
	case items := <-other:
		t.Fatalf("delivery after unsubscribe: %d items", len(items))
	case <-time.After(50 * time.Millisecond):
	}

	s.mu.RLock()
	n := len(s.listeners)
	s.mu.RUnlock()
	if n != 1 {
		t.Fatalf("expected only the first listener left, got %d", n)
	}
}

func TestStaleSnapshotIgnored(t *testing.T) {
	s := New(memory.New(), "finanzas")
	body, _ := encode(tx("nuevo", 2, 1))
	s.apply(persistence.Snapshot{Root: "finanzas", Revision: 5, Children: map[string]json.RawMessage{"a": body}})
	s.apply(persistence.Snapshot{Root: "finanzas", Revision: 4, Children: map[string]json.RawMessage{}})

	if s.Revision() != 5 || len(s.Snapshot()) != 1 {
		t.Fatalf("stale snapshot applied: revision %d, %d items", s.Revision(), len(s.Snapshot()))
	}
}

func TestDecodeSnapshotSkipsBadRecords(t *testing.T) {
	good, _ := encode(tx("ok", 1, 1))
	items, skipped := DecodeSnapshot(persistence.Snapshot{Children: map[string]json.RawMessage{
		"a": good,
		"b": json.RawMessage(`{"date":"nunca"}`),
		"c": json.RawMessage(`"text"`),
		"d": json.RawMessage(`{"type":"income","amount":"12.5","date":"2024-07-01T09:00:00Z","category":"Sueldo","description":"legacy"}`),
	}})
	if len(items) != 2 || skipped != 2 {
		t.Fatalf("expected 2 decoded and 2 skipped, got %d and %d", len(items), skipped)
	}
	if !items[1].Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("string amounts should decode, got %s", items[1].Amount)
	}
}

type countingService struct {
	persistence.Service
	updates int
}

func (c *countingService) Update(ctx context.Context, values map[string]json.RawMessage) error {
	c.updates++
	return c.Service.Update(ctx, values)
}

type failingService struct {
	persistence.Service
	err error
}

func (f *failingService) Set(context.Context, string, json.RawMessage) error { return f.err }

func (f *failingService) Update(context.Context, map[string]json.RawMessage) error { return f.err }

func (f *failingService) Remove(context.Context, string) error { return f.err }
