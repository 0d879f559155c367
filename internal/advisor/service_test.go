package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"finanzas/internal/cache"
	"finanzas/internal/core"

	"github.com/shopspring/decimal"
)

type fakeGateway struct {
	insights    atomic.Int32
	categorizes atomic.Int32
	category    string
	err         error
	release     chan struct{}

	mu          sync.Mutex
	lastPayload string
}

func (f *fakeGateway) SpendingInsights(ctx context.Context, payload string) (string, error) {
	f.insights.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	f.lastPayload = payload
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "Gasta menos en comida.", nil
}

func (f *fakeGateway) Categorize(context.Context, string) (string, error) {
	f.categorizes.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.category, nil
}

func expense(desc string, amount int64) core.Transaction {
	return core.Transaction{
		ID:          "id-" + desc,
		Kind:        core.Expense,
		Amount:      decimal.NewFromInt(amount),
		OccurredAt:  time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		Category:    "Alimentacion",
		Description: desc,
	}
}

func TestInsightsWithoutExpenses(t *testing.T) {
	gw := &fakeGateway{}
	s := NewService(gw, nil)

	income := core.Transaction{Kind: core.Income, Amount: decimal.NewFromInt(1), Category: "Sueldo"}
	got, err := s.Insights(context.Background(), []core.Transaction{income})
	if err != nil || got != NoExpensesMessage {
		t.Fatalf("expected no-data message, got %q %v", got, err)
	}
	if gw.insights.Load() != 0 {
		t.Fatalf("gateway must not be called without expenses")
	}
}

func TestInsightsSendsOnlyExpenses(t *testing.T) {
	gw := &fakeGateway{}
	s := NewService(gw, nil)

	txs := []core.Transaction{
		expense("Cena", 350),
		{Kind: core.Income, Amount: decimal.NewFromInt(1000), Category: "Sueldo", Description: "Sueldo"},
	}
	got, err := s.Insights(context.Background(), txs)
	if err != nil || got == "" {
		t.Fatalf("unexpected result %q %v", got, err)
	}

	var sent []map[string]any
	if err := json.Unmarshal([]byte(gw.lastPayload), &sent); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || sent[0]["description"] != "Cena" || sent[0]["amount"] != float64(350) {
		t.Fatalf("unexpected payload %s", gw.lastPayload)
	}
	if _, ok := sent[0]["id"]; ok {
		t.Fatalf("ids should not be sent: %s", gw.lastPayload)
	}
}

func TestInsightsCollapsesConcurrentRequests(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{})}
	s := NewService(gw, nil)
	txs := []core.Transaction{expense("Cena", 350)}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Insights(context.Background(), txs); err != nil {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	// let the goroutines join the in-flight call before releasing it
	time.Sleep(50 * time.Millisecond)
	close(gw.release)
	wg.Wait()

	if n := gw.insights.Load(); n < 1 || n > 5 {
		t.Fatalf("unexpected call count %d", n)
	}
}

func TestInsightsSurvivesCancelledFirstCaller(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{})}
	s := NewService(gw, nil)
	txs := []core.Transaction{expense("Cena", 350)}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Insights(first, txs)
		firstErr <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for gw.insights.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("gateway was never called")
		}
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	go func() {
		_, err := s.Insights(context.Background(), txs)
		second <- err
	}()
	// let the second caller join the in-flight call
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(gw.release)
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("second caller failed with %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	if n := gw.insights.Load(); n != 1 {
		t.Fatalf("expected one gateway call, got %d", n)
	}
}

func TestInsightsGatewayError(t *testing.T) {
	boom := errors.New("quota exceeded")
	s := NewService(&fakeGateway{err: boom}, nil)
	_, err := s.Insights(context.Background(), []core.Transaction{expense("Cena", 1)})
	var gerr *GatewayError
	if !errors.As(err, &gerr) || !errors.Is(err, boom) || gerr.Op != "insights" {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}

func TestSuggest(t *testing.T) {
	cases := []struct {
		label string
		kind  core.Kind
		err   error
	}{
		{"Sueldo", core.Income, nil},
		{" Alimentacion ", core.Expense, nil},
		{"Viajes", "", ErrUnknownCategory},
	}
	for _, tc := range cases {
		gw := &fakeGateway{category: tc.label}
		s := NewService(gw, nil)
		got, err := s.Suggest(context.Background(), "pago de nómina")
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("%q: expected %v, got %v", tc.label, tc.err, err)
			}
			continue
		}
		if err != nil || got.Kind != tc.kind {
			t.Fatalf("%q: unexpected suggestion %+v %v", tc.label, got, err)
		}
	}
}

func TestSuggestCaches(t *testing.T) {
	gw := &fakeGateway{category: "Alimentacion"}
	s := NewService(gw, cache.NewLRUCache[Suggestion](10, time.Hour))

	for i := 0; i < 3; i++ {
		if _, err := s.Suggest(context.Background(), "Supermercado"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Suggest(context.Background(), "  supermercado "); err != nil {
		t.Fatal(err)
	}
	if n := gw.categorizes.Load(); n != 1 {
		t.Fatalf("expected one gateway call, got %d", n)
	}
}

func TestSuggestErrors(t *testing.T) {
	s := NewService(&fakeGateway{err: errors.New("down")}, nil)
	if _, err := s.Suggest(context.Background(), "  "); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	var gerr *GatewayError
	if _, err := s.Suggest(context.Background(), "algo"); !errors.As(err, &gerr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{`{"category":"Sueldo"}`, "Sueldo", true},
		{"```json\n{\"category\": \"Creditos\"}\n```", "Creditos", true},
		{"La respuesta es {\"category\":\"Compras Casa\"} espero ayude", "Compras Casa", true},
		{"", "", false},
		{`{"category":""}`, "", false},
		{"no json", "", false},
	}
	for _, tc := range cases {
		got, err := parseCategory(tc.raw)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("%q expected %q, got %q (err=%v)", tc.raw, tc.want, got, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error, got %q", tc.raw, got)
		}
	}
}
