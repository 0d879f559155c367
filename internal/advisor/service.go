package advisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finanzas/internal/cache"
	"finanzas/internal/core"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Suggestion is a category confirmed against the known enumerations, with
// the kind that category belongs to.
type Suggestion struct {
	Kind     core.Kind `json:"type"`
	Category string    `json:"category"`
}

// Service is what the rest of the application calls. It filters the input,
// collapses identical concurrent requests and caches suggestions.
type Service struct {
	gateway     Gateway
	suggestions cache.Cache[Suggestion]
	group       singleflight.Group
}

// gatewayTimeout bounds a gateway call once it no longer follows the
// context of the caller that started it.
const gatewayTimeout = 2 * time.Minute

// NewService wires gateway. suggestions may be nil to disable caching.
func NewService(gateway Gateway, suggestions cache.Cache[Suggestion]) *Service {
	return &Service{gateway: gateway, suggestions: suggestions}
}

type insightRecord struct {
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

// Insights asks for commentary on the expenses in txs. Without expenses it
// returns NoExpensesMessage and the gateway is not called.
func (s *Service) Insights(ctx context.Context, txs []core.Transaction) (string, error) {
	records := make([]insightRecord, 0, len(txs))
	for _, t := range txs {
		if t.Kind != core.Expense {
			continue
		}
		records = append(records, insightRecord{
			Amount:      t.Amount,
			Date:        t.OccurredAt,
			Category:    t.Category,
			Description: t.Description,
		})
	}
	if len(records) == 0 {
		return NoExpensesMessage, nil
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode expenses: %w", err)
	}
	sum := sha256.Sum256(payload)
	key := "insights:" + hex.EncodeToString(sum[:])

	text, shared, err := s.do(ctx, key, func(ctx context.Context) (string, error) {
		return s.gateway.SpendingInsights(ctx, string(payload))
	})
	if err != nil {
		slog.WarnContext(ctx, "Spending insights failed", "expenses", len(records), "error", err)
		return "", &GatewayError{Op: "insights", Err: err}
	}
	slog.InfoContext(ctx, "Spending insights generated", "expenses", len(records), "shared", shared)
	return text, nil
}

// do runs fn once per key among concurrent callers. The call outlives any
// single caller: each caller stops waiting when its own ctx is done, while
// the others keep the shared result.
func (s *Service) do(ctx context.Context, key string, fn func(context.Context) (string, error)) (string, bool, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gatewayTimeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Shared, res.Err
		}
		return res.Val.(string), res.Shared, nil
	}
}

// Suggest asks for a category and cross-checks it against both enumerations.
// A label outside them yields ErrUnknownCategory.
func (s *Service) Suggest(ctx context.Context, description string) (Suggestion, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Suggestion{}, ErrEmptyDescription
	}
	key := strings.ToLower(description)
	if s.suggestions != nil {
		if sug, ok := s.suggestions.Get(key); ok {
			return sug, nil
		}
	}

	v, _, err := s.do(ctx, "categorize:"+key, func(ctx context.Context) (string, error) {
		return s.gateway.Categorize(ctx, description)
	})
	if err != nil {
		slog.WarnContext(ctx, "Categorization failed", "error", err)
		return Suggestion{}, &GatewayError{Op: "categorize", Err: err}
	}

	label := strings.TrimSpace(v)
	kind, ok := core.KindOfCategory(label)
	if !ok {
		slog.InfoContext(ctx, "Model suggested an unknown category", "category", label)
		return Suggestion{}, fmt.Errorf("%w: %q", ErrUnknownCategory, label)
	}

	sug := Suggestion{Kind: kind, Category: label}
	if s.suggestions != nil {
		s.suggestions.Set(key, sug)
	}
	return sug, nil
}
