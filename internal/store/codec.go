package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/persistence"

	"github.com/shopspring/decimal"
)

// record is the stored document. The id is the child key, never a field.
type record struct {
	Kind        core.Kind       `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Comments    string          `json:"comments,omitempty"`
}

func encode(t core.Transaction) (json.RawMessage, error) {
	b, err := json.Marshal(record{
		Kind:        t.Kind,
		Amount:      t.Amount,
		Date:        t.OccurredAt.Format(time.RFC3339Nano),
		Category:    t.Category,
		Description: t.Description,
		Comments:    t.Comments,
	})
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return b, nil
}

func decode(id string, body json.RawMessage) (core.Transaction, error) {
	var r record
	if err := json.Unmarshal(body, &r); err != nil {
		return core.Transaction{}, err
	}
	at, err := core.ParseDate(r.Date, time.UTC)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("date %q: %w", r.Date, err)
	}
	return core.Transaction{
		ID:          id,
		Kind:        r.Kind,
		Amount:      r.Amount,
		OccurredAt:  at,
		Category:    r.Category,
		Description: r.Description,
		Comments:    r.Comments,
	}, nil
}

// DecodeSnapshot turns a snapshot into transactions ordered newest first,
// ties broken by key. Children that cannot be decoded are counted, not
// returned.
func DecodeSnapshot(snap persistence.Snapshot) ([]core.Transaction, int) {
	items := make([]core.Transaction, 0, len(snap.Children))
	skipped := 0
	for id, body := range snap.Children {
		t, err := decode(id, body)
		if err != nil {
			skipped++
			continue
		}
		items = append(items, t)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].OccurredAt.Equal(items[j].OccurredAt) {
			return items[i].OccurredAt.After(items[j].OccurredAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, skipped
}

func patchValues(root, id string, p Patch) (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)
	put := func(field string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", field, err)
		}
		values[persistence.Join(root, id, field)] = b
		return nil
	}

	if p.Kind != nil {
		if err := put("type", *p.Kind); err != nil {
			return nil, err
		}
	}
	if p.Amount != nil {
		if err := put("amount", *p.Amount); err != nil {
			return nil, err
		}
	}
	if p.OccurredAt != nil {
		if err := put("date", p.OccurredAt.Format(time.RFC3339Nano)); err != nil {
			return nil, err
		}
	}
	if p.Category != nil {
		if err := put("category", *p.Category); err != nil {
			return nil, err
		}
	}
	if p.Description != nil {
		if err := put("description", *p.Description); err != nil {
			return nil, err
		}
	}
	if p.Comments != nil {
		if *p.Comments == "" {
			values[persistence.Join(root, id, "comments")] = persistence.Null()
		} else if err := put("comments", *p.Comments); err != nil {
			return nil, err
		}
	}
	return values, nil
}
