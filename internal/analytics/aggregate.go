// Package analytics computes the dashboard figures from a collection of
// transactions. Every function is pure and works on a copy of its input.
package analytics

import (
	"sort"
	"time"

	"finanzas/internal/core"

	"github.com/shopspring/decimal"
)

type Summary struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

// Add returns the componentwise sum of two summaries.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Income:   s.Income.Add(o.Income),
		Expenses: s.Expenses.Add(o.Expenses),
		Net:      s.Net.Add(o.Net),
	}
}

type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

type DailyTotal struct {
	Day   string          `json:"day"`
	Date  time.Time       `json:"date"`
	Total decimal.Decimal `json:"total"`
}

// Totals sums income and expenses. An empty collection yields zeros.
func Totals(txs []core.Transaction) Summary {
	income, expenses := decimal.Zero, decimal.Zero
	for _, t := range txs {
		switch t.Kind {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expenses = expenses.Add(t.Amount)
		}
	}
	return Summary{Income: income, Expenses: expenses, Net: income.Sub(expenses)}
}

// ByCategory sums expenses per category, largest first. Categories whose
// total is not positive are left out. Equal totals are ordered by name.
func ByCategory(txs []core.Transaction) []CategoryTotal {
	sums := make(map[string]decimal.Decimal)
	for _, t := range txs {
		if t.Kind != core.Expense {
			continue
		}
		sums[t.Category] = sums[t.Category].Add(t.Amount)
	}

	out := make([]CategoryTotal, 0, len(sums))
	for cat, total := range sums {
		if !total.IsPositive() {
			continue
		}
		out = append(out, CategoryTotal{Category: cat, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// ByDay sums expenses per local calendar day, oldest first.
func ByDay(txs []core.Transaction) []DailyTotal {
	return ByDayIn(txs, time.Local)
}

// ByDayIn is ByDay with day boundaries taken in loc.
func ByDayIn(txs []core.Transaction, loc *time.Location) []DailyTotal {
	if loc == nil {
		loc = time.Local
	}
	sums := make(map[string]decimal.Decimal)
	starts := make(map[string]time.Time)
	for _, t := range txs {
		if t.Kind != core.Expense {
			continue
		}
		local := t.OccurredAt.In(loc)
		day := local.Format(time.DateOnly)
		sums[day] = sums[day].Add(t.Amount)
		if _, ok := starts[day]; !ok {
			starts[day] = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		}
	}

	out := make([]DailyTotal, 0, len(sums))
	for day, total := range sums {
		out = append(out, DailyTotal{Day: day, Date: starts[day], Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
