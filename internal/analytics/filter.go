package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"finanzas/internal/core"
)

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(t time.Time, loc *time.Location) Month {
	if loc == nil {
		loc = time.Local
	}
	l := t.In(loc)
	return Month{Year: l.Year(), Month: l.Month()}
}

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// Label renders the month for display, e.g. "julio 2024".
func (m Month) Label() string {
	if m.Month < time.January || m.Month > time.December {
		return m.String()
	}
	return fmt.Sprintf("%s %d", monthNames[m.Month-1], m.Year)
}

func (m Month) before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// InMonth keeps the transactions that occurred in m, local time.
func InMonth(txs []core.Transaction, m Month, loc *time.Location) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if MonthOf(t.OccurredAt, loc) == m {
			out = append(out, t)
		}
	}
	return out
}

// AvailableMonths lists the months that have transactions plus the month of
// now, newest first.
func AvailableMonths(txs []core.Transaction, now time.Time, loc *time.Location) []Month {
	seen := map[Month]bool{MonthOf(now, loc): true}
	for _, t := range txs {
		seen[MonthOf(t.OccurredAt, loc)] = true
	}
	out := make([]Month, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].before(out[i]) })
	return out
}

// Filter narrows a collection the way the transactions list does. Zero
// fields match everything.
type Filter struct {
	Kind     core.Kind
	Category string
	Search   string
	Month    Month
	Location *time.Location
}

func (f Filter) Match(t core.Transaction) bool {
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" &&
		!strings.Contains(strings.ToLower(t.Description), strings.ToLower(q)) {
		return false
	}
	if !f.Month.IsZero() && MonthOf(t.OccurredAt, f.Location) != f.Month {
		return false
	}
	return true
}

// Apply returns the matching transactions in their original order.
func (f Filter) Apply(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

type SortKey string

const (
	SortByDate   SortKey = "date"
	SortByAmount SortKey = "amount"
)

// ParseSortKey accepts "date" or "amount"; anything else sorts by date.
func ParseSortKey(s string) SortKey {
	if SortKey(strings.ToLower(strings.TrimSpace(s))) == SortByAmount {
		return SortByAmount
	}
	return SortByDate
}

// SortBy returns a sorted copy. Ties keep their input order.
func SortBy(txs []core.Transaction, key SortKey, desc bool) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	copy(out, txs)
	compare := func(a, b core.Transaction) int {
		if key == SortByAmount {
			return a.Amount.Cmp(b.Amount)
		}
		return a.OccurredAt.Compare(b.OccurredAt)
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}
