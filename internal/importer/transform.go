package importer

import (
	"strings"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/spreadsheet"
)

// CategoryPolicy decides which categories an imported row may carry.
type CategoryPolicy int

const (
	// StrictCategories requires the category to belong to the row's type.
	StrictCategories CategoryPolicy = iota
	// LenientCategories accepts any known category whatever the row's type.
	LenientCategories
)

func (p CategoryPolicy) String() string {
	if p == LenientCategories {
		return "lenient"
	}
	return "strict"
}

func (p CategoryPolicy) allows(kind core.Kind, category string) bool {
	if p == LenientCategories {
		return core.IsCategory(category)
	}
	return core.CategoryAllowed(kind, category)
}

type Options struct {
	Policy CategoryPolicy
	// Location interprets dates without a zone. Nil means time.Local.
	Location *time.Location
}

// Transform converts every data row with the mapping. Rows that fail a check
// are counted in skipped and never abort the batch. It has no side effects.
func Transform(t *spreadsheet.Table, m Mapping, opts Options) (accepted []core.Transaction, skipped int) {
	if t == nil {
		return nil, 0
	}
	for i := range t.Rows {
		tx, ok := transformRow(t, i, m, opts)
		if !ok {
			skipped++
			continue
		}
		accepted = append(accepted, tx)
	}
	return accepted, skipped
}

func transformRow(t *spreadsheet.Table, i int, m Mapping, opts Options) (core.Transaction, bool) {
	cell := func(f Field) string {
		h, ok := m[f]
		if !ok || h == "" {
			return ""
		}
		return strings.TrimSpace(t.Cell(i, h))
	}

	parseDate := core.ParseDate
	if t.RawCells {
		parseDate = core.ParseCellDate
	}
	at, err := parseDate(cell(FieldDate), opts.Location)
	if err != nil {
		return core.Transaction{}, false
	}
	desc := cell(FieldDescription)
	if desc == "" {
		return core.Transaction{}, false
	}
	amount, err := core.ParseAmount(cell(FieldAmount))
	if err != nil || !amount.IsPositive() {
		return core.Transaction{}, false
	}
	kind := core.NormalizeKind(cell(FieldType))
	category := cell(FieldCategory)
	if !opts.Policy.allows(kind, category) {
		return core.Transaction{}, false
	}

	return core.Transaction{
		Kind:        kind,
		Amount:      amount,
		OccurredAt:  at,
		Category:    category,
		Description: desc,
		Comments:    cell(FieldComments),
	}, true
}
