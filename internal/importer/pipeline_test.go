package importer

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/spreadsheet"

	"github.com/shopspring/decimal"
)

type fakeTarget struct {
	calls int
	got   []core.Transaction
	err   error
}

func (f *fakeTarget) BulkCreate(_ context.Context, txs []core.Transaction) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.got = append(f.got, txs...)
	ids := make([]string, len(txs))
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	return ids, nil
}

var identity = Mapping{
	FieldDate:        "date",
	FieldDescription: "description",
	FieldAmount:      "amount",
	FieldType:        "type",
	FieldCategory:    "category",
}

func scenarioTable() *spreadsheet.Table {
	return &spreadsheet.Table{
		Headers: []string{"date", "description", "amount", "type", "category"},
		Rows: [][]string{
			{"2024-07-01", "Cena", "350", "Gasto", "Alimentacion"},
			{"", "", "abc", "", ""},
		},
	}
}

func TestTransformScenario(t *testing.T) {
	accepted, skipped := Transform(scenarioTable(), identity, Options{Location: time.UTC})
	if len(accepted) != 1 || skipped != 1 {
		t.Fatalf("expected 1 accepted and 1 skipped, got %d and %d", len(accepted), skipped)
	}
	got := accepted[0]
	if got.Kind != core.Expense || !got.Amount.Equal(decimal.NewFromInt(350)) ||
		got.Category != "Alimentacion" || got.Description != "Cena" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestTransformRowRules(t *testing.T) {
	headers := []string{"date", "description", "amount", "type", "category"}
	cases := []struct {
		name   string
		row    []string
		raw    bool
		policy CategoryPolicy
		ok     bool
		kind   core.Kind
	}{
		{"ingreso", []string{"2024-07-01", "Pago", "1000", "Ingreso", "Sueldo"}, false, StrictCategories, true, core.Income},
		{"income english", []string{"2024-07-01", "Pago", "1000", "INCOME", "Sueldo"}, false, StrictCategories, true, core.Income},
		{"unknown type is expense", []string{"2024-07-01", "Pan", "10", "whatever", "Alimentacion"}, false, StrictCategories, true, core.Expense},
		{"bad date", []string{"ayer", "Pan", "10", "Gasto", "Alimentacion"}, false, StrictCategories, false, ""},
		{"blank description", []string{"2024-07-01", "  ", "10", "Gasto", "Alimentacion"}, false, StrictCategories, false, ""},
		{"zero amount", []string{"2024-07-01", "Pan", "0", "Gasto", "Alimentacion"}, false, StrictCategories, false, ""},
		{"negative amount", []string{"2024-07-01", "Pan", "-4", "Gasto", "Alimentacion"}, false, StrictCategories, false, ""},
		{"unknown category", []string{"2024-07-01", "Pan", "10", "Gasto", "Viajes"}, false, LenientCategories, false, ""},
		{"strict rejects other kind", []string{"2024-07-01", "Pan", "10", "Gasto", "Sueldo"}, false, StrictCategories, false, ""},
		{"lenient accepts other kind", []string{"2024-07-01", "Pan", "10", "Gasto", "Sueldo"}, false, LenientCategories, true, core.Expense},
		{"short row", []string{"2024-07-01", "Pan", "10"}, false, LenientCategories, false, ""},
		{"serial date in workbook", []string{"45474", "Pan", "10", "Gasto", "Alimentacion"}, true, StrictCategories, true, core.Expense},
		{"number in csv date", []string{"2024", "Pan", "10", "Gasto", "Alimentacion"}, false, StrictCategories, false, ""},
		{"small number in csv date", []string{"7", "Pan", "10", "Gasto", "Alimentacion"}, false, StrictCategories, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			table := &spreadsheet.Table{Headers: headers, Rows: [][]string{tc.row}, RawCells: tc.raw}
			accepted, skipped := Transform(table, identity, Options{Policy: tc.policy, Location: time.UTC})
			if tc.ok {
				if len(accepted) != 1 || accepted[0].Kind != tc.kind {
					t.Fatalf("expected accepted %s row, got %+v (skipped %d)", tc.kind, accepted, skipped)
				}
				return
			}
			if len(accepted) != 0 || skipped != 1 {
				t.Fatalf("expected row to be skipped, got %+v", accepted)
			}
		})
	}
}

func TestPipelineImport(t *testing.T) {
	target := &fakeTarget{}
	p := New(target, Options{Location: time.UTC})
	if p.State() != StateAwaitingFile {
		t.Fatalf("expected initial state awaiting_file, got %s", p.State())
	}
	if err := p.LoadTable(scenarioTable()); err != nil {
		t.Fatal(err)
	}
	if p.State() != StateMapping {
		t.Fatalf("expected mapping state, got %s", p.State())
	}

	// English headers are suggested automatically
	if missing := p.Missing(); len(missing) != 0 {
		t.Fatalf("expected complete suggestion, missing %v", missing)
	}

	res, err := p.Import(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != 1 || res.Skipped != 1 || target.calls != 1 {
		t.Fatalf("unexpected result %+v after %d calls", res, target.calls)
	}
	if p.State() != StateAwaitingFile || p.Headers() != nil {
		t.Fatalf("transient state must be discarded after success")
	}
}

func TestPipelineMissingMapping(t *testing.T) {
	target := &fakeTarget{}
	p := New(target, Options{})
	_ = p.LoadTable(&spreadsheet.Table{Headers: []string{"A", "B", "C", "D", "E"}, Rows: [][]string{{"1"}}})

	if err := p.Map(FieldDate, "A"); err != nil {
		t.Fatal(err)
	}
	if err := p.Map(FieldAmount, "Z"); !errors.Is(err, ErrUnknownHeader) {
		t.Fatalf("expected ErrUnknownHeader, got %v", err)
	}

	_, err := p.Import(context.Background())
	var merr *MissingMappingError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MissingMappingError, got %v", err)
	}
	want := []Field{FieldDescription, FieldAmount, FieldType, FieldCategory}
	if !slices.Equal(merr.Fields, want) {
		t.Fatalf("expected %v, got %v", want, merr.Fields)
	}
	if target.calls != 0 || p.State() != StateMapping {
		t.Fatalf("missing mapping must not write or reset")
	}
}

func TestPipelineZeroAccepted(t *testing.T) {
	target := &fakeTarget{}
	p := New(target, Options{})
	_ = p.LoadTable(&spreadsheet.Table{
		Headers: scenarioTable().Headers,
		Rows:    [][]string{{"", "", "abc", "", ""}},
	})
	res, err := p.Import(context.Background())
	if !errors.Is(err, ErrImportFailed) {
		t.Fatalf("expected ErrImportFailed, got %v", err)
	}
	if res.Skipped != 1 || target.calls != 0 {
		t.Fatalf("no bulk create may be issued, got %d calls", target.calls)
	}
}

func TestPipelinePersistenceFailureKeepsState(t *testing.T) {
	boom := errors.New("unavailable")
	target := &fakeTarget{err: boom}
	p := New(target, Options{Location: time.UTC})
	_ = p.LoadTable(scenarioTable())

	if _, err := p.Import(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped persistence error, got %v", err)
	}
	if p.State() != StateMapping {
		t.Fatalf("state must be kept so the import can be retried")
	}
	target.err = nil
	if res, err := p.Import(context.Background()); err != nil || res.Accepted != 1 {
		t.Fatalf("retry failed: %+v %v", res, err)
	}
}

func TestPipelineCancel(t *testing.T) {
	target := &fakeTarget{}
	p := New(target, Options{})
	_ = p.LoadTable(scenarioTable())
	p.Cancel()

	if p.State() != StateAwaitingFile {
		t.Fatalf("expected awaiting_file after cancel")
	}
	if _, err := p.Import(context.Background()); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
	if err := p.Map(FieldDate, "date"); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
	if target.calls != 0 {
		t.Fatalf("cancel must not write")
	}
}

func TestPipelineLoadErrors(t *testing.T) {
	p := New(&fakeTarget{}, Options{})
	if err := p.Load(strings.NewReader("")); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
	if err := p.Load(strings.NewReader("PK\x03\x04broken")); !errors.Is(err, ErrUnreadableFile) {
		t.Fatalf("expected ErrUnreadableFile, got %v", err)
	}
	if p.State() != StateAwaitingFile {
		t.Fatalf("failed load must stay in awaiting_file")
	}
}

func TestPreview(t *testing.T) {
	p := New(&fakeTarget{}, Options{})
	_ = p.LoadTable(scenarioTable())
	rows := p.Preview(5)
	if len(rows) != 2 || rows[0]["description"] != "Cena" {
		t.Fatalf("unexpected preview %v", rows)
	}
	if len(p.Preview(1)) != 1 || p.RowCount() != 2 {
		t.Fatalf("preview should be capped")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	original := []core.Transaction{
		{Kind: core.Expense, Amount: decimal.RequireFromString("350.75"), OccurredAt: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), Category: "Alimentacion", Description: "Cena"},
		{Kind: core.Income, Amount: decimal.NewFromInt(1000), OccurredAt: time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC), Category: "Sueldo", Description: "Sueldo", Comments: "julio"},
		{Kind: core.Expense, Amount: decimal.RequireFromString("0.5"), OccurredAt: time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC), Category: "Otros Gastos", Description: "Chicle"},
	}
	var buf bytes.Buffer
	if err := spreadsheet.Export(&buf, original, time.UTC); err != nil {
		t.Fatal(err)
	}

	target := &fakeTarget{}
	p := New(target, Options{Location: time.UTC})
	if err := p.Load(&buf); err != nil {
		t.Fatal(err)
	}
	if missing := p.Missing(); len(missing) != 0 {
		t.Fatalf("exported headers should map onto themselves, missing %v", missing)
	}
	if m := p.Mapping(); m[FieldComments] != spreadsheet.HeaderComments {
		t.Fatalf("comments should be suggested too, got %v", m)
	}
	res, err := p.Import(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != len(original) || res.Skipped != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	for i, want := range original {
		got := target.got[i]
		if got.Kind != want.Kind || !got.Amount.Equal(want.Amount) || !got.OccurredAt.Equal(want.OccurredAt) ||
			got.Category != want.Category || got.Description != want.Description || got.Comments != want.Comments {
			t.Fatalf("record %d changed in round trip:\n got %+v\nwant %+v", i, got, want)
		}
	}
}

func TestParseField(t *testing.T) {
	if f, err := ParseField(" Amount "); err != nil || f != FieldAmount {
		t.Fatalf("unexpected %v %v", f, err)
	}
	if _, err := ParseField("monto"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if FieldComments.Required() || !FieldDate.Required() {
		t.Fatalf("unexpected required flags")
	}
}
