package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/importer"

	"github.com/shopspring/decimal"
)

func TestParseMappings(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    importer.Mapping
		wantErr error
	}{
		{
			name:  "empty",
			pairs: nil,
			want:  importer.Mapping{},
		},
		{
			name:  "case insensitive field",
			pairs: []string{"Date=Fecha", "amount= Importe "},
			want:  importer.Mapping{importer.FieldDate: "Fecha", importer.FieldAmount: "Importe"},
		},
		{
			name:  "header with equals sign",
			pairs: []string{"description=Concepto=Detalle"},
			want:  importer.Mapping{importer.FieldDescription: "Concepto=Detalle"},
		},
		{
			name:    "unknown field",
			pairs:   []string{"iban=Cuenta"},
			wantErr: importer.ErrUnknownField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMappings(tt.pairs)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}

	if _, err := parseMappings([]string{"date"}); err == nil {
		t.Error("expected error for a pair without '='")
	}
}

func TestMappingFlag(t *testing.T) {
	var m mappingFlag
	_ = m.Set("date=Fecha")
	_ = m.Set("type=Tipo")
	if m.String() != "date=Fecha,type=Tipo" {
		t.Errorf("String() = %q", m.String())
	}
}

func sample() []core.Transaction {
	at := func(d int) time.Time { return time.Date(2024, 7, d, 12, 0, 0, 0, time.UTC) }
	return []core.Transaction{
		{ID: "a", Kind: core.Income, Amount: decimal.NewFromInt(2000), OccurredAt: at(1), Category: "Sueldo", Description: "Nómina"},
		{ID: "b", Kind: core.Expense, Amount: decimal.RequireFromString("45.5"), OccurredAt: at(3), Category: "Alimentacion", Description: "Mercado"},
		{ID: "c", Kind: core.Expense, Amount: decimal.NewFromInt(600), OccurredAt: time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC), Category: "Vivienda", Description: "Alquiler"},
	}
}

func TestSelectMonth(t *testing.T) {
	all, err := selectMonth(sample(), "", time.UTC)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected every transaction, got %d %v", len(all), err)
	}
	july, err := selectMonth(sample(), "2024-07", time.UTC)
	if err != nil || len(july) != 2 {
		t.Fatalf("expected two July transactions, got %d %v", len(july), err)
	}
	if _, err := selectMonth(sample(), "julio", time.UTC); err == nil {
		t.Fatal("expected error for malformed month")
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSummary(&buf, sample(), "2024-07"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"julio 2024", "2000.00", "645.50", "1354.50", "Vivienda", "Alimentacion"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Vivienda") > strings.Index(out, "Alimentacion") {
		t.Errorf("categories should be ordered by total:\n%s", out)
	}
}
