package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"finanzas/internal/analytics"
	"finanzas/internal/config"
	"finanzas/internal/core"
	"finanzas/internal/importer"
	"finanzas/internal/log"
	gsheet "finanzas/internal/sheets/google"
	"finanzas/internal/spreadsheet"
)

// mappingFlag collects repeated -map field=Header values.
type mappingFlag []string

func (m *mappingFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *mappingFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// parseMappings turns field=Header pairs into a mapping. Headers may contain
// '=' themselves; only the first one splits.
func parseMappings(pairs []string) (importer.Mapping, error) {
	m := importer.Mapping{}
	for _, pair := range pairs {
		name, header, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mapping %q: expected field=Header", pair)
		}
		field, err := importer.ParseField(name)
		if err != nil {
			return nil, err
		}
		m[field] = strings.TrimSpace(header)
	}
	return m, nil
}

func runImport(ctx context.Context, cfg *config.Config, logger *log.Logger, args []string) error {
	fs := newFlagSet("import")
	file := fs.String("file", "", "path to an .xlsx or .csv file")
	fromSheet := fs.Bool("sheet", false, "read the mirror worksheet instead of a file")
	lenient := fs.Bool("lenient", false, "accept any known category regardless of type")
	var maps mappingFlag
	fs.Var(&maps, "map", "field=Header assignment, repeatable (overrides the suggestion)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*file == "") == !*fromSheet {
		return errors.New("exactly one of -file or -sheet is required")
	}

	overrides, err := parseMappings(maps)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := importer.Options{Policy: importer.StrictCategories, Location: loc}
	if *lenient {
		opts.Policy = importer.LenientCategories
	}
	pipeline := importer.New(st, opts)

	if *fromSheet {
		sheets, err := gsheet.NewFromEnv(ctx, loc)
		if err != nil {
			return err
		}
		table, err := sheets.ReadTable(ctx)
		if err != nil {
			return fmt.Errorf("read sheet %s: %w", sheets.SheetName(), err)
		}
		if err := pipeline.LoadTable(table); err != nil {
			return err
		}
	} else {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		err = pipeline.Load(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("load %s: %w", *file, err)
		}
	}

	for field, header := range overrides {
		if err := pipeline.Map(field, header); err != nil {
			return fmt.Errorf("map %s to %q: %w", field, header, err)
		}
	}

	logger.Info("File loaded",
		"rows", pipeline.RowCount(),
		"headers", strings.Join(pipeline.Headers(), ", "),
		"policy", opts.Policy.String())

	result, err := pipeline.Import(ctx)
	if err != nil {
		var missing *importer.MissingMappingError
		if errors.As(err, &missing) {
			return fmt.Errorf("%w (available headers: %s)", err, strings.Join(pipeline.Headers(), ", "))
		}
		return err
	}

	fmt.Fprintf(os.Stdout, "imported %d transactions, skipped %d rows\n", result.Accepted, result.Skipped)
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, logger *log.Logger, args []string) error {
	fs := newFlagSet("export")
	out := fs.String("out", spreadsheet.FileName, "destination .xlsx path")
	monthArg := fs.String("month", "", "only export YYYY-MM")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	txs, err := selectMonth(st.Snapshot(), *monthArg, loc)
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := spreadsheet.Export(f, txs, loc); err != nil {
		f.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Info("Export written", "path", *out, "transactions", len(txs))
	return nil
}

func runSummary(ctx context.Context, cfg *config.Config, logger *log.Logger, args []string) error {
	fs := newFlagSet("summary")
	monthArg := fs.String("month", "", "summarize YYYY-MM instead of every transaction")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	txs, err := selectMonth(st.Snapshot(), *monthArg, loc)
	if err != nil {
		return err
	}
	return writeSummary(os.Stdout, txs, *monthArg)
}

// selectMonth keeps the transactions of month, or all of them when month is
// empty.
func selectMonth(txs []core.Transaction, month string, loc *time.Location) ([]core.Transaction, error) {
	if month == "" {
		return txs, nil
	}
	m, err := analytics.ParseMonth(month)
	if err != nil {
		return nil, err
	}
	return analytics.InMonth(txs, m, loc), nil
}

func writeSummary(w io.Writer, txs []core.Transaction, month string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	period := "todas"
	if month != "" {
		if m, err := analytics.ParseMonth(month); err == nil {
			period = m.Label()
		}
	}
	totals := analytics.Totals(txs)
	fmt.Fprintf(tw, "Periodo\t%s\t\n", period)
	fmt.Fprintf(tw, "Transacciones\t%d\t\n", len(txs))
	fmt.Fprintf(tw, "Ingresos\t%s\t\n", core.FormatAmount(totals.Income))
	fmt.Fprintf(tw, "Gastos\t%s\t\n", core.FormatAmount(totals.Expenses))
	fmt.Fprintf(tw, "Balance\t%s\t\n", core.FormatAmount(totals.Net))

	if cats := analytics.ByCategory(txs); len(cats) > 0 {
		fmt.Fprintf(tw, "\t\t\n")
		for _, c := range cats {
			fmt.Fprintf(tw, "%s\t%s\t\n", c.Category, core.FormatAmount(c.Total))
		}
	}
	return tw.Flush()
}
