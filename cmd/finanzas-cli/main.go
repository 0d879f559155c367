// Command finanzas-cli imports, exports and summarizes the transaction
// collection without running the server, and authorizes the Sheets mirror.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"finanzas/internal/backend"
	"finanzas/internal/cli"
	"finanzas/internal/config"
	"finanzas/internal/log"
	"finanzas/internal/store"
)

const usage = `usage: finanzas-cli <command> [flags]

commands:
  import   load an .xlsx or .csv file (or the mirror sheet) into the collection
  export   write the collection to an .xlsx workbook
  summary  print totals and expenses by category
  sheets-auth
           authorize Google Sheets access with an OAuth client and save the token
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	switch os.Args[1] {
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	}

	cfg, logger, err := cli.Bootstrap(log.ComponentCLI, nil)
	if err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	var cmdErr error
	switch os.Args[1] {
	case "import":
		cmdErr = runImport(ctx, cfg, logger, os.Args[2:])
	case "export":
		cmdErr = runExport(ctx, cfg, logger, os.Args[2:])
	case "summary":
		cmdErr = runSummary(ctx, cfg, logger, os.Args[2:])
	case "sheets-auth":
		cmdErr = runSheetsAuth(ctx, logger, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if errors.Is(cmdErr, flag.ErrHelp) {
		return
	}
	if cmdErr != nil {
		cancel()
		cli.Fatal(logger, "Command failed", cmdErr)
	}
}

// openStore opens the configured backend and waits for the first snapshot.
// The returned function closes both.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*store.Store, func(), error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	if backendCfg.Type == backend.MemoryBackend {
		logger.Warn("Memory backend selected; changes will not outlive this command")
	}

	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, nil, err
	}

	st := store.New(res.Backend, cfg.CollectionRoot)
	closeAll := func() {
		st.Close()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}
	if err := st.Open(ctx); err != nil {
		closeAll()
		return nil, nil, err
	}
	if err := st.WaitReady(ctx); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("wait for collection: %w", err)
	}
	return st, closeAll, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}
