package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"finanzas/internal/log"
	gsheet "finanzas/internal/sheets/google"
)

// runSheetsAuth obtains an OAuth token for the Sheets mirror through the
// browser consent flow and saves it for GOOGLE_OAUTH_TOKEN_FILE.
func runSheetsAuth(ctx context.Context, logger *log.Logger, args []string) error {
	fs := newFlagSet("sheets-auth")
	port := fs.String("port", envOr("OAUTH_REDIRECT_PORT", "8085"), "local port for the redirect")
	out := fs.String("out", envOr("GOOGLE_OAUTH_TOKEN_FILE", "token.json"), "where to save the token")
	timeout := fs.Duration("timeout", 5*time.Minute, "how long to wait for consent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := gsheet.OAuthConfigFromEnv()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	tok, err := gsheet.Authorize(ctx, cfg, *port, func(url string) {
		fmt.Fprintf(os.Stdout, "Abre esta URL para autorizar el acceso:\n%s\n", url)
	})
	if err != nil {
		return err
	}
	if err := gsheet.SaveToken(*out, tok); err != nil {
		return err
	}
	logger.Info("OAuth token saved", "path", *out)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
