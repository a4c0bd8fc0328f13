//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"orcamento/internal/log"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_WriteReport(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	cfg := ConfigFromEnv()
	if cfg.SpreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}
	cfg.TabBase = "Integration Test"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := New(ctx, cfg, log.Discard())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	values := [][]any{
		{"node_type", "id", "display_name", "current_committed"},
		{"TOTAL", "TOTAL", "TOTAL GERAL", time.Now().Unix()},
	}
	rng, err := client.WriteReport(ctx, time.Now().Year(), values)
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	t.Logf("wrote %s (%s)", rng, os.Getenv("GOOGLE_SPREADSHEET_ID"))
}
