package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(Embedded(), "*_"+suffix+".sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := fs.ReadFile(Embedded(), matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks ...string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCommissionsMigrationKeepsSourceIdempotency(t *testing.T) {
	assertContains(t, readMigration(t, "create_commissions"),
		"CREATE TABLE IF NOT EXISTS commissions",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_commissions_source",
		"WHERE status <> 'cancelled'",
		"CHECK (amount > 0)",
		"DROP TABLE IF EXISTS commissions",
	)
}

func TestBalanceMigrationGuardsNegativeBuckets(t *testing.T) {
	assertContains(t, readMigration(t, "create_affiliate_balances"),
		"CHECK (pending_balance >= 0)",
		"CHECK (validated_balance >= 0)",
		"CHECK (available_balance >= 0)",
		"CHECK (total_withdrawn >= 0)",
		"CHECK (total_earned >= 0)",
	)
}

func TestWithdrawalsMigration(t *testing.T) {
	assertContains(t, readMigration(t, "create_withdrawals"),
		"commission_ids uuid[] NOT NULL",
		"CREATE TABLE IF NOT EXISTS withdrawal_status_history",
		"fk_affiliate_balances_pending_withdrawal",
		"CHECK (fee >= 0 AND fee <= amount)",
	)
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	if err := validateFS(Embedded(), "."); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected filename error")
	}

	dir = t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_no_down.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "goose Down") {
		t.Fatalf("expected missing down marker error, got %v", err)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Payout Batches!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_payout_batches.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}
