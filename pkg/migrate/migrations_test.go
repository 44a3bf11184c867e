package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prepmood/prepmood-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestFulfillmentMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_fulfillment_core.sql")

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_paid_events_order_payment ON paid_events (order_id, payment_key)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_order_item_units_item_seq ON order_item_units (order_item_id, unit_seq)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_warranties_serial_token_id ON warranties (serial_token_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_refund_event_id ON invoices (refund_event_id)",
		"CHECK (status IN ('issued_unassigned','issued','active','suspended','revoked'))",
		"CHECK (status <> 'reserved' OR reserved_by_order_id IS NOT NULL)",
		"DROP TABLE IF EXISTS warranties",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationIndexesUnpublishedRows(t *testing.T) {
	content := readMigration(t, "*_create_outbox.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"WHERE published_at IS NULL",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Shipment Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_shipment_notes.sql") {
		t.Fatalf("unexpected file name %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
