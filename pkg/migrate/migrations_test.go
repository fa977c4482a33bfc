package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/campusmart/campusmart-backend/pkg/migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.Validate(os.DirFS("migrations")))
	require.NoError(t, migrate.Validate(migrate.Embedded()))
}

func TestEmbeddedMigrationsMatchDir(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	require.NoError(t, err)
	assert.Len(t, embedded, len(onDisk))
}

func TestLedgerMigrationGuardsReferences(t *testing.T) {
	content := readMigration(t, "create_transactions")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS transactions",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_reference ON transactions (reference)",
		"CHECK (amount > 0)",
		"DROP TABLE IF EXISTS transactions",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestOrdersMigrationEnforcesIdempotentMaterialization(t *testing.T) {
	content := readMigration(t, "create_orders")
	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_payment_seller ON orders (payment_id, seller_id)",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"'PENDING', 'RIDER_ASSIGNED', 'PICKED_UP', 'ON_THE_WAY', 'DELIVERED', 'COMPLETED', 'CANCELLED'",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestDisputesMigrationIsOnePerOrder(t *testing.T) {
	content := readMigration(t, "create_disputes")
	assert.Contains(t, content, "CREATE UNIQUE INDEX IF NOT EXISTS idx_disputes_order ON disputes (order_id)")
	assert.Contains(t, content, "CHECK (pickup_stage IN ('none', 'awaiting_pickup', 'item_received'))")
	assert.True(t, strings.Index(content, "DROP TABLE IF EXISTS penalties") < strings.Index(content, "DROP TABLE IF EXISTS disputes;"))
}
