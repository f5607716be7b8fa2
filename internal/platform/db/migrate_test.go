package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	src := `-- header
CREATE TABLE a (id INT);

-- comment
CREATE TABLE b (id INT);
`
	got := SplitStatements(src)
	require.Len(t, got, 2)
	assert.Equal(t, "CREATE TABLE a (id INT)", got[0])
	assert.Equal(t, "CREATE TABLE b (id INT)", got[1])
}

func TestEmbeddedSchema_HasCoreTables(t *testing.T) {
	buf, err := migrationFS.ReadFile("migrations/0001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{
		"loan_applications", "loan_items", "loan_transactions", "assets",
		"helpdesk_categories", "helpdesk_tickets", "cross_module_integrations",
		"queue_jobs", "exports",
	} {
		assert.Contains(t, string(buf), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	assert.Contains(t, string(buf), "UNIQUE KEY uq_cmi_idempotency (idempotency_key)")
}

func TestMigrate_SkipsAppliedVersions(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM schema_migrations WHERE version = \\?").
		WithArgs("0001_init").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	applied, err := Migrate(context.Background(), sqlDB)
	require.NoError(t, err)
	assert.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}
