package testutil

import (
	"database/sql"
	"fmt"
	"io"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rhythm-tracker/internal/database"
)

var dbCounter atomic.Int64

// NewDB opens a fresh in-memory sqlite database with all migrations
// applied. Each call gets its own database; the shared-cache name
// keeps every pooled connection pointed at the same store.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbCounter.Add(1))

	db, err := database.Open(dsn)
	require.NoError(t, err)

	// In-memory sqlite drops the database when the last connection
	// closes, so pin a single connection for the test's lifetime. One
	// connection also serializes concurrent test writers instead of
	// surfacing sqlite table-lock errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	require.NoError(t, database.Migrate(db, Logger()))

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// Logger returns a discard logger for tests.
func Logger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
