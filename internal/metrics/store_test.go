package metrics

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestWatchActivePayments(t *testing.T) {
	m := New()
	active := 3
	m.WatchActivePayments(func(context.Context) (int, error) { return active, nil })

	assert.Contains(t, scrape(t, m), "active_payments 3")

	active = 1
	assert.Contains(t, scrape(t, m), "active_payments 1")
}

func TestWatchActivePayments_CountFailure(t *testing.T) {
	m := New()
	m.WatchActivePayments(func(context.Context) (int, error) { return 0, errors.New("db gone") })

	assert.Contains(t, scrape(t, m), "active_payments NaN")
}

func TestWatchSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE payments (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE notifications (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO payments (id) VALUES ('a'), ('b')`)
	require.NoError(t, err)

	m := New()
	m.WatchSQLite(db, path)

	body := scrape(t, m)
	assert.Contains(t, body, `sqlite_table_rows{table="payments"} 2`)
	assert.Contains(t, body, `sqlite_table_rows{table="notifications"} 0`)
	assert.Contains(t, body, "sqlite_db_size_bytes ")
	assert.NotContains(t, body, "sqlite_db_size_bytes 0\n")
}

func TestWatchNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.WatchActivePayments(func(context.Context) (int, error) { return 0, nil })
		m.WatchSQLite(nil, "")
	})
}
