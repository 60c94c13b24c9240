package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/josh-kwaku/payflow/internal/repository"
)

// One container serves the whole test binary; every SetupTestDB call gets its
// own freshly migrated database inside it. Ryuk reaps the container.
var (
	pgOnce   sync.Once
	pgAdmin  *url.URL
	pgErr    error
	dbSerial atomic.Int64
)

func startPostgres() (*url.URL, error) {
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("payflow_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("connection string: %w", err)
	}
	return url.Parse(connStr)
}

// SetupTestDB returns a migrated, empty Postgres database that is dropped
// when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	pgOnce.Do(func() { pgAdmin, pgErr = startPostgres() })
	if pgErr != nil {
		t.Fatalf("postgres: %v", pgErr)
	}
	ctx := context.Background()

	admin, err := sql.Open("postgres", pgAdmin.String())
	if err != nil {
		t.Fatalf("open admin db: %v", err)
	}
	defer admin.Close()

	name := fmt.Sprintf("payflow_test_%d", dbSerial.Add(1))
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		t.Fatalf("create database %s: %v", name, err)
	}

	dsn := *pgAdmin
	dsn.Path = "/" + name
	db, err := sql.Open("postgres", dsn.String())
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}

	t.Cleanup(func() {
		db.Close()
		admin, err := sql.Open("postgres", pgAdmin.String())
		if err != nil {
			return
		}
		defer admin.Close()
		if _, err := admin.ExecContext(context.Background(), "DROP DATABASE IF EXISTS "+name); err != nil {
			t.Logf("drop database %s: %v", name, err)
		}
	})

	if err := repository.Migrate(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

// SetupSQLiteDB returns a SQLite database in a per-test temp directory.
func SetupSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := repository.NewSQLiteDB(context.Background(), filepath.Join(t.TempDir(), "payflow.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
