package metrics

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const scrapeTimeout = 2 * time.Second

// WatchActivePayments exports active_payments, read from count on every
// scrape. A failed count reports NaN.
func (m *Metrics) WatchActivePayments(count func(ctx context.Context) (int, error)) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "active_payments",
		Help: "Payments not yet in a terminal status",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
		defer cancel()
		n, err := count(ctx)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}))
}

// WatchSQLite exports the size of the database file at path and the row
// count of every user table in db.
func (m *Metrics) WatchSQLite(db *sql.DB, path string) {
	if m == nil {
		return
	}
	m.registry.MustRegister(newSQLiteCollector(db, path))
}

type sqliteCollector struct {
	db   *sql.DB
	path string

	size *prometheus.Desc
	rows *prometheus.Desc
}

func newSQLiteCollector(db *sql.DB, path string) *sqliteCollector {
	return &sqliteCollector{
		db:   db,
		path: path,
		size: prometheus.NewDesc("sqlite_db_size_bytes",
			"Size of the SQLite database file in bytes", nil, nil),
		rows: prometheus.NewDesc("sqlite_table_rows",
			"Number of rows in a SQLite table", []string{"table"}, nil),
	}
}

func (c *sqliteCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.rows
}

func (c *sqliteCollector) Collect(ch chan<- prometheus.Metric) {
	var size float64
	info, err := os.Stat(c.path)
	switch {
	case err == nil:
		size = float64(info.Size())
	case !errors.Is(err, fs.ErrNotExist):
		ch <- prometheus.NewInvalidMetric(c.size, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, size)

	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	tables, err := c.tables(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.rows, err)
		return
	}
	for _, table := range tables {
		var n int64
		quoted := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
		if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quoted).Scan(&n); err != nil {
			ch <- prometheus.NewInvalidMetric(c.rows, err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.rows, prometheus.GaugeValue, float64(n), table)
	}
}

func (c *sqliteCollector) tables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
