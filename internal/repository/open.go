package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payflow/internal/config"
	"github.com/josh-kwaku/payflow/internal/domain"
)

type PaymentStore interface {
	Insert(ctx context.Context, payment *domain.Payment) (*domain.Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	List(ctx context.Context) ([]domain.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.PaymentStatus) (*domain.Payment, error)
	CountActive(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type NotificationStore interface {
	Append(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	List(ctx context.Context) ([]domain.Notification, error)
	Ping(ctx context.Context) error
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*IdempotencyCacheEntry, error)
	Set(ctx context.Context, entry *IdempotencyCacheEntry) error
	CleanExpired(ctx context.Context) (int64, error)
}

// Stores bundles the repositories backed by the driver named in
// STORE_DRIVER. DB is nil for the memory driver.
type Stores struct {
	DB            *sql.DB
	Payments      PaymentStore
	Notifications NotificationStore
	Idempotency   IdempotencyStore
}

// Open builds the stores for cfg.StoreDriver. Postgres schemas are migrated
// on open; SQLite schemas are created by NewSQLiteDB.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := NewPostgresDB(ctx, cfg.DatabaseURL, PoolConfig{
			MaxOpenConns:     cfg.DBMaxOpenConns,
			MaxIdleConns:     cfg.DBMaxIdleConns,
			ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
			ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		})
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		if err := Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("Open: %w", err)
		}
		return &Stores{
			DB:            db,
			Payments:      NewPaymentRepository(db),
			Notifications: NewNotificationRepository(db),
			Idempotency:   NewIdempotencyRepository(db),
		}, nil

	case config.StoreDriverSQLite:
		db, err := NewSQLiteDB(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		return &Stores{
			DB:            db,
			Payments:      NewSQLitePaymentRepository(db),
			Notifications: NewSQLiteNotificationRepository(db),
			Idempotency:   NewMemoryIdempotencyRepository(),
		}, nil

	case config.StoreDriverMemory:
		return &Stores{
			Payments:      NewMemoryPaymentRepository(),
			Notifications: NewMemoryNotificationRepository(),
			Idempotency:   NewMemoryIdempotencyRepository(),
		}, nil
	}
	return nil, fmt.Errorf("Open: unknown store driver %q", cfg.StoreDriver)
}

func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
