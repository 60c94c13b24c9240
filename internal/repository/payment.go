package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/payflow/internal/domain"
)

const paymentColumns = `id, amount, currency, status, created_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Insert(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO payments (id, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+paymentColumns,
		payment.ID, payment.Amount, payment.Currency, payment.Status, payment.CreatedAt,
	)
	p, err := scanPayment(row)
	if err != nil {
		return nil, fmt.Errorf("Insert: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) List(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return payments, nil
}

// UpdateStatus moves the payment to next only if it is still in expected.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.PaymentStatus) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE payments SET status = $1
		WHERE id = $2 AND status = $3
		RETURNING `+paymentColumns,
		next, id, expected,
	)
	p, err := scanPayment(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("UpdateStatus: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("UpdateStatus: lookup: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil, fmt.Errorf("UpdateStatus: %w", domain.ErrConflict)
}

// CountActive counts payments that are not yet in a terminal status.
func (r *PaymentRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE status = ANY($1)`,
		pq.Array(activeStatusNames()),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountActive: %w", err)
	}
	return n, nil
}

func activeStatusNames() []string {
	active := domain.ActivePaymentStatuses()
	names := make([]string, len(active))
	for i, s := range active {
		names[i] = string(s)
	}
	return names
}

func (r *PaymentRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	err := s.Scan(&p.ID, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
