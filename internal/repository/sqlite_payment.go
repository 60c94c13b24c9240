package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/payflow/internal/domain"
)

// SQLitePaymentRepository stores amounts as decimal text and timestamps as
// unix microseconds so both round-trip exactly.
type SQLitePaymentRepository struct {
	db *sql.DB
}

func NewSQLitePaymentRepository(db *sql.DB) *SQLitePaymentRepository {
	return &SQLitePaymentRepository{db: db}
}

func (r *SQLitePaymentRepository) Insert(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, amount, currency, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.Amount.String(), string(payment.Currency),
		string(payment.Status), payment.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("Insert: %w", err)
	}
	p := *payment
	return &p, nil
}

func (r *SQLitePaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := r.get(ctx, r.db, id)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *SQLitePaymentRepository) List(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanSQLitePayment(rows)
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

func (r *SQLitePaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.PaymentStatus) (*domain.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("UpdateStatus: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ? WHERE id = ? AND status = ?`,
		string(next), id.String(), string(expected),
	)
	if err != nil {
		return nil, fmt.Errorf("UpdateStatus: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}

	p, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("UpdateStatus: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("UpdateStatus: %w", domain.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("UpdateStatus: commit: %w", err)
	}
	return p, nil
}

func (r *SQLitePaymentRepository) CountActive(ctx context.Context) (int, error) {
	names := activeStatusNames()
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE status IN (`+placeholders+`)`, args...,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountActive: %w", err)
	}
	return n, nil
}

func (r *SQLitePaymentRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLitePaymentRepository) get(ctx context.Context, q queryRower, id uuid.UUID) (*domain.Payment, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id.String(),
	)
	p, err := scanSQLitePayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanSQLitePayment(s scanner) (*domain.Payment, error) {
	var (
		id, amount, currency, status string
		createdAt                    int64
	)
	if err := s.Scan(&id, &amount, &currency, &status, &createdAt); err != nil {
		return nil, err
	}

	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}

	return &domain.Payment{
		ID:        pid,
		Amount:    amt,
		Currency:  domain.Currency(currency),
		Status:    domain.PaymentStatus(status),
		CreatedAt: time.UnixMicro(createdAt).UTC(),
	}, nil
}
