package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payflow/internal/domain"
)

type SQLiteNotificationRepository struct {
	db *sql.DB
}

func NewSQLiteNotificationRepository(db *sql.DB) *SQLiteNotificationRepository {
	return &SQLiteNotificationRepository{db: db}
}

func (r *SQLiteNotificationRepository) Append(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	var recipient sql.NullString
	if n.Recipient != nil {
		recipient = sql.NullString{String: *n.Recipient, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, type, message, recipient, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID.String(), string(n.Type), n.Message, recipient, string(n.Status), n.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("Append: %w", err)
	}
	out := *n
	return &out, nil
}

func (r *SQLiteNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id.String(),
	)
	n, err := scanSQLiteNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return n, nil
}

func (r *SQLiteNotificationRepository) List(ctx context.Context) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	notifications := []domain.Notification{}
	for rows.Next() {
		n, err := scanSQLiteNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return notifications, nil
}

func (r *SQLiteNotificationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanSQLiteNotification(s scanner) (*domain.Notification, error) {
	var (
		id, typ, message, status string
		recipient                sql.NullString
		createdAt                int64
	)
	if err := s.Scan(&id, &typ, &message, &recipient, &status, &createdAt); err != nil {
		return nil, err
	}

	nid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}

	n := &domain.Notification{
		ID:        nid,
		Type:      domain.NotificationType(typ),
		Message:   message,
		Status:    domain.NotificationStatus(status),
		CreatedAt: time.UnixMicro(createdAt).UTC(),
	}
	if recipient.Valid {
		n.Recipient = &recipient.String
	}
	return n, nil
}
