package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payflow/internal/domain"
)

const notificationColumns = `id, type, message, recipient, status, created_at`

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Append(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (id, type, message, recipient, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns,
		n.ID, n.Type, n.Message, n.Recipient, n.Status, n.CreatedAt,
	)
	out, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("Append: %w", err)
	}
	return out, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id,
	)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) List(ctx context.Context) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	notifications := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
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

func (r *NotificationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanNotification(s scanner) (*domain.Notification, error) {
	var n domain.Notification
	err := s.Scan(&n.ID, &n.Type, &n.Message, &n.Recipient, &n.Status, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}
