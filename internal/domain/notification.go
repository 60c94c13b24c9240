package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeBookingConfirmed NotificationType = "booking_confirmed"
	NotificationTypeBookingCanceled  NotificationType = "booking_canceled"
	NotificationTypeOrderPlaced      NotificationType = "order_placed"
	NotificationTypeCleaningDone     NotificationType = "cleaning_done"
	NotificationTypeShiftAssigned    NotificationType = "shift_assigned"
	NotificationTypeShiftExtended    NotificationType = "shift_extended"
	NotificationTypeShiftShortened   NotificationType = "shift_shortened"
	NotificationTypeShiftReallocated NotificationType = "shift_reallocated"
	NotificationTypeReviewRejected   NotificationType = "review_rejected"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationTypeBookingConfirmed: {},
	NotificationTypeBookingCanceled:  {},
	NotificationTypeOrderPlaced:      {},
	NotificationTypeCleaningDone:     {},
	NotificationTypeShiftAssigned:    {},
	NotificationTypeShiftExtended:    {},
	NotificationTypeShiftShortened:   {},
	NotificationTypeShiftReallocated: {},
	NotificationTypeReviewRejected:   {},
}

func (t NotificationType) IsValid() bool {
	_, ok := notificationTypes[t]
	return ok
}

func ParseNotificationType(s string) (NotificationType, error) {
	t := NotificationType(s)
	if !t.IsValid() {
		return "", ErrInvalidNotificationType
	}
	return t, nil
}

// NotificationTypeOrDefault maps a missing or unrecognised event type to order_placed.
func NotificationTypeOrDefault(s string) NotificationType {
	if t, err := ParseNotificationType(s); err == nil {
		return t
	}
	return NotificationTypeOrderPlaced
}

type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "sent"
	NotificationStatusFailed NotificationStatus = "failed"
)

// Notification is append-only: it is never updated after creation.
type Notification struct {
	ID        uuid.UUID
	Type      NotificationType
	Message   string
	Recipient *string
	Status    NotificationStatus
	CreatedAt time.Time
}
