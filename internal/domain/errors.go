package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrConflict                = errors.New("status changed concurrently")
	ErrInvalidAmount           = errors.New("amount must be positive with at most two decimal places")
	ErrInvalidCurrency         = errors.New("currency must be a three-letter code")
	ErrInvalidNotificationType = errors.New("unknown notification type")
	ErrInvalidRequest          = errors.New("invalid request")
)
