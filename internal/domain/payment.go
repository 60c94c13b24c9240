package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Currency string

const CurrencyUSD Currency = "USD"

// NormalizeCurrency upper-cases c and falls back to USD when empty.
func NormalizeCurrency(c string) (Currency, error) {
	c = strings.TrimSpace(c)
	if c == "" {
		return CurrencyUSD, nil
	}
	if len(c) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range c {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return "", ErrInvalidCurrency
		}
	}
	return Currency(strings.ToUpper(c)), nil
}

// AmountScale is the number of decimal places an amount may carry.
const AmountScale = 2

// maxAmount is the first value that no longer fits NUMERIC(18,2).
var maxAmount = decimal.New(1, 16)

// ValidateAmount accepts positive amounts in whole cents below 10^16.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThanOrEqual(maxAmount) {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return ErrInvalidAmount
	}
	return nil
}

type PaymentStatus string

const (
	PaymentStatusCreated         PaymentStatus = "created"
	PaymentStatusSuccess         PaymentStatus = "success"
	PaymentStatusFailed          PaymentStatus = "failed"
	PaymentStatusRefundRequested PaymentStatus = "refund_requested"
	PaymentStatusRefundDone      PaymentStatus = "refund_done"
	PaymentStatusRefundDenied    PaymentStatus = "refund_denied"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:         {PaymentStatusSuccess, PaymentStatusFailed},
	PaymentStatusSuccess:         {PaymentStatusRefundRequested},
	PaymentStatusRefundRequested: {PaymentStatusRefundDone, PaymentStatusRefundDenied},
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusCreated, PaymentStatusSuccess, PaymentStatusFailed,
		PaymentStatusRefundRequested, PaymentStatusRefundDone, PaymentStatusRefundDenied:
		return true
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return s.IsValid() && len(paymentTransitions[s]) == 0
}

// ActivePaymentStatuses returns the statuses a payment can still leave.
func ActivePaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusCreated, PaymentStatusSuccess, PaymentStatusRefundRequested}
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Payment struct {
	ID        uuid.UUID
	Amount    decimal.Decimal
	Currency  Currency
	Status    PaymentStatus
	CreatedAt time.Time
}

// NewPayment validates the inputs and returns a payment in the created state.
func NewPayment(amount decimal.Decimal, currency string, now time.Time) (*Payment, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	return &Payment{
		ID:        uuid.New(),
		Amount:    amount,
		Currency:  cur,
		Status:    PaymentStatusCreated,
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	}, nil
}
