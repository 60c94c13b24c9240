package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
)

type paymentStore interface {
	Insert(ctx context.Context, payment *domain.Payment) (*domain.Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	List(ctx context.Context) ([]domain.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.PaymentStatus) (*domain.Payment, error)
}

// eventPublisher must not block; delivery failures stay on its side.
type eventPublisher interface {
	PaymentSucceeded(paymentID uuid.UUID)
}

type Service struct {
	payments paymentStore
	events   eventPublisher
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(payments paymentStore, events eventPublisher, m *metrics.Metrics) *Service {
	return &Service{
		payments: payments,
		events:   events,
		metrics:  m,
		now:      time.Now,
	}
}

type CreatePaymentRequest struct {
	Amount   decimal.Decimal
	Currency string
}

func (s *Service) Create(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	p, err := domain.NewPayment(req.Amount, req.Currency, s.now())
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	created, err := s.payments.Insert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	s.metrics.PaymentCreated()
	logging.FromContext(ctx).Info("payment created",
		"payment_id", created.ID,
		"amount", created.Amount.String(),
		"currency", created.Currency,
	)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Payment, error) {
	payments, err := s.payments.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return payments, nil
}

// Process settles a created payment. A success is announced to the
// notification service after it has been stored.
func (s *Service) Process(ctx context.Context, id uuid.UUID, succeeded bool) (*domain.Payment, error) {
	next := domain.PaymentStatusFailed
	if succeeded {
		next = domain.PaymentStatusSuccess
	}

	p, err := s.transition(ctx, id, domain.PaymentStatusCreated, next)
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	if p.Status == domain.PaymentStatusSuccess && s.events != nil {
		s.events.PaymentSucceeded(p.ID)
	}
	return p, nil
}

func (s *Service) RequestRefund(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.transition(ctx, id, domain.PaymentStatusSuccess, domain.PaymentStatusRefundRequested)
	if err != nil {
		return nil, fmt.Errorf("RequestRefund: %w", err)
	}
	return p, nil
}

func (s *Service) CompleteRefund(ctx context.Context, id uuid.UUID, succeeded bool) (*domain.Payment, error) {
	next := domain.PaymentStatusRefundDenied
	if succeeded {
		next = domain.PaymentStatusRefundDone
	}

	p, err := s.transition(ctx, id, domain.PaymentStatusRefundRequested, next)
	if err != nil {
		return nil, fmt.Errorf("CompleteRefund: %w", err)
	}
	return p, nil
}

// transition moves id from `from` to `to`, failing with ErrInvalidTransition
// when the payment is anywhere else, including when a concurrent writer got
// there first.
func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus) (*domain.Payment, error) {
	current, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != from || !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
	}

	updated, err := s.payments.UpdateStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: %s changed concurrently", domain.ErrInvalidTransition, id)
		}
		return nil, err
	}

	s.metrics.PaymentTransitioned(string(to))
	logging.FromContext(ctx).Info("payment status changed",
		"payment_id", id,
		"from", from,
		"to", to,
	)
	return updated, nil
}
