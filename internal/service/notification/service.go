package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
)

const defaultEventMessage = "Payment completed"

type notificationStore interface {
	Append(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	List(ctx context.Context) ([]domain.Notification, error)
}

type Service struct {
	notifications notificationStore
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(notifications notificationStore, m *metrics.Metrics) *Service {
	return &Service{
		notifications: notifications,
		metrics:       m,
		now:           time.Now,
	}
}

type SendRequest struct {
	Type      string
	Message   string
	Recipient *string
}

// Send records a notification submitted directly through the API. Unlike
// events from the broker, an unknown type is rejected here.
func (s *Service) Send(ctx context.Context, req SendRequest) (*domain.Notification, error) {
	t, err := domain.ParseNotificationType(req.Type)
	if err != nil {
		return nil, fmt.Errorf("Send: %w", err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("Send: message is required: %w", domain.ErrInvalidRequest)
	}

	n, err := s.record(ctx, t, req.Message, req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("Send: %w", err)
	}
	return n, nil
}

// HandlePaymentEvent converts a broker event into a broadcast notification.
// A missing or unrecognised type becomes order_placed.
func (s *Service) HandlePaymentEvent(ctx context.Context, msg domain.EventMessage) (*domain.Notification, error) {
	message := msg.Message
	if message == "" {
		message = defaultEventMessage
	}

	n, err := s.record(ctx, domain.NotificationTypeOrDefault(msg.Type), message, nil)
	if err != nil {
		return nil, fmt.Errorf("HandlePaymentEvent: payment %s: %w", msg.PaymentID, err)
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return n, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Notification, error) {
	all, err := s.notifications.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return all, nil
}

func (s *Service) record(ctx context.Context, t domain.NotificationType, message string, recipient *string) (*domain.Notification, error) {
	n, err := s.notifications.Append(ctx, &domain.Notification{
		ID:        uuid.New(),
		Type:      t,
		Message:   message,
		Recipient: recipient,
		Status:    domain.NotificationStatusSent,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		s.metrics.NotificationCreated(string(t), string(domain.NotificationStatusFailed))
		return nil, err
	}

	s.metrics.NotificationCreated(string(n.Type), string(n.Status))
	logging.FromContext(ctx).Info("notification recorded",
		"notification_id", n.ID,
		"type", n.Type,
	)
	return n, nil
}
