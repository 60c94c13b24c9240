package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/service/notification"
)

type notificationService interface {
	Send(ctx context.Context, req notification.SendRequest) (*domain.Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	List(ctx context.Context) ([]domain.Notification, error)
}

type NotificationHandler struct {
	notifications notificationService
}

func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type sendNotificationRequest struct {
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	Recipient *string `json:"recipient"`
}

func (r sendNotificationRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Type == "" {
		errs = append(errs, FieldError{Field: "type", Message: "required"})
	} else if !domain.NotificationType(r.Type).IsValid() {
		errs = append(errs, FieldError{Field: "type", Message: "unknown notification type"})
	}

	if r.Message == "" {
		errs = append(errs, FieldError{Field: "message", Message: "required"})
	}

	return errs
}

type notificationDTO struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Recipient *string   `json:"recipient"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toNotificationDTO(n *domain.Notification) notificationDTO {
	return notificationDTO{
		ID:        n.ID,
		Type:      string(n.Type),
		Message:   n.Message,
		Recipient: n.Recipient,
		Status:    string(n.Status),
		CreatedAt: n.CreatedAt,
	}
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	n, err := h.notifications.Send(r.Context(), notification.SendRequest{
		Type:      req.Type,
		Message:   req.Message,
		Recipient: req.Recipient,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("notification creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/notifications/%s", n.ID))
	RespondSuccess(w, http.StatusCreated, toNotificationDTO(n))
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.notifications.List(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]notificationDTO, 0, len(all))
	for i := range all {
		dtos = append(dtos, toNotificationDTO(&all[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	n, err := h.notifications.Get(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toNotificationDTO(n))
}
