package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/payflow/internal/auth"
	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/service/payment"
)

type paymentService interface {
	Create(ctx context.Context, req payment.CreatePaymentRequest) (*domain.Payment, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	List(ctx context.Context) ([]domain.Payment, error)
	Process(ctx context.Context, id uuid.UUID, succeeded bool) (*domain.Payment, error)
	RequestRefund(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	CompleteRefund(ctx context.Context, id uuid.UUID, succeeded bool) (*domain.Payment, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	Amount   *decimal.Decimal `json:"amount"`
	Currency string           `json:"currency"`
}

func (r createPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Amount == nil {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	} else if err := domain.ValidateAmount(*r.Amount); err != nil {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0 with at most 2 decimal places"})
	}

	if _, err := domain.NormalizeCurrency(r.Currency); err != nil {
		errs = append(errs, FieldError{Field: "currency", Message: "must be a three-letter code"})
	}

	return errs
}

// outcomeRequest is the body of process and refund/complete.
type outcomeRequest struct {
	Success *bool `json:"success"`
}

func (r outcomeRequest) Validate() []FieldError {
	if r.Success == nil {
		return []FieldError{{Field: "success", Message: "required"}}
	}
	return nil
}

type paymentDTO struct {
	ID        uuid.UUID `json:"id"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	return paymentDTO{
		ID:        p.ID,
		Amount:    p.Amount.StringFixed(domain.AmountScale),
		Currency:  string(p.Currency),
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
	}
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, err := h.payments.Create(r.Context(), payment.CreatePaymentRequest{
		Amount:   *req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		log.Warn("payment creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%s", p.ID))
	RespondSuccess(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.List(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]paymentDTO, 0, len(payments))
	for i := range payments {
		dtos = append(dtos, toPaymentDTO(&payments[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := paymentIDFromPath(w, r)
	if !ok {
		return
	}

	p, err := h.payments.Get(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) Process(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "process", h.payments.Process)
}

func (h *PaymentHandler) CompleteRefund(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "refund completion", h.payments.CompleteRefund)
}

func (h *PaymentHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := paymentIDFromPath(w, r)
	if !ok {
		return
	}

	p, err := h.payments.RequestRefund(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("refund request failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

// settle handles the operator endpoints that take a {success} outcome.
func (h *PaymentHandler) settle(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, uuid.UUID, bool) (*domain.Payment, error)) {
	log := logging.FromContext(r.Context())

	paymentID, ok := paymentIDFromPath(w, r)
	if !ok {
		return
	}

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, err := apply(r.Context(), paymentID, *req.Success)
	if err != nil {
		log.Warn("payment "+action+" failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	attrs := []any{"payment_id", p.ID, "status", p.Status}
	if operator, ok := auth.OperatorFromContext(r.Context()); ok {
		attrs = append(attrs, "operator", operator)
	}
	log.Info("payment "+action+" applied", attrs...)

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func paymentIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return uuid.Nil, false
	}
	return id, true
}
