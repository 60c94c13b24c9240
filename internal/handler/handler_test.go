package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/repository"
	"github.com/josh-kwaku/payflow/internal/service/notification"
	"github.com/josh-kwaku/payflow/internal/service/payment"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

type noopPublisher struct{ ids []uuid.UUID }

func (p *noopPublisher) PaymentSucceeded(id uuid.UUID) { p.ids = append(p.ids, id) }

func newTestMux(pub *noopPublisher) *http.ServeMux {
	payments := NewPaymentHandler(payment.NewService(repository.NewMemoryPaymentRepository(), pub, nil))
	notifications := NewNotificationHandler(notification.NewService(repository.NewMemoryNotificationRepository(), nil))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /payments", payments.List)
	mux.HandleFunc("POST /payments", payments.Create)
	mux.HandleFunc("GET /payments/{id}", payments.Get)
	mux.HandleFunc("POST /payments/{id}/process", payments.Process)
	mux.HandleFunc("POST /payments/{id}/refund", payments.RequestRefund)
	mux.HandleFunc("POST /payments/{id}/refund/complete", payments.CompleteRefund)
	mux.HandleFunc("POST /notifications", notifications.Create)
	mux.HandleFunc("GET /notifications", notifications.List)
	mux.HandleFunc("GET /notifications/{id}", notifications.Get)
	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestPaymentHandlers_Lifecycle(t *testing.T) {
	pub := &noopPublisher{}
	mux := newTestMux(pub)

	status, env := do(t, mux, http.MethodPost, "/payments", `{"amount": 10.5}`)
	require.Equal(t, http.StatusCreated, status)
	var created paymentDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "10.50", created.Amount)
	assert.Equal(t, "USD", created.Currency)
	assert.Equal(t, "created", created.Status)

	base := "/payments/" + created.ID.String()

	status, env = do(t, mux, http.MethodPost, base+"/refund", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", env.Error.Code)

	status, env = do(t, mux, http.MethodPost, base+"/process", `{"success": true}`)
	require.Equal(t, http.StatusOK, status)
	var processed paymentDTO
	require.NoError(t, json.Unmarshal(env.Data, &processed))
	assert.Equal(t, "success", processed.Status)
	assert.Equal(t, []uuid.UUID{created.ID}, pub.ids)

	status, _ = do(t, mux, http.MethodPost, base+"/process", `{"success": true}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, mux, http.MethodPost, base+"/refund", "")
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, mux, http.MethodPost, base+"/refund/complete", `{"success": false}`)
	require.Equal(t, http.StatusOK, status)
	var final paymentDTO
	require.NoError(t, json.Unmarshal(env.Data, &final))
	assert.Equal(t, "refund_denied", final.Status)

	status, env = do(t, mux, http.MethodGet, "/payments", "")
	require.Equal(t, http.StatusOK, status)
	var list []paymentDTO
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "refund_denied", list[0].Status)
}

func TestPaymentHandlers_Errors(t *testing.T) {
	mux := newTestMux(&noopPublisher{})
	unknown := "/payments/" + uuid.NewString()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "missing amount", method: http.MethodPost, path: "/payments", body: `{}`, wantStatus: 400, wantCode: "VALIDATION_FAILED"},
		{name: "zero amount", method: http.MethodPost, path: "/payments", body: `{"amount": 0}`, wantStatus: 400, wantCode: "VALIDATION_FAILED"},
		{name: "sub-cent amount", method: http.MethodPost, path: "/payments", body: `{"amount": 0.001}`, wantStatus: 400, wantCode: "VALIDATION_FAILED"},
		{name: "three decimal places", method: http.MethodPost, path: "/payments", body: `{"amount": 100.005}`, wantStatus: 400, wantCode: "VALIDATION_FAILED"},
		{name: "bad currency", method: http.MethodPost, path: "/payments", body: `{"amount": 1, "currency": "dollars"}`, wantStatus: 400, wantCode: "VALIDATION_FAILED"},
		{name: "malformed body", method: http.MethodPost, path: "/payments", body: `{`, wantStatus: 400, wantCode: "INVALID_REQUEST"},
		{name: "unknown payment", method: http.MethodGet, path: unknown, wantStatus: 404, wantCode: "RESOURCE_NOT_FOUND"},
		{name: "non-uuid id", method: http.MethodGet, path: "/payments/42", wantStatus: 404, wantCode: "RESOURCE_NOT_FOUND"},
		{name: "process unknown", method: http.MethodPost, path: unknown + "/process", body: `{"success": true}`, wantStatus: 404, wantCode: "RESOURCE_NOT_FOUND"},
		{name: "process without outcome", method: http.MethodPost, path: unknown + "/process", body: `{}`, wantStatus: 400, wantCode: "VALIDATION_FAILED"},
		{name: "refund unknown", method: http.MethodPost, path: unknown + "/refund", wantStatus: 404, wantCode: "RESOURCE_NOT_FOUND"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, env := do(t, mux, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, status)
			require.NotNil(t, env.Error)
			assert.False(t, env.Success)
			assert.Equal(t, tc.wantCode, env.Error.Code)
		})
	}
}

func TestNotificationHandlers(t *testing.T) {
	mux := newTestMux(&noopPublisher{})

	status, env := do(t, mux, http.MethodPost, "/notifications",
		`{"type":"booking_confirmed","message":"Room 4 at 3pm","recipient":"guest@example.com"}`)
	require.Equal(t, http.StatusCreated, status)
	var created notificationDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "booking_confirmed", created.Type)
	assert.Equal(t, "sent", created.Status)
	require.NotNil(t, created.Recipient)

	status, _ = do(t, mux, http.MethodGet, "/notifications/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, mux, http.MethodPost, "/notifications", `{"type":"payment_complete","message":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, _ = do(t, mux, http.MethodGet, "/notifications/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, status)

	status, env = do(t, mux, http.MethodGet, "/notifications", "")
	require.Equal(t, http.StatusOK, status)
	var list []notificationDTO
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestRespondDomainError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidTransition, http.StatusBadRequest},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInvalidCurrency, http.StatusBadRequest},
		{domain.ErrInvalidNotificationType, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondDomainError(rec, tc.err)
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestReadiness(t *testing.T) {
	ok := ReadinessCheck{Name: "database", Check: func(context.Context) error { return nil }}
	down := ReadinessCheck{Name: "consumer", Check: func(context.Context) error { return errors.New("restarting") }}

	rec := httptest.NewRecorder()
	NewHealthHandler("notifier", ok).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler("notifier", ok, down).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "down", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "consumer": "down"}, body.Checks)
}

func TestDocs(t *testing.T) {
	docs := NewDocs("Payments <API>", "/docs/openapi.yaml", []byte("openapi: 3.0.3\n"))

	rec := httptest.NewRecorder()
	docs.Page(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>Payments &lt;API&gt;</title>")

	rec = httptest.NewRecorder()
	docs.Spec(rec, httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "openapi: 3.0.3\n", rec.Body.String())
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	docs.Spec(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}
