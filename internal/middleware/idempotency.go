package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/josh-kwaku/payflow/internal/handler"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
	"github.com/josh-kwaku/payflow/internal/repository"
)

type idempotencyStore interface {
	Get(ctx context.Context, key string) (*repository.IdempotencyCacheEntry, error)
	Set(ctx context.Context, entry *repository.IdempotencyCacheEntry) error
}

const (
	idempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

type idempotency struct {
	store    idempotencyStore
	ttl      time.Duration
	metrics  *metrics.Metrics
	inflight sync.Map
}

// Idempotency replays the first non-5xx response recorded for an
// Idempotency-Key on the same route. Requests without the header pass
// straight through; a second request arriving while the first is still
// running gets 409.
func Idempotency(store idempotencyStore, ttl time.Duration, m *metrics.Metrics) func(http.Handler) http.Handler {
	mw := &idempotency{store: store, ttl: ttl, metrics: m}
	return mw.wrap
}

func (mw *idempotency) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			handler.RespondValidationError(w, []handler.FieldError{
				{Field: idempotencyHeader, Message: "must be at most 255 characters"},
			})
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		log := logging.FromContext(r.Context()).With("idempotency_key", key)
		cacheKey := r.Method + " " + r.URL.Path + " " + key
		bodyHash := hashBody(body)

		if _, busy := mw.inflight.LoadOrStore(cacheKey, struct{}{}); busy {
			handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
			return
		}
		defer mw.inflight.Delete(cacheKey)

		cached, err := mw.store.Get(r.Context(), cacheKey)
		if err != nil {
			log.Error("idempotency cache lookup failed", "error", err)
			handler.RespondAppError(w, handler.ErrInternalError, nil)
			return
		}
		if cached != nil {
			mw.replay(w, cached, bodyHash, log)
			return
		}

		rec := &bodyRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			return
		}

		now := time.Now().UTC()
		err = mw.store.Set(r.Context(), &repository.IdempotencyCacheEntry{
			Key:          cacheKey,
			RequestHash:  bodyHash,
			StatusCode:   rec.status,
			ResponseBody: rec.body.Bytes(),
			CreatedAt:    now,
			ExpiresAt:    now.Add(mw.ttl),
		})
		if err != nil {
			log.Error("idempotency cache store failed", "error", err)
		}
	})
}

func (mw *idempotency) replay(w http.ResponseWriter, cached *repository.IdempotencyCacheEntry, bodyHash string, log *slog.Logger) {
	if cached.RequestHash != bodyHash {
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
		return
	}

	mw.metrics.IdempotentReplay()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	if _, err := w.Write(cached.ResponseBody); err != nil {
		log.Error("failed to write idempotent replay", "error", err)
	}
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
