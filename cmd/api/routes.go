package main

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/payflow/api"
	"github.com/josh-kwaku/payflow/internal/handler"
	"github.com/josh-kwaku/payflow/internal/metrics"
	"github.com/josh-kwaku/payflow/internal/middleware"
	"github.com/josh-kwaku/payflow/internal/repository"
)

type routerDeps struct {
	payments       *handler.PaymentHandler
	health         *handler.HealthHandler
	idempotency    repository.IdempotencyStore
	idempotencyTTL time.Duration
	operatorSecret string
	metrics        *metrics.Metrics
}

func newRouter(d routerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", d.health.Liveness)
	mux.HandleFunc("GET /health/ready", d.health.Readiness)
	docs := handler.NewDocs("Payflow Payments API", "/docs/openapi.yaml", api.PaymentsSpec)
	mux.HandleFunc("GET /docs", docs.Page)
	mux.HandleFunc("GET /docs/openapi.yaml", docs.Spec)
	if d.metrics != nil {
		mux.Handle("GET /metrics", d.metrics.Handler())
	}

	idempotent := middleware.Idempotency(d.idempotency, d.idempotencyTTL, d.metrics)
	operator := func(h http.HandlerFunc) http.Handler { return h }
	if d.operatorSecret != "" {
		requireOperator := middleware.OperatorAuth(d.operatorSecret)
		operator = func(h http.HandlerFunc) http.Handler { return requireOperator(h) }
	}

	mux.HandleFunc("GET /api/v1/payments", d.payments.List)
	mux.Handle("POST /api/v1/payments", idempotent(http.HandlerFunc(d.payments.Create)))
	mux.HandleFunc("GET /api/v1/payments/{id}", d.payments.Get)
	mux.Handle("POST /api/v1/payments/{id}/process", operator(d.payments.Process))
	mux.HandleFunc("POST /api/v1/payments/{id}/refund", d.payments.RequestRefund)
	mux.Handle("POST /api/v1/payments/{id}/refund/complete", operator(d.payments.CompleteRefund))

	var h http.Handler = mux
	h = middleware.AccessLog(d.metrics)(h)
	h = middleware.Recovery(d.metrics)(h)
	h = middleware.RequestID(h)
	return otelhttp.NewHandler(h, "payflow-api")
}
