package main

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/payflow/api"
	"github.com/josh-kwaku/payflow/internal/broker"
	"github.com/josh-kwaku/payflow/internal/handler"
	"github.com/josh-kwaku/payflow/internal/metrics"
	"github.com/josh-kwaku/payflow/internal/middleware"
)

type workerStatus interface {
	Status() broker.WorkerStatus
}

type routerDeps struct {
	notifications *handler.NotificationHandler
	health        *handler.HealthHandler
	worker        workerStatus
	metrics       *metrics.Metrics
}

func newRouter(d routerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", d.health.Liveness)
	mux.HandleFunc("GET /health/ready", d.health.Readiness)
	docs := handler.NewDocs("Payflow Notifications API", "/docs/openapi.yaml", api.NotificationsSpec)
	mux.HandleFunc("GET /docs", docs.Page)
	mux.HandleFunc("GET /docs/openapi.yaml", docs.Spec)
	if d.metrics != nil {
		mux.Handle("GET /metrics", d.metrics.Handler())
	}

	mux.HandleFunc("POST /api/v1/notifications", d.notifications.Create)
	mux.HandleFunc("GET /api/v1/notifications", d.notifications.List)
	mux.HandleFunc("GET /api/v1/notifications/{id}", d.notifications.Get)
	mux.HandleFunc("GET /api/v1/consumer/status", func(w http.ResponseWriter, r *http.Request) {
		handler.RespondSuccess(w, http.StatusOK, d.worker.Status())
	})

	var h http.Handler = mux
	h = middleware.AccessLog(d.metrics)(h)
	h = middleware.Recovery(d.metrics)(h)
	h = middleware.RequestID(h)
	return otelhttp.NewHandler(h, "payflow-notifier")
}
