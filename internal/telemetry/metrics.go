package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Метрики обзвона.
var (
	CallsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialer_calls_placed_total",
		Help: "Calls accepted by the telephony provider",
	})

	PlacementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialer_call_placement_failures_total",
		Help: "Calls the provider refused or that failed to reach it",
	})

	ActiveUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dialer_active_dispatch_units",
		Help: "Dispatch units currently running in this process",
	})
)

// Метрики webhook'ов.
var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_webhook_events_total",
		Help: "Inbound webhook events by kind and outcome",
	}, []string{"kind", "outcome"})
)

// Метрики анализа и опроса провайдера.
var (
	AnalysisBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_analysis_batches_total",
		Help: "Transcript analysis batches by outcome",
	}, []string{"outcome"})

	PolledCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_polled_calls_total",
		Help: "Calls reconciled by the provider poller by outcome",
	}, []string{"outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_http_requests_total",
		Help: "HTTP requests handled, by binary",
	}, []string{"service"})
)

// Исходы для label'а outcome.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeError    = "error"
	OutcomeEmpty    = "empty"
	OutcomeDropped  = "dropped"   // webhook подтверждён, но не обработан
	OutcomeInFlight = "in_flight" // провайдер ещё ведёт звонок
)

// RegisterOpsRoutes добавляет /healthz и /metrics в mux.
func RegisterOpsRoutes(mux *http.ServeMux, service string, started time.Time) {
	requests := HTTPRequests.WithLabelValues(service)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		requests.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(started).Truncate(time.Second))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}
