package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shylock_ledger_computations_total",
		Help: "Number of ledger computations served, by allocation policy.",
	}, []string{"policy"})

	ledgerComputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shylock_ledger_compute_seconds",
		Help:    "Wall time of a single ledger computation.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shylock_http_requests_total",
		Help: "HTTP requests served, by method and status code.",
	}, []string{"method", "code"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

func observeComputation(policy string, started time.Time) {
	ledgerComputations.WithLabelValues(policy).Inc()
	ledgerComputeSeconds.Observe(time.Since(started).Seconds())
}
