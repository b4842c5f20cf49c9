// Package metrics exposes Prometheus counters for scheduler and deck activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dailymail"

// Metrics holds the service collectors. A nil *Metrics is a no-op.
type Metrics struct {
	reg *prometheus.Registry

	fires        *prometheus.CounterVec
	sendFailures *prometheus.CounterVec
	deckErrors   *prometheus.CounterVec
	learned      *prometheus.CounterVec
	reviews      prometheus.Counter
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		fires: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "fires_total",
			Help:      "Scheduled actions fired, by action.",
		}, []string{"action"}),
		sendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "send_failures_total",
			Help:      "Fired actions whose digest could not be sent, by action.",
		}, []string{"action"}),
		deckErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deck",
			Name:      "fetch_errors_total",
			Help:      "Deck sources that could not be fetched or decoded, by deck.",
		}, []string{"deck"}),
		learned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deck",
			Name:      "rows_learned_total",
			Help:      "Rows newly marked as learned, by deck.",
		}, []string{"deck"}),
		reviews: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Reviews submitted.",
		}),
	}
}

// Fired counts a fire of action.
func (m *Metrics) Fired(action string) {
	if m == nil {
		return
	}
	m.fires.WithLabelValues(action).Inc()
}

// SendFailed counts a failed digest of action.
func (m *Metrics) SendFailed(action string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(action).Inc()
}

// DeckFetchFailed counts a fetch or decode failure of deck.
func (m *Metrics) DeckFetchFailed(deck string) {
	if m == nil {
		return
	}
	m.deckErrors.WithLabelValues(deck).Inc()
}

// Learned counts a row of deck newly marked learned.
func (m *Metrics) Learned(deck string) {
	if m == nil {
		return
	}
	m.learned.WithLabelValues(deck).Inc()
}

// ReviewSubmitted counts a review.
func (m *Metrics) ReviewSubmitted() {
	if m == nil {
		return
	}
	m.reviews.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
