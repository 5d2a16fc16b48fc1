// Package metrics exposes Prometheus instruments for the query and ingestion paths.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeRefused  = "refused"
	OutcomeError    = "error"
)

type Metrics struct {
	queries        *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	rewrites       prometheus.Counter
	ingestedChunks prometheus.Counter
	sourceFailures prometheus.Counter
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_queries_total",
				Help: "Questions answered, by outcome",
			},
			[]string{"outcome"}, // answered, refused, error
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		rewrites: f.NewCounter(prometheus.CounterOpts{
			Name: "rag_query_rewrites_total",
			Help: "Query rewrites performed after an insufficient grade",
		}),
		ingestedChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "rag_ingested_chunks_total",
			Help: "Chunks written to the vector index",
		}),
		sourceFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rag_source_failures_total",
			Help: "Sources that could not be fetched during ingestion",
		}),
	}
}

func (m *Metrics) ObserveQuery(outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) IncRewrites() {
	if m == nil {
		return
	}
	m.rewrites.Inc()
}

func (m *Metrics) AddIngestedChunks(n int) {
	if m == nil {
		return
	}
	m.ingestedChunks.Add(float64(n))
}

func (m *Metrics) IncSourceFailures() {
	if m == nil {
		return
	}
	m.sourceFailures.Inc()
}
