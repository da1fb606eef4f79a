// Package observability exposes pipeline metrics for Prometheus.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/agentic-rag/internal/logging"
)

const namespace = "agentic_rag"

// #region metrics

// Metrics holds the pipeline collectors. The zero value is not usable; call New.
type Metrics struct {
	queries       *prometheus.CounterVec
	rejections    prometheus.Counter
	fallbacks     prometheus.Counter
	errors        prometheus.Counter
	ungrounded    prometheus.Counter
	latency       *prometheus.HistogramVec
	stageLatency  *prometheus.HistogramVec
	relevance     prometheus.Histogram
	groundedness  prometheus.Histogram
	documents     prometheus.Counter
	chunksIndexed prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Completed queries by answer source and selected tool",
		}, []string{"source", "tool"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_queries_total",
			Help:      "Queries rejected by the input guard",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Queries that took the knowledge fallback edge",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Queries that ended with an error recorded",
		}),
		ungrounded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ungrounded_answers_total",
			Help:      "Answers returned with the unverified-information caveat",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"source"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"stage"}),
		relevance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relevance_score",
			Help:      "Distribution of relevance gate scores",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		groundedness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "groundedness_confidence",
			Help:      "Distribution of groundedness gate confidence",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		documents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents ingested",
		}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks written to the index",
		}),
	}
	reg.MustRegister(
		m.queries, m.rejections, m.fallbacks, m.errors, m.ungrounded,
		m.latency, m.stageLatency, m.relevance, m.groundedness,
		m.documents, m.chunksIndexed,
	)
	return m
}

// #endregion metrics

// #region recording

// StageDone records one pipeline stage's latency.
func (m *Metrics) StageDone(stage string, d time.Duration) {
	m.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// QueryDone records a completed query.
func (m *Metrics) QueryDone(rec logging.QueryRecord) {
	if !rec.Valid {
		m.rejections.Inc()
		return
	}
	tool := rec.SelectedTool
	if tool == "" {
		tool = "none"
	}
	m.queries.WithLabelValues(rec.AnswerSource, tool).Inc()
	m.latency.WithLabelValues(rec.AnswerSource).Observe(rec.Elapsed.Seconds())
	if rec.NeedsFallback {
		m.fallbacks.Inc()
	}
	if rec.Failed() {
		m.errors.Inc()
	}
	if rec.RelevanceScore != nil {
		m.relevance.Observe(*rec.RelevanceScore)
	}
	if rec.GroundednessConfidence != nil {
		m.groundedness.Observe(*rec.GroundednessConfidence)
		if !rec.IsGrounded {
			m.ungrounded.Inc()
		}
	}
}

// Ingested records one ingested document and its chunk count.
func (m *Metrics) Ingested(chunks int) {
	m.documents.Inc()
	m.chunksIndexed.Add(float64(chunks))
}

// #endregion recording
