// Package eval summarises the query log and checks it against health thresholds.
package eval

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/agentic-rag/internal/logging"
)

// #region summarize
// Summarize aggregates records with a timestamp inside (now-window, now].
// window <= 0 includes every record. Relevance is averaged over records that
// ran the relevance gate, groundedness over records that ran the groundedness gate.
func Summarize(records []logging.QueryRecord, window time.Duration, now time.Time) Summary {
	s := Summary{Window: window, SourceDistribution: map[string]int{}}

	var (
		elapsed               time.Duration
		relSum, groundSum     float64
		relCount, groundCount int
	)
	for _, r := range records {
		if window > 0 && (r.Timestamp.Before(now.Add(-window)) || r.Timestamp.After(now)) {
			continue
		}
		s.TotalQueries++
		elapsed += r.Elapsed
		s.SourceDistribution[r.AnswerSource]++
		if !r.Valid {
			s.Rejected++
		}
		if r.NeedsFallback {
			s.Fallbacks++
		}
		if r.Failed() {
			s.ErrorCount++
		}
		if r.RelevanceScore != nil {
			relSum += *r.RelevanceScore
			relCount++
		}
		if r.GroundednessConfidence != nil {
			groundSum += *r.GroundednessConfidence
			groundCount++
		}
	}

	if s.TotalQueries == 0 {
		return s
	}
	s.AvgElapsed = elapsed / time.Duration(s.TotalQueries)
	s.ErrorRate = float64(s.ErrorCount) / float64(s.TotalQueries)
	if relCount > 0 {
		s.AvgRelevance = relSum / float64(relCount)
	}
	if groundCount > 0 {
		s.AvgGroundedness = groundSum / float64(groundCount)
	}
	return s
}

// #endregion summarize

// #region eval-harness
// EvalHarness checks summaries against thresholds.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Check returns pass/fail per metric. With fewer than MinQueries queries the
// result passes with every metric informational.
func (h *EvalHarness) Check(s Summary) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string
	enough := s.TotalQueries >= h.config.MinQueries

	// 1. Error rate ceiling
	errPass := !enough || s.ErrorRate <= h.config.MaxErrorRate
	metrics = append(metrics, EvalMetric{Name: "error_rate", Value: s.ErrorRate, Pass: errPass})
	if !errPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("error rate %.2f exceeds %.2f", s.ErrorRate, h.config.MaxErrorRate))
	}

	// 2. Groundedness floor
	groundPass := !enough || s.AvgGroundedness >= h.config.MinAvgGroundedness
	metrics = append(metrics, EvalMetric{Name: "avg_groundedness", Value: s.AvgGroundedness, Pass: groundPass})
	if !groundPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("avg groundedness %.2f below %.2f", s.AvgGroundedness, h.config.MinAvgGroundedness))
	}

	// 3. Relevance: informational only
	metrics = append(metrics, EvalMetric{Name: "avg_relevance", Value: s.AvgRelevance, Pass: true})

	reason := "all checks passed"
	if !enough {
		reason = fmt.Sprintf("only %d queries, checks informational", s.TotalQueries)
	}
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{Passed: passed, Metrics: metrics, Reason: reason}
}

// #endregion eval-harness
