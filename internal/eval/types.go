package eval

import "time"

// #region eval-config
// EvalConfig holds the health thresholds checked against a summary.
type EvalConfig struct {
	MaxErrorRate       float64 // fail if more than this share of queries errored
	MinAvgGroundedness float64 // fail if average groundedness drops below this
	MinQueries         int     // below this many queries every check passes
}

// DefaultEvalConfig returns the default thresholds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxErrorRate:       0.2,
		MinAvgGroundedness: 0.7,
		MinQueries:         5,
	}
}

// DefaultWindow is the trailing window used by Summarize callers.
const DefaultWindow = 24 * time.Hour

// #endregion eval-config

// #region summary
// Summary aggregates the query log over a window.
type Summary struct {
	Window             time.Duration  `json:"window"`
	TotalQueries       int            `json:"total_queries"`
	Rejected           int            `json:"rejected"`
	AvgElapsed         time.Duration  `json:"avg_elapsed"`
	SourceDistribution map[string]int `json:"source_distribution"`
	AvgRelevance       float64        `json:"avg_relevance"`
	AvgGroundedness    float64        `json:"avg_groundedness"`
	Fallbacks          int            `json:"fallbacks"`
	ErrorCount         int            `json:"error_count"`
	ErrorRate          float64        `json:"error_rate"`
}

// #endregion summary

// #region eval-metric
// EvalMetric captures a single check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the outcome of checking a summary.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// #endregion eval-result
