package logging

import "time"

// #region query-record
// QueryRecord is one completed query as written to the log sinks.
// RelevanceScore and GroundednessConfidence are nil when their gate did not run.
type QueryRecord struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Query     string    `json:"query"`

	Valid           bool   `json:"valid"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	Intent           string   `json:"intent,omitempty"`
	IntentConfidence float64  `json:"intent_confidence"`
	SelectedTool     string   `json:"selected_tool,omitempty"`
	AttemptedTools   []string `json:"attempted_tools,omitempty"`
	CorpusSize       int      `json:"corpus_size"`

	AnswerText   string     `json:"answer_text"`
	AnswerSource string     `json:"answer_source"`
	Citations    []Citation `json:"citations"`

	RelevanceScore         *float64 `json:"relevance_score"`
	IsRelevant             bool     `json:"is_relevant"`
	IsGrounded             bool     `json:"is_grounded"`
	GroundednessConfidence *float64 `json:"groundedness_confidence"`
	NeedsFallback          bool     `json:"needs_fallback"`

	Elapsed time.Duration `json:"elapsed_ns"`
	Error   string        `json:"error,omitempty"`
}

// Citation mirrors the pipeline citation so the log format stays independent of it.
type Citation struct {
	Kind    string   `json:"kind"`
	Label   string   `json:"label"`
	Locator string   `json:"locator,omitempty"`
	Preview string   `json:"preview,omitempty"`
	Score   *float64 `json:"score,omitempty"`
}

// Failed reports whether the query ended with an error.
func (r QueryRecord) Failed() bool {
	return r.Error != ""
}

// #endregion query-record
