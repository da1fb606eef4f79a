package gate

// #region gate-config
// Config holds the gate thresholds.
type Config struct {
	RelevanceThreshold     float64 // evidence scoring below this triggers fallback
	HallucinationThreshold float64 // answers scoring below this get a caveat
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		RelevanceThreshold:     0.6,
		HallucinationThreshold: 0.7,
	}
}

// #endregion gate-config

// #region defaults
const (
	// DefaultScore is used whenever a judge reply cannot be parsed or the call fails.
	DefaultScore = 0.5
	// SourceRetrieval is the only answer source the groundedness gate scores.
	SourceRetrieval = "retrieval"
)

// #endregion defaults

// #region reasons
const (
	ReasonNoEvidence   = "no evidence"
	ReasonScored       = "scored"
	ReasonDefaulted    = "judge output unusable, default applied"
	ReasonNotRetrieval = "answer not sourced from retrieval"
)

// #endregion reasons

// #region relevance-decision
// RelevanceDecision is the relevance gate verdict.
type RelevanceDecision struct {
	Score      float64
	IsRelevant bool
	Reason     string
	Defaulted  bool
}

// #endregion relevance-decision

// #region grounding-decision
// GroundingDecision is the groundedness gate verdict.
type GroundingDecision struct {
	IsGrounded bool
	Confidence float64
	Reason     string
	Defaulted  bool
}

// #endregion grounding-decision
