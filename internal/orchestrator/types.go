package orchestrator

// #region imports
import (
	"time"
)

// #endregion

// #region intent

// Intent is the classifier's guess at where an answer lives.
type Intent string

const (
	IntentDocument  Intent = "document"
	IntentKnowledge Intent = "knowledge"
	IntentSearch    Intent = "search"
	IntentUnknown   Intent = "unknown"
)

// #endregion

// #region tool

// Tool identifies an answer-producing executor.
type Tool string

const (
	ToolRetrieval Tool = "retrieval"
	ToolKnowledge Tool = "knowledge"
	ToolSearch    Tool = "search"
)

// #endregion

// #region answer-source

// AnswerSource records which tool actually produced the final answer.
type AnswerSource string

const (
	SourceRetrieval AnswerSource = "retrieval"
	SourceKnowledge AnswerSource = "knowledge"
	SourceSearch    AnswerSource = "search"
	SourceNone      AnswerSource = "none"
)

func sourceFor(t Tool) AnswerSource {
	switch t {
	case ToolRetrieval:
		return SourceRetrieval
	case ToolKnowledge:
		return SourceKnowledge
	case ToolSearch:
		return SourceSearch
	}
	return SourceNone
}

// #endregion

// #region evidence

// EvidenceItem is one retrieved passage or search snippet.
type EvidenceItem struct {
	Text          string  `json:"text"`
	OriginID      string  `json:"origin_id"`
	Locator       string  `json:"locator"`
	RelevanceHint float64 `json:"relevance_hint"`
}

// CitationKind tags where a citation points.
type CitationKind string

const (
	CitationDocument       CitationKind = "document"
	CitationModelKnowledge CitationKind = "model_knowledge"
	CitationWeb            CitationKind = "web"
)

// Citation attributes an answer to its source. Score is set for document hits only.
type Citation struct {
	Kind    CitationKind `json:"kind"`
	Label   string       `json:"label"`
	Locator string       `json:"locator,omitempty"`
	Preview string       `json:"preview,omitempty"`
	Score   *float64     `json:"score,omitempty"`
}

// #endregion

// #region request-state

// RequestState is threaded through one pipeline run and owned by it.
// RelevanceScore and GroundednessConfidence stay nil until their gate runs.
type RequestState struct {
	RequestID string    `json:"request_id"`
	StartedAt time.Time `json:"started_at"`

	Query           string `json:"query"`
	Valid           bool   `json:"valid"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	Intent           Intent  `json:"intent"`
	IntentConfidence float64 `json:"intent_confidence"`

	SelectedTool   Tool   `json:"selected_tool,omitempty"`
	AttemptedTools []Tool `json:"attempted_tools"`

	Evidence []EvidenceItem `json:"evidence"`

	RelevanceScore *float64 `json:"relevance_score,omitempty"`
	IsRelevant     bool     `json:"is_relevant"`

	AnswerText   string       `json:"answer_text"`
	AnswerSource AnswerSource `json:"answer_source"`
	Citations    []Citation   `json:"citations"`

	IsGrounded             bool     `json:"is_grounded"`
	GroundednessConfidence *float64 `json:"groundedness_confidence,omitempty"`

	NeedsFallback bool `json:"needs_fallback"`
	CorpusSize    int  `json:"corpus_size"`

	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Attempted reports whether t has already been routed to in this request.
func (s *RequestState) Attempted(t Tool) bool {
	for _, a := range s.AttemptedTools {
		if a == t {
			return true
		}
	}
	return false
}

// #endregion

// #region tool-result

// ToolResult is the uniform executor output. Answer is set by tools that
// produce final text themselves (knowledge, search).
type ToolResult struct {
	Success   bool
	Answer    string
	Evidence  []EvidenceItem
	Citations []Citation
	Err       error
}

// #endregion

// #region fixed-answers

const (
	NoInformationAnswer = "I couldn't find relevant information in the uploaded documents."
	GenericErrorAnswer  = "An error occurred while processing your query."
	UngroundedCaveat    = "\n\nNote: This response may contain unverified information."
	invalidQueryPrefix  = "Invalid query: "
)

// #endregion
