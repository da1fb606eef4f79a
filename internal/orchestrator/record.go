package orchestrator

import (
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
)

// #region record

// Record converts a terminal state into the query log format.
func (s *RequestState) Record() logging.QueryRecord {
	attempted := make([]string, len(s.AttemptedTools))
	for i, t := range s.AttemptedTools {
		attempted[i] = string(t)
	}
	citations := make([]logging.Citation, len(s.Citations))
	for i, c := range s.Citations {
		citations[i] = logging.Citation{
			Kind:    string(c.Kind),
			Label:   c.Label,
			Locator: c.Locator,
			Preview: c.Preview,
			Score:   c.Score,
		}
	}
	return logging.QueryRecord{
		Timestamp:              s.StartedAt,
		RequestID:              s.RequestID,
		Query:                  s.Query,
		Valid:                  s.Valid,
		RejectionReason:        s.RejectionReason,
		Intent:                 string(s.Intent),
		IntentConfidence:       s.IntentConfidence,
		SelectedTool:           string(s.SelectedTool),
		AttemptedTools:         attempted,
		CorpusSize:             s.CorpusSize,
		AnswerText:             s.AnswerText,
		AnswerSource:           string(s.AnswerSource),
		Citations:              citations,
		RelevanceScore:         s.RelevanceScore,
		IsRelevant:             s.IsRelevant,
		IsGrounded:             s.IsGrounded,
		GroundednessConfidence: s.GroundednessConfidence,
		NeedsFallback:          s.NeedsFallback,
		Elapsed:                s.Elapsed,
		Error:                  s.Error,
	}
}

// #endregion
