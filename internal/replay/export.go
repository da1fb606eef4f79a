package replay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/orchestrator"
)

// #region export

// CaseFromRecord rebuilds a replay case from a logged query. Model replies
// come from the recorded intent, gate scores and answer; document and web
// citations become the scripted hits and search results. Attempted tools
// that did not produce the answer are scripted to fail, so the case follows
// the recorded path. The expectation is the recorded outcome.
func CaseFromRecord(rec logging.QueryRecord) FixtureCase {
	c := FixtureCase{
		ID:         rec.RequestID,
		Query:      rec.Query,
		Replies:    map[string]string{},
		CorpusSize: rec.CorpusSize,
		Expect: FixtureExpect{
			Valid:        boolRef(rec.Valid),
			AnswerSource: rec.AnswerSource,
		},
	}
	if !rec.Valid {
		return c
	}

	c.Expect.SelectedTool = rec.SelectedTool
	c.Expect.IsGrounded = boolRef(rec.IsGrounded)
	c.Expect.NeedsFallback = boolRef(rec.NeedsFallback)
	c.Expect.AttemptedTools = rec.AttemptedTools

	if rec.Intent != "" {
		c.Replies[KindClassify] = fmt.Sprintf("Category: %s\nConfidence: %s", rec.Intent, formatScore(rec.IntentConfidence))
	}
	if rec.RelevanceScore != nil {
		c.Replies[KindRelevance] = formatScore(*rec.RelevanceScore)
	}
	if rec.GroundednessConfidence != nil {
		c.Replies[KindGrounding] = formatScore(*rec.GroundednessConfidence)
	}

	answer := strings.TrimSuffix(rec.AnswerText, orchestrator.UngroundedCaveat)
	switch orchestrator.AnswerSource(rec.AnswerSource) {
	case orchestrator.SourceRetrieval:
		c.Replies[KindSynthesis] = answer
	case orchestrator.SourceKnowledge:
		c.Replies[KindKnowledge] = answer
	case orchestrator.SourceSearch:
		c.Replies[KindSearch] = answer
	}

	for _, tool := range rec.AttemptedTools {
		if tool == string(orchestrator.ToolRetrieval) || tool == rec.AnswerSource {
			continue
		}
		// knowledge and search prompts share the tool's name
		c.Failures = append(c.Failures, tool)
	}

	for _, cit := range rec.Citations {
		switch orchestrator.CitationKind(cit.Kind) {
		case orchestrator.CitationDocument:
			h := FixtureHit{Source: cit.Label, Text: cit.Preview}
			h.Page, _ = strconv.Atoi(cit.Locator)
			if cit.Score != nil {
				h.Score = *cit.Score
			}
			c.Hits = append(c.Hits, h)
		case orchestrator.CitationWeb:
			c.Results = append(c.Results, FixtureWeb{Title: cit.Label, Snippet: cit.Preview, URL: cit.Locator})
		}
	}
	return c
}

// FixtureFromRecords exports records as a fixture under cfg.
func FixtureFromRecords(description string, cfg FixtureConfig, recs []logging.QueryRecord) Fixture {
	f := Fixture{Description: description, Config: cfg, Cases: make([]FixtureCase, len(recs))}
	for i, r := range recs {
		f.Cases[i] = CaseFromRecord(r)
	}
	return f
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func boolRef(b bool) *bool { return &b }

// #endregion export
