package replay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/orchestrator"
)

// Records written by a replay, exported again, must replay to the same outcomes.
func TestFixtureFromRecords_RoundTrip(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "pipeline_cases.json"))
	require.NoError(t, err)
	cfg := f.Config.ToReplayConfig()

	_, records := Replay(context.Background(), f.Cases, cfg, logger.Nop())
	require.Len(t, records, len(f.Cases))

	exported := FixtureFromRecords("exported", f.Config, records)
	require.Len(t, exported.Cases, len(records))

	results, _ := Replay(context.Background(), exported.Cases, cfg, logger.Nop())
	require.Len(t, results, len(records))
	for i, r := range results {
		assert.Truef(t, r.Passed, "%s (%s): %v", r.CaseID, f.Cases[i].ID, r.Mismatches)
	}
}

func TestCaseFromRecord_Retrieval(t *testing.T) {
	score, rel, ground := 0.83, 0.9, 0.4
	c := CaseFromRecord(logging.QueryRecord{
		RequestID:              "req-1",
		Query:                  "q",
		Valid:                  true,
		Intent:                 "document",
		IntentConfidence:       0.75,
		SelectedTool:           "retrieval",
		AttemptedTools:         []string{"retrieval"},
		CorpusSize:             3,
		AnswerSource:           "retrieval",
		AnswerText:             "From the guide." + orchestrator.UngroundedCaveat,
		RelevanceScore:         &rel,
		GroundednessConfidence: &ground,
		Citations: []logging.Citation{
			{Kind: "document", Label: "guide.pdf", Locator: "7", Preview: "text", Score: &score},
			{Kind: "document", Label: "notes.md", Locator: "n/a", Preview: "more"},
		},
	})

	assert.Equal(t, "req-1", c.ID)
	assert.Equal(t, "Category: document\nConfidence: 0.75", c.Replies[KindClassify])
	assert.Equal(t, "0.9", c.Replies[KindRelevance])
	assert.Equal(t, "0.4", c.Replies[KindGrounding])
	assert.Equal(t, "From the guide.", c.Replies[KindSynthesis])
	assert.Empty(t, c.Failures)
	require.Len(t, c.Hits, 2)
	assert.Equal(t, FixtureHit{Source: "guide.pdf", Page: 7, Text: "text", Score: 0.83}, c.Hits[0])
	assert.Zero(t, c.Hits[1].Page)
	assert.Equal(t, 3, c.CorpusSize)
	assert.Equal(t, "retrieval", c.Expect.SelectedTool)
	assert.False(t, *c.Expect.IsGrounded)
}

func TestCaseFromRecord_FailedFallback(t *testing.T) {
	c := CaseFromRecord(logging.QueryRecord{
		Valid:          true,
		Intent:         "search",
		AttemptedTools: []string{"search", "knowledge"},
		AnswerSource:   "none",
		AnswerText:     orchestrator.NoInformationAnswer,
		NeedsFallback:  true,
	})
	assert.Equal(t, []string{"search", "knowledge"}, c.Failures)
	assert.NotContains(t, c.Replies, KindKnowledge)
	assert.True(t, *c.Expect.NeedsFallback)
}

func TestCaseFromRecord_Rejected(t *testing.T) {
	c := CaseFromRecord(logging.QueryRecord{Query: "DROP TABLE x", AnswerSource: "none", RejectionReason: "sql"})
	assert.False(t, *c.Expect.Valid)
	assert.Empty(t, c.Replies)
	assert.Nil(t, c.Expect.IsGrounded)
	assert.Nil(t, c.Expect.AttemptedTools)
}

func TestCaseFromRecord_Web(t *testing.T) {
	c := CaseFromRecord(logging.QueryRecord{
		Valid:          true,
		AttemptedTools: []string{"search"},
		AnswerSource:   "search",
		AnswerText:     "news",
		Citations:      []logging.Citation{{Kind: "web", Label: "T", Locator: "https://x.test", Preview: "S"}},
	})
	assert.Equal(t, []FixtureWeb{{Title: "T", Snippet: "S", URL: "https://x.test"}}, c.Results)
	assert.Equal(t, "news", c.Replies[KindSearch])
}
