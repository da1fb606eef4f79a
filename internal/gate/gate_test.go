package gate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentic-rag/internal/llm"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
)

type judge struct {
	reply  string
	err    error
	calls  int
	prompt string
}

func (j *judge) Complete(_ context.Context, prompt string) (string, error) {
	j.calls++
	j.prompt = prompt
	return j.reply, j.err
}

func newGate(j llm.Completer) *Gate {
	return NewGate(DefaultConfig(), j, logger.Nop())
}

func TestRelevanceEmptyEvidenceSkipsJudge(t *testing.T) {
	j := &judge{reply: "1.0"}
	d := newGate(j).Relevance(context.Background(), "q", nil)

	assert.Equal(t, 0.0, d.Score)
	assert.False(t, d.IsRelevant)
	assert.Equal(t, ReasonNoEvidence, d.Reason)
	assert.Zero(t, j.calls)
}

func TestRelevanceThreshold(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		score    float64
		relevant bool
	}{
		{"high", "0.9", 0.9, true},
		{"at-threshold", "0.6", 0.6, true},
		{"below", "0.3", 0.3, false},
		{"clamped-high", "1.7", 1.0, true},
		{"clamped-low", "-2", 0.0, false},
		{"whitespace", "  0.8\n", 0.8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newGate(&judge{reply: tt.reply}).Relevance(context.Background(), "q", []string{"passage"})
			assert.InDelta(t, tt.score, d.Score, 1e-9)
			assert.Equal(t, tt.relevant, d.IsRelevant)
			assert.False(t, d.Defaulted)
		})
	}
}

func TestRelevanceDefaultsOnJudgeFailure(t *testing.T) {
	tests := []struct {
		name string
		j    *judge
	}{
		{"unparseable", &judge{reply: "The context is fairly relevant"}},
		{"empty", &judge{reply: ""}},
		{"two-numbers", &judge{reply: "0.2 0.9"}},
		{"transport", &judge{err: errors.New("connection reset")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newGate(tt.j).Relevance(context.Background(), "q", []string{"passage"})
			assert.Equal(t, DefaultScore, d.Score)
			assert.True(t, d.IsRelevant)
			assert.True(t, d.Defaulted)
		})
	}
}

func TestRelevanceUsesFirstThreeEvidenceTexts(t *testing.T) {
	j := &judge{reply: "0.9"}
	newGate(j).Relevance(context.Background(), "q", []string{"one", "two", "three", "four"})

	require.Equal(t, 1, j.calls)
	assert.Contains(t, j.prompt, "one\n\ntwo\n\nthree")
	assert.NotContains(t, j.prompt, "four")
}

func TestGroundednessShortCircuitsNonRetrieval(t *testing.T) {
	for _, source := range []string{"knowledge", "search", "none"} {
		t.Run(source, func(t *testing.T) {
			j := &judge{reply: "0.0"}
			d := newGate(j).Groundedness(context.Background(), "q", "answer", "evidence", source)
			assert.True(t, d.IsGrounded)
			assert.Equal(t, 1.0, d.Confidence)
			assert.Zero(t, j.calls)
		})
	}
}

func TestGroundednessMissingEvidence(t *testing.T) {
	j := &judge{reply: "1.0"}
	d := newGate(j).Groundedness(context.Background(), "q", "answer", "   ", SourceRetrieval)

	assert.False(t, d.IsGrounded)
	assert.Equal(t, 0.0, d.Confidence)
	assert.Zero(t, j.calls)
}

func TestGroundednessScored(t *testing.T) {
	tests := []struct {
		reply    string
		conf     float64
		grounded bool
	}{
		{"0.95", 0.95, true},
		{"0.7", 0.7, true},
		{"0.4", 0.4, false},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			j := &judge{reply: tt.reply}
			d := newGate(j).Groundedness(context.Background(), "q", "the answer", "the evidence", SourceRetrieval)
			assert.InDelta(t, tt.conf, d.Confidence, 1e-9)
			assert.Equal(t, tt.grounded, d.IsGrounded)
			assert.True(t, strings.Contains(j.prompt, "the answer") && strings.Contains(j.prompt, "the evidence"))
		})
	}
}

func TestGroundednessFailsOpen(t *testing.T) {
	d := newGate(&judge{reply: "mostly supported"}).Groundedness(context.Background(), "q", "a", "e", SourceRetrieval)
	assert.True(t, d.IsGrounded)
	assert.Equal(t, DefaultScore, d.Confidence)
	assert.True(t, d.Defaulted)

	d = newGate(&judge{err: errors.New("timeout")}).Groundedness(context.Background(), "q", "a", "e", SourceRetrieval)
	assert.True(t, d.IsGrounded)
	assert.Equal(t, DefaultScore, d.Confidence)
}
