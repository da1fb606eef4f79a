// Package gate scores retrieved evidence and generated answers with a model judge.
package gate

import (
	"context"
	"fmt"
	"strings"

	charmlog "github.com/charmbracelet/log"

	"github.com/danielpatrickdp/agentic-rag/internal/llm"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/parse"
)

// #region prompts
const relevancePrompt = `You are a relevance evaluator. Determine if the provided context can answer the user's question.

Question: %s

Context:
%s

Rate the relevance on a scale from 0.0 to 1.0:
- 1.0: Context directly and completely answers the question
- 0.5: Context partially answers or is somewhat related
- 0.0: Context is completely irrelevant

Respond with ONLY a number between 0.0 and 1.0, nothing else.`

const groundingPrompt = `You are a factual grounding evaluator. Determine if the response is fully supported by the provided context.

Question: %s

Context:
%s

Response:
%s

Evaluate if EVERY claim in the response is supported by the context. Rate from 0.0 to 1.0:
- 1.0: Every claim is directly supported by the context
- 0.5: Some claims are supported, others are not
- 0.0: The response is not supported by the context

Respond with ONLY a number between 0.0 and 1.0, nothing else.`

// maxEvidence caps how many evidence texts reach the relevance judge.
const maxEvidence = 3

// #endregion prompts

// #region gate
// Gate evaluates evidence relevance and answer groundedness.
type Gate struct {
	config Config
	judge  llm.Completer
	log    *charmlog.Logger
}

// NewGate creates a gate that asks judge for scores.
func NewGate(config Config, judge llm.Completer, log *charmlog.Logger) *Gate {
	return &Gate{config: config, judge: judge, log: logger.Component(log, "gate")}
}

// Config returns the thresholds in use.
func (g *Gate) Config() Config {
	return g.config
}

// #endregion gate

// #region relevance
// Relevance scores whether evidence can answer query. Empty evidence is
// irrelevant without a model call. A failed or unparseable judge reply
// defaults to DefaultScore and counts as relevant.
func (g *Gate) Relevance(ctx context.Context, query string, evidence []string) RelevanceDecision {
	if len(evidence) == 0 {
		return RelevanceDecision{Score: 0, IsRelevant: false, Reason: ReasonNoEvidence}
	}
	if len(evidence) > maxEvidence {
		evidence = evidence[:maxEvidence]
	}

	out, err := g.judge.Complete(ctx, fmt.Sprintf(relevancePrompt, query, strings.Join(evidence, "\n\n")))
	if err == nil {
		var score float64
		if score, err = parse.Score(out); err == nil {
			d := RelevanceDecision{Score: score, IsRelevant: score >= g.config.RelevanceThreshold, Reason: ReasonScored}
			g.log.Debug("relevance", "score", score, "relevant", d.IsRelevant)
			return d
		}
	}

	g.log.Warn("relevance judge failed, defaulting", "err", err)
	return RelevanceDecision{Score: DefaultScore, IsRelevant: true, Reason: ReasonDefaulted, Defaulted: true}
}

// #endregion relevance

// #region groundedness
// Groundedness checks answer against evidence. Only retrieval-sourced answers
// are scored; others pass with confidence 1.0. A retrieval answer with no
// evidence fails with 0.0. A failed or unparseable judge reply fails open at
// DefaultScore.
func (g *Gate) Groundedness(ctx context.Context, query, answer, evidence, source string) GroundingDecision {
	if source != SourceRetrieval {
		return GroundingDecision{IsGrounded: true, Confidence: 1.0, Reason: ReasonNotRetrieval}
	}
	if strings.TrimSpace(evidence) == "" {
		return GroundingDecision{IsGrounded: false, Confidence: 0.0, Reason: ReasonNoEvidence}
	}

	out, err := g.judge.Complete(ctx, fmt.Sprintf(groundingPrompt, query, evidence, answer))
	if err == nil {
		var conf float64
		if conf, err = parse.Score(out); err == nil {
			d := GroundingDecision{IsGrounded: conf >= g.config.HallucinationThreshold, Confidence: conf, Reason: ReasonScored}
			g.log.Debug("groundedness", "confidence", conf, "grounded", d.IsGrounded)
			return d
		}
	}

	g.log.Warn("grounding judge failed, defaulting", "err", err)
	return GroundingDecision{IsGrounded: true, Confidence: DefaultScore, Reason: ReasonDefaulted, Defaulted: true}
}

// #endregion groundedness
