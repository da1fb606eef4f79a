package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"strings"

	charmlog "github.com/charmbracelet/log"

	"github.com/danielpatrickdp/agentic-rag/internal/errs"
	"github.com/danielpatrickdp/agentic-rag/internal/llm"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
)

// #endregion

// #region prompt

const synthesisPrompt = `Based on the following document excerpts, answer the user's question. Be specific and cite which document you're referencing.

Question: %s

Documents:
%s

Provide a clear, accurate answer based ONLY on the information in these documents:`

// MaxContextItems caps how many evidence items reach synthesis and grounding prompts.
const MaxContextItems = 3

// #endregion

// #region synthesizer

// Synthesizer turns retrieved evidence into an answer.
type Synthesizer struct {
	llm llm.Completer
	log *charmlog.Logger
}

// NewSynthesizer creates a synthesizer backed by c.
func NewSynthesizer(c llm.Completer, log *charmlog.Logger) *Synthesizer {
	return &Synthesizer{llm: c, log: logger.Component(log, "synthesizer")}
}

// Synthesize answers strictly from evidence. Without evidence it returns
// NoInformationAnswer and SourceNone without a model call.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, evidence []EvidenceItem) (string, AnswerSource, error) {
	if len(evidence) == 0 {
		return NoInformationAnswer, SourceNone, nil
	}
	out, err := s.llm.Complete(ctx, fmt.Sprintf(synthesisPrompt, query, FormatContext(evidence)))
	if err != nil {
		s.log.Warn("synthesis failed", "err", err)
		return "", SourceNone, errs.NewToolExecution("synthesizer", err)
	}
	return strings.TrimSpace(out), SourceRetrieval, nil
}

// FormatContext renders the first MaxContextItems items as "[origin - Page locator]" blocks.
func FormatContext(evidence []EvidenceItem) string {
	n := min(len(evidence), MaxContextItems)
	parts := make([]string, n)
	for i, e := range evidence[:n] {
		parts[i] = fmt.Sprintf("[%s - Page %s]\n%s", e.OriginID, e.Locator, e.Text)
	}
	return strings.Join(parts, "\n\n")
}

// EvidenceText joins the first MaxContextItems evidence texts for the gates.
func EvidenceText(evidence []EvidenceItem) string {
	n := min(len(evidence), MaxContextItems)
	parts := make([]string, n)
	for i, e := range evidence[:n] {
		parts[i] = e.Text
	}
	return strings.Join(parts, "\n\n")
}

// #endregion
