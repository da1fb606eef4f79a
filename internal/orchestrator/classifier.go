package orchestrator

// #region imports
import (
	"context"
	"fmt"

	charmlog "github.com/charmbracelet/log"

	"github.com/danielpatrickdp/agentic-rag/internal/errs"
	"github.com/danielpatrickdp/agentic-rag/internal/llm"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/parse"
)

// #endregion

// #region prompt

const classifyPrompt = `Analyze the following query and determine the best source to answer it.

Query: %s

Categories:
- document: Questions about specific documents, files, people, companies, or any named entities that might be in uploaded documents
- knowledge: General knowledge questions answerable from training data (definitions, concepts, history, science)
- search: Questions about current events, recent news, real-time information, or things that change frequently

Important: If the query mentions specific names, people, companies, or entities, classify it as "document" since the user may have uploaded relevant documents.

Respond in this exact format:
Category: [document/knowledge/search]
Confidence: [0.0-1.0]`

// #endregion

// #region defaults

const (
	DefaultIntent           = IntentDocument
	DefaultIntentConfidence = 0.5
)

// #endregion

// #region classifier

// Classification is the classifier output.
type Classification struct {
	Intent     Intent
	Confidence float64
	// Defaulted is set when the model call or the parse failed.
	Defaulted bool
}

// Classifier labels a query's likely answer source with a model call.
type Classifier struct {
	llm llm.Completer
	log *charmlog.Logger
}

// NewClassifier creates a classifier backed by c.
func NewClassifier(c llm.Completer, log *charmlog.Logger) *Classifier {
	return &Classifier{llm: c, log: logger.Component(log, "classifier")}
}

// Classify never fails: transport and parse errors fall back to
// document/0.5. The returned error is diagnostic only.
func (c *Classifier) Classify(ctx context.Context, query string) (Classification, error) {
	out, err := c.llm.Complete(ctx, fmt.Sprintf(classifyPrompt, query))
	if err != nil {
		c.log.Warn("classification call failed, using default", "err", err)
		return defaultClassification(), errs.NewToolExecution("classifier", err)
	}

	parsed, err := parse.ParseClassification(out)
	if err != nil {
		c.log.Warn("classification unparseable, using default", "err", err)
		return defaultClassification(), err
	}

	c.log.Debug("classified", "intent", parsed.Category, "confidence", parsed.Confidence)
	return Classification{Intent: Intent(parsed.Category), Confidence: parsed.Confidence}, nil
}

func defaultClassification() Classification {
	return Classification{Intent: DefaultIntent, Confidence: DefaultIntentConfidence, Defaulted: true}
}

// #endregion
