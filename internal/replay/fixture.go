package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/agentic-rag/internal/gate"
	"github.com/danielpatrickdp/agentic-rag/internal/guard"
	"github.com/danielpatrickdp/agentic-rag/internal/index"
	"github.com/danielpatrickdp/agentic-rag/internal/orchestrator"
	"github.com/danielpatrickdp/agentic-rag/internal/websearch"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	Config      FixtureConfig `json:"config"`
	Cases       []FixtureCase `json:"cases"`
}

// FixtureConfig mirrors ReplayConfig with JSON tags. Zero fields take defaults.
type FixtureConfig struct {
	TopK                   int     `json:"top_k"`
	SimilarityThreshold    float64 `json:"similarity_threshold"`
	RelevanceThreshold     float64 `json:"relevance_threshold"`
	HallucinationThreshold float64 `json:"hallucination_threshold"`
	ConfidenceThreshold    float64 `json:"confidence_threshold"`
	MaxQueryLength         int     `json:"max_query_length"`
}

// FixtureCase is one query plus everything its backends will say.
type FixtureCase struct {
	ID    string `json:"id"`
	Query string `json:"query"`

	// Replies maps a prompt kind (classify, relevance, grounding, synthesis,
	// knowledge, search) to the model's scripted reply.
	Replies map[string]string `json:"replies"`
	// Failures lists prompt kinds whose model call errors instead.
	Failures []string `json:"failures,omitempty"`

	CorpusSize  int          `json:"corpus_size"`
	Hits        []FixtureHit `json:"hits,omitempty"`
	IndexError  string       `json:"index_error,omitempty"`
	Results     []FixtureWeb `json:"search_results,omitempty"`
	SearchError string       `json:"search_error,omitempty"`

	Expect FixtureExpect `json:"expect"`
}

// FixtureHit mirrors index.Scored with a flat JSON layout.
type FixtureHit struct {
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// FixtureWeb mirrors websearch.Result.
type FixtureWeb struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// FixtureExpect holds the outcome a case must reach. Empty or nil fields are
// not checked.
type FixtureExpect struct {
	Valid          *bool    `json:"valid,omitempty"`
	SelectedTool   string   `json:"selected_tool,omitempty"`
	AnswerSource   string   `json:"answer_source,omitempty"`
	IsGrounded     *bool    `json:"is_grounded,omitempty"`
	NeedsFallback  *bool    `json:"needs_fallback,omitempty"`
	AttemptedTools []string `json:"attempted_tools,omitempty"`
	AnswerContains string   `json:"answer_contains,omitempty"`
}

// #endregion fixture-types

// #region load

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	for i, c := range f.Cases {
		if c.ID == "" {
			f.Cases[i].ID = fmt.Sprintf("case-%d", i+1)
		}
	}
	return &f, nil
}

// #endregion load

// #region converters

// ToReplayConfig converts a FixtureConfig to a ReplayConfig, filling defaults.
func (fc FixtureConfig) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	if fc.TopK > 0 {
		cfg.TopK = fc.TopK
	}
	if fc.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = fc.SimilarityThreshold
	}
	if fc.RelevanceThreshold > 0 {
		cfg.Gate.RelevanceThreshold = fc.RelevanceThreshold
	}
	if fc.HallucinationThreshold > 0 {
		cfg.Gate.HallucinationThreshold = fc.HallucinationThreshold
	}
	if fc.ConfidenceThreshold > 0 {
		cfg.ConfidenceThreshold = fc.ConfidenceThreshold
	}
	if fc.MaxQueryLength > 0 {
		cfg.MaxQueryLength = fc.MaxQueryLength
	}
	return cfg
}

// ToScored converts a FixtureHit to an index hit with a stable ID.
func (h FixtureHit) ToScored(i int) index.Scored {
	return index.Scored{
		Passage: index.Passage{
			ID:     fmt.Sprintf("%s#%d#%d", h.Source, h.Page, i),
			Text:   h.Text,
			Source: h.Source,
			Page:   h.Page,
		},
		Score: h.Score,
	}
}

// ToResult converts a FixtureWeb to a search result.
func (w FixtureWeb) ToResult() websearch.Result {
	return websearch.Result{Title: w.Title, Snippet: w.Snippet, URL: w.URL}
}

// #endregion converters

// #region config

// ReplayConfig bundles the pipeline knobs a replay run uses.
type ReplayConfig struct {
	TopK                int
	SimilarityThreshold float64
	ConfidenceThreshold float64
	MaxQueryLength      int
	Gate                gate.Config
}

// DefaultReplayConfig matches the production defaults.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		TopK:                5,
		SimilarityThreshold: 0.7,
		ConfidenceThreshold: orchestrator.DefaultConfidenceThreshold,
		MaxQueryLength:      guard.DefaultMaxLength,
		Gate:                gate.DefaultConfig(),
	}
}

// #endregion config
