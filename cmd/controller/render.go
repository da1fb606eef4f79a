package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danielpatrickdp/agentic-rag/internal/cli"
	"github.com/danielpatrickdp/agentic-rag/internal/orchestrator"
	"github.com/danielpatrickdp/agentic-rag/internal/websearch"
)

type pipeline interface {
	Handle(ctx context.Context, query string) *orchestrator.RequestState
}

// #region render

func render(w io.Writer, st *orchestrator.RequestState, asJSON, verbose bool) error {
	if asJSON {
		return cli.PrintJSON(w, st)
	}

	fmt.Fprintf(w, "\n%s\n\n", st.AnswerText)
	if !st.Valid {
		fmt.Fprintf(w, "[rejected] %s\n\n", st.RejectionReason)
		return nil
	}

	var web []websearch.Result
	for _, c := range st.Citations {
		switch c.Kind {
		case orchestrator.CitationDocument:
			line := fmt.Sprintf("  - %s, page %s", c.Label, c.Locator)
			if c.Score != nil {
				line += fmt.Sprintf(" (%.2f)", *c.Score)
			}
			fmt.Fprintln(w, line)
		case orchestrator.CitationWeb:
			web = append(web, websearch.Result{Title: c.Label, Snippet: c.Preview, URL: c.Locator})
		case orchestrator.CitationModelKnowledge:
			fmt.Fprintf(w, "  - model knowledge: %s\n", c.Label)
		}
	}
	if len(web) > 0 {
		fmt.Fprint(w, websearch.FormatAsEvidence(web))
	}

	fmt.Fprintf(w, "[%s] source=%s elapsed=%s\n", cli.ShortID(st.RequestID), st.AnswerSource, st.Elapsed.Round(time.Millisecond))
	if verbose {
		tools := make([]string, len(st.AttemptedTools))
		for i, t := range st.AttemptedTools {
			tools[i] = string(t)
		}
		fmt.Fprintf(w, "  intent=%s (%.2f) tools=%s corpus=%d\n",
			st.Intent, st.IntentConfidence, strings.Join(tools, ">"), st.CorpusSize)
		fmt.Fprintf(w, "  relevance=%s grounded=%t confidence=%s\n",
			score(st.RelevanceScore), st.IsGrounded, score(st.GroundednessConfidence))
	}
	if st.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", st.Error)
	}
	fmt.Fprintln(w)
	return nil
}

func score(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

// #endregion render
