package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentic-rag/internal/cli"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/replay"
)

// #region main

func main() {
	var (
		fixturePath string
		only        []string
		jsonOut     bool
		verbose     bool
	)
	root := &cobra.Command{
		Use:   "replay --fixture path/to/fixture.json",
		Short: "Replay scripted pipeline cases and compare outcomes",
		Long: `Runs each fixture case through the full pipeline on scripted model, index
and search backends, then compares the outcome with the case's expectations.
Exits 1 when any case diverges, 2 when the fixture cannot be loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.Nop()
			if verbose {
				lc := logger.DefaultConfig()
				lc.Level = "debug"
				lc.Output = cmd.ErrOrStderr()
				log = logger.New(lc)
			}
			code, err := runFixtureMode(cmd.Context(), cmd.OutOrStdout(), fixturePath, only, jsonOut, log)
			if err != nil {
				return cli.Exit(2, err)
			}
			if code != 0 {
				return cli.Exit(code, nil)
			}
			return nil
		},
	}
	root.Flags().StringVarP(&fixturePath, "fixture", "f", "", "path to fixture JSON")
	root.Flags().StringSliceVar(&only, "case", nil, "run only these case IDs")
	root.Flags().BoolVar(&jsonOut, "json", false, "output results as JSON")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline steps to stderr")
	_ = root.MarkFlagRequired("fixture")

	cli.Execute(root)
}

// #endregion main

// #region run

type jsonReport struct {
	Results []caseReport         `json:"results"`
	Summary replay.ReplaySummary `json:"summary"`
}

type caseReport struct {
	CaseID     string   `json:"case_id"`
	Passed     bool     `json:"passed"`
	Source     string   `json:"answer_source"`
	Tools      []string `json:"attempted_tools"`
	Mismatches []string `json:"mismatches,omitempty"`
}

func runFixtureMode(ctx context.Context, out io.Writer, path string, only []string, jsonOut bool, log *charmlog.Logger) (int, error) {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return 0, fmt.Errorf("load fixture: %w", err)
	}
	cases, err := selectCases(f.Cases, only)
	if err != nil {
		return 0, err
	}

	results, records := replay.Replay(ctx, cases, f.Config.ToReplayConfig(), log)
	summary := replay.Summarize(results, records)

	if jsonOut {
		if err := cli.PrintJSON(out, toReport(results, summary)); err != nil {
			return 0, err
		}
	} else {
		printComparison(out, f.Description, cases, results, summary)
	}
	if summary.Failed > 0 || len(results) < len(cases) {
		return 1, nil
	}
	return 0, nil
}

func selectCases(all []replay.FixtureCase, only []string) ([]replay.FixtureCase, error) {
	if len(only) == 0 {
		return all, nil
	}
	byID := make(map[string]replay.FixtureCase, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	out := make([]replay.FixtureCase, 0, len(only))
	for _, id := range only {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("no case %q in fixture", id)
		}
		out = append(out, c)
	}
	return out, nil
}

// #endregion run

// #region output

func expectedSource(c replay.FixtureCase) string {
	if c.Expect.AnswerSource == "" {
		return "-"
	}
	return c.Expect.AnswerSource
}

func printComparison(w io.Writer, description string, cases []replay.FixtureCase, results []replay.ReplayResult, s replay.ReplaySummary) {
	if description != "" {
		fmt.Fprintf(w, "%s\n\n", description)
	}
	fmt.Fprintf(w, "%-32s| %-10s| %-10s| %-26s| %s\n", "Case", "Expected", "Replayed", "Tools", "Match")
	fmt.Fprintf(w, "%-32s+%-11s+%-11s+%-27s+%s\n",
		"--------------------------------", "-----------", "-----------", "---------------------------", "------")

	for i, r := range results {
		got, tools := "-", "-"
		if r.State != nil {
			got = string(r.State.AnswerSource)
			names := make([]string, len(r.State.AttemptedTools))
			for j, t := range r.State.AttemptedTools {
				names[j] = string(t)
			}
			if len(names) > 0 {
				tools = strings.Join(names, ">")
			}
		}
		match := "OK"
		if !r.Passed {
			match = "DIFF"
		}
		fmt.Fprintf(w, "%-32s| %-10s| %-10s| %-26s| %s\n",
			cli.Truncate(r.CaseID, 32), expectedSource(cases[i]), got, cli.Truncate(tools, 26), match)
	}

	var diverged bool
	for _, r := range results {
		if r.Passed {
			continue
		}
		if !diverged {
			fmt.Fprintf(w, "\nMismatches:\n")
			diverged = true
		}
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "  %s: %s\n", r.CaseID, m)
		}
	}

	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", s.TotalCases, s.Passed, s.Failed)
	sources := make([]string, 0, len(s.BySource))
	for name := range s.BySource {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	parts := make([]string, len(sources))
	for i, name := range sources {
		parts[i] = fmt.Sprintf("%s=%d", name, s.BySource[name])
	}
	fmt.Fprintf(w, "Sources: %s | rejected=%d fallbacks=%d avg_relevance=%.2f avg_groundedness=%.2f\n",
		strings.Join(parts, " "), s.Pipeline.Rejected, s.Pipeline.Fallbacks, s.Pipeline.AvgRelevance, s.Pipeline.AvgGroundedness)
}

func toReport(results []replay.ReplayResult, s replay.ReplaySummary) jsonReport {
	rep := jsonReport{Results: make([]caseReport, len(results)), Summary: s}
	for i, r := range results {
		cr := caseReport{CaseID: r.CaseID, Passed: r.Passed, Mismatches: r.Mismatches, Tools: []string{}}
		if r.State != nil {
			cr.Source = string(r.State.AnswerSource)
			for _, t := range r.State.AttemptedTools {
				cr.Tools = append(cr.Tools, string(t))
			}
		}
		rep.Results[i] = cr
	}
	return rep
}

// #endregion output
