package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentic-rag/internal/cli"
	"github.com/danielpatrickdp/agentic-rag/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/store"
)

// #region main

var (
	flags     cli.ConfigFlags
	dbPath    string
	jsonlPath string
	jsonOut   bool
)

func main() {
	cli.Execute(newRoot())
}

func newRoot() *cobra.Command {
	var (
		last      int
		requestID string
		source    string
	)
	root := &cobra.Command{
		Use:   "inspect",
		Short: "Browse the query log",
		Long: `Lists logged queries, shows one in detail, or summarises pipeline health.
Reads the SQLite query log when enabled, otherwise the JSONL log; --db and
--jsonl pick one explicitly.

  inspect --last 20
  inspect --id 3f2a...
  inspect --source knowledge --json
  inspect stats --window 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, closeFn, err := openSource()
			if err != nil {
				return err
			}
			defer closeFn()
			if requestID != "" {
				return runDetailMode(cmd.OutOrStdout(), rs, requestID, jsonOut)
			}
			return runListMode(cmd.OutOrStdout(), rs, last, source, jsonOut)
		},
	}
	flags.Bind(root)
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite query log")
	root.PersistentFlags().StringVar(&jsonlPath, "jsonl", "", "path to the JSONL query log")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	root.Flags().IntVar(&last, "last", 20, "show N most recent queries")
	root.Flags().StringVar(&requestID, "id", "", "show one query in detail")
	root.Flags().StringVar(&source, "source", "", "only queries answered from this source")

	var window time.Duration
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Summarise the log and check it against the health thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return cli.Exit(2, err)
			}
			rs, closeFn, err := openSource()
			if err != nil {
				return err
			}
			defer closeFn()
			ec := eval.EvalConfig{
				MaxErrorRate:       cfg.Eval.MaxErrorRate,
				MinAvgGroundedness: cfg.Eval.MinAvgGroundedness,
				MinQueries:         cfg.Eval.MinQueries,
			}
			return runStatsMode(cmd.OutOrStdout(), rs, window, ec, cfg.Server.OutcomeHalfLife, time.Now(), jsonOut)
		},
	}
	stats.Flags().DurationVar(&window, "window", eval.DefaultWindow, "trailing window; 0 for the whole log")
	root.AddCommand(stats)
	return root
}

// #endregion main

// #region sources

// recordSource is the read side shared by the SQLite and JSONL logs.
type recordSource interface {
	ListRecent(limit int) ([]logging.QueryRecord, error)
	Since(t time.Time) ([]logging.QueryRecord, error)
	Get(requestID string) (logging.QueryRecord, error)
}

// outcomeSource is implemented by the SQLite log only.
type outcomeSource interface {
	ToolOutcomes(now time.Time, halfLife time.Duration) ([]store.ToolOutcome, error)
}

func openSource() (recordSource, func() error, error) {
	if dbPath != "" && jsonlPath != "" {
		return nil, nil, cli.Exit(2, errors.New("--db and --jsonl are mutually exclusive"))
	}
	db, jl := dbPath, jsonlPath
	if db == "" && jl == "" {
		cfg, err := flags.Load()
		if err != nil {
			return nil, nil, cli.Exit(2, err)
		}
		if db = cfg.QueryDBPath(); db == "" {
			jl = cfg.QueryLogPath()
		}
	}
	if db != "" {
		st, err := store.NewStore(db)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		return st, st.Close, nil
	}
	recs, err := logging.ReadJSONLFile(jl)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", jl, err)
	}
	return newJSONLSource(recs), func() error { return nil }, nil
}

// jsonlSource serves a JSONL log held in memory, sorted oldest first.
type jsonlSource struct {
	recs []logging.QueryRecord
}

func newJSONLSource(recs []logging.QueryRecord) *jsonlSource {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	return &jsonlSource{recs: recs}
}

func (s *jsonlSource) ListRecent(limit int) ([]logging.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []logging.QueryRecord
	for i := len(s.recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recs[i])
	}
	return out, nil
}

func (s *jsonlSource) Since(t time.Time) ([]logging.QueryRecord, error) {
	i := sort.Search(len(s.recs), func(i int) bool { return !s.recs[i].Timestamp.Before(t) })
	return s.recs[i:], nil
}

func (s *jsonlSource) Get(requestID string) (logging.QueryRecord, error) {
	for _, r := range s.recs {
		if r.RequestID == requestID {
			return r, nil
		}
	}
	return logging.QueryRecord{}, fmt.Errorf("get %s: %w", requestID, sql.ErrNoRows)
}

// #endregion sources

// #region list-mode

type listRow struct {
	RequestID string   `json:"request_id"`
	Time      string   `json:"time"`
	Source    string   `json:"answer_source"`
	Tools     string   `json:"tools"`
	Relevance *float64 `json:"relevance_score,omitempty"`
	Grounded  *float64 `json:"groundedness_confidence,omitempty"`
	ElapsedMS int64    `json:"elapsed_ms"`
	Query     string   `json:"query"`
	Error     string   `json:"error,omitempty"`
}

func runListMode(w io.Writer, rs recordSource, last int, source string, jsonOut bool) error {
	recs, err := rs.ListRecent(last)
	if err != nil {
		return err
	}
	if source != "" {
		kept := recs[:0]
		for _, r := range recs {
			if r.AnswerSource == source {
				kept = append(kept, r)
			}
		}
		recs = kept
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "no queries found")
		return nil
	}

	// newest first from the source, shown chronologically
	rows := make([]listRow, len(recs))
	for i, r := range recs {
		status := r.Error
		if !r.Valid {
			status = "rejected: " + r.RejectionReason
		}
		rows[len(recs)-1-i] = listRow{
			RequestID: r.RequestID,
			Time:      r.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			Source:    r.AnswerSource,
			Tools:     strings.Join(r.AttemptedTools, ">"),
			Relevance: r.RelevanceScore,
			Grounded:  r.GroundednessConfidence,
			ElapsedMS: r.Elapsed.Milliseconds(),
			Query:     r.Query,
			Error:     status,
		}
	}

	if jsonOut {
		return cli.PrintJSON(w, rows)
	}
	return printListTable(w, rows)
}

func printListTable(w io.Writer, rows []listRow) error {
	fmt.Fprintf(w, "%-10s  %-20s  %-9s  %-26s  %5s  %6s  %8s  %s\n",
		"Request", "Time", "Source", "Tools", "Rel", "Ground", "Elapsed", "Query")
	fmt.Fprintf(w, "%-10s+-%-20s+-%-9s+-%-26s+-%5s+-%6s+-%8s+-%s\n",
		"----------", "--------------------", "---------", "--------------------------", "-----", "------", "--------", "--------------------")

	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Source]++
		query := cli.Truncate(strings.Join(strings.Fields(r.Query), " "), 48)
		if r.Error != "" {
			query += "  [" + cli.Truncate(r.Error, 40) + "]"
		}
		fmt.Fprintf(w, "%-10s  %-20s  %-9s  %-26s  %5s  %6s  %7dms  %s\n",
			cli.ShortID(r.RequestID), r.Time, r.Source, cli.Truncate(r.Tools, 26),
			score(r.Relevance), score(r.Grounded), r.ElapsedMS, query)
	}

	fmt.Fprintf(w, "\nAnswer sources (shown):\n")
	printCounts(w, counts)
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(w io.Writer, rs recordSource, requestID string, jsonOut bool) error {
	rec, err := rs.Get(requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no query with id %s", requestID)
	}
	if err != nil {
		return err
	}
	if jsonOut {
		return cli.PrintJSON(w, rec)
	}

	fmt.Fprintf(w, "Request:    %s\n", rec.RequestID)
	fmt.Fprintf(w, "Time:       %s\n", rec.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Query:      %s\n", rec.Query)
	if !rec.Valid {
		fmt.Fprintf(w, "Rejected:   %s\n", rec.RejectionReason)
	}
	fmt.Fprintf(w, "Intent:     %s (%.2f)\n", rec.Intent, rec.IntentConfidence)
	fmt.Fprintf(w, "Tools:      %s (selected %s)\n", strings.Join(rec.AttemptedTools, " > "), rec.SelectedTool)
	fmt.Fprintf(w, "Corpus:     %d passages\n", rec.CorpusSize)
	fmt.Fprintf(w, "Source:     %s\n", rec.AnswerSource)
	fmt.Fprintf(w, "Elapsed:    %s\n", rec.Elapsed.Round(time.Millisecond))
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", rec.Error)
	}

	fmt.Fprintf(w, "\nGates:\n")
	fmt.Fprintf(w, "  Relevance:    %s (relevant=%v)\n", score(rec.RelevanceScore), rec.IsRelevant)
	fmt.Fprintf(w, "  Groundedness: %s (grounded=%v)\n", score(rec.GroundednessConfidence), rec.IsGrounded)
	fmt.Fprintf(w, "  Fallback:     %v\n", rec.NeedsFallback)

	fmt.Fprintf(w, "\nAnswer:\n%s\n", rec.AnswerText)

	if len(rec.Citations) > 0 {
		fmt.Fprintf(w, "\nCitations:\n")
		for _, c := range rec.Citations {
			line := fmt.Sprintf("  %-16s %s", c.Kind, c.Label)
			if c.Locator != "" {
				line += " @ " + c.Locator
			}
			if c.Score != nil {
				line += fmt.Sprintf(" (%.2f)", *c.Score)
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

// #endregion detail-mode

// #region stats-mode

type statsOutput struct {
	Summary      eval.Summary        `json:"summary"`
	Health       eval.EvalResult     `json:"health"`
	ToolOutcomes []store.ToolOutcome `json:"tool_outcomes,omitempty"`
}

func runStatsMode(w io.Writer, rs recordSource, window time.Duration, ec eval.EvalConfig, halfLife time.Duration, now time.Time, jsonOut bool) error {
	var since time.Time
	if window > 0 {
		since = now.Add(-window)
	}
	recs, err := rs.Since(since)
	if err != nil {
		return err
	}
	out := statsOutput{Summary: eval.Summarize(recs, window, now)}
	out.Health = eval.NewEvalHarness(ec).Check(out.Summary)
	if oc, ok := rs.(outcomeSource); ok && halfLife > 0 {
		if out.ToolOutcomes, err = oc.ToolOutcomes(now, halfLife); err != nil {
			return err
		}
	}

	if jsonOut {
		if err := cli.PrintJSON(w, out); err != nil {
			return err
		}
	} else {
		printStats(w, out)
	}
	if !out.Health.Passed {
		return cli.Exit(1, nil)
	}
	return nil
}

func printStats(w io.Writer, out statsOutput) {
	s := out.Summary
	label := "all"
	if s.Window > 0 {
		label = s.Window.String()
	}
	fmt.Fprintf(w, "Window:       %s\n", label)
	fmt.Fprintf(w, "Queries:      %d (%d rejected, %d fallbacks)\n", s.TotalQueries, s.Rejected, s.Fallbacks)
	fmt.Fprintf(w, "Errors:       %d (%.1f%%)\n", s.ErrorCount, s.ErrorRate*100)
	fmt.Fprintf(w, "Avg Elapsed:  %s\n", s.AvgElapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Avg Relevance:    %.2f\n", s.AvgRelevance)
	fmt.Fprintf(w, "Avg Groundedness: %.2f\n", s.AvgGroundedness)

	fmt.Fprintf(w, "\nAnswer sources:\n")
	printCounts(w, s.SourceDistribution)

	if len(out.ToolOutcomes) > 0 {
		fmt.Fprintf(w, "\nTool outcomes (decayed):\n")
		for _, o := range out.ToolOutcomes {
			fmt.Fprintf(w, "  %-12s %5.1f%%  (%d queries)\n", o.Tool, o.SuccessRate*100, o.Count)
		}
	}

	fmt.Fprintf(w, "\nHealth: %s\n", out.Health.Reason)
	for _, m := range out.Health.Metrics {
		mark := "ok"
		if !m.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  %-18s %.3f  %s\n", m.Name, m.Value, mark)
	}
}

// #endregion stats-mode

// #region output

func printCounts(w io.Writer, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %d\n", name, counts[name])
	}
}

func score(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

// #endregion output
