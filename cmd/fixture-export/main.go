package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentic-rag/internal/cli"
	"github.com/danielpatrickdp/agentic-rag/internal/config"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/replay"
	"github.com/danielpatrickdp/agentic-rag/internal/store"
)

// #region main

func main() {
	var (
		flags     cli.ConfigFlags
		dbPath    string
		jsonlPath string
		last      int
		outPath   string
		onlyValid bool
	)
	root := &cobra.Command{
		Use:   "fixture-export --out path/to/fixture.json",
		Short: "Export logged queries as a replay fixture",
		Long: `Turns the most recent logged queries into replay cases. Each case scripts the
model replies, document hits and web results the query saw, and expects the
outcome it reached. Thresholds come from the current config.

  fixture-export --last 20 --out testdata/regressions.json
  fixture-export --jsonl logs/queries.jsonl --out f.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath != "" && jsonlPath != "" {
				return cli.Exit(2, errors.New("--db and --jsonl are mutually exclusive"))
			}
			cfg, err := flags.Load()
			if err != nil {
				return cli.Exit(2, err)
			}
			if dbPath == "" && jsonlPath == "" {
				if dbPath = cfg.QueryDBPath(); dbPath == "" {
					jsonlPath = cfg.QueryLogPath()
				}
			}
			recs, err := loadRecent(dbPath, jsonlPath, last)
			if err != nil {
				return err
			}
			if onlyValid {
				recs = validOnly(recs)
			}
			if len(recs) == 0 {
				return errors.New("no logged queries to export")
			}
			return run(cmd.OutOrStdout(), cfg, recs, outPath)
		},
	}
	flags.Bind(root)
	root.Flags().StringVar(&dbPath, "db", "", "path to the SQLite query log")
	root.Flags().StringVar(&jsonlPath, "jsonl", "", "path to the JSONL query log")
	root.Flags().IntVar(&last, "last", 10, "number of most recent queries to export")
	root.Flags().StringVarP(&outPath, "out", "o", "", "output fixture JSON path")
	root.Flags().BoolVar(&onlyValid, "valid-only", false, "skip rejected queries")
	_ = root.MarkFlagRequired("out")

	cli.Execute(root)
}

// #endregion main

// #region extract

// loadRecent returns the last n records, oldest first.
func loadRecent(dbPath, jsonlPath string, n int) ([]logging.QueryRecord, error) {
	var recs []logging.QueryRecord
	if dbPath != "" {
		st, err := store.NewStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		defer st.Close()
		if recs, err = st.ListRecent(n); err != nil {
			return nil, err
		}
		// ListRecent is newest first
		for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
			recs[i], recs[j] = recs[j], recs[i]
		}
		return recs, nil
	}

	recs, err := logging.ReadJSONLFile(jsonlPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", jsonlPath, err)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	if n > 0 && len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	return recs, nil
}

func validOnly(recs []logging.QueryRecord) []logging.QueryRecord {
	out := recs[:0]
	for _, r := range recs {
		if r.Valid {
			out = append(out, r)
		}
	}
	return out
}

// #endregion extract

// #region output

func fixtureConfig(cfg *config.Config) replay.FixtureConfig {
	return replay.FixtureConfig{
		TopK:                   cfg.Retrieval.TopK,
		SimilarityThreshold:    cfg.Retrieval.SimilarityThreshold,
		RelevanceThreshold:     cfg.Guardrails.RelevanceThreshold,
		HallucinationThreshold: cfg.Guardrails.HallucinationThreshold,
		ConfidenceThreshold:    cfg.Routing.ConfidenceThreshold,
		MaxQueryLength:         cfg.Guardrails.MaxQueryLength,
	}
}

func run(w io.Writer, cfg *config.Config, recs []logging.QueryRecord, outPath string) error {
	fixture := replay.FixtureFromRecords(
		fmt.Sprintf("Query log export: %d logged queries", len(recs)),
		fixtureConfig(cfg), recs)
	return writeFixture(w, fixture, outPath)
}

func writeFixture(w io.Writer, fixture replay.Fixture, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	if err := cli.PrintJSON(f, fixture); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote fixture to %s (%d cases)\n", outPath, len(fixture.Cases))
	return nil
}

// #endregion output
