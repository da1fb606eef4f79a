package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentic-rag/internal/config"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/internal/replay"
	"github.com/danielpatrickdp/agentic-rag/internal/store"
)

func logged(t *testing.T) []logging.QueryRecord {
	t.Helper()
	f, err := replay.LoadFixture("../../internal/replay/testdata/pipeline_cases.json")
	require.NoError(t, err)
	_, recs := replay.Replay(context.Background(), f.Cases, f.Config.ToReplayConfig(), logger.Nop())
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := range recs {
		recs[i].Timestamp = base.Add(time.Duration(i) * time.Minute)
	}
	return recs
}

func TestLoadRecent_JSONL(t *testing.T) {
	recs := logged(t)
	path := filepath.Join(t.TempDir(), "queries.jsonl")
	sink, err := logging.OpenJSONL(path)
	require.NoError(t, err)
	// written out of order; export sorts by time
	for i := len(recs) - 1; i >= 0; i-- {
		require.NoError(t, sink.Write(context.Background(), recs[i]))
	}
	require.NoError(t, sink.Close())

	got, err := loadRecent("", path, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, recs[len(recs)-3].RequestID, got[0].RequestID)
	assert.Equal(t, recs[len(recs)-1].RequestID, got[2].RequestID)
}

func TestLoadRecent_DB(t *testing.T) {
	recs := logged(t)
	path := filepath.Join(t.TempDir(), "q.db")
	st, err := store.NewStore(path)
	require.NoError(t, err)
	sink := logging.NewSQLiteSink(st.DB())
	for _, r := range recs {
		require.NoError(t, sink.Write(context.Background(), r))
	}
	require.NoError(t, st.Close())

	got, err := loadRecent(path, "", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recs[len(recs)-2].RequestID, got[0].RequestID, "oldest first")
}

func TestRun_ExportedFixtureReplays(t *testing.T) {
	recs := validOnly(logged(t))
	out := filepath.Join(t.TempDir(), "export.json")
	cfg := config.Default()
	cfg.Retrieval.SimilarityThreshold = 0.7

	var buf bytes.Buffer
	require.NoError(t, run(&buf, cfg, recs, out))
	assert.Contains(t, buf.String(), "Wrote fixture to")

	f, err := replay.LoadFixture(out)
	require.NoError(t, err)
	require.Len(t, f.Cases, len(recs))
	assert.Equal(t, 0.6, f.Config.RelevanceThreshold)

	results, _ := replay.Replay(context.Background(), f.Cases, f.Config.ToReplayConfig(), logger.Nop())
	for _, r := range results {
		assert.Truef(t, r.Passed, "%s: %v", r.CaseID, r.Mismatches)
	}
}

func TestValidOnly(t *testing.T) {
	got := validOnly([]logging.QueryRecord{{Valid: true, Query: "a"}, {Query: "b"}, {Valid: true, Query: "c"}})
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[1].Query)
}
