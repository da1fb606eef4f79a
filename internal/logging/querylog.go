package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// #region log-query
// TimeLayout is a fixed-width RFC 3339 layout so stored timestamps sort as text.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LogQuery writes a record to the query_log table.
func LogQuery(db *sql.DB, rec QueryRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	citations, err := json.Marshal(rec.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO query_log (request_id, created_at, query, valid, rejection_reason, intent, intent_confidence,
		 selected_tool, attempted_tools, corpus_size, answer_text, answer_source, citations_json,
		 relevance_score, is_relevant, is_grounded, groundedness_confidence, needs_fallback, elapsed_ns, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.Timestamp.UTC().Format(TimeLayout),
		rec.Query,
		boolInt(rec.Valid),
		nullIfEmpty(rec.RejectionReason),
		nullIfEmpty(rec.Intent),
		rec.IntentConfidence,
		nullIfEmpty(rec.SelectedTool),
		nullIfEmpty(strings.Join(rec.AttemptedTools, ",")),
		rec.CorpusSize,
		rec.AnswerText,
		rec.AnswerSource,
		string(citations),
		nullFloat(rec.RelevanceScore),
		boolInt(rec.IsRelevant),
		boolInt(rec.IsGrounded),
		nullFloat(rec.GroundednessConfidence),
		boolInt(rec.NeedsFallback),
		int64(rec.Elapsed),
		nullIfEmpty(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("log query: %w", err)
	}
	return nil
}

// #endregion log-query

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
