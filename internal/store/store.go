// Package store persists the query log in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/agentic-rag/internal/logging"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS query_log (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id              TEXT NOT NULL,
	created_at              TEXT NOT NULL,
	query                   TEXT NOT NULL,
	valid                   INTEGER NOT NULL,
	rejection_reason        TEXT,
	intent                  TEXT,
	intent_confidence       REAL NOT NULL DEFAULT 0,
	selected_tool           TEXT,
	attempted_tools         TEXT,
	corpus_size             INTEGER NOT NULL DEFAULT 0,
	answer_text             TEXT NOT NULL,
	answer_source           TEXT NOT NULL,
	citations_json          TEXT,
	relevance_score         REAL,
	is_relevant             INTEGER NOT NULL DEFAULT 0,
	is_grounded             INTEGER NOT NULL DEFAULT 0,
	groundedness_confidence REAL,
	needs_fallback          INTEGER NOT NULL DEFAULT 0,
	elapsed_ns              INTEGER NOT NULL,
	error                   TEXT
);

CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log(created_at);
CREATE INDEX IF NOT EXISTS idx_query_log_tool ON query_log(selected_tool, created_at);
`

const columns = `request_id, created_at, query, valid, rejection_reason, intent, intent_confidence,
	selected_tool, attempted_tools, corpus_size, answer_text, answer_source, citations_json,
	relevance_score, is_relevant, is_grounded, groundedness_confidence, needs_fallback, elapsed_ns, error`

// #endregion schema

// #region store-struct
// Store is the SQLite query log.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for logging.SQLiteSink.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region list-recent
// ListRecent returns the most recent records, newest first.
func (s *Store) ListRecent(limit int) ([]logging.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+columns+` FROM query_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	return scanRecords(rows)
}

// #endregion list-recent

// #region since
// Since returns records created at or after t, oldest first.
func (s *Store) Since(t time.Time) ([]logging.QueryRecord, error) {
	rows, err := s.db.Query(`SELECT `+columns+` FROM query_log WHERE created_at >= ? ORDER BY created_at, id`,
		t.UTC().Format(logging.TimeLayout))
	if err != nil {
		return nil, fmt.Errorf("since: %w", err)
	}
	return scanRecords(rows)
}

// #endregion since

// #region get
// Get returns the record for requestID.
func (s *Store) Get(requestID string) (logging.QueryRecord, error) {
	rows, err := s.db.Query(`SELECT `+columns+` FROM query_log WHERE request_id = ? LIMIT 1`, requestID)
	if err != nil {
		return logging.QueryRecord{}, fmt.Errorf("get %s: %w", requestID, err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return logging.QueryRecord{}, err
	}
	if len(recs) == 0 {
		return logging.QueryRecord{}, fmt.Errorf("get %s: %w", requestID, sql.ErrNoRows)
	}
	return recs[0], nil
}

// #endregion get

// #region tool-outcomes
// ToolOutcome is the decay-weighted success rate of one tool.
type ToolOutcome struct {
	Tool        string  `json:"tool"`
	Count       int     `json:"count"`
	SuccessRate float64 `json:"success_rate"`
}

// ToolOutcomes weights each logged query by exp(-age/halfLife) and reports,
// per attempted tool, the weighted share of attempts that produced the
// answer. A tool that was tried and then fell back counts as a failure.
// Rows without attempted_tools are counted under selected_tool.
func (s *Store) ToolOutcomes(now time.Time, halfLife time.Duration) ([]ToolOutcome, error) {
	rows, err := s.db.Query(`
		SELECT selected_tool, attempted_tools, answer_source, created_at
		FROM query_log
		WHERE selected_tool IS NOT NULL OR attempted_tools IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("tool outcomes: %w", err)
	}
	defer rows.Close()

	type accum struct {
		weightedOK  float64
		totalWeight float64
		count       int
	}
	hl := halfLife.Hours()
	if hl <= 0 {
		hl = 7 * 24
	}
	byTool := make(map[string]*accum)
	var order []string

	for rows.Next() {
		var selected, attempted sql.NullString
		var source, createdStr string
		if err := rows.Scan(&selected, &attempted, &source, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		createdAt, err := time.Parse(logging.TimeLayout, createdStr)
		if err != nil {
			continue
		}
		weight := math.Exp(-now.Sub(createdAt).Hours() / hl)

		tools := splitList(attempted.String)
		if len(tools) == 0 && selected.String != "" {
			tools = []string{selected.String}
		}
		for _, tool := range tools {
			a, ok := byTool[tool]
			if !ok {
				a = &accum{}
				byTool[tool] = a
				order = append(order, tool)
			}
			if tool == source {
				a.weightedOK += weight
			}
			a.totalWeight += weight
			a.count++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Strings(order)
	out := make([]ToolOutcome, 0, len(order))
	for _, tool := range order {
		a := byTool[tool]
		rate := 0.0
		if a.totalWeight > 0 {
			rate = a.weightedOK / a.totalWeight
		}
		out = append(out, ToolOutcome{Tool: tool, Count: a.count, SuccessRate: rate})
	}
	return out, nil
}

// #endregion tool-outcomes

// #region scan
func scanRecords(rows *sql.Rows) ([]logging.QueryRecord, error) {
	defer rows.Close()

	var records []logging.QueryRecord
	for rows.Next() {
		var (
			rec                                        logging.QueryRecord
			createdStr                                 string
			rejection, intent, tool, attempted, errTxt sql.NullString
			citations                                  sql.NullString
			relevance, grounding                       sql.NullFloat64
			valid, relevant, grounded, fallback        int
			elapsed                                    int64
		)
		if err := rows.Scan(&rec.RequestID, &createdStr, &rec.Query, &valid, &rejection, &intent,
			&rec.IntentConfidence, &tool, &attempted, &rec.CorpusSize, &rec.AnswerText, &rec.AnswerSource,
			&citations, &relevance, &relevant, &grounded, &grounding, &fallback, &elapsed, &errTxt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Timestamp, _ = time.Parse(logging.TimeLayout, createdStr)
		rec.Valid = valid == 1
		rec.RejectionReason = rejection.String
		rec.Intent = intent.String
		rec.SelectedTool = tool.String
		rec.AttemptedTools = splitList(attempted.String)
		if citations.Valid && citations.String != "" && citations.String != "null" {
			if err := json.Unmarshal([]byte(citations.String), &rec.Citations); err != nil {
				return nil, fmt.Errorf("unmarshal citations: %w", err)
			}
		}
		if relevance.Valid {
			v := relevance.Float64
			rec.RelevanceScore = &v
		}
		if grounding.Valid {
			v := grounding.Float64
			rec.GroundednessConfidence = &v
		}
		rec.IsRelevant = relevant == 1
		rec.IsGrounded = grounded == 1
		rec.NeedsFallback = fallback == 1
		rec.Elapsed = time.Duration(elapsed)
		rec.Error = errTxt.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// #endregion scan
