package logging

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// #region sink
// Sink accepts one record per completed query.
type Sink interface {
	Write(ctx context.Context, rec QueryRecord) error
}

// NopSink discards records.
type NopSink struct{}

func (NopSink) Write(context.Context, QueryRecord) error { return nil }

// #endregion sink

// #region jsonl-sink
// JSONLSink appends one JSON object per line to a file. Safe for concurrent use.
type JSONLSink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenJSONL opens path for appending, creating parent directories.
func OpenJSONL(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open query log: %w", err)
	}
	return &JSONLSink{f: f, path: path}, nil
}

// Path returns the file being written.
func (s *JSONLSink) Path() string {
	return s.path
}

func (s *JSONLSink) Write(_ context.Context, rec QueryRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("write query log: %w", err)
	}
	return nil
}

// Close closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// #endregion jsonl-sink

// #region read-jsonl
// ReadJSONL parses records from r. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]QueryRecord, error) {
	var out []QueryRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec QueryRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// ReadJSONLFile reads all records from path. A missing file yields no records.
func ReadJSONLFile(path string) ([]QueryRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSONL(f)
}

// #endregion read-jsonl

// #region sqlite-sink
// SQLiteSink writes records to the query_log table.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink wraps db, which must already carry the query_log schema.
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

func (s *SQLiteSink) Write(_ context.Context, rec QueryRecord) error {
	return LogQuery(s.db, rec)
}

// #endregion sqlite-sink

// #region multi-sink
// MultiSink fans a record out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec QueryRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// #endregion multi-sink
