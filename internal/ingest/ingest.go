// Package ingest loads documents, splits them into passages and writes them
// to the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/agentic-rag/internal/index"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
)

// #region config

// Config controls chunking and load concurrency.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Workers      int
}

// DefaultConfig matches the production chunking.
func DefaultConfig() Config {
	return Config{ChunkSize: 1000, ChunkOverlap: 200, Workers: 4}
}

// passageNamespace scopes passage IDs so re-ingesting a file overwrites its
// previous passages instead of duplicating them.
var passageNamespace = uuid.MustParse("6f1d2c1e-3b7a-5c44-9a0e-4d1f6a2b8c90")

// PassageID is the deterministic ID of chunk n of origin page.
func PassageID(origin string, page, chunk int) string {
	return uuid.NewSHA1(passageNamespace, []byte(origin+"\x00"+strconv.Itoa(page)+"\x00"+strconv.Itoa(chunk))).String()
}

// #endregion config

// #region types

// Observer is told about every file that produced passages.
type Observer interface {
	Ingested(chunks int)
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Source   string `json:"source"`
	Pages    int    `json:"pages"`
	Passages int    `json:"passages"`
	Error    string `json:"error,omitempty"`
}

// Result aggregates a batch.
type Result struct {
	Files    []FileResult `json:"files"`
	Passages int          `json:"passages"`
	Failed   int          `json:"failed"`
}

// Add folds one file outcome into the batch.
func (r *Result) Add(f FileResult) {
	r.Files = append(r.Files, f)
	r.Passages += f.Passages
	if f.Error != "" {
		r.Failed++
	}
}

// #endregion types

// #region ingester

// Ingester splits documents and writes them through an index.Writer.
type Ingester struct {
	writer   index.Writer
	splitter textsplitter.TextSplitter
	cfg      Config
	observer Observer
	log      *charmlog.Logger
}

// New validates cfg and builds an ingester. observer may be nil.
func New(w index.Writer, cfg Config, observer Observer, log *charmlog.Logger) (*Ingester, error) {
	if w == nil {
		return nil, errors.New("ingest: index writer is required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("ingest: chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("ingest: overlap %d must be in [0, %d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Ingester{
		writer: w,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		cfg:      cfg,
		observer: observer,
		log:      logger.Component(log, "ingest"),
	}, nil
}

// Chunk splits docs into passages with deterministic IDs.
func (in *Ingester) Chunk(docs []Document) ([]index.Passage, error) {
	var out []index.Passage
	for _, d := range docs {
		parts, err := in.splitter.SplitText(d.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s page %d: %w", d.Source, d.Page, err)
		}
		origin := d.Origin
		if origin == "" {
			origin = d.Source
		}
		n := 0
		for _, part := range parts {
			text := strings.TrimSpace(part)
			if text == "" {
				continue
			}
			p := index.Passage{
				ID:     PassageID(origin, d.Page, n),
				Text:   text,
				Source: d.Source,
				Page:   d.Page,
				Metadata: map[string]string{
					"chunk_index": strconv.Itoa(n),
					"file_type":   strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Source)), "."),
				},
			}
			out = append(out, p)
			n++
		}
	}
	return out, nil
}

// #endregion ingester

// #region ingest

// IngestDocuments chunks docs from one source and writes them.
func (in *Ingester) IngestDocuments(ctx context.Context, source string, docs []Document) FileResult {
	res := FileResult{Source: source, Pages: len(docs)}
	passages, err := in.Chunk(docs)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if len(passages) == 0 {
		res.Error = "no text extracted"
		return res
	}
	n, err := in.writer.Add(ctx, passages)
	if err != nil {
		res.Error = fmt.Sprintf("write: %v", err)
		return res
	}
	res.Passages = n
	if in.observer != nil {
		in.observer.Ingested(n)
	}
	in.log.Info("ingested", "source", source, "pages", res.Pages, "passages", n)
	return res
}

// IngestBytes loads data named source and ingests it.
func (in *Ingester) IngestBytes(ctx context.Context, source string, data []byte) FileResult {
	docs, err := LoadBytes(source, data)
	if err != nil {
		in.log.Warn("load failed", "source", source, "err", err)
		return FileResult{Source: source, Error: err.Error()}
	}
	return in.IngestDocuments(ctx, source, docs)
}

// IngestFiles loads paths concurrently, at most cfg.Workers at a time, and
// ingests each. A file that fails is reported in its FileResult and does not
// stop the batch. The returned error is non-nil only when ctx ends.
func (in *Ingester) IngestFiles(ctx context.Context, paths []string) (Result, error) {
	results := make([]FileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			source := filepath.Base(path)
			docs, err := LoadFile(path)
			if err != nil {
				in.log.Warn("load failed", "path", path, "err", err)
				results[i] = FileResult{Source: source, Error: err.Error()}
				return nil
			}
			results[i] = in.IngestDocuments(gctx, source, docs)
			return nil
		})
	}
	err := g.Wait()

	var out Result
	for _, r := range results {
		if r.Source != "" {
			out.Add(r)
		}
	}
	return out, err
}

// #endregion ingest

// #region memory-writer

// MemoryWriter keeps passages in a map keyed by ID. Used for dry runs.
type MemoryWriter struct {
	mu       sync.Mutex
	passages map[string]index.Passage
}

// NewMemoryWriter returns an empty writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{passages: map[string]index.Passage{}}
}

func (m *MemoryWriter) Add(_ context.Context, passages []index.Passage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range passages {
		m.passages[p.ID] = p
	}
	return len(passages), nil
}

// Len is the number of distinct passages held.
func (m *MemoryWriter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.passages)
}

// #endregion memory-writer
