package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/agentic-rag/internal/index"
	"github.com/danielpatrickdp/agentic-rag/internal/websearch"
)

// #region methods
// Full gRPC method names on the sidecar. Payloads are google.protobuf.Struct.
const (
	methodComplete  = "/rag.Sidecar/Complete"
	methodSearch    = "/rag.Sidecar/Search"
	methodCount     = "/rag.Sidecar/Count"
	methodAdd       = "/rag.Sidecar/Add"
	methodWebSearch = "/rag.Sidecar/WebSearch"
	methodEmbed     = "/rag.Sidecar/Embed"
)

// #endregion methods

// #region client-struct
// Client talks to an inference sidecar that hosts the model, the vector store and
// web search behind one gRPC endpoint. It satisfies llm.Completer, index.Store,
// index.Embedder and websearch.Searcher.
type Client struct {
	conn       *grpc.ClientConn
	cc         grpc.ClientConnInterface
	maxResults int
}

// #endregion client-struct

// #region constructor
// NewClient connects to the sidecar at addr.
func NewClient(addr string, maxResults int) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn, maxResults: maxResults}, nil
}

// NewClientWithConn creates a Client over an injected connection.
// Used for testing without a real gRPC server.
func NewClientWithConn(cc grpc.ClientConnInterface, maxResults int) *Client {
	return &Client{cc: cc, maxResults: maxResults}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region call
func (c *Client) call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// #endregion call

// #region complete
// Complete sends a prompt to the sidecar model.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.call(ctx, methodComplete, map[string]any{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("complete rpc: %w", err)
	}
	return str(resp["text"]), nil
}

// #endregion complete

// #region embed
// EmbedQuery embeds a single text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.call(ctx, methodEmbed, map[string]any{"text": text})
	if err != nil {
		return nil, fmt.Errorf("embed rpc: %w", err)
	}
	return floats(resp["embedding"]), nil
}

// EmbedDocuments embeds texts one call at a time.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := c.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// #endregion embed

// #region search
// SearchWithScore queries the sidecar's vector store. Hits below threshold are dropped
// here as well as on the server.
func (c *Client) SearchWithScore(ctx context.Context, query string, k int, threshold float64) ([]index.Scored, error) {
	resp, err := c.call(ctx, methodSearch, map[string]any{
		"query_text":           query,
		"top_k":                k,
		"similarity_threshold": threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("search rpc: %w", err)
	}

	rows, _ := resp["results"].([]any)
	hits := make([]index.Scored, 0, len(rows))
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		hits = append(hits, index.Scored{
			Passage: index.Passage{
				ID:     str(m["id"]),
				Text:   str(m["text"]),
				Source: str(m["source"]),
				Page:   int(num(m["page"])),
			},
			Score: num(m["score"]),
		})
	}
	return index.FilterAndRank(hits, k, threshold), nil
}

// Count returns the number of passages in the sidecar's store.
func (c *Client) Count(ctx context.Context) (int, error) {
	resp, err := c.call(ctx, methodCount, map[string]any{})
	if err != nil {
		return 0, fmt.Errorf("count rpc: %w", err)
	}
	return int(num(resp["count"])), nil
}

// #endregion search

// #region add
// Add stores passages in the sidecar's vector store.
func (c *Client) Add(ctx context.Context, passages []index.Passage) (int, error) {
	items := make([]any, len(passages))
	for i, p := range passages {
		meta := map[string]any{}
		for k, v := range p.Metadata {
			meta[k] = v
		}
		items[i] = map[string]any{
			"id":       p.ID,
			"text":     p.Text,
			"source":   p.Source,
			"page":     p.Page,
			"metadata": meta,
		}
	}
	resp, err := c.call(ctx, methodAdd, map[string]any{"passages": items})
	if err != nil {
		return 0, fmt.Errorf("add rpc: %w", err)
	}
	return int(num(resp["stored"])), nil
}

// #endregion add

// #region web-search
// Search runs a web search through the sidecar.
func (c *Client) Search(ctx context.Context, query string) ([]websearch.Result, error) {
	resp, err := c.call(ctx, methodWebSearch, map[string]any{
		"query":       query,
		"max_results": c.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("web search rpc: %w", err)
	}
	rows, _ := resp["results"].([]any)
	results := make([]websearch.Result, 0, len(rows))
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		results = append(results, websearch.Result{
			Title:   str(m["title"]),
			Snippet: str(m["snippet"]),
			URL:     str(m["url"]),
		})
	}
	if c.maxResults > 0 && len(results) > c.maxResults {
		results = results[:c.maxResults]
	}
	return results, nil
}

// #endregion web-search

// #region helpers
func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}

func floats(v any) []float32 {
	list, _ := v.([]any)
	out := make([]float32, 0, len(list))
	for _, x := range list {
		out = append(out, float32(num(x)))
	}
	return out
}

// #endregion helpers
