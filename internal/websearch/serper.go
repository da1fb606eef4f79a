package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/agentic-rag/internal/backoff"
)

// #region serper

// ErrNoAPIKey is returned when Serper is used without a key.
var ErrNoAPIKey = errors.New("serper api key not configured")

// Serper queries the Serper Google Search API.
type Serper struct {
	client  *resty.Client
	cfg     Config
	limiter *rate.Limiter
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
}

// NewSerper builds a Serper client. Requests are rate limited to cfg.RatePerSec.
func NewSerper(cfg Config) *Serper {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultConfig().MaxResults
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Serper{client: client, cfg: cfg, limiter: limiter}
}

// Search returns the top MaxResults organic results.
func (s *Serper) Search(ctx context.Context, query string) ([]Result, error) {
	if s.cfg.APIKey == "" {
		return nil, backoff.Permanent(ErrNoAPIKey)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("serper rate limit: %w", err)
		}
	}

	var out serperResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", s.cfg.APIKey).
		SetBody(serperRequest{Q: query, Num: s.cfg.MaxResults}).
		SetResult(&out).
		Post(s.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	if resp.StatusCode() >= 400 {
		err := fmt.Errorf("serper status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
		if retryableStatus(resp.StatusCode()) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	n := len(out.Organic)
	if n > s.cfg.MaxResults {
		n = s.cfg.MaxResults
	}
	results := make([]Result, 0, n)
	for _, o := range out.Organic[:n] {
		results = append(results, Result{Title: o.Title, Snippet: o.Snippet, URL: o.Link})
	}
	return results, nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// #endregion serper
