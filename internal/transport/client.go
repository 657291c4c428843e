// Package transport is the rate-limited HTTP layer for the Semantic
// Scholar graph and recommendations APIs. It knows how to build
// request URLs and move bytes; response interpretation lives with the
// callers.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// GraphBaseURL is the Semantic Scholar graph API base URL.
	GraphBaseURL = "https://api.semanticscholar.org/graph/v1"

	// RecommendationsBaseURL is the recommendations API base URL.
	RecommendationsBaseURL = "https://api.semanticscholar.org/recommendations/v1/papers"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// RateLimit is the request rate used with an API key. Unkeyed
	// clients share a much smaller global pool; see WithRateLimit.
	RateLimit = 10.0
)

// Client is a rate-limited HTTP client for the Semantic Scholar APIs.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	graphURL   string
	recURL     string
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the API key for authenticated requests.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides both API base URLs (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.graphURL = url
		c.recURL = url
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a Semantic Scholar API client. The S2_API_KEY
// environment variable supplies the key unless WithAPIKey overrides it.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		graphURL:   GraphBaseURL,
		recURL:     RecommendationsBaseURL,
		log:        zerolog.Nop(),
	}

	if key := os.Getenv("S2_API_KEY"); key != "" {
		c.apiKey = key
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Result is the outcome of one request in a multi-fetch. Exactly one
// of Body and Err is meaningful.
type Result struct {
	Body []byte
	Err  error
}

// Get performs a rate-limited GET and returns the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.do(req)
}

// Post performs a rate-limited POST with a JSON body.
func (c *Client) Post(ctx context.Context, url string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// FetchMany issues the GETs concurrently and returns one Result per
// URL, in input order. Individual failures do not abort the rest.
func (c *Client) FetchMany(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			body, err := c.Get(ctx, u)
			results[i] = Result{Body: body, Err: err}
		}(i, u)
	}
	wg.Wait()
	return results
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	c.log.Debug().Str("url", req.URL.String()).Str("method", req.Method).Msg("request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}
	if err := checkStatus(resp, req.URL.String(), body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkStatus(resp *http.Response, url string, body []byte) error {
	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode == 429:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &StatusError{StatusCode: resp.StatusCode, URL: url, Body: body}
	}
	return nil
}
