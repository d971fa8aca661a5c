package search

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
)

// ClientConfig configures the HTTP search client.
type ClientConfig struct {
	Endpoint   string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to a Tavily-compatible search API over HTTP. Transient
// failures (network errors, 5xx) are retried with capped exponential
// backoff; anything else surfaces to the caller.
type Client struct {
	http       *resty.Client
	apiKey     string
	maxResults int
	maxRetries int
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("search: endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("search: api key is required")
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 6
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		http:       resty.New().SetBaseURL(cfg.Endpoint).SetTimeout(timeout),
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Search runs one query and returns the result URLs in provider order.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := c.post(ctx, "/search", map[string]any{
		"api_key":      c.apiKey,
		"query":        query,
		"max_results":  c.maxResults,
		"search_depth": "advanced",
	})
	if err != nil {
		return nil, fmt.Errorf("search: query %q: %w", query, err)
	}
	items := gjson.GetBytes(body, "results").Array()
	results := make([]Result, 0, len(items))
	for _, item := range items {
		url := item.Get("url").String()
		if url == "" {
			continue
		}
		results = append(results, Result{URL: url, Title: item.Get("title").String()})
	}
	return results, nil
}

// Extract fetches the raw content for a batch of URLs.
func (c *Client) Extract(ctx context.Context, urls []string) ([]Document, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	body, err := c.post(ctx, "/extract", map[string]any{
		"api_key": c.apiKey,
		"urls":    urls,
		"format":  "text",
	})
	if err != nil {
		return nil, fmt.Errorf("search: extract %d urls: %w", len(urls), err)
	}
	items := gjson.GetBytes(body, "results").Array()
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		url := item.Get("url").String()
		content := item.Get("raw_content").String()
		if url == "" || content == "" {
			continue
		}
		docs = append(docs, Document{URL: url, Content: content, ContentType: "text/html"})
	}
	return docs, nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	var body []byte
	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).SetBody(payload).Post(path)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode() >= 500 {
			return retry.RetryableError(fmt.Errorf("provider returned %d", resp.StatusCode()))
		}
		if resp.IsError() {
			return fmt.Errorf("provider returned %d: %s", resp.StatusCode(), resp.String())
		}
		body = resp.Body()
		return nil
	})
	return body, err
}
