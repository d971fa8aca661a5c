// Package search defines the web-search boundary the retrieval pipeline
// consumes and a Tavily-style HTTP client implementing it. Per-query and
// per-URL failures are non-fatal by design: the pipeline proceeds with
// whatever succeeded.
package search

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/draftforge/draftforge/pkg/logger"
)

// Result is one search hit before extraction.
type Result struct {
	URL   string
	Title string
}

// Document is one raw fetched document handed to the cleaner.
type Document struct {
	URL         string
	Content     string
	ContentType string
}

// Provider is the external search collaborator. Implementations own their
// per-call timeouts.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
	Extract(ctx context.Context, urls []string) ([]Document, error)
}

// extractBatchSize bounds how many URLs go into a single extract call.
const extractBatchSize = 20

// GatherDocuments runs all queries concurrently under the concurrency cap,
// collects result URLs in stable first-occurrence order, and extracts their
// content in batches. Failed queries and batches are logged and skipped;
// the returned slice holds whatever succeeded, possibly empty.
func GatherDocuments(ctx context.Context, p Provider, queries []string, maxConcurrency int) []Document {
	log := logger.FromContext(ctx)
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	perQuery := make([][]Result, len(queries))
	var g errgroup.Group
	for i, query := range queries {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			results, err := p.Search(ctx, query)
			if err != nil {
				log.Warn("search query failed", "query", query, "error", err)
				return nil
			}
			perQuery[i] = results
			return nil
		})
	}
	_ = g.Wait()

	urls := uniqueStableURLs(perQuery)
	if len(urls) == 0 {
		return nil
	}

	batches := make([][]string, 0, (len(urls)+extractBatchSize-1)/extractBatchSize)
	for start := 0; start < len(urls); start += extractBatchSize {
		end := min(start+extractBatchSize, len(urls))
		batches = append(batches, urls[start:end])
	}
	perBatch := make([][]Document, len(batches))
	var eg errgroup.Group
	for i, batch := range batches {
		eg.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			docs, err := p.Extract(ctx, batch)
			if err != nil {
				log.Warn("document extraction failed", "urls", len(batch), "error", err)
				return nil
			}
			perBatch[i] = docs
			return nil
		})
	}
	_ = eg.Wait()

	// Reassemble in URL order so packing priority ties stay deterministic.
	byURL := make(map[string]Document)
	for _, docs := range perBatch {
		for _, doc := range docs {
			if doc.URL != "" && doc.Content != "" {
				byURL[doc.URL] = doc
			}
		}
	}
	out := make([]Document, 0, len(byURL))
	for _, u := range urls {
		if doc, ok := byURL[u]; ok {
			out = append(out, doc)
		}
	}
	return out
}

func uniqueStableURLs(perQuery [][]Result) []string {
	seen := make(map[string]struct{})
	urls := make([]string, 0)
	for _, results := range perQuery {
		for _, r := range results {
			if r.URL == "" {
				continue
			}
			if _, ok := seen[r.URL]; ok {
				continue
			}
			seen[r.URL] = struct{}{}
			urls = append(urls, r.URL)
		}
	}
	return urls
}
