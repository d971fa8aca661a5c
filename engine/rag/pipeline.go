package rag

import (
	"context"
	"strings"

	"github.com/draftforge/draftforge/engine/rag/search"
	"github.com/draftforge/draftforge/engine/window"
	"github.com/draftforge/draftforge/pkg/logger"
)

// TopicAnalysis is the external topic collaborator's verdict on whether a
// draft needs web research and which queries to issue.
type TopicAnalysis struct {
	MainTopic     string
	Queries       []string
	NeedsResearch bool
}

// TopicAnalyzer is the external collaborator deciding research needs.
// A failing analyzer is treated as "no research needed", never as a fatal
// pipeline error.
type TopicAnalyzer interface {
	Analyze(ctx context.Context, draft string) (*TopicAnalysis, error)
}

// Pipeline orchestrates query issuance, fetch, cleaning, and packing into a
// PackedContext bounded by the retrieved-context slice.
type Pipeline struct {
	analyzer       TopicAnalyzer
	provider       search.Provider
	cleaner        *Cleaner
	packer         *Packer
	maxConcurrency int
}

func NewPipeline(analyzer TopicAnalyzer, provider search.Provider, cleaner *Cleaner, maxConcurrency int) *Pipeline {
	if maxConcurrency < 1 {
		maxConcurrency = 8
	}
	if cleaner == nil {
		cleaner = NewCleaner(nil)
	}
	return &Pipeline{
		analyzer:       analyzer,
		provider:       provider,
		cleaner:        cleaner,
		packer:         NewPacker(cleaner.estimator),
		maxConcurrency: maxConcurrency,
	}
}

// Retrieve produces a PackedContext for the draft. It degrades gracefully:
// analyzer failure or a topic that needs no research short-circuits with an
// empty context and no network calls; zero retrievable documents returns an
// empty context rather than failing the generation.
func (p *Pipeline) Retrieve(ctx context.Context, draft string, budget *window.Budget) (*PackedContext, error) {
	log := logger.FromContext(ctx)
	if p.analyzer == nil || p.provider == nil {
		return &PackedContext{}, nil
	}
	analysis, err := p.analyzer.Analyze(ctx, draft)
	if err != nil {
		log.Warn("topic analysis failed, proceeding without research", "error", err)
		return &PackedContext{}, nil
	}
	if analysis == nil || !analysis.NeedsResearch {
		log.Info("no research needed for draft")
		return &PackedContext{}, nil
	}

	queries := buildQueries(analysis)
	if len(queries) == 0 {
		return &PackedContext{}, nil
	}
	log.Info("retrieving web context", "queries", len(queries), "topic", analysis.MainTopic)

	docs := search.GatherDocuments(ctx, p.provider, queries, p.maxConcurrency)
	if len(docs) == 0 {
		log.Warn("no documents retrievable, continuing without context")
		return &PackedContext{Queries: queries}, nil
	}

	passages := p.cleaner.CleanAll(ctx, docs)
	packed := p.packer.Pack(ctx, passages, budget.Retrieved.Tokens, queries)

	// The packed render must fit the retrieved slice before anyone spends a
	// generation call on it.
	if err := budget.Validate(ctx, packed.Render(), window.SliceRetrieved); err != nil {
		return nil, err
	}
	log.Info(
		"packed retrieved context",
		"documents", len(docs),
		"passages", len(packed.Passages),
		"tokens", packed.TotalTokens,
	)
	return packed, nil
}

// buildQueries puts the main topic first and deduplicates while keeping
// order, so packing ties stay aligned with query priority.
func buildQueries(analysis *TopicAnalysis) []string {
	raw := make([]string, 0, len(analysis.Queries)+1)
	if topic := strings.TrimSpace(analysis.MainTopic); topic != "" {
		raw = append(raw, topic)
	}
	for _, q := range analysis.Queries {
		if trimmed := strings.TrimSpace(q); trimmed != "" {
			raw = append(raw, trimmed)
		}
	}
	seen := make(map[string]struct{}, len(raw))
	queries := raw[:0]
	for _, q := range raw {
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}
