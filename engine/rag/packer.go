package rag

import (
	"context"
	"sort"
	"strings"

	"github.com/draftforge/draftforge/engine/window/tokens"
	"github.com/draftforge/draftforge/pkg/logger"
)

// Packer selects the subset of passages that fits a token budget, preferring
// higher citation-worthiness. Packing is deterministic for identical input:
// the sort is stable and fingerprints are content hashes.
//
// Costs are measured over each passage's rendered form (source header
// included) with the same estimator the budget allocator uses, so the final
// rendered context is guaranteed to validate against the retrieved slice.
type Packer struct {
	estimator tokens.Estimator
}

func NewPacker(estimator tokens.Estimator) *Packer {
	if estimator == nil {
		estimator = tokens.RuneEstimator{}
	}
	return &Packer{estimator: estimator}
}

func renderPassage(p Passage) string {
	return "[SOURCE] " + p.Source + "\n" + p.Text + "\n\n"
}

// Pack deduplicates, prioritizes, and greedily fills the budget. The first
// occurrence of a fingerprint wins; ties in worth keep source-query order.
// After a passage that would overflow, smaller passages are still considered
// so the budget is not wasted on one oversized reject. The recorded total
// never exceeds budgetTokens; underutilization is acceptable, overflow is
// not.
func (p *Packer) Pack(ctx context.Context, passages []Passage, budgetTokens int, queries []string) *PackedContext {
	packed := &PackedContext{Queries: queries}
	if len(passages) == 0 || budgetTokens <= 0 {
		return packed
	}

	seen := make(map[string]struct{}, len(passages))
	deduped := make([]Passage, 0, len(passages))
	for _, passage := range passages {
		if _, dup := seen[passage.Fingerprint]; dup {
			continue
		}
		seen[passage.Fingerprint] = struct{}{}
		deduped = append(deduped, passage)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Worth > deduped[j].Worth
	})

	total := 0
	for _, passage := range deduped {
		cost := p.estimator.EstimateTokens(ctx, renderPassage(passage))
		if cost <= 0 || total+cost > budgetTokens {
			continue
		}
		packed.Passages = append(packed.Passages, passage)
		total += cost
	}

	// Token estimates are not perfectly additive across concatenation; drop
	// from the tail until the rendered whole fits the budget exactly.
	for len(packed.Passages) > 0 {
		rendered := p.estimator.EstimateTokens(ctx, packed.Render())
		if rendered <= budgetTokens {
			total = rendered
			break
		}
		packed.Passages = packed.Passages[:len(packed.Passages)-1]
	}
	if len(packed.Passages) == 0 {
		total = 0
	}
	packed.TotalTokens = total

	if dropped := len(deduped) - len(packed.Passages); dropped > 0 {
		logger.FromContext(ctx).Debug(
			"packing dropped passages",
			"dropped", dropped,
			"packed", len(packed.Passages),
			"total_tokens", packed.TotalTokens,
			"budget_tokens", budgetTokens,
		)
	}
	return packed
}

// NewPassage builds a scored passage directly from cleaned text. Used by
// callers that source content outside the web pipeline (tests, local files).
func NewPassage(ctx context.Context, estimator tokens.Estimator, source, text string, worth float64) Passage {
	if estimator == nil {
		estimator = tokens.RuneEstimator{}
	}
	return Passage{
		Source:      source,
		Text:        strings.TrimSpace(text),
		Tokens:      estimator.EstimateTokens(ctx, text),
		Worth:       worth,
		Fingerprint: Fingerprint(text),
	}
}
