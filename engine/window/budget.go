// Package window partitions a model's context window into named slices and
// enforces them before any generation call is made. Allocation and validation
// are deliberately separate so every consumer (retrieval packer, prompt
// assembler) shares one source of truth for how much room is left.
package window

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/draftforge/draftforge/engine/window/tokens"
	"github.com/draftforge/draftforge/pkg/logger"
)

// MinViableContext is the smallest total context the allocator accepts.
// Anything below this cannot fit a non-trivial output slice.
const MinViableContext = 1024

// warnThreshold is the slice usage fraction that triggers a one-shot
// observability warning. Crossing it never blocks execution.
const warnThreshold = 0.8

// Slice names a bounded portion of the context budget.
type Slice string

const (
	SliceOutput       Slice = "output"
	SliceInstructions Slice = "instructions"
	SliceRetrieved    Slice = "retrieved"
	SliceSafety       Slice = "safety"
)

// ErrContextOverflow is the sentinel for all budget violations.
var ErrContextOverflow = errors.New("context window overflow")

// ContextOverflowError reports a slice whose budget would be exceeded.
type ContextOverflowError struct {
	Slice  Slice
	Tokens int
	Limit  int
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("window: %d tokens exceed %s slice budget of %d", e.Tokens, e.Slice, e.Limit)
}

func (e *ContextOverflowError) Unwrap() error { return ErrContextOverflow }

// Proportions defines the fractional split of the total context window.
type Proportions struct {
	Output       float64
	Instructions float64
	Retrieved    float64
	Safety       float64
}

// DefaultProportions mirrors the 25/15/35/25 split the loop was designed
// around.
func DefaultProportions() Proportions {
	return Proportions{Output: 0.25, Instructions: 0.15, Retrieved: 0.35, Safety: 0.25}
}

// Validate rejects negative parts and splits that exceed the whole window.
func (p Proportions) Validate() error {
	for name, v := range map[string]float64{
		"output": p.Output, "instructions": p.Instructions,
		"retrieved": p.Retrieved, "safety": p.Safety,
	} {
		if v < 0 {
			return fmt.Errorf("window: %s proportion must not be negative", name)
		}
	}
	if sum := p.Output + p.Instructions + p.Retrieved + p.Safety; sum > 1.0+1e-9 {
		return fmt.Errorf("window: proportions sum to %.3f, must be <= 1.0", sum)
	}
	if p.Output <= 0 {
		return errors.New("window: output proportion must be positive")
	}
	return nil
}

// SliceBudget is one named slice expressed in tokens and the character
// equivalent derived from the shared token ratio.
type SliceBudget struct {
	Tokens int
	Chars  int
}

// Budget is the immutable allocation for one loop invocation. It is computed
// once from the target model's advertised context size and shared without
// locking; the warning latches are the only mutable state and use atomics.
type Budget struct {
	TotalTokens  int
	TotalChars   int
	Output       SliceBudget
	Instructions SliceBudget
	Retrieved    SliceBudget
	Safety       SliceBudget

	estimator tokens.Estimator
	warned    [4]atomic.Bool
}

// Allocate derives a Budget from the total context size. Slice token counts
// are floored so the four slices always sum to at most the total.
func Allocate(totalTokens int, p Proportions, estimator tokens.Estimator) (*Budget, error) {
	if totalTokens < MinViableContext {
		return nil, fmt.Errorf("window: total context %d below minimum viable size %d", totalTokens, MinViableContext)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if estimator == nil {
		estimator = tokens.RuneEstimator{}
	}
	slice := func(fraction float64) SliceBudget {
		t := int(float64(totalTokens) * fraction)
		return SliceBudget{Tokens: t, Chars: t * tokens.CharsPerToken}
	}
	return &Budget{
		TotalTokens:  totalTokens,
		TotalChars:   totalTokens * tokens.CharsPerToken,
		Output:       slice(p.Output),
		Instructions: slice(p.Instructions),
		Retrieved:    slice(p.Retrieved),
		Safety:       slice(p.Safety),
		estimator:    estimator,
	}, nil
}

// SliceFor returns the budget for a named slice.
func (b *Budget) SliceFor(s Slice) SliceBudget {
	switch s {
	case SliceOutput:
		return b.Output
	case SliceInstructions:
		return b.Instructions
	case SliceRetrieved:
		return b.Retrieved
	case SliceSafety:
		return b.Safety
	default:
		return SliceBudget{}
	}
}

// Estimate exposes the budget's token estimator so packing decisions and
// validation checks use the same ratio.
func (b *Budget) Estimate(ctx context.Context, text string) int {
	return b.estimator.EstimateTokens(ctx, text)
}

// Validate fails with a ContextOverflowError when the text does not fit the
// slice. It never truncates; callers must fail fast before any external call.
func (b *Budget) Validate(ctx context.Context, text string, s Slice) error {
	limit := b.SliceFor(s).Tokens
	used := b.Estimate(ctx, text)
	if used > limit {
		return &ContextOverflowError{Slice: s, Tokens: used, Limit: limit}
	}
	b.CheckUsage(ctx, s, used)
	return nil
}

// CheckUsage emits a one-shot warning once usage crosses the threshold of a
// slice's capacity. Purely observational.
func (b *Budget) CheckUsage(ctx context.Context, s Slice, usedTokens int) {
	limit := b.SliceFor(s).Tokens
	if limit <= 0 || float64(usedTokens) < warnThreshold*float64(limit) {
		return
	}
	if b.warned[sliceIndex(s)].CompareAndSwap(false, true) {
		logger.FromContext(ctx).Warn(
			"context slice usage above threshold",
			"slice", string(s),
			"used_tokens", usedTokens,
			"limit_tokens", limit,
		)
	}
}

func sliceIndex(s Slice) int {
	switch s {
	case SliceOutput:
		return 0
	case SliceInstructions:
		return 1
	case SliceRetrieved:
		return 2
	default:
		return 3
	}
}
