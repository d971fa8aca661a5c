package tokens

import "context"

// CharsPerToken is the shared character-to-token ratio. Every component that
// reasons about budget room uses this same ratio so packing decisions and
// validation checks agree.
const CharsPerToken = 4

// Estimator approximates token counts for arbitrary text. Implementations
// must be deterministic and monotonic in text length.
type Estimator interface {
	EstimateTokens(ctx context.Context, text string) int
}

// RuneEstimator applies the fixed CharsPerToken ratio over rune count.
// It never returns zero for non-empty text.
type RuneEstimator struct{}

func (RuneEstimator) EstimateTokens(_ context.Context, text string) int {
	count := len([]rune(text))
	if count == 0 {
		return 0
	}
	estimated := count / CharsPerToken
	if estimated == 0 {
		return 1
	}
	return estimated
}
