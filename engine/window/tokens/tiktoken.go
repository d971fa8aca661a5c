package tokens

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is used when a model-specific encoding cannot be resolved.
// cl100k_base covers GPT-4, GPT-3.5-turbo and most recent models.
const defaultEncoding = "cl100k_base"

// TiktokenEstimator counts tokens with a real BPE encoding. Counts from the
// same encoding are deterministic, so budget checks stay reproducible.
type TiktokenEstimator struct {
	encodingName string
	tke          *tiktoken.Tiktoken
	mu           sync.RWMutex
}

// NewTiktokenEstimator resolves modelOrEncoding first as an encoding name,
// then as a model name, falling back to defaultEncoding.
func NewTiktokenEstimator(modelOrEncoding string) (*TiktokenEstimator, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = defaultEncoding
	}
	encodingName := modelOrEncoding
	tke, err := tiktoken.GetEncoding(modelOrEncoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(modelOrEncoding)
		if err != nil {
			tke, err = tiktoken.GetEncoding(defaultEncoding)
			if err != nil {
				return nil, fmt.Errorf("tokens: get default encoding %q: %w", defaultEncoding, err)
			}
			encodingName = defaultEncoding
		}
	}
	return &TiktokenEstimator{encodingName: encodingName, tke: tke}, nil
}

func (t *TiktokenEstimator) EstimateTokens(_ context.Context, text string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.tke == nil || text == "" {
		return 0
	}
	return len(t.tke.Encode(text, nil, nil))
}

// Encoding returns the name of the encoding actually in use.
func (t *TiktokenEstimator) Encoding() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.encodingName
}

// NewEstimator returns the best available estimator for the given model:
// a tiktoken-backed one when the encoding resolves, the fixed-ratio rune
// estimator otherwise.
func NewEstimator(model string) Estimator {
	if est, err := NewTiktokenEstimator(model); err == nil {
		return est
	}
	return RuneEstimator{}
}
