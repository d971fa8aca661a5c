package llm

import "fmt"

// GenerationError is a provider or timeout failure while producing article
// text. It is fatal for the run that triggered it.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm: generation failed on model %q: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// EvaluationError is a provider, timeout, or malformed-output failure while
// scoring article text. It is fatal for the run that triggered it.
type EvaluationError struct {
	Model string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("llm: evaluation failed on model %q: %v", e.Model, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
