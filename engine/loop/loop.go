package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/draftforge/draftforge/engine/judge"
	"github.com/draftforge/draftforge/engine/llm"
	"github.com/draftforge/draftforge/engine/rag"
	"github.com/draftforge/draftforge/engine/window"
	"github.com/draftforge/draftforge/pkg/logger"
)

// State is one node of the convergence state machine.
type State string

const (
	StateScoping    State = "scoping"
	StateGenerating State = "generating"
	StateEvaluating State = "evaluating"
	StateRevising   State = "revising"
	StateAccepted   State = "accepted"
	StateTerminal   State = "terminal"
)

// ContextRetriever supplies the packed research context for a draft.
// *rag.Pipeline satisfies it.
type ContextRetriever interface {
	Retrieve(ctx context.Context, draft string, budget *window.Budget) (*rag.PackedContext, error)
}

// AcceptFunc decides whether a judgement ends the run. The default accepts
// when the judgement reports its joint quality-and-length requirements met.
type AcceptFunc func(*judge.Judgement) bool

// Options tune one run.
type Options struct {
	// MaxIterations caps generation passes; the loop never makes more than
	// MaxIterations generation calls plus the initial one on fallback.
	MaxIterations int
	// ReuseContext keeps the previous iteration's packed context on
	// revisions instead of re-retrieving. The first generation always
	// retrieves fresh.
	ReuseContext bool
	// Accept overrides the acceptance predicate.
	Accept AcceptFunc
}

// Loop wires the retriever, generator, evaluator, and feedback translator
// into one strictly sequential convergence run.
type Loop struct {
	retriever  ContextRetriever
	generator  llm.Generator
	evaluator  llm.Evaluator
	translator *judge.Translator
	budget     *window.Budget
	opts       Options
}

func New(retriever ContextRetriever, generator llm.Generator, evaluator llm.Evaluator, translator *judge.Translator, budget *window.Budget, opts Options) *Loop {
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 10
	}
	if opts.Accept == nil {
		opts.Accept = func(j *judge.Judgement) bool { return j.MeetsRequirements }
	}
	return &Loop{
		retriever:  retriever,
		generator:  generator,
		evaluator:  evaluator,
		translator: translator,
		budget:     budget,
		opts:       opts,
	}
}

// Run iterates the draft until a version is accepted, the iteration budget is
// exhausted, or a generator/evaluator call fails. The returned Result always
// carries the full version history produced so far, including on error.
func (l *Loop) Run(ctx context.Context, draft string) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	log := logger.FromContext(ctx).With("run_id", result.RunID)
	ctx = logger.ContextWithLogger(ctx, log)
	state := StateScoping
	log.Info("starting convergence run", "max_iterations", l.opts.MaxIterations, "reuse_context", l.opts.ReuseContext)

	var (
		packed       *rag.PackedContext
		instructions string
		prior        string
	)
	for iteration := 1; iteration <= l.opts.MaxIterations; iteration++ {
		state = StateGenerating
		reused := iteration > 1 && l.opts.ReuseContext && packed != nil
		var err error
		packed, err = l.contextFor(ctx, draft, iteration, packed)
		if err != nil {
			return l.fail(result, iteration, err)
		}

		text, err := l.generate(ctx, draft, prior, instructions, packed, iteration)
		if err != nil {
			return l.fail(result, iteration, err)
		}
		prior = text

		state = StateEvaluating
		judgement, err := l.evaluator.Evaluate(ctx, text)
		if err != nil {
			return l.fail(result, iteration, err)
		}

		version := ArticleVersion{
			Index:         iteration,
			Text:          text,
			WordCount:     judgement.WordCount,
			Judgement:     judgement,
			ReusedContext: reused,
			CreatedAt:     time.Now().UTC(),
		}
		if packed != nil {
			version.Queries = packed.Queries
			version.PassageCount = len(packed.Passages)
		}
		result.Versions = append(result.Versions, version)
		result.Iterations = iteration
		result.Log = append(result.Log, fmt.Sprintf(
			"version %d: %.1f%% (%d words), %s",
			iteration, judgement.Percentage, judgement.WordCount, judgement.Tier,
		))
		log.Info(
			"evaluated version",
			"iteration", iteration,
			"percentage", fmt.Sprintf("%.1f", judgement.Percentage),
			"words", judgement.WordCount,
			"tier", judgement.Tier,
		)

		if l.opts.Accept(judgement) {
			state = StateAccepted
			result.Outcome = OutcomeAccepted
			result.TargetAchieved = true
			result.Best = &result.Versions[len(result.Versions)-1]
			result.Log = append(result.Log, fmt.Sprintf("target met at version %d", iteration))
			result.Summary = l.summarize(result)
			log.Info("target met", "iteration", iteration, "state", string(state))
			return result, nil
		}

		if iteration == l.opts.MaxIterations {
			break
		}
		state = StateRevising
		result.Log = append(result.Log, fmt.Sprintf("revising after version %d", iteration))
		translated := l.translator.Translate(judgement)
		instructions = translated.Prompt
		judgement.ImprovementPrompt = translated.Prompt
		judgement.FocusAreas = translated.FocusAreas
		log.Info("revising", "iteration", iteration, "focus_areas", translated.FocusAreas)
	}

	state = StateTerminal
	result.Outcome = OutcomeExhausted
	result.Log = append(result.Log, fmt.Sprintf("iteration budget exhausted after %d versions", result.Iterations))
	result.Best = bestVersion(result.Versions)
	result.Summary = l.summarize(result)
	log.Warn("iteration budget exhausted", "iterations", result.Iterations, "state", string(state))
	return result, nil
}

// contextFor applies the reuse policy: always fresh on the first iteration,
// previous context on revisions when reuse is on, and a fresh retrieval
// fallback when reuse is requested but nothing exists yet.
func (l *Loop) contextFor(ctx context.Context, draft string, iteration int, previous *rag.PackedContext) (*rag.PackedContext, error) {
	if iteration > 1 && l.opts.ReuseContext && previous != nil {
		return previous, nil
	}
	if l.retriever == nil {
		return &rag.PackedContext{}, nil
	}
	packed, err := l.retriever.Retrieve(ctx, draft, l.budget)
	if err != nil {
		return nil, fmt.Errorf("loop: retrieving context for iteration %d: %w", iteration, err)
	}
	return packed, nil
}

// generate calls the external generator. A failure on the very first pass
// degrades to the raw draft as version 1 so the run still produces an
// evaluable baseline; later failures are fatal.
func (l *Loop) generate(ctx context.Context, draft, prior, instructions string, packed *rag.PackedContext, iteration int) (string, error) {
	text, err := l.generator.Generate(ctx, &llm.GenerateRequest{
		Draft:        draft,
		Prior:        prior,
		Instructions: instructions,
		Context:      packed,
	})
	if err != nil {
		if iteration == 1 && !errors.Is(err, window.ErrContextOverflow) {
			logger.FromContext(ctx).Warn("initial generation failed, using raw draft as baseline", "error", err)
			return draft, nil
		}
		return "", err
	}
	return text, nil
}

func (l *Loop) fail(result *Result, iteration int, err error) (*Result, error) {
	result.Outcome = OutcomeFailed
	result.FailedIteration = iteration
	result.Best = bestVersion(result.Versions)
	result.Summary = l.summarize(result)
	return result, fmt.Errorf("loop: iteration %d failed: %w", iteration, err)
}

// summarize reports the score trajectory from the first version to the best.
func (l *Loop) summarize(result *Result) string {
	if len(result.Versions) == 0 {
		return "no versions produced"
	}
	first := result.Versions[0]
	best := result.Best
	if best == nil {
		best = &first
	}
	return fmt.Sprintf(
		"%d version(s): started at %.1f%% (%d words), best %.1f%% (%d words) at version %d",
		len(result.Versions),
		first.Judgement.Percentage, first.WordCount,
		best.Judgement.Percentage, best.WordCount, best.Index,
	)
}
