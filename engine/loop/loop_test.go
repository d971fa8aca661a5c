package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/draftforge/draftforge/engine/judge"
	"github.com/draftforge/draftforge/engine/llm"
	"github.com/draftforge/draftforge/engine/rag"
	"github.com/draftforge/draftforge/engine/window"
	"github.com/draftforge/draftforge/engine/window/tokens"
)

type stubGenerator struct {
	calls    int
	failures int
	err      error
}

func (g *stubGenerator) Generate(_ context.Context, req *llm.GenerateRequest) (string, error) {
	g.calls++
	if g.calls <= g.failures {
		return "", g.err
	}
	return "article text for pass " + string(rune('0'+g.calls)) + " " + req.Instructions, nil
}

type verdict struct {
	percentage float64
	words      int
	meets      bool
}

type stubEvaluator struct {
	calls    int
	verdicts []verdict
	err      error
	failOn   int
}

func (e *stubEvaluator) Evaluate(_ context.Context, _ string) (*judge.Judgement, error) {
	e.calls++
	if e.failOn > 0 && e.calls == e.failOn {
		return nil, e.err
	}
	v := e.verdicts[len(e.verdicts)-1]
	if e.calls <= len(e.verdicts) {
		v = e.verdicts[e.calls-1]
	}
	return &judge.Judgement{
		TotalScore:        int(v.percentage * 1.8),
		MaxScore:          180,
		Percentage:        v.percentage,
		Tier:              judge.TierFor(v.percentage),
		WordCount:         v.words,
		MeetsRequirements: v.meets,
		CategoryScores: map[string]judge.CategoryScore{
			"First-Order Thinking": {Score: int(v.percentage * 0.45), Max: 45},
		},
	}, nil
}

type stubRetriever struct {
	calls int
}

func (r *stubRetriever) Retrieve(_ context.Context, _ string, _ *window.Budget) (*rag.PackedContext, error) {
	r.calls++
	return &rag.PackedContext{Queries: []string{"q"}}, nil
}

func loopBudget(t *testing.T) *window.Budget {
	t.Helper()
	budget, err := window.Allocate(8000, window.DefaultProportions(), tokens.RuneEstimator{})
	require.NoError(t, err)
	return budget
}

func newLoop(t *testing.T, gen llm.Generator, eval llm.Evaluator, retriever ContextRetriever, opts Options) *Loop {
	t.Helper()
	translator := judge.NewTranslator(nil, 89, judge.WordBounds{Min: 2000, Max: 2500})
	return New(retriever, gen, eval, translator, loopBudget(t), opts)
}

func TestLoopRun(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldStopAtSecondIterationWhenTargetMet", func(t *testing.T) {
		gen := &stubGenerator{}
		eval := &stubEvaluator{verdicts: []verdict{
			{percentage: 78.9, words: 2247, meets: false},
			{percentage: 89.4, words: 2356, meets: true},
		}}
		result, err := newLoop(t, gen, eval, &stubRetriever{}, Options{MaxIterations: 10}).Run(ctx, "draft")
		require.NoError(t, err)
		assert.Equal(t, OutcomeAccepted, result.Outcome)
		assert.True(t, result.TargetAchieved)
		assert.Equal(t, 2, result.Iterations)
		assert.Equal(t, 2, gen.calls)
		require.Len(t, result.Versions, 2)
		assert.Equal(t, 2, result.Best.Index)
		assert.InDelta(t, 89.4, result.Best.Judgement.Percentage, 0.01)
		require.NotEmpty(t, result.Log)
		assert.Contains(t, result.Log[0], "version 1: 78.9% (2247 words)")
		assert.Contains(t, result.Log[len(result.Log)-1], "target met at version 2")
	})

	t.Run("ShouldTerminateWithinIterationBudgetWhenNeverMeeting", func(t *testing.T) {
		gen := &stubGenerator{}
		eval := &stubEvaluator{verdicts: []verdict{
			{percentage: 60, words: 1500, meets: false},
			{percentage: 74.2, words: 2100, meets: false},
			{percentage: 68, words: 2700, meets: false},
		}}
		result, err := newLoop(t, gen, eval, &stubRetriever{}, Options{MaxIterations: 3}).Run(ctx, "draft")
		require.NoError(t, err)
		assert.Equal(t, OutcomeExhausted, result.Outcome)
		assert.False(t, result.TargetAchieved)
		assert.LessOrEqual(t, gen.calls, 4)
		require.Len(t, result.Versions, 3)
		// Best is the highest-scoring version, not the last.
		assert.Equal(t, 2, result.Best.Index)
	})

	t.Run("ShouldKeepVersionIndicesStrictlyIncreasing", func(t *testing.T) {
		gen := &stubGenerator{}
		eval := &stubEvaluator{verdicts: []verdict{{percentage: 50, words: 1000, meets: false}}}
		result, err := newLoop(t, gen, eval, &stubRetriever{}, Options{MaxIterations: 4}).Run(ctx, "draft")
		require.NoError(t, err)
		for i, v := range result.Versions {
			assert.Equal(t, i+1, v.Index)
			require.NotNil(t, v.Judgement)
		}
	})

	t.Run("ShouldSurfaceEvaluatorFailureWithPartialHistory", func(t *testing.T) {
		gen := &stubGenerator{}
		eval := &stubEvaluator{
			verdicts: []verdict{{percentage: 70, words: 2100, meets: false}},
			failOn:   2,
			err:      &llm.EvaluationError{Model: "judge", Err: errors.New("timeout")},
		}
		result, err := newLoop(t, gen, eval, &stubRetriever{}, Options{MaxIterations: 5}).Run(ctx, "draft")
		require.Error(t, err)
		var evalErr *llm.EvaluationError
		assert.ErrorAs(t, err, &evalErr)
		require.NotNil(t, result)
		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.Equal(t, 2, result.FailedIteration)
		require.Len(t, result.Versions, 1)
		assert.Equal(t, 1, result.Best.Index)
	})

	t.Run("ShouldFallBackToRawDraftWhenFirstGenerationFails", func(t *testing.T) {
		gen := &stubGenerator{failures: 1, err: &llm.GenerationError{Model: "gen", Err: errors.New("rate limited")}}
		eval := &stubEvaluator{verdicts: []verdict{{percentage: 90, words: 2200, meets: true}}}
		result, err := newLoop(t, gen, eval, &stubRetriever{}, Options{MaxIterations: 3}).Run(ctx, "the raw draft")
		require.NoError(t, err)
		require.Len(t, result.Versions, 1)
		assert.Equal(t, "the raw draft", result.Versions[0].Text)
	})

	t.Run("ShouldFailWhenGenerationFailsAfterFirstIteration", func(t *testing.T) {
		gen := &stubGenerator{}
		eval := &stubEvaluator{verdicts: []verdict{{percentage: 70, words: 2100, meets: false}}}
		loop := newLoop(t, gen, eval, &stubRetriever{}, Options{MaxIterations: 5})
		gen.failures = 2
		gen.err = &llm.GenerationError{Model: "gen", Err: errors.New("down")}
		// First call fails and falls back to the draft; second call fails
		// fatally.
		result, err := loop.Run(ctx, "draft")
		require.Error(t, err)
		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.Equal(t, 2, result.FailedIteration)
	})

	t.Run("ShouldRetrieveOncePerRunWhenReusingContext", func(t *testing.T) {
		retriever := &stubRetriever{}
		gen := &stubGenerator{}
		eval := &stubEvaluator{verdicts: []verdict{{percentage: 50, words: 1000, meets: false}}}
		result, err := newLoop(t, gen, eval, retriever, Options{MaxIterations: 4, ReuseContext: true}).Run(ctx, "draft")
		require.NoError(t, err)
		assert.Equal(t, 1, retriever.calls)
		require.Len(t, result.Versions, 4)
		assert.False(t, result.Versions[0].ReusedContext)
		assert.True(t, result.Versions[1].ReusedContext)
		assert.True(t, result.Versions[3].ReusedContext)
	})

	t.Run("ShouldRetrieveFreshEachIterationWithoutReuse", func(t *testing.T) {
		retriever := &stubRetriever{}
		gen := &stubGenerator{}
		eval := &stubEvaluator{verdicts: []verdict{{percentage: 50, words: 1000, meets: false}}}
		_, err := newLoop(t, gen, eval, retriever, Options{MaxIterations: 4}).Run(ctx, "draft")
		require.NoError(t, err)
		assert.Equal(t, 4, retriever.calls)
	})

	t.Run("ShouldRunWithoutRetriever", func(t *testing.T) {
		gen := &stubGenerator{}
		eval := &stubEvaluator{verdicts: []verdict{{percentage: 92, words: 2300, meets: true}}}
		result, err := newLoop(t, gen, eval, nil, Options{MaxIterations: 2}).Run(ctx, "draft")
		require.NoError(t, err)
		assert.Equal(t, OutcomeAccepted, result.Outcome)
		assert.Zero(t, result.Versions[0].PassageCount)
	})

	t.Run("ShouldAttachImprovementPromptToRevisedVersions", func(t *testing.T) {
		gen := &stubGenerator{}
		eval := &stubEvaluator{verdicts: []verdict{
			{percentage: 60, words: 1500, meets: false},
			{percentage: 92, words: 2300, meets: true},
		}}
		result, err := newLoop(t, gen, eval, &stubRetriever{}, Options{MaxIterations: 5}).Run(ctx, "draft")
		require.NoError(t, err)
		first := result.Versions[0].Judgement
		assert.NotEmpty(t, first.ImprovementPrompt)
		assert.Contains(t, first.ImprovementPrompt, "Expand")
		assert.NotEmpty(t, first.FocusAreas)
	})

	t.Run("ShouldHonorCustomAcceptPredicate", func(t *testing.T) {
		gen := &stubGenerator{}
		eval := &stubEvaluator{verdicts: []verdict{{percentage: 75, words: 2100, meets: false}}}
		accept := func(j *judge.Judgement) bool { return j.Percentage >= 70 }
		result, err := newLoop(t, gen, eval, &stubRetriever{}, Options{MaxIterations: 5, Accept: accept}).Run(ctx, "draft")
		require.NoError(t, err)
		assert.Equal(t, OutcomeAccepted, result.Outcome)
		assert.Equal(t, 1, result.Iterations)
	})
}

func TestResultExportJSON(t *testing.T) {
	gen := &stubGenerator{}
	eval := &stubEvaluator{verdicts: []verdict{
		{percentage: 78.9, words: 2247, meets: false},
		{percentage: 89.4, words: 2356, meets: true},
	}}
	result, err := newLoop(t, gen, eval, &stubRetriever{}, Options{MaxIterations: 10}).Run(context.Background(), "draft")
	require.NoError(t, err)

	data, err := result.ExportJSON()
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(data))
	record := gjson.ParseBytes(data)
	assert.Equal(t, "accepted", record.Get("outcome").String())
	assert.NotEmpty(t, record.Get("run_id").String())
	assert.True(t, record.Get("target_achieved").Bool())
	assert.Equal(t, int64(2), record.Get("versions.#").Int())
	assert.Equal(t, int64(1), record.Get("versions.0.index").Int())
	assert.Equal(t, int64(2247), record.Get("versions.0.word_count").Int())
	assert.InDelta(t, 89.4, record.Get("versions.1.judgement.percentage").Float(), 0.01)
	assert.Equal(t, "q", record.Get("versions.0.queries.0").String())
}
