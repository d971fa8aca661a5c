package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/llms"

	"github.com/draftforge/draftforge/engine/judge"
)

// Evaluator scores article text against the quality rubric. Implementations
// fail with *EvaluationError.
type Evaluator interface {
	Evaluate(ctx context.Context, text string) (*judge.Judgement, error)
}

// ModelEvaluator asks a model for per-category scores in JSON and derives the
// rest of the judgement locally: percentage, tier, word count, and the joint
// quality-and-length acceptance flag. The model is never trusted with
// arithmetic it can get wrong.
type ModelEvaluator struct {
	model            llms.Model
	name             string
	criteria         judge.Criteria
	targetPercentage float64
	bounds           judge.WordBounds
}

func NewModelEvaluator(model llms.Model, name string, criteria judge.Criteria, targetPercentage float64, bounds judge.WordBounds) *ModelEvaluator {
	if criteria == nil {
		criteria = judge.DefaultCriteria()
	}
	return &ModelEvaluator{
		model:            model,
		name:             name,
		criteria:         criteria,
		targetPercentage: targetPercentage,
		bounds:           bounds,
	}
}

func (e *ModelEvaluator) Evaluate(ctx context.Context, text string) (*judge.Judgement, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, e.rubricPrompt()),
		llms.TextParts(llms.ChatMessageTypeHuman, "Score this article:\n\n"+text),
	}
	resp, err := e.model.GenerateContent(ctx, messages, llms.WithJSONMode())
	if err != nil {
		return nil, &EvaluationError{Model: e.name, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &EvaluationError{Model: e.name, Err: errors.New("empty completion")}
	}

	judgement, err := e.parseJudgement(resp.Choices[0].Content)
	if err != nil {
		return nil, &EvaluationError{Model: e.name, Err: err}
	}
	e.finalize(judgement, text)
	return judgement, nil
}

// rubricPrompt renders the criteria as the scoring contract. The model
// returns raw per-category scores only.
func (e *ModelEvaluator) rubricPrompt() string {
	var b strings.Builder
	b.WriteString("You are a rigorous article quality judge. Score the article on each category below. ")
	b.WriteString("Rate every question 1-5 and scale it to the question's point value, then sum per category.\n\n")
	for _, category := range e.categoryOrder() {
		fmt.Fprintf(&b, "%s (max %d points):\n", category, e.criteria.CategoryWeight(category))
		for _, criterion := range e.criteria[category] {
			fmt.Fprintf(&b, "- [%d pts] %s\n", criterion.Points, criterion.Question)
		}
		b.WriteString("\n")
	}
	b.WriteString(`Respond with JSON only, in this shape: {"category_scores": {"<category>": <points achieved>, ...}}`)
	return b.String()
}

func (e *ModelEvaluator) categoryOrder() []string {
	order := make([]string, 0, len(e.criteria))
	for category := range e.criteria {
		order = append(order, category)
	}
	// Stable prompt rendering across calls.
	sort.Strings(order)
	return order
}

func (e *ModelEvaluator) parseJudgement(raw string) (*judge.Judgement, error) {
	raw = strings.TrimSpace(raw)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("malformed evaluator output: %q", truncateForError(raw))
	}
	scores := gjson.Get(raw, "category_scores")
	if !scores.IsObject() {
		return nil, errors.New("evaluator output missing category_scores object")
	}

	judgement := &judge.Judgement{CategoryScores: make(map[string]judge.CategoryScore)}
	var parseErr error
	scores.ForEach(func(key, value gjson.Result) bool {
		category := key.String()
		max := e.criteria.CategoryWeight(category)
		if max == 0 {
			parseErr = fmt.Errorf("evaluator scored unknown category %q", category)
			return false
		}
		score := int(value.Int())
		if value.IsObject() {
			score = int(value.Get("score").Int())
		}
		if score < 0 || score > max {
			parseErr = fmt.Errorf("evaluator score %d out of range for category %q (max %d)", score, category, max)
			return false
		}
		judgement.CategoryScores[category] = judge.CategoryScore{Score: score, Max: max}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(judgement.CategoryScores) != len(e.criteria) {
		return nil, fmt.Errorf("evaluator scored %d of %d categories", len(judgement.CategoryScores), len(e.criteria))
	}
	return judgement, nil
}

// finalize derives every field we can compute ourselves.
func (e *ModelEvaluator) finalize(judgement *judge.Judgement, text string) {
	total := 0
	for _, score := range judgement.CategoryScores {
		total += score.Score
	}
	judgement.TotalScore = total
	judgement.MaxScore = e.criteria.MaxScore()
	if judgement.MaxScore > 0 {
		judgement.Percentage = float64(total) / float64(judgement.MaxScore) * 100
	}
	judgement.Tier = judge.TierFor(judgement.Percentage)
	judgement.WordCount = judge.CountWords(text)
	judgement.MeetsRequirements = judgement.Percentage >= e.targetPercentage &&
		e.bounds.Within(judgement.WordCount)
}

func truncateForError(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
