package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/llms"

	"github.com/draftforge/draftforge/engine/rag"
)

const analyzerSystemPrompt = `You analyze article drafts to decide whether web research would improve them. ` +
	`A draft needs research when it makes factual claims that benefit from current data, statistics, or citations. ` +
	`Pure opinion or personal-story drafts do not. ` +
	`Respond with JSON only: {"main_topic": "...", "needs_research": true|false, "queries": ["...", ...]}. ` +
	`Emit at most 5 focused search queries.`

// ModelAnalyzer decides research needs with a model call. It satisfies the
// retrieval pipeline's TopicAnalyzer contract; the pipeline treats any error
// here as "no research needed".
type ModelAnalyzer struct {
	model llms.Model
	name  string
}

func NewModelAnalyzer(model llms.Model, name string) *ModelAnalyzer {
	return &ModelAnalyzer{model: model, name: name}
}

func (a *ModelAnalyzer) Analyze(ctx context.Context, draft string) (*rag.TopicAnalysis, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, analyzerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, "Draft:\n\n"+draft),
	}
	resp, err := a.model.GenerateContent(ctx, messages, llms.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("llm: topic analysis failed on model %q: %w", a.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: topic analysis returned no completion")
	}

	raw := strings.TrimSpace(resp.Choices[0].Content)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("llm: malformed topic analysis: %q", truncateForError(raw))
	}
	analysis := &rag.TopicAnalysis{
		MainTopic:     gjson.Get(raw, "main_topic").String(),
		NeedsResearch: gjson.Get(raw, "needs_research").Bool(),
	}
	for _, q := range gjson.Get(raw, "queries").Array() {
		if query := strings.TrimSpace(q.String()); query != "" {
			analysis.Queries = append(analysis.Queries, query)
		}
	}
	return analysis, nil
}
