package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/draftforge/draftforge/engine/judge"
	"github.com/draftforge/draftforge/engine/rag"
	"github.com/draftforge/draftforge/engine/window"
)

// GenerateRequest carries everything one generation pass needs: the source
// draft, the latest produced version when revising (empty on the first
// pass), the revision instructions for this pass, and the packed research
// context.
type GenerateRequest struct {
	Draft        string
	Prior        string
	Instructions string
	Context      *rag.PackedContext
}

// Generator produces article text from a draft, instructions, and research
// context. Implementations fail with *GenerationError.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}

const generatorSystemPrompt = `You are an expert long-form article writer. ` +
	`Write a complete, polished article driven by one clear central idea. ` +
	`Break problems down to first principles, back claims with the supplied research, ` +
	`and cite sources inline where they ground a claim. ` +
	`Return only the article text, no preamble or commentary.`

// ModelGenerator is the langchaingo-backed Generator. The instruction slice
// of the budget is validated before every call so an oversized prompt fails
// fast instead of being truncated by the provider.
type ModelGenerator struct {
	model       llms.Model
	name        string
	budget      *window.Budget
	bounds      judge.WordBounds
	temperature float64
}

func NewModelGenerator(model llms.Model, name string, budget *window.Budget, bounds judge.WordBounds, temperature float64) *ModelGenerator {
	return &ModelGenerator{model: model, name: name, budget: budget, bounds: bounds, temperature: temperature}
}

func (g *ModelGenerator) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	instructions := g.buildInstructions(req)
	if err := g.budget.Validate(ctx, instructions, window.SliceInstructions); err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, generatorSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, g.buildUserMessage(req, instructions)),
	}
	options := []llms.CallOption{llms.WithMaxTokens(g.budget.Output.Tokens)}
	if g.temperature > 0 {
		options = append(options, llms.WithTemperature(g.temperature))
	}

	resp, err := g.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", &GenerationError{Model: g.name, Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", &GenerationError{Model: g.name, Err: errors.New("empty completion")}
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// buildInstructions merges the fixed length requirement with this pass's
// revision directives.
func (g *ModelGenerator) buildInstructions(req *GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The article must be between %d and %d words.\n", g.bounds.Min, g.bounds.Max)
	if req.Instructions != "" {
		b.WriteString("\n")
		b.WriteString(req.Instructions)
	}
	return b.String()
}

func (g *ModelGenerator) buildUserMessage(req *GenerateRequest, instructions string) string {
	var b strings.Builder
	b.WriteString("Source draft:\n\n")
	b.WriteString(req.Draft)
	if req.Prior != "" {
		b.WriteString("\n\nLatest version, revise this text:\n\n")
		b.WriteString(req.Prior)
	}
	if req.Context != nil && !req.Context.Empty() {
		b.WriteString("\n\nSourced research, already sized to fit your context:\n\n")
		b.WriteString(req.Context.Render())
	}
	b.WriteString("\n\nInstructions:\n\n")
	b.WriteString(instructions)
	return b.String()
}
