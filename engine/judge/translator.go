package judge

import (
	"fmt"
	"strings"
)

// Translator converts a judgement into one revision instruction block. Length
// guidance is always coupled to score gaps: expansion is directed at the
// weakest categories and condensation preserves the strongest ones, so a
// single revision pass moves both constraints in the right direction.
type Translator struct {
	criteria         Criteria
	targetPercentage float64
	bounds           WordBounds
}

func NewTranslator(criteria Criteria, targetPercentage float64, bounds WordBounds) *Translator {
	if criteria == nil {
		criteria = DefaultCriteria()
	}
	return &Translator{criteria: criteria, targetPercentage: targetPercentage, bounds: bounds}
}

// Instructions is the translator output handed to the next generation pass.
type Instructions struct {
	Prompt     string
	FocusAreas []string
}

// Translate builds the revision instruction block for a judgement.
func (t *Translator) Translate(judgement *Judgement) Instructions {
	analysis := AnalyzeGaps(judgement, t.criteria, t.targetPercentage)
	focus := analysis.FocusAreas()

	var b strings.Builder
	fmt.Fprintf(&b, "Current score: %.1f%% (target: %.1f%%).\n", judgement.Percentage, t.targetPercentage)
	if analysis.TotalGap > 0 {
		fmt.Fprintf(&b, "Gap to target: %d points.\n", analysis.TotalGap)
	}

	if len(analysis.Priorities) > 0 {
		b.WriteString("\nPriority improvements, highest impact first:\n")
		for i, p := range analysis.Priorities[:len(focus)] {
			fmt.Fprintf(&b, "%d. %s: %d of %d points, needs +%d.\n", i+1, p.Category, p.Current, p.Weight, p.Gap)
			for _, question := range t.criteria[p.Category] {
				fmt.Fprintf(&b, "   - %s\n", question.Question)
			}
		}
	}

	b.WriteString(t.lengthGuidance(judgement, focus))
	return Instructions{Prompt: strings.TrimSpace(b.String()), FocusAreas: focus}
}

// lengthGuidance emits nothing when the word count is already in bounds.
func (t *Translator) lengthGuidance(judgement *Judgement, focus []string) string {
	count := judgement.WordCount
	switch {
	case count < t.bounds.Min:
		shortage := t.bounds.Min - count
		guidance := fmt.Sprintf(
			"\nLength: %d words, %d short of the %d-%d word range. Expand the article by at least %d words",
			count, shortage, t.bounds.Min, t.bounds.Max, shortage,
		)
		if len(focus) > 0 {
			guidance += fmt.Sprintf(", adding depth in the weakest categories (%s) so the added length also raises the score", strings.Join(focus, ", "))
		}
		return guidance + ".\n"
	case count > t.bounds.Max:
		excess := count - t.bounds.Max
		guidance := fmt.Sprintf(
			"\nLength: %d words, %d over the %d-%d word range. Condense the article by at least %d words",
			count, excess, t.bounds.Min, t.bounds.Max, excess,
		)
		if strongest := StrongestCategories(judgement, 2); len(strongest) > 0 {
			guidance += fmt.Sprintf(", preserving the strongest-scoring material (%s) and cutting filler elsewhere", strings.Join(strongest, ", "))
		}
		return guidance + ".\n"
	default:
		return ""
	}
}
