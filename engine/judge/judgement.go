package judge

// Performance tiers keyed to percentage thresholds.
const (
	TierWorldClass = "World-class — publish as is"
	TierStrong     = "Strong, but tighten weak areas"
	TierNeedsWork  = "Needs restructuring and sharper insights"
	TierRework     = "Rework before publishing"
)

// CategoryScore is the achieved and maximum score for one rubric category.
type CategoryScore struct {
	Score int `json:"score"`
	Max   int `json:"max"`
}

// Percentage returns the category score as a percentage of its maximum.
func (c CategoryScore) Percentage() float64 {
	if c.Max <= 0 {
		return 0
	}
	return float64(c.Score) / float64(c.Max) * 100
}

// Judgement is one evaluator verdict over one article version. The loop
// treats it as opaque except for MeetsRequirements, Percentage, and the
// improvement fields.
type Judgement struct {
	TotalScore        int                      `json:"total_score"`
	MaxScore          int                      `json:"max_score"`
	Percentage        float64                  `json:"percentage"`
	Tier              string                   `json:"performance_tier"`
	WordCount         int                      `json:"word_count"`
	CategoryScores    map[string]CategoryScore `json:"category_scores"`
	MeetsRequirements bool                     `json:"meets_requirements"`
	ImprovementPrompt string                   `json:"improvement_prompt,omitempty"`
	FocusAreas        []string                 `json:"focus_areas,omitempty"`
}

// TierFor maps a percentage to its performance tier.
func TierFor(percentage float64) string {
	switch {
	case percentage >= 89:
		return TierWorldClass
	case percentage >= 72:
		return TierStrong
	case percentage >= 56:
		return TierNeedsWork
	default:
		return TierRework
	}
}
