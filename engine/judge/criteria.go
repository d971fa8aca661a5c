// Package judge defines the evaluation vocabulary for article quality:
// scoring criteria, judgements, performance tiers, gap analysis against a
// target percentage, and the translation of a judgement into revision
// instructions for the next generation pass.
package judge

// Criterion is one scored question inside a category. Points is the maximum
// weighted score the question can contribute.
type Criterion struct {
	Question string
	Points   int
}

// Criteria maps category names to their scored questions. Category weight is
// the sum of its criterion points.
type Criteria map[string][]Criterion

// DefaultCriteria returns the built-in rubric. Thinking-quality categories
// carry roughly twice the weight of traditional engagement categories.
func DefaultCriteria() Criteria {
	return Criteria{
		"First-Order Thinking": {
			{Question: "Does the article break down complex problems into fundamental components rather than relying on analogies or existing solutions?", Points: 15},
			{Question: "Does it challenge conventional wisdom by examining root assumptions and rebuilding from basic principles?", Points: 15},
			{Question: "Does it avoid surface-level thinking and instead dig into the 'why' behind commonly accepted ideas?", Points: 15},
		},
		"Strategic Deconstruction & Synthesis": {
			{Question: "Does it deconstruct a complex system into its fundamental components and incentives?", Points: 20},
			{Question: "Does it synthesize disparate information into a single, coherent thesis?", Points: 20},
			{Question: "Does it identify second- and third-order effects of a core idea or event?", Points: 15},
			{Question: "Does it introduce a durable framework or mental model that is transferable to other contexts?", Points: 15},
			{Question: "Does it explain the fundamental 'why' behind events, rather than just describing the 'what'?", Points: 5},
		},
		"Hook & Engagement": {
			{Question: "Does the opening immediately grab attention with curiosity, emotion, or urgency?", Points: 5},
			{Question: "Does the intro clearly state why this matters to the reader in the first 3 sentences?", Points: 5},
		},
		"Storytelling & Structure": {
			{Question: "Is the article structured like a narrative (problem, tension, resolution, takeaway)?", Points: 5},
			{Question: "Are there specific, relatable examples or anecdotes?", Points: 5},
		},
		"Authority & Credibility": {
			{Question: "Are claims backed by data, research, or credible sources?", Points: 5},
			{Question: "Does the article demonstrate unique experience or perspective?", Points: 5},
		},
		"Idea Density & Clarity": {
			{Question: "Is there one clear, central idea driving the piece?", Points: 5},
			{Question: "Is every sentence valuable (no filler or fluff)?", Points: 5},
		},
		"Reader Value & Actionability": {
			{Question: "Does the reader walk away with practical, actionable insights?", Points: 5},
			{Question: "Are lessons transferable beyond the example given?", Points: 5},
		},
		"Call to Connection": {
			{Question: "Does it end with a thought-provoking question or reflection prompt?", Points: 5},
			{Question: "Does it use inclusive, community-building language?", Points: 5},
		},
	}
}

// CategoryWeight returns the maximum points a category can contribute, or 0
// for an unknown category.
func (c Criteria) CategoryWeight(category string) int {
	total := 0
	for _, criterion := range c[category] {
		total += criterion.Points
	}
	return total
}

// MaxScore returns the maximum total points across all categories.
func (c Criteria) MaxScore() int {
	total := 0
	for category := range c {
		total += c.CategoryWeight(category)
	}
	return total
}
