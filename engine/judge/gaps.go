package judge

import "sort"

// maxFocusAreas bounds how many weak categories a revision pass is asked to
// address at once.
const maxFocusAreas = 3

// CategoryGap is one category's distance from its target score, weighted by
// the category's importance.
type CategoryGap struct {
	Category string
	Current  int
	Target   int
	Gap      int
	Weight   int
	// Impact is Gap * Weight; heavier categories with wider gaps are
	// addressed first.
	Impact int
}

// GapAnalysis summarizes how far a judgement sits from the target and which
// categories to fix first.
type GapAnalysis struct {
	TotalGap   int
	Priorities []CategoryGap
}

// AnalyzeGaps compares a judgement's category scores against targetPercentage
// of each category's maximum. Only categories below target appear in
// Priorities, sorted by impact descending with category name as a
// deterministic tie-break.
func AnalyzeGaps(judgement *Judgement, criteria Criteria, targetPercentage float64) GapAnalysis {
	targetTotal := int(float64(criteria.MaxScore()) * targetPercentage / 100)
	analysis := GapAnalysis{TotalGap: targetTotal - judgement.TotalScore}
	for category, score := range judgement.CategoryScores {
		weight := criteria.CategoryWeight(category)
		if weight <= 0 {
			weight = score.Max
		}
		target := int(float64(weight) * targetPercentage / 100)
		gap := target - score.Score
		if gap <= 0 {
			continue
		}
		analysis.Priorities = append(analysis.Priorities, CategoryGap{
			Category: category,
			Current:  score.Score,
			Target:   target,
			Gap:      gap,
			Weight:   weight,
			Impact:   gap * weight,
		})
	}
	sort.Slice(analysis.Priorities, func(i, j int) bool {
		a, b := analysis.Priorities[i], analysis.Priorities[j]
		if a.Impact != b.Impact {
			return a.Impact > b.Impact
		}
		return a.Category < b.Category
	})
	return analysis
}

// FocusAreas returns the names of the top priority categories, at most
// maxFocusAreas of them.
func (g GapAnalysis) FocusAreas() []string {
	n := len(g.Priorities)
	if n > maxFocusAreas {
		n = maxFocusAreas
	}
	areas := make([]string, 0, n)
	for _, p := range g.Priorities[:n] {
		areas = append(areas, p.Category)
	}
	return areas
}

// StrongestCategories returns up to n category names sorted by achieved
// percentage descending, used to tell condensation passes what to preserve.
func StrongestCategories(judgement *Judgement, n int) []string {
	type ranked struct {
		category string
		pct      float64
	}
	all := make([]ranked, 0, len(judgement.CategoryScores))
	for category, score := range judgement.CategoryScores {
		all = append(all, ranked{category: category, pct: score.Percentage()})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].pct != all[j].pct {
			return all[i].pct > all[j].pct
		}
		return all[i].category < all[j].category
	})
	if n > len(all) {
		n = len(all)
	}
	names := make([]string, 0, n)
	for _, r := range all[:n] {
		names = append(names, r.category)
	}
	return names
}
