package judge

import "strings"

// CountWords counts the words in an article. Contractions, hyphenated words,
// and alphanumeric strings count as single words; standalone punctuation does
// not count at all.
func CountWords(text string) int {
	count := 0
	for _, field := range strings.Fields(text) {
		if containsAlphanumeric(field) {
			count++
		}
	}
	return count
}

func containsAlphanumeric(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// WordBounds is the inclusive target word-count range for an article.
type WordBounds struct {
	Min int
	Max int
}

// Within reports whether count falls inside the bounds.
func (b WordBounds) Within(count int) bool {
	return count >= b.Min && count <= b.Max
}
