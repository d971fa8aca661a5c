// Package rag turns raw web documents into a packed, token-bounded context
// block: cleaning and scoring passages, deduplicating near-identical content,
// and greedily filling the retrieved-context slice of the window budget.
package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Passage is one cleaned unit of retrieved text eligible for packing.
// Passages are immutable and owned by the pipeline run that created them.
type Passage struct {
	Source      string
	Text        string
	Tokens      int
	Worth       float64
	Fingerprint string
}

// PackedContext is the ordered selection of passages that fits the
// retrieved-context slice, with the cumulative token count and the queries
// that produced it.
type PackedContext struct {
	Passages    []Passage
	TotalTokens int
	Queries     []string
}

// Empty reports whether the context carries no retrieved content.
func (p *PackedContext) Empty() bool {
	return p == nil || len(p.Passages) == 0
}

// Render emits the context block handed to the generator, one source header
// per passage.
func (p *PackedContext) Render() string {
	if p.Empty() {
		return ""
	}
	var sb strings.Builder
	for _, passage := range p.Passages {
		sb.WriteString("[SOURCE] " + passage.Source + "\n")
		sb.WriteString(passage.Text)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// Fingerprint computes the near-duplicate signature for a passage: a hash of
// the text reduced to lowercase alphanumerics, so whitespace and punctuation
// variants of the same content collide.
func Fingerprint(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}
