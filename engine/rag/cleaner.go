package rag

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/draftforge/draftforge/engine/rag/search"
	"github.com/draftforge/draftforge/engine/window/tokens"
	"github.com/draftforge/draftforge/pkg/logger"
)

const (
	// DefaultMinContentLength rejects near-empty pages after cleaning.
	DefaultMinContentLength = 200
	// DefaultMaxPassageChars is the hard per-passage ceiling. Truncation at
	// this ceiling is always sentence-boundary aware.
	DefaultMaxPassageChars = 100_000
	// DefaultWorthThreshold is the minimum citation-worthiness score a
	// sentence needs to survive filtering.
	DefaultWorthThreshold = 1.0
)

// skipElements are structural HTML subtrees that never carry article content.
var skipElements = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "nav": {}, "header": {},
	"footer": {}, "aside": {}, "form": {}, "iframe": {}, "svg": {},
	"button": {}, "select": {}, "template": {},
}

var (
	tagPattern         = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	figurePattern      = regexp.MustCompile(`\d+\s?(%|percent)|[$€£]\s?\d|\d{2,}`)
	yearPattern        = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	attributionPattern = regexp.MustCompile(
		`(?i)\b(according to|said|reported|reports|study|survey|research|announced|estimated?s?|found that)\b`)
	boilerplateMarkers = []string{"subscribe", "cookie", "privacy policy", "terms of use", "terms of service", "sign up", "log in"}
)

// Cleaner normalizes raw fetched documents into scored passages. Scoring is
// purely lexical; no model call happens during cleaning.
type Cleaner struct {
	minContentLength int
	maxPassageChars  int
	worthThreshold   float64
	estimator        tokens.Estimator
}

func NewCleaner(estimator tokens.Estimator) *Cleaner {
	if estimator == nil {
		estimator = tokens.RuneEstimator{}
	}
	return &Cleaner{
		minContentLength: DefaultMinContentLength,
		maxPassageChars:  DefaultMaxPassageChars,
		worthThreshold:   DefaultWorthThreshold,
		estimator:        estimator,
	}
}

// Clean produces zero or one passage from a raw document. A nil passage with
// nil error means the document was rejected (too short after cleaning).
func (c *Cleaner) Clean(ctx context.Context, doc search.Document) (*Passage, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}
	text, err := decodeToUTF8([]byte(doc.Content), doc.ContentType)
	if err != nil {
		return nil, fmt.Errorf("rag: decode document %q: %w", doc.URL, err)
	}
	if looksLikeHTML(text, doc.ContentType) {
		extracted := extractHTMLText(text)
		if strings.TrimSpace(extracted) == "" {
			// Primary parse produced nothing; fall back to tag stripping
			// rather than discarding the document.
			extracted = tagPattern.ReplaceAllString(text, " ")
		}
		text = extracted
	}
	text = stripBoilerplate(text)
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	kept := make([]string, 0, len(sentences))
	var worthSum float64
	for _, sentence := range sentences {
		score := scoreSentence(sentence)
		if score >= c.worthThreshold {
			kept = append(kept, sentence)
			worthSum += score
		}
	}
	if len(kept) == 0 {
		// Filtering would leave nothing; keep the cleaned unfiltered text.
		kept = sentences
		worthSum = 0
		for _, sentence := range kept {
			worthSum += scoreSentence(sentence)
		}
	}
	joined := joinWithinLimit(kept, c.maxPassageChars)
	if utf8.RuneCountInString(joined) < c.minContentLength {
		return nil, nil
	}
	return &Passage{
		Source:      doc.URL,
		Text:        joined,
		Tokens:      c.estimator.EstimateTokens(ctx, joined),
		Worth:       worthSum / float64(len(kept)),
		Fingerprint: Fingerprint(joined),
	}, nil
}

// CleanAll cleans a batch. A single document's failure never aborts the
// batch; it is logged and skipped.
func (c *Cleaner) CleanAll(ctx context.Context, docs []search.Document) []Passage {
	log := logger.FromContext(ctx)
	passages := make([]Passage, 0, len(docs))
	for _, doc := range docs {
		passage, err := c.Clean(ctx, doc)
		if err != nil {
			log.Warn("document cleaning failed", "source", doc.URL, "error", err)
			continue
		}
		if passage == nil {
			log.Debug("document rejected after cleaning", "source", doc.URL)
			continue
		}
		passages = append(passages, *passage)
	}
	return passages
}

func decodeToUTF8(data []byte, contentType string) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("transcode from %s: %w", name, err)
	}
	if !utf8.Valid(decoded) {
		return "", fmt.Errorf("transcoded result from %s is not valid utf-8", name)
	}
	return string(decoded), nil
}

func looksLikeHTML(text, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "<!") || strings.HasPrefix(trimmed, "<html") ||
		strings.Contains(trimmed[:min(len(trimmed), 512)], "<body")
}

// extractHTMLText walks the token stream collecting text outside structural
// subtrees (navigation, scripts, forms).
func extractHTMLText(raw string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(raw))
	var sb strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if _, skip := skipElements[string(name)]; skip {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if _, skip := skipElements[string(name)]; skip && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					sb.WriteString(text)
					sb.WriteString("\n")
				}
			}
		}
	}
}

// stripBoilerplate drops navigation/footer style lines: known marker strings
// and ultra-short lines carrying no figures.
func stripBoilerplate(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lowered := strings.ToLower(line)
		if hasBoilerplateMarker(lowered) {
			continue
		}
		if strings.HasPrefix(line, "©") || strings.HasPrefix(lowered, "copyright") ||
			strings.HasPrefix(lowered, "all rights reserved") {
			continue
		}
		if utf8.RuneCountInString(line) < 40 && !strings.ContainsFunc(line, unicode.IsDigit) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func hasBoilerplateMarker(lowered string) bool {
	for _, marker := range boilerplateMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// splitSentences breaks text on terminal punctuation followed by whitespace
// and an uppercase letter or digit. Collapses internal whitespace first so
// line breaks inside sentences do not create false boundaries.
func splitSentences(text string) []string {
	normalized := whitespacePattern.ReplaceAllString(strings.TrimSpace(text), " ")
	if normalized == "" {
		return nil
	}
	runes := []rune(normalized)
	sentences := make([]string, 0, 16)
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) {
			continue
		}
		if unicode.IsUpper(runes[j]) || unicode.IsDigit(runes[j]) {
			if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = j
			i = j - 1
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// scoreSentence estimates citation-worthiness from lexical signals alone:
// figures, years, attribution phrases, and substantive length.
func scoreSentence(sentence string) float64 {
	length := utf8.RuneCountInString(sentence)
	if length < 40 {
		return 0
	}
	var score float64
	if figurePattern.MatchString(sentence) {
		score += 2
	}
	if yearPattern.MatchString(sentence) {
		score += 1
	}
	if attributionPattern.MatchString(sentence) {
		score += 1.5
	}
	if length > 120 {
		score += 1
	}
	return score
}

// joinWithinLimit concatenates sentences up to the character ceiling, cutting
// only at sentence boundaries.
func joinWithinLimit(sentences []string, maxChars int) string {
	var sb strings.Builder
	total := 0
	for i, sentence := range sentences {
		length := utf8.RuneCountInString(sentence)
		if i > 0 {
			length++ // joining space
		}
		if total+length > maxChars {
			break
		}
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(sentence)
		total += length
	}
	return sb.String()
}
