package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/draftforge/engine/window/tokens"
)

// sizedPassage builds a passage whose rendered form ("[SOURCE] " + source +
// newline + text + two newlines) is exactly renderedRunes long, so rune/4
// estimation gives renderedRunes/4 tokens.
func sizedPassage(t *testing.T, source string, renderedRunes int, worth float64, fill string) Passage {
	t.Helper()
	overhead := len("[SOURCE] ") + len(source) + 3
	textLen := renderedRunes - overhead
	require.Positive(t, textLen)
	text := strings.Repeat(fill, textLen/len(fill))
	text += strings.Repeat("x", textLen-len(text))
	return NewPassage(context.Background(), tokens.RuneEstimator{}, source, text, worth)
}

func TestPackerPack(t *testing.T) {
	ctx := context.Background()
	packer := NewPacker(tokens.RuneEstimator{})

	t.Run("ShouldReturnEmptyContextForEmptyInput", func(t *testing.T) {
		packed := packer.Pack(ctx, nil, 1000, []string{"q"})
		require.NotNil(t, packed)
		assert.True(t, packed.Empty())
		assert.Zero(t, packed.TotalTokens)
		assert.Equal(t, []string{"q"}, packed.Queries)
	})

	t.Run("ShouldNeverExceedBudget", func(t *testing.T) {
		passages := []Passage{
			sizedPassage(t, "s1", 400, 1, "a"),
			sizedPassage(t, "s2", 400, 1, "b"),
			sizedPassage(t, "s3", 400, 1, "c"),
		}
		packed := packer.Pack(ctx, passages, 250, nil)
		assert.LessOrEqual(t, packed.TotalTokens, 250)
		assert.Len(t, packed.Passages, 2)
	})

	t.Run("ShouldDropNearDuplicatesKeepingFirstOccurrence", func(t *testing.T) {
		original := sizedPassage(t, "s1", 400, 2, "d")
		// Same text from a different source, uppercased with extra spacing:
		// identical normalized fingerprint.
		duplicate := NewPassage(ctx, tokens.RuneEstimator{}, "s9",
			"  "+strings.ToUpper(original.Text)+"  ", 5)
		require.Equal(t, original.Fingerprint, duplicate.Fingerprint)
		packed := packer.Pack(ctx, []Passage{original, duplicate}, 1000, nil)
		require.Len(t, packed.Passages, 1)
		assert.Equal(t, "s1", packed.Passages[0].Source)
	})

	t.Run("ShouldSkipOversizedPassageAndKeepScanningForSmallerFits", func(t *testing.T) {
		// Passage 5 alone would overflow; 2 and 4 are near-duplicates;
		// passages 1+2+3 exactly fill the 300-token budget.
		p1 := sizedPassage(t, "s1", 400, 3, "a")
		p2 := sizedPassage(t, "s2", 400, 2, "b")
		p3 := sizedPassage(t, "s3", 400, 1, "c")
		p4 := NewPassage(ctx, tokens.RuneEstimator{}, "s4", strings.ToUpper(p2.Text), 2)
		p5 := sizedPassage(t, "s5", 1600, 9, "e")
		require.Equal(t, p2.Fingerprint, p4.Fingerprint)

		packed := packer.Pack(ctx, []Passage{p1, p2, p3, p4, p5}, 300, nil)
		assert.Equal(t, 300, packed.TotalTokens)
		require.Len(t, packed.Passages, 3)
		sources := []string{packed.Passages[0].Source, packed.Passages[1].Source, packed.Passages[2].Source}
		assert.Equal(t, []string{"s1", "s2", "s3"}, sources)
	})

	t.Run("ShouldPrioritizeByWorthWithStableTieBreak", func(t *testing.T) {
		low := sizedPassage(t, "s1", 400, 1, "a")
		highA := sizedPassage(t, "s2", 400, 5, "b")
		highB := sizedPassage(t, "s3", 400, 5, "c")
		packed := packer.Pack(ctx, []Passage{low, highA, highB}, 200, nil)
		require.Len(t, packed.Passages, 2)
		assert.Equal(t, "s2", packed.Passages[0].Source)
		assert.Equal(t, "s3", packed.Passages[1].Source)
	})

	t.Run("ShouldBeIdempotentForIdenticalInput", func(t *testing.T) {
		passages := []Passage{
			sizedPassage(t, "s1", 396, 2, "a"),
			sizedPassage(t, "s2", 412, 4, "b"),
			sizedPassage(t, "s3", 388, 3, "c"),
			sizedPassage(t, "s4", 420, 1, "d"),
		}
		first := packer.Pack(ctx, passages, 280, []string{"q"})
		second := packer.Pack(ctx, passages, 280, []string{"q"})
		assert.Equal(t, first.TotalTokens, second.TotalTokens)
		assert.Equal(t, first.Passages, second.Passages)
	})

	t.Run("ShouldRenderSourceHeaders", func(t *testing.T) {
		passage := sizedPassage(t, "https://a.example", 420, 1, "a")
		packed := packer.Pack(ctx, []Passage{passage}, 1000, nil)
		rendered := packed.Render()
		assert.True(t, strings.HasPrefix(rendered, "[SOURCE] https://a.example\n"))
	})
}
