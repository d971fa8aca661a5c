package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/draftforge/pkg/config"
)

func TestRootCmd(t *testing.T) {
	root := RootCmd()
	assert.Equal(t, "draftforge", root.Use)
	generate, _, err := root.Find([]string{"generate"})
	require.NoError(t, err)
	assert.Equal(t, "generate [draft-file]", generate.Use)
}

func TestReadDraft(t *testing.T) {
	t.Run("ShouldReadFromFileArgument", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "draft.md")
		require.NoError(t, os.WriteFile(path, []byte("a draft"), 0o644))
		draft, err := readDraft(GenerateCmd(), []string{path})
		require.NoError(t, err)
		assert.Equal(t, "a draft", draft)
	})

	t.Run("ShouldReadFromStdinWhenNoArgument", func(t *testing.T) {
		cmd := GenerateCmd()
		cmd.SetIn(strings.NewReader("piped draft"))
		draft, err := readDraft(cmd, nil)
		require.NoError(t, err)
		assert.Equal(t, "piped draft", draft)
	})

	t.Run("ShouldFailOnEmptyStdin", func(t *testing.T) {
		cmd := GenerateCmd()
		cmd.SetIn(strings.NewReader(""))
		_, err := readDraft(cmd, nil)
		require.Error(t, err)
	})

	t.Run("ShouldFailOnMissingFile", func(t *testing.T) {
		_, err := readDraft(GenerateCmd(), []string{"/nonexistent/draft.md"})
		require.Error(t, err)
	})
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Run("ShouldOverrideIterationAndResearchSettings", func(t *testing.T) {
		cmd := GenerateCmd()
		require.NoError(t, cmd.Flags().Set("max-iterations", "3"))
		require.NoError(t, cmd.Flags().Set("no-research", "true"))
		require.NoError(t, cmd.Flags().Set("reuse-context", "true"))
		cfg := config.Default()
		require.NoError(t, applyFlagOverrides(cmd, cfg))
		assert.Equal(t, 3, cfg.Generation.MaxIterations)
		assert.False(t, cfg.Retrieval.Enabled)
		assert.True(t, cfg.Generation.ReuseContext)
	})

	t.Run("ShouldLeaveConfigUntouchedWithoutFlags", func(t *testing.T) {
		cfg := config.Default()
		want := cfg.Generation.MaxIterations
		require.NoError(t, applyFlagOverrides(GenerateCmd(), cfg))
		assert.Equal(t, want, cfg.Generation.MaxIterations)
	})

	t.Run("ShouldRejectInvalidOverride", func(t *testing.T) {
		cmd := GenerateCmd()
		require.NoError(t, cmd.Flags().Set("max-iterations", "99"))
		cfg := config.Default()
		require.Error(t, applyFlagOverrides(cmd, cfg))
	})
}
