package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"

	"github.com/draftforge/draftforge/engine/judge"
	"github.com/draftforge/draftforge/engine/llm"
	"github.com/draftforge/draftforge/engine/loop"
	"github.com/draftforge/draftforge/engine/rag"
	"github.com/draftforge/draftforge/engine/rag/search"
	"github.com/draftforge/draftforge/engine/window"
	"github.com/draftforge/draftforge/engine/window/tokens"
	"github.com/draftforge/draftforge/pkg/config"
	"github.com/draftforge/draftforge/pkg/logger"
)

func GenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [draft-file]",
		Short: "Generate an article from a draft and refine it until it meets the quality target",
		Long: "Reads a draft from the given file (or stdin), retrieves supporting research, " +
			"and runs the generate-evaluate-revise loop until the article meets the " +
			"configured quality and length targets or the iteration budget runs out.",
		Args: cobra.MaximumNArgs(1),
		RunE: runGenerate,
	}

	cmd.Flags().StringP("output", "o", "", "write the final article to this file instead of stdout")
	cmd.Flags().String("export", "", "write the full version history as JSON to this file")
	cmd.Flags().Int("max-iterations", 0, "override the maximum number of generation passes")
	cmd.Flags().Bool("reuse-context", false, "reuse the retrieved research context across revisions")
	cmd.Flags().Bool("no-research", false, "skip web research entirely")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().Bool("json-logs", false, "emit logs as JSON")
	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return err
	}

	log := logger.NewLogger(&logger.Config{
		Level:     logger.LogLevel(cfg.Logging.Level),
		JSON:      cfg.Logging.JSON,
		AddSource: cfg.Logging.AddSource,
	})
	ctx := logger.ContextWithLogger(cmd.Context(), log)

	draft, err := readDraft(cmd, args)
	if err != nil {
		return err
	}

	result, runErr := runLoop(ctx, cfg, draft)
	if result != nil {
		if err := writeOutputs(cmd, result); err != nil {
			return err
		}
	}
	return runErr
}

// runLoop assembles the budget, models, and retrieval pipeline, then runs the
// convergence loop. A partial result is returned alongside any fatal error so
// callers can still export the version history.
func runLoop(ctx context.Context, cfg *config.Config, draft string) (*loop.Result, error) {
	estimator := tokens.NewEstimator(cfg.LLM.GeneratorModel)
	budget, err := window.Allocate(cfg.Window.TotalTokens, window.Proportions{
		Output:       cfg.Window.OutputPercent,
		Instructions: cfg.Window.InstructionPercent,
		Retrieved:    cfg.Window.RetrievedPercent,
		Safety:       cfg.Window.SafetyPercent,
	}, estimator)
	if err != nil {
		return nil, err
	}

	registry := llm.NewRegistry(nil)
	generatorModel, err := registry.Get(llm.ModelConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.GeneratorModel,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("cli: creating generator model: %w", err)
	}
	evaluatorModel, err := registry.Get(llm.ModelConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.EvaluatorModel,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("cli: creating evaluator model: %w", err)
	}

	bounds := judge.WordBounds{Min: cfg.Generation.MinWords, Max: cfg.Generation.MaxWords}
	generator := llm.NewModelGenerator(generatorModel, cfg.LLM.GeneratorModel, budget, bounds, cfg.LLM.Temperature)
	evaluator := llm.NewModelEvaluator(evaluatorModel, cfg.LLM.EvaluatorModel, judge.DefaultCriteria(), cfg.Generation.TargetPercentage, bounds)
	translator := judge.NewTranslator(judge.DefaultCriteria(), cfg.Generation.TargetPercentage, bounds)

	retriever, err := buildRetriever(cfg, generatorModel, estimator)
	if err != nil {
		return nil, err
	}

	runner := loop.New(retriever, generator, evaluator, translator, budget, loop.Options{
		MaxIterations: cfg.Generation.MaxIterations,
		ReuseContext:  cfg.Generation.ReuseContext,
	})
	return runner.Run(ctx, draft)
}

// buildRetriever returns nil when research is disabled or no search
// credentials are configured; the loop then generates without retrieved
// context.
func buildRetriever(cfg *config.Config, analyzerModel llms.Model, estimator tokens.Estimator) (loop.ContextRetriever, error) {
	if !cfg.Retrieval.Enabled || cfg.Retrieval.APIKey == "" {
		return nil, nil
	}
	client, err := search.NewClient(search.ClientConfig{
		Endpoint:   cfg.Retrieval.Endpoint,
		APIKey:     cfg.Retrieval.APIKey,
		MaxResults: cfg.Retrieval.MaxResults,
		Timeout:    cfg.Retrieval.Timeout,
		MaxRetries: cfg.Retrieval.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	analyzer := llm.NewModelAnalyzer(analyzerModel, cfg.LLM.GeneratorModel)
	cleaner := rag.NewCleaner(estimator)
	return rag.NewPipeline(analyzer, client, cleaner, cfg.Retrieval.MaxConcurrency), nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("max-iterations") {
		v, err := cmd.Flags().GetInt("max-iterations")
		if err != nil {
			return err
		}
		cfg.Generation.MaxIterations = v
	}
	if cmd.Flags().Changed("reuse-context") {
		v, err := cmd.Flags().GetBool("reuse-context")
		if err != nil {
			return err
		}
		cfg.Generation.ReuseContext = v
	}
	if cmd.Flags().Changed("no-research") {
		v, err := cmd.Flags().GetBool("no-research")
		if err != nil {
			return err
		}
		cfg.Retrieval.Enabled = !v
	}
	if cmd.Flags().Changed("log-level") {
		v, err := cmd.Flags().GetString("log-level")
		if err != nil {
			return err
		}
		cfg.Logging.Level = v
	}
	if cmd.Flags().Changed("json-logs") {
		v, err := cmd.Flags().GetBool("json-logs")
		if err != nil {
			return err
		}
		cfg.Logging.JSON = v
	}
	return config.Validate(cfg)
}

// readDraft reads from the file argument, or stdin when no argument is given.
func readDraft(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("cli: reading draft file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("cli: reading draft from stdin: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("cli: no draft provided; pass a file or pipe text on stdin")
	}
	return string(data), nil
}

func writeOutputs(cmd *cobra.Command, result *loop.Result) error {
	if exportPath, _ := cmd.Flags().GetString("export"); exportPath != "" {
		data, err := result.ExportJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportPath, data, 0o644); err != nil {
			return fmt.Errorf("cli: writing export file: %w", err)
		}
	}
	if result.Best == nil {
		return nil
	}
	if outputPath, _ := cmd.Flags().GetString("output"); outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(result.Best.Text+"\n"), 0o644); err != nil {
			return fmt.Errorf("cli: writing article file: %w", err)
		}
		return nil
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), result.Best.Text)
	return err
}
