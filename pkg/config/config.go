package config

import "time"

// Config is the complete configuration for a draftforge run. Values are
// loaded from defaults and environment variables; the struct is treated as
// read-only once loaded.
type Config struct {
	Generation GenerationConfig `koanf:"generation" validate:"required"`
	Window     WindowConfig     `koanf:"window"     validate:"required"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"  validate:"required"`
	LLM        LLMConfig        `koanf:"llm"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// GenerationConfig drives the convergence loop.
type GenerationConfig struct {
	TargetPercentage float64 `koanf:"target_percentage" validate:"gt=0,lte=100"`
	MinWords         int     `koanf:"min_words"         validate:"gt=0"`
	MaxWords         int     `koanf:"max_words"         validate:"gtefield=MinWords"`
	MaxIterations    int     `koanf:"max_iterations"    validate:"gte=1,lte=50"`
	ReuseContext     bool    `koanf:"reuse_context"`
}

// WindowConfig controls the context-window budget split.
type WindowConfig struct {
	TotalTokens        int     `koanf:"total_tokens"        validate:"gte=1024"`
	OutputPercent      float64 `koanf:"output_percent"      validate:"gt=0,lt=1"`
	InstructionPercent float64 `koanf:"instruction_percent" validate:"gt=0,lt=1"`
	RetrievedPercent   float64 `koanf:"retrieved_percent"   validate:"gt=0,lt=1"`
	SafetyPercent      float64 `koanf:"safety_percent"      validate:"gte=0,lt=1"`
}

// RetrievalConfig controls the web retrieval pipeline.
type RetrievalConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Endpoint       string        `koanf:"endpoint"        validate:"omitempty,url"`
	APIKey         string        `koanf:"api_key"`
	MaxResults     int           `koanf:"max_results"     validate:"gte=1,lte=20"`
	MaxConcurrency int           `koanf:"max_concurrency" validate:"gte=1,lte=64"`
	Timeout        time.Duration `koanf:"timeout"         validate:"gt=0"`
	MaxRetries     int           `koanf:"max_retries"     validate:"gte=0,lte=10"`
}

// LLMConfig identifies the models used for generation and evaluation.
type LLMConfig struct {
	Provider       string  `koanf:"provider"`
	GeneratorModel string  `koanf:"generator_model"`
	EvaluatorModel string  `koanf:"evaluator_model"`
	APIKey         string  `koanf:"api_key"`
	Temperature    float64 `koanf:"temperature" validate:"gte=0,lte=2"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level     string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON      bool   `koanf:"json"`
	AddSource bool   `koanf:"add_source"`
}

// Default returns the built-in configuration. The window proportions mirror
// the 25/15/35/25 split the allocator defaults to.
func Default() *Config {
	return &Config{
		Generation: GenerationConfig{
			TargetPercentage: 89.0,
			MinWords:         2000,
			MaxWords:         2500,
			MaxIterations:    10,
		},
		Window: WindowConfig{
			TotalTokens:        128_000,
			OutputPercent:      0.25,
			InstructionPercent: 0.15,
			RetrievedPercent:   0.35,
			SafetyPercent:      0.25,
		},
		Retrieval: RetrievalConfig{
			Enabled:        true,
			Endpoint:       "https://api.tavily.com",
			MaxResults:     6,
			MaxConcurrency: 8,
			Timeout:        45 * time.Second,
			MaxRetries:     2,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			GeneratorModel: "gpt-4o",
			EvaluatorModel: "gpt-4o-mini",
			Temperature:    0.0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
