package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces every environment variable the loader reads.
// Section and key are separated by a double underscore so keys may themselves
// contain underscores: DRAFTFORGE_GENERATION__TARGET_PERCENTAGE.
const envPrefix = "DRAFTFORGE_"

// Load builds a Config from defaults overlaid with environment variables and
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, envPrefix)
			key = strings.ToLower(key)
			key = strings.Replace(key, "__", ".", 1)
			return key, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural constraints declared on Config plus the
// cross-field rules that tags cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	sum := cfg.Window.OutputPercent + cfg.Window.InstructionPercent +
		cfg.Window.RetrievedPercent + cfg.Window.SafetyPercent
	if sum > 1.0+1e-9 {
		return fmt.Errorf("config: window proportions sum to %.3f, must be <= 1.0", sum)
	}
	return nil
}
