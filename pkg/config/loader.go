package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Initialize loads orchestrator.yaml and .env from configDir, merges user
// values over built-in defaults, and returns a ready-to-use Config. This is
// the primary entry point, matching the teacher's config.Initialize shape
// (pkg/config/loader.go).
//
// Steps:
//  1. Load .env (missing file is silently ignored, not fatal — env vars may
//     already be set by the process's own environment).
//  2. Load orchestrator.yaml, expanding ${ENV_VAR} references.
//  3. Merge user values over built-in defaults per section.
//  4. Validate required fields.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	envPath := filepath.Join(configDir, ".env")
	_ = godotenv.Load(envPath) // best-effort; process env already present otherwise

	yamlCfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load orchestrator.yaml: %w", err)
	}

	cfg := &Config{
		configDir:       configDir,
		System:          DefaultSystemConfig(),
		Budgets:         DefaultBudgetsConfig(),
		Narrator:        DefaultNarratorConfig(),
		Creator:         DefaultCreatorConfig(),
		Pricing:         DefaultPricingConfig(),
		CredentialProxy: DefaultCredentialProxyConfig(),
		Secrets:         loadSecrets(),
	}

	if yamlCfg.System != nil {
		if err := mergo.Merge(&cfg.System, yamlCfg.System, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge system config: %w", err)
		}
	}
	if yamlCfg.Budgets != nil {
		if yamlCfg.Budgets.Global.DailyCapUSD > 0 || yamlCfg.Budgets.Global.Action != "" {
			cfg.Budgets.Global = yamlCfg.Budgets.Global
		}
		for name, b := range yamlCfg.Budgets.Creatures {
			cfg.Budgets.Creatures[name] = b
		}
	}
	if yamlCfg.Narrator != nil {
		if err := mergo.Merge(&cfg.Narrator, yamlCfg.Narrator, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge narrator config: %w", err)
		}
	}
	if yamlCfg.Creator != nil {
		if err := mergo.Merge(&cfg.Creator, yamlCfg.Creator, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge creator config: %w", err)
		}
	}
	if yamlCfg.Pricing != nil {
		if err := mergo.Merge(&cfg.Pricing, yamlCfg.Pricing, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge pricing config: %w", err)
		}
	}
	if yamlCfg.CredentialProxy != nil {
		if err := mergo.Merge(&cfg.CredentialProxy, yamlCfg.CredentialProxy, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge credential-proxy config: %w", err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(configDir string) (*YAMLConfig, error) {
	path := filepath.Join(configDir, "orchestrator.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A wholly absent file is valid: every section falls back to
			// its built-in default.
			return &YAMLConfig{}, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

func loadSecrets() Secrets {
	return Secrets{
		SourceUpstreamURL: os.Getenv("SOURCE_UPSTREAM_URL"),
		TargetUpstreamURL: os.Getenv("TARGET_UPSTREAM_URL"),
		SourceAPIKey:      os.Getenv("SOURCE_API_KEY"),
		TargetAPIKey:      os.Getenv("TARGET_API_KEY"),
		JWTSecret:         []byte(os.Getenv("JWT_SECRET")),
	}
}

func validate(cfg *Config) error {
	if cfg.System.CreaturesDir == "" {
		return ErrMissingCreaturesDir
	}
	return nil
}
