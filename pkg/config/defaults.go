package config

import "github.com/codeready-toolchain/creature-orchestrator/pkg/models"

// DefaultSystemConfig mirrors the teacher's built-in-defaults pattern
// (pkg/config/builtin.go): every field has a sane fallback so a minimal
// orchestrator.yaml is valid.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		CreaturesDir:    "./creatures",
		Image:           "creature-runtime:latest",
		ContainerPort:   8080,
		CPULimit:        "1.0",
		MemoryLimit:     "512m",
		OrchestratorURL: "http://host.docker.internal:9090",
		PackageVolume:   "creature-pkg-cache",
		HTTPPort:        9090,
	}
}

// DefaultBudgetsConfig applies when orchestrator.yaml omits `budgets`
// entirely: unlimited, unenforced (spec.md §3 "action off disables
// enforcement").
func DefaultBudgetsConfig() BudgetsConfig {
	return BudgetsConfig{
		Global:    models.Budget{DailyCapUSD: 0, Action: models.BudgetActionOff},
		Creatures: map[string]models.Budget{},
	}
}

func DefaultNarratorConfig() NarratorConfig {
	return NarratorConfig{Model: "claude-haiku", IntervalMinutes: 15}
}

func DefaultCreatorConfig() CreatorConfig {
	return CreatorConfig{Model: "claude-sonnet"}
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		URL:       "",
		CachePath: "./.sys/pricing-cache.json",
	}
}

func DefaultCredentialProxyConfig() CredentialProxyConfig {
	return CredentialProxyConfig{
		ConfigFilePath: "./credproxy.yaml",
		Port:           8787,
		RunnerKeyPath:  "./.sys/runner-key",
		HealthPath:     "/healthz",
		HealthAttempts: 10,
	}
}
