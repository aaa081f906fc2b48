package config

import "github.com/codeready-toolchain/creature-orchestrator/pkg/models"

// YAMLConfig is the shape of orchestrator.yaml.
type YAMLConfig struct {
	System          *SystemConfig          `yaml:"system"`
	Budgets         *BudgetsConfig         `yaml:"budgets"`
	Narrator        *NarratorConfig        `yaml:"narrator"`
	Creator         *CreatorConfig         `yaml:"creator"`
	Pricing         *PricingConfig         `yaml:"pricing"`
	CredentialProxy *CredentialProxyConfig `yaml:"credential_proxy"`
}

// SystemConfig groups the container/supervisor defaults applied to every
// spawned creature (spec.md §4.8, §6.2).
type SystemConfig struct {
	CreaturesDir    string `yaml:"creatures_dir"`
	Image           string `yaml:"image"`
	ContainerPort   int    `yaml:"container_port"`
	CPULimit        string `yaml:"cpu_limit"`
	MemoryLimit     string `yaml:"memory_limit"`
	OrchestratorURL string `yaml:"orchestrator_url"`
	PackageVolume   string `yaml:"package_volume"`
	HTTPPort        int    `yaml:"http_port"`
}

// BudgetsConfig holds the global budget plus any per-creature overrides
// (spec.md §3 "Budget").
type BudgetsConfig struct {
	Global    models.Budget            `yaml:"global"`
	Creatures map[string]models.Budget `yaml:"creatures"`
}

// NarratorConfig configures C10 (spec.md §4.10).
type NarratorConfig struct {
	Model           string `yaml:"model"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

// CreatorConfig configures C11 (spec.md §4.11).
type CreatorConfig struct {
	Model string `yaml:"model"`
}

// PricingConfig configures the pricing-table refresh loop (spec.md §4.3).
type PricingConfig struct {
	URL       string `yaml:"url"`
	CachePath string `yaml:"cache_path"`
}

// CredentialProxyConfig configures the credential-proxy side-car
// (spec.md §4.6).
type CredentialProxyConfig struct {
	ConfigFilePath string   `yaml:"config_file_path"`
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	Port           int      `yaml:"port"`
	RunnerKeyPath  string   `yaml:"runner_key_path"`
	HealthPath     string   `yaml:"health_path"`
	HealthAttempts int      `yaml:"health_attempts"`
}

// Secrets holds values loaded from the environment (.env), never from
// orchestrator.yaml (spec.md §6.2 "provider-specific authentication via
// env vars").
type Secrets struct {
	SourceUpstreamURL string
	TargetUpstreamURL string
	SourceAPIKey      string
	TargetAPIKey      string
	JWTSecret         []byte
}
