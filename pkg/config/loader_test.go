package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInitialize_MissingYAMLUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultSystemConfig().CreaturesDir, cfg.System.CreaturesDir)
	assert.Equal(t, models.BudgetActionOff, cfg.Budgets.Global.Action)
}

func TestInitialize_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orchestrator.yaml", `
system:
  creatures_dir: /data/creatures
  image: custom-runtime:v2
narrator:
  model: claude-opus
  interval_minutes: 30
budgets:
  global:
    daily_cap_usd: 5.0
    action: sleep
  creatures:
    alpha:
      daily_cap_usd: 1.0
      action: warn
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "/data/creatures", cfg.System.CreaturesDir)
	assert.Equal(t, "custom-runtime:v2", cfg.System.Image)
	assert.Equal(t, "claude-opus", cfg.Narrator.Model)
	assert.Equal(t, 30, cfg.Narrator.IntervalMinutes)
	assert.Equal(t, 5.0, cfg.Budgets.Global.DailyCapUSD)
	assert.Equal(t, models.BudgetActionSleep, cfg.Budgets.Global.Action)
	assert.Equal(t, models.BudgetActionWarn, cfg.Budgets.Creatures["alpha"].Action)
}

func TestInitialize_EnvVarExpansionInYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_IMAGE_TAG", "v9")
	writeFile(t, dir, "orchestrator.yaml", `
system:
  image: "creature-runtime:${TEST_IMAGE_TAG}"
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "creature-runtime:v9", cfg.System.Image)
}

func TestInitialize_DotEnvLoadsSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "SOURCE_API_KEY=sk-test-123\nJWT_SECRET=shh\n")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Secrets.SourceAPIKey)
	assert.Equal(t, []byte("shh"), cfg.Secrets.JWTSecret)
}

func TestEffectiveBudget_CreatureOverrideWinsOverGlobal(t *testing.T) {
	cfg := &Config{
		Budgets: BudgetsConfig{
			Global:    models.Budget{DailyCapUSD: 10, Action: models.BudgetActionSleep},
			Creatures: map[string]models.Budget{"alpha": {DailyCapUSD: 2, Action: models.BudgetActionWarn}},
		},
	}
	assert.Equal(t, models.Budget{DailyCapUSD: 2, Action: models.BudgetActionWarn}, cfg.EffectiveBudget("alpha"))
	assert.Equal(t, models.Budget{DailyCapUSD: 10, Action: models.BudgetActionSleep}, cfg.EffectiveBudget("beta"))
}

func TestInitialize_InvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orchestrator.yaml", "system: [this is not a map")

	_, err := Initialize(context.Background(), dir)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestStats_SummarizesConfig(t *testing.T) {
	cfg := &Config{
		System:   SystemConfig{CreaturesDir: "/x"},
		Budgets:  BudgetsConfig{Global: models.Budget{DailyCapUSD: 3, Action: models.BudgetActionOff}, Creatures: map[string]models.Budget{"a": {}}},
		Narrator: NarratorConfig{Model: "m1"},
		Creator:  CreatorConfig{Model: "m2"},
	}
	s := cfg.Stats()
	assert.Equal(t, "/x", s.CreaturesDir)
	assert.Equal(t, 3.0, s.GlobalDailyCapUSD)
	assert.Equal(t, 1, s.CreatureBudgets)
	assert.Equal(t, "m1", s.NarratorModel)
	assert.Equal(t, "m2", s.CreatorModel)
}
