// Package config loads the orchestrator's YAML configuration plus its
// .env secrets, merging user values over built-in defaults
// (SPEC_FULL.md §2 "Config").
package config

import (
	"sync"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// Config is the umbrella configuration object returned by Initialize and
// threaded through every component's constructor. Budgets may be updated at
// runtime via the HTTP API (spec.md §6.3 "PUT /budget", "PUT
// /creatures/:name/budget"), so access to Budgets is guarded by budgetsMu;
// every other field is set once at Initialize and read-only afterward.
type Config struct {
	configDir string

	System          SystemConfig
	Budgets         BudgetsConfig
	Narrator        NarratorConfig
	Creator         CreatorConfig
	Pricing         PricingConfig
	CredentialProxy CredentialProxyConfig
	Secrets         Secrets

	budgetsMu sync.RWMutex
}

// ConfigDir returns the directory Initialize loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// Stats summarizes loaded configuration for the health endpoint, matching
// the teacher's ConfigStats pattern (pkg/config/config.go).
type Stats struct {
	CreaturesDir      string
	GlobalDailyCapUSD float64
	GlobalAction      string
	CreatureBudgets   int
	NarratorModel     string
	CreatorModel      string
}

func (c *Config) Stats() Stats {
	c.budgetsMu.RLock()
	defer c.budgetsMu.RUnlock()
	return Stats{
		CreaturesDir:      c.System.CreaturesDir,
		GlobalDailyCapUSD: c.Budgets.Global.DailyCapUSD,
		GlobalAction:      string(c.Budgets.Global.Action),
		CreatureBudgets:   len(c.Budgets.Creatures),
		NarratorModel:     c.Narrator.Model,
		CreatorModel:      c.Creator.Model,
	}
}

// EffectiveBudget resolves a creature's effective budget: its own override
// if set, else the global budget (spec.md §3 "Budget").
func (c *Config) EffectiveBudget(creature string) models.Budget {
	c.budgetsMu.RLock()
	defer c.budgetsMu.RUnlock()
	if b, ok := c.Budgets.Creatures[creature]; ok {
		return b
	}
	return c.Budgets.Global
}

// GlobalBudget returns the current global budget.
func (c *Config) GlobalBudget() models.Budget {
	c.budgetsMu.RLock()
	defer c.budgetsMu.RUnlock()
	return c.Budgets.Global
}

// SetGlobalBudget replaces the global budget (spec.md §6.3 "PUT /budget").
func (c *Config) SetGlobalBudget(b models.Budget) {
	c.budgetsMu.Lock()
	defer c.budgetsMu.Unlock()
	c.Budgets.Global = b
}

// SetCreatureBudget sets a per-creature override (spec.md §6.3 "PUT
// /creatures/:name/budget").
func (c *Config) SetCreatureBudget(creature string, b models.Budget) {
	c.budgetsMu.Lock()
	defer c.budgetsMu.Unlock()
	if c.Budgets.Creatures == nil {
		c.Budgets.Creatures = make(map[string]models.Budget)
	}
	c.Budgets.Creatures[creature] = b
}
