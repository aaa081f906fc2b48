package api

import "github.com/codeready-toolchain/creature-orchestrator/pkg/models"

// budgetView is the wire shape for GET/PUT /creatures/:name/budget and
// GET/PUT /budget (spec.md §6.3).
type budgetView struct {
	DailyCapUSD  float64             `json:"daily_cap_usd"`
	DailySpentUSD float64            `json:"daily_spent_usd,omitempty"`
	Action       models.BudgetAction `json:"action"`
	Status       string              `json:"status,omitempty"`
}

// narratorConfigView is the wire shape for GET/PUT /narrator/config.
type narratorConfigView struct {
	Enabled         bool   `json:"enabled"`
	Model           string `json:"model"`
	IntervalMinutes int    `json:"interval_minutes"`
}

// usageView is the wire shape for GET /usage.
type usageView struct {
	Usage map[string]models.UsageEntry `json:"usage"`
	Total float64                      `json:"total"`
}

// statusView is the wire shape for GET /status.
type statusView struct {
	Status       models.AggregateStatus               `json:"status"`
	Dependencies map[string]models.DependencyStatus    `json:"dependencies"`
}

// evolveRequest is the body of POST /creatures/:name/evolve.
type evolveRequest struct {
	Reason string `json:"reason"`
}

func errorResponse(message string) map[string]string {
	return map[string]string{"error": message}
}
