package api

import (
	"github.com/codeready-toolchain/creature-orchestrator/pkg/config"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/cost"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// NewBudgetChecker builds the llmproxy.BudgetChecker the proxy's admission
// pipeline calls on every request (spec.md §4.7 step 2): an identity is
// over budget once its tracked daily spend reaches its effective cap
// (global, or a per-creature override, spec.md §3). The narrator and
// creator pseudo-identities (`_narrator`, `creator:<name>`) fall back to the
// global budget since they carry no per-creature override of their own.
func NewBudgetChecker(cfg *config.Config, tracker *cost.Tracker) func(identity string) (bool, models.BudgetAction) {
	return func(identity string) (bool, models.BudgetAction) {
		budget := cfg.EffectiveBudget(identity)
		if budget.Action == models.BudgetActionOff || budget.DailyCapUSD <= 0 {
			return false, models.BudgetActionOff
		}
		spent := tracker.GetCreatureDailyCost(identity)
		return spent >= budget.DailyCapUSD, budget.Action
	}
}
