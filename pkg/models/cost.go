package models

// UsageEntry is a per-identity token/cost accounting record (spec.md §3).
// Identity is either a creature name, "creator:<name>", or "_narrator".
type UsageEntry struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Calls        int64   `json:"calls"`
	DailyCostUSD float64 `json:"daily_cost_usd"`
	DailyDate    string  `json:"daily_date"` // calendar day, UTC, "2006-01-02"
}

// ModelPrice is the $/token rate for a model's input and output tokens.
type ModelPrice struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// BudgetAction selects how an over-budget identity is handled.
type BudgetAction string

// Budget actions (spec.md §3).
const (
	BudgetActionSleep BudgetAction = "sleep"
	BudgetActionWarn  BudgetAction = "warn"
	BudgetActionOff   BudgetAction = "off"
)

// Budget is a daily USD cap with an enforcement action, at either global or
// per-creature scope.
type Budget struct {
	DailyCapUSD float64      `json:"daily_cap_usd" yaml:"daily_cap_usd"`
	Action      BudgetAction `json:"action" yaml:"action"`
}

// DependencyState is the liveness state of an external dependency.
type DependencyState string

// Dependency states (spec.md §3).
const (
	DependencyUp      DependencyState = "up"
	DependencyDown    DependencyState = "down"
	DependencyUnknown DependencyState = "unknown"
)

// DependencyStatus records the last observed state of one external
// dependency (container runtime, credential-proxy, pricing).
type DependencyStatus struct {
	Status    DependencyState `json:"status"`
	LastCheck string          `json:"last_check"`
	Error     string          `json:"error,omitempty"`
	Version   string          `json:"version,omitempty"`
}

// AggregateStatus is "healthy" iff every dependency is up, else "degraded".
type AggregateStatus string

// Aggregate statuses.
const (
	AggregateHealthy  AggregateStatus = "healthy"
	AggregateDegraded AggregateStatus = "degraded"
)
