// Package models holds the orchestrator's core data model: creatures,
// events, usage entries, budgets, dependency status and narration entries.
package models

import "time"

// Status is a creature supervisor's lifecycle state.
type Status string

// Supervisor lifecycle states (spec.md §4.8).
const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusSleeping Status = "sleeping"
	StatusError    Status = "error"
)

// Creature is a named, persistent workload supervised by the orchestrator.
type Creature struct {
	Name         string `json:"name"`
	Directory    string `json:"directory"`
	Port         int    `json:"port"`
	Model        string `json:"model,omitempty"`
	Status       Status `json:"status"`
	CurrentSHA   string `json:"sha,omitempty"`
	LastGoodSHA  string `json:"last_good_sha,omitempty"`
	Sandboxed    bool   `json:"sandboxed"`
	SleepReason  string `json:"sleep_reason,omitempty"`
	BuildCheck   string `json:"build_check,omitempty"`
	GenomeName   string `json:"genome,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NameMaxLen is the maximum length of a creature name (spec.md §3).
const NameMaxLen = 32

// ListItem is the shape returned by GET /api/creatures (spec.md §6.3).
type ListItem struct {
	Name        string `json:"name"`
	Status      Status `json:"status"`
	Model       string `json:"model,omitempty"`
	SHA         string `json:"sha,omitempty"`
	SleepReason string `json:"sleepReason,omitempty"`
}
