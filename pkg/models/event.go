package models

import (
	"encoding/json"
	"time"
)

// EventType is the closed taxonomy of event types an Event may carry
// (spec.md §3).
type EventType string

// The closed event taxonomy.
const (
	EventHostSpawn           EventType = "host.spawn"
	EventHostPromote         EventType = "host.promote"
	EventHostRollback        EventType = "host.rollback"
	EventHostInfraFailure    EventType = "host.infra_failure"
	EventCreatureBoot        EventType = "creature.boot"
	EventCreatureThought     EventType = "creature.thought"
	EventCreatureToolCall    EventType = "creature.tool_call"
	EventCreatureSleep       EventType = "creature.sleep"
	EventCreatureWake        EventType = "creature.wake"
	EventCreatureDream       EventType = "creature.dream"
	EventCreatureProgress    EventType = "creature.progress_check"
	EventCreatureSelfEval    EventType = "creature.self_evaluation"
	EventCreatureError       EventType = "creature.error"
	EventCreatorEvaluation   EventType = "creator.evaluation"
	EventBudgetExceeded      EventType = "budget.exceeded"
	EventBudgetReset         EventType = "budget.reset"
	EventNarratorEntry       EventType = "narrator.entry"
	EventOrchestratorStatus  EventType = "orchestrator.status"
)

// NarratorIdentity is the pseudo-creature name used for narrator-owned
// events and cost accounting (spec.md §3, §4.10).
const NarratorIdentity = "_narrator"

// Event is a tagged record produced by a creature or by the orchestrator
// about a creature. Fields beyond the common envelope are carried in Data.
type Event struct {
	Creature  string                 `json:"creature"`
	Timestamp string                 `json:"t"`
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Event into the wire shape: the envelope fields plus
// Data's keys at the top level, matching `{t, type, ...}` (spec.md §6.1).
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Data)+3)
	for k, v := range e.Data {
		out[k] = v
	}
	out["t"] = e.Timestamp
	out["type"] = string(e.Type)
	if e.Creature != "" {
		out["creature"] = e.Creature
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs an Event from its flattened wire shape, pulling
// the envelope fields out of the generic map and leaving the rest in Data.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if t, ok := raw["t"].(string); ok {
		e.Timestamp = t
	}
	delete(raw, "t")
	if typ, ok := raw["type"].(string); ok {
		e.Type = EventType(typ)
	}
	delete(raw, "type")
	if c, ok := raw["creature"].(string); ok {
		e.Creature = c
	}
	delete(raw, "creature")
	e.Data = raw
	return nil
}

// WithTimestamp returns a copy of e with Timestamp set to now (RFC3339Nano,
// UTC) if it is currently empty.
func (e Event) WithTimestamp(now time.Time) Event {
	if e.Timestamp != "" {
		return e
	}
	e.Timestamp = now.UTC().Format(time.RFC3339Nano)
	return e
}
