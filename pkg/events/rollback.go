package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// RollbackLog appends a structured record to the global rollback log,
// satisfying pkg/supervisor.RollbackLogger. Per creature, the supervisor
// records each rollback only as a host.rollback event; no per-creature
// `.sys/rollbacks.jsonl` file is written.
type RollbackLog struct {
	path string
	log  zerolog.Logger
}

// NewRollbackLog creates a RollbackLog appending to <creaturesDir>/_rollbacks.jsonl.
func NewRollbackLog(creaturesDir string, log zerolog.Logger) *RollbackLog {
	return &RollbackLog{
		path: filepath.Join(creaturesDir, "_rollbacks.jsonl"),
		log:  log.With().Str("component", "rollback-log").Logger(),
	}
}

type rollbackRecord struct {
	Timestamp string `json:"t"`
	Creature  string `json:"creature"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason"`
}

// LogRollback appends one record. A durability failure is logged and
// swallowed, matching the event store's best-effort append semantics
// (spec.md §7 "Durable-write failures... log and continue").
func (r *RollbackLog) LogRollback(creature, from, to, reason string) {
	rec := rollbackRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Creature:  creature,
		From:      from,
		To:        to,
		Reason:    reason,
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.log.Warn().Err(err).Msg("failed to create rollback log directory")
		return
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to open global rollback log")
		return
	}
	defer f.Close()

	b, err := json.Marshal(rec)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to marshal rollback record")
		return
	}
	b = append(b, '\n')
	if _, err := f.Write(b); err != nil {
		r.log.Warn().Err(err).Msg("failed to append rollback record")
	}
}
