package creator

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// appendCreatorLog appends entry as one JSON line to path, creating the
// parent directory if needed (spec.md §4.11 "appends to creator-log.jsonl").
func appendCreatorLog(path string, entry models.CreatorLogEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}
