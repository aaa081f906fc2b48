package narrator

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// readNarrationFile loads every entry from a JSONL narration file, oldest
// first. A missing file returns an empty slice, never an error.
func readNarrationFile(path string) ([]models.NarrationEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []models.NarrationEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []models.NarrationEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e models.NarrationEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if out == nil {
		out = []models.NarrationEntry{}
	}
	return out, scanner.Err()
}

// writeNarrationFile overwrites path with entries, one JSON object per
// line, already truncated to the caller's retention bound.
func writeNarrationFile(path string, entries []models.NarrationEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		w.Write(b)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
