package events

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollbackLog_AppendsJSONLine(t *testing.T) {
	dir := t.TempDir()
	rl := NewRollbackLog(dir, zerolog.Nop())

	rl.LogRollback("alpha", "sha-new", "sha-old", "health timeout")

	b, err := os.ReadFile(filepath.Join(dir, "_rollbacks.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"creature":"alpha"`)
	assert.Contains(t, string(b), `"from":"sha-new"`)
	assert.Contains(t, string(b), `"reason":"health timeout"`)
}

func TestRollbackLog_MultipleAppendsAreNewlineDelimited(t *testing.T) {
	dir := t.TempDir()
	rl := NewRollbackLog(dir, zerolog.Nop())

	rl.LogRollback("alpha", "a", "b", "r1")
	rl.LogRollback("beta", "c", "d", "r2")

	b, err := os.ReadFile(filepath.Join(dir, "_rollbacks.jsonl"))
	require.NoError(t, err)
	lines := splitLines(string(b))
	assert.Len(t, lines, 2)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
