package credproxy

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled_FalseWhenConfigFileAbsent(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{ConfigFilePath: filepath.Join(dir, "missing.yaml")}, zerolog.Nop())
	assert.False(t, m.Enabled())
}

func TestEnabled_TrueWhenConfigFilePresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sidecar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ok: true"), 0o644))

	m := New(Config{ConfigFilePath: path}, zerolog.Nop())
	assert.True(t, m.Enabled())
}

func TestLoadOrGenerateRunnerKey_PersistsAndReuses(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "runner.key")
	m := New(Config{RunnerKeyPath: keyPath}, zerolog.Nop())

	require.NoError(t, m.loadOrGenerateRunnerKey())
	first := m.RunnerKey()
	assert.NotEmpty(t, first)

	// A fresh manager pointed at the same path loads rather than regenerates.
	m2 := New(Config{RunnerKeyPath: keyPath}, zerolog.Nop())
	require.NoError(t, m2.loadOrGenerateRunnerKey())
	assert.Equal(t, first, m2.RunnerKey())
}

func TestAuthorityURL_FormatsHostDockerInternal(t *testing.T) {
	m := New(Config{Port: 4141}, zerolog.Nop())
	assert.Equal(t, "http://host.docker.internal:4141", m.AuthorityURL())
}

func TestStopJanee_DisablesAutoRestartAndClosesStopped(t *testing.T) {
	m := New(Config{}, zerolog.Nop())
	require.True(t, m.autoRestart)

	m.StopJanee()

	assert.False(t, m.autoRestart)
	select {
	case <-m.stopped:
	default:
		t.Fatal("expected stopped channel to be closed")
	}
}

func TestIsPortInUse_DetectsListenOpError(t *testing.T) {
	err := &net.OpError{Op: "listen", Err: errors.New("address already in use")}
	assert.True(t, isPortInUse(err))

	assert.False(t, isPortInUse(errors.New("some other failure")))
}

func TestMinDuration_PicksSmaller(t *testing.T) {
	assert.Equal(t, time.Second, minDuration(time.Second, 30*time.Second))
	assert.Equal(t, 5*time.Second, minDuration(10*time.Second, 5*time.Second))
}

// Backoff doubles and caps at 30s (spec.md §4.6).
func TestBackoffSequence_DoublesAndCaps(t *testing.T) {
	b := initialBackoff
	seen := []time.Duration{b}
	for i := 0; i < 6; i++ {
		b = minDuration(b*2, maxBackoff)
		seen = append(seen, b)
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, seen)
}
