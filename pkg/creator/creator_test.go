package creator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/llmproxy"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

type fakeEventStore struct {
	mu     sync.Mutex
	events map[string][]models.Event
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[string][]models.Event)}
}

func (f *fakeEventStore) ReadRecent(creature string, n int) []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	evts := f.events[creature]
	if len(evts) > n {
		evts = evts[len(evts)-n:]
	}
	out := make([]models.Event, len(evts))
	copy(out, evts)
	return out
}

func (f *fakeEventStore) Append(creature string, evt models.Event) models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[creature] = append(f.events[creature], evt)
	return evt
}

type fakeRestarter struct {
	calls int
	err   error
}

func (f *fakeRestarter) Restart(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeStatus struct {
	status models.Creature
}

func (f *fakeStatus) Status() models.Creature { return f.status }

type fakeCost struct {
	mu       sync.Mutex
	identity string
	calls    int
}

func (f *fakeCost) Record(identity string, inputTokens, outputTokens int64, model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = identity
	f.calls++
}

// fakeUpstream replays a fixed sequence of tool-call/text turns.
func fakeUpstream(t *testing.T, turns ...llmproxy.SourceResponse) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	i := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		idx := i
		if idx >= len(turns) {
			idx = len(turns) - 1
		}
		i++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(turns[idx])
	}))
}

func toolUseTurn(name string, input interface{}) llmproxy.SourceResponse {
	inputJSON, _ := json.Marshal(input)
	return llmproxy.SourceResponse{
		Role: "assistant",
		Content: []llmproxy.ContentBlock{
			{Type: llmproxy.BlockToolUse, ID: "tu1", Name: name, Input: inputJSON},
		},
		StopReason: llmproxy.StopToolUse,
		Usage:      llmproxy.Usage{InputTokens: 5, OutputTokens: 5},
	}
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, writeFile(dir, "main.go", "package main\nfunc main() {}\n"))
	run("add", ".")
	run("commit", "-q", "-m", "init")
}

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}

func newTestCreator(t *testing.T, upstream *httptest.Server, es *fakeEventStore, rs *fakeRestarter, st *fakeStatus, cost *fakeCost) *Creator {
	t.Helper()
	dir := t.TempDir()
	return New(Config{
		Name:       "alpha",
		Directory:  dir,
		BuildCheck: "true",
		Model:      "claude-test",
		LogPath:    filepath.Join(dir, "creator-log.jsonl"),
	}, es, llmproxy.NewClient(upstream.URL, ""), cost, st, rs, zerolog.Nop())
}

func TestEvaluate_DoneToolEndsLoopAndAppendsLog(t *testing.T) {
	upstream := fakeUpstream(t, toolUseTurn("done", map[string]string{"reasoning": "all good", "changed": "nothing"}))
	defer upstream.Close()

	es := newFakeEventStore()
	rs := &fakeRestarter{}
	st := &fakeStatus{status: models.Creature{Name: "alpha", Status: models.StatusRunning}}
	cost := &fakeCost{}
	c := newTestCreator(t, upstream, es, rs, st, cost)

	require.NoError(t, c.Evaluate(context.Background(), "dream:deep"))

	evts := es.ReadRecent("alpha", 10)
	require.Len(t, evts, 1)
	assert.Equal(t, models.EventCreatorEvaluation, evts[0].Type)
	assert.Equal(t, 0, rs.calls)
	assert.Equal(t, "creator:alpha", cost.identity)
	assert.FileExists(t, c.cfg.LogPath)
}

func TestEvaluate_RestartToolCommitsAndRequestsRestart(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	upstream := fakeUpstream(t,
		toolUseTurn("restart", map[string]string{"message": "fix bug"}),
		toolUseTurn("done", map[string]string{"reasoning": "fixed it", "changed": "patched main.go"}),
	)
	defer upstream.Close()

	es := newFakeEventStore()
	rs := &fakeRestarter{}
	st := &fakeStatus{status: models.Creature{Name: "alpha", Status: models.StatusRunning}}
	cost := &fakeCost{}
	c := newTestCreator(t, upstream, es, rs, st, cost)
	initRepo(t, c.cfg.Directory)

	require.NoError(t, c.Evaluate(context.Background(), "api"))

	assert.Equal(t, 1, rs.calls)
}

func TestEvaluate_NoToolCallStopsWithoutDone(t *testing.T) {
	upstream := fakeUpstream(t, llmproxy.SourceResponse{
		Role:       "assistant",
		Content:    []llmproxy.ContentBlock{{Type: llmproxy.BlockText, Text: "nothing to do here"}},
		StopReason: llmproxy.StopEndTurn,
		Usage:      llmproxy.Usage{InputTokens: 3, OutputTokens: 3},
	})
	defer upstream.Close()

	es := newFakeEventStore()
	rs := &fakeRestarter{}
	st := &fakeStatus{status: models.Creature{Name: "alpha"}}
	cost := &fakeCost{}
	c := newTestCreator(t, upstream, es, rs, st, cost)

	require.NoError(t, c.Evaluate(context.Background(), "request_evolution: idle"))

	evts := es.ReadRecent("alpha", 10)
	require.Len(t, evts, 1)
	assert.Equal(t, "nothing to do here", evts[0].Data["reasoning"])
}

func TestRunShell_ReturnsCommandOutput(t *testing.T) {
	es := newFakeEventStore()
	rs := &fakeRestarter{}
	st := &fakeStatus{}
	cost := &fakeCost{}
	upstream := fakeUpstream(t, toolUseTurn("done", map[string]string{"reasoning": "x", "changed": "x"}))
	defer upstream.Close()
	c := newTestCreator(t, upstream, es, rs, st, cost)

	out, err := c.runShell(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
}

func TestStatusTool_ReflectsSupervisorStatus(t *testing.T) {
	es := newFakeEventStore()
	rs := &fakeRestarter{}
	st := &fakeStatus{status: models.Creature{Name: "alpha", Status: models.StatusSleeping, SleepReason: "dreaming"}}
	cost := &fakeCost{}
	upstream := fakeUpstream(t, toolUseTurn("done", map[string]string{"reasoning": "x", "changed": "x"}))
	defer upstream.Close()
	c := newTestCreator(t, upstream, es, rs, st, cost)

	out, err := c.tools[3].Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out, "sleeping")
	assert.Contains(t, out, "dreaming")
}
