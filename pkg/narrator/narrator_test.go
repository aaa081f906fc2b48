package narrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/llmproxy"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

type fakeStore struct {
	mu       sync.Mutex
	handlers []func(models.Event)
}

func (f *fakeStore) Subscribe(h func(models.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
	idx := len(f.handlers) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[idx] = nil
	}
}

func (f *fakeStore) publish(evt models.Event) {
	f.mu.Lock()
	handlers := append([]func(models.Event){}, f.handlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(evt)
		}
	}
}

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

func (f *fakeCost) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeUpstream serves a fixed sequence of SourceResponse bodies, one per
// call, and replays the last one once exhausted.
func fakeUpstream(t *testing.T, responses ...llmproxy.SourceResponse) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	i := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		idx := i
		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		i++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(responses[idx])
	}))
}

func textResponse(text string) llmproxy.SourceResponse {
	blocks, _ := json.Marshal([]llmproxy.ContentBlock{{Type: llmproxy.BlockText, Text: text}})
	var content []llmproxy.ContentBlock
	_ = json.Unmarshal(blocks, &content)
	return llmproxy.SourceResponse{
		Role:       "assistant",
		Content:    content,
		StopReason: llmproxy.StopEndTurn,
		Usage:      llmproxy.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func newTestNarrator(t *testing.T, upstream *httptest.Server, cost *fakeCost) (*Narrator, *fakeStore) {
	t.Helper()
	dir := t.TempDir()
	idx, err := OpenIndex(filepath.Join(dir, "narration.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	store := &fakeStore{}
	n, err := New(Config{
		Model:           "claude-test",
		IntervalMinutes: 15,
		CreaturesDir:    dir,
		NarrationPath:   filepath.Join(dir, "narration.jsonl"),
		ListCreatures:   func() []string { return []string{"alpha", "beta"} },
	}, store, llmproxy.NewClient(upstream.URL, ""), cost, idx, zerolog.Nop())
	require.NoError(t, err)
	return n, store
}

func TestIsInteresting_FiltersTaxonomy(t *testing.T) {
	assert.True(t, isInteresting(models.Event{Type: models.EventCreatureDream}))
	assert.True(t, isInteresting(models.Event{Type: models.EventCreatureWake}))
	assert.False(t, isInteresting(models.Event{Type: models.EventCreatureToolCall}))
	assert.False(t, isInteresting(models.Event{Type: models.EventCreatureSleep}))
	assert.True(t, isInteresting(models.Event{Type: models.EventCreatureSleep, Data: map[string]interface{}{"text": "tired"}}))
	assert.False(t, isInteresting(models.Event{Type: models.EventCreatureThought, Data: map[string]interface{}{"text": "short"}}))
	assert.True(t, isInteresting(models.Event{Type: models.EventCreatureThought, Data: map[string]interface{}{"text": "this thought is long enough to matter"}}))
}

// Scenario F (spec.md §8): empty buffer, not first run -> silent no-op, no
// LLM call, no narration entry appended.
func TestTick_EmptyBufferIsSilentNoOp(t *testing.T) {
	upstream := fakeUpstream(t, textResponse("should never be called"))
	defer upstream.Close()
	cost := &fakeCost{}
	n, _ := newTestNarrator(t, upstream, cost)

	n.tick(context.Background())

	assert.Equal(t, 0, cost.callCount())
	assert.Empty(t, n.Entries(0))
}

func TestTick_BufferedEventProducesNarrationEntry(t *testing.T) {
	shareJSON := "```json\n{\"alpha\": \"alpha shipped a fix.\"}\n```"
	upstream := fakeUpstream(t, textResponse("alpha had a productive cycle.\n"+shareJSON))
	defer upstream.Close()
	cost := &fakeCost{}
	n, store := newTestNarrator(t, upstream, cost)

	store.publish(models.Event{Creature: "alpha", Type: models.EventCreatureDream, Data: map[string]interface{}{"deep": true}})

	n.tick(context.Background())

	entries := n.Entries(0)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "productive cycle")
	assert.Equal(t, "alpha shipped a fix.", entries[0].Shares["alpha"])
	assert.Contains(t, entries[0].CreaturesMentioned, "alpha")
	assert.Equal(t, 1, cost.callCount())
	assert.Equal(t, models.NarratorIdentity, cost.identity)
}

func TestTick_SkipResponseAppendsNothing(t *testing.T) {
	upstream := fakeUpstream(t, textResponse("  SKIP  "))
	defer upstream.Close()
	cost := &fakeCost{}
	n, store := newTestNarrator(t, upstream, cost)

	store.publish(models.Event{Creature: "alpha", Type: models.EventCreatureWake})
	n.tick(context.Background())

	assert.Empty(t, n.Entries(0))
	assert.Equal(t, 1, cost.callCount())
}

func TestTick_IrrelevantEventNeverBuffered(t *testing.T) {
	upstream := fakeUpstream(t, textResponse("unused"))
	defer upstream.Close()
	cost := &fakeCost{}
	n, store := newTestNarrator(t, upstream, cost)

	store.publish(models.Event{Creature: "alpha", Type: models.EventCreatureToolCall})
	n.tick(context.Background())

	assert.Equal(t, 0, cost.callCount())
}

func TestExtractShareBlock_SeparatesProseFromJSON(t *testing.T) {
	text := "alpha did a thing.\n```json\n{\"alpha\":\"did a thing\"}\n```"
	prose, shares := extractShareBlock(text)
	assert.Contains(t, prose, "alpha did a thing")
	assert.NotContains(t, prose, "```")
	assert.Equal(t, "did a thing", shares["alpha"])
}

func TestExtractShareBlock_NoBlockReturnsSharesNil(t *testing.T) {
	prose, shares := extractShareBlock("just prose, no block")
	assert.Equal(t, "just prose, no block", prose)
	assert.Nil(t, shares)
}

func TestMentionedCreatures_MatchesWordBoundary(t *testing.T) {
	known := []string{"alpha", "beta"}
	got := mentionedCreatures("alpha woke up; betaware was unaffected", known)
	assert.Contains(t, got, "alpha")
	assert.NotContains(t, got, "beta")
}

func TestPersist_TruncatesToMaxEntries(t *testing.T) {
	upstream := fakeUpstream(t, textResponse("entry"))
	defer upstream.Close()
	cost := &fakeCost{}
	n, _ := newTestNarrator(t, upstream, cost)

	for i := 0; i < maxEntries+5; i++ {
		require.NoError(t, n.persist(context.Background(), models.NarrationEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Text:      "filler",
		}))
	}

	assert.Len(t, n.Entries(0), maxEntries)
}

func TestTick_SingleFlightGuardSkipsConcurrentRun(t *testing.T) {
	upstream := fakeUpstream(t, textResponse("first"))
	defer upstream.Close()
	cost := &fakeCost{}
	n, store := newTestNarrator(t, upstream, cost)

	store.publish(models.Event{Creature: "alpha", Type: models.EventCreatureWake})

	n.running = 1 // simulate an in-flight tick
	n.tick(context.Background())

	assert.Equal(t, 0, cost.callCount())
}
