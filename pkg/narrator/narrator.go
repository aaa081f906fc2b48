// Package narrator implements C10: a periodic LLM-driven summarizer that
// turns the creature fleet's recent event stream into short prose plus a
// per-creature share map (spec.md §4.10).
package narrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/llmproxy"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// maxEntries bounds the narration file (spec.md §4.10 "truncate to 500
// entries").
const maxEntries = 500

// initialDelay is the wait before the first tick after process start
// (spec.md §4.10).
const initialDelay = 15 * time.Second

// maxRounds bounds the agentic tool-use loop (spec.md §4.10).
const maxRounds = 5

// CostRecorder records LLM usage; satisfied by *cost.Tracker.
type CostRecorder interface {
	Record(identity string, inputTokens, outputTokens int64, model string)
}

// Store is the subset of *events.Store the narrator reads.
type Store interface {
	Subscribe(handler func(models.Event)) (unsubscribe func())
}

// Config configures a Narrator.
type Config struct {
	Model           string
	IntervalMinutes int
	CreaturesDir    string
	NarrationPath   string
	ListCreatures   func() []string
}

// Narrator buffers interesting events between ticks and, on each tick,
// invokes the LLM agentic loop if the buffer is non-empty.
type Narrator struct {
	cfg   Config
	store Store
	llm   *llmproxy.Client
	cost  CostRecorder
	idx   *Index
	tools []Tool
	log   zerolog.Logger

	mu      sync.Mutex
	buffer  []models.Event
	entries []models.NarrationEntry

	running int32 // single-flight guard

	cronRunner *cron.Cron
	unsubscribe func()
}

// New creates a Narrator, loading any existing narration file into memory.
// Callers should check Stale(indexPath, cfg.NarrationPath) and, if true,
// call idx.Rebuild(ctx, n.Entries(0)) before Start. It does not subscribe or
// schedule ticks; call Start for that.
func New(cfg Config, store Store, llm *llmproxy.Client, cost CostRecorder, idx *Index, log zerolog.Logger) (*Narrator, error) {
	entries, err := readNarrationFile(cfg.NarrationPath)
	if err != nil {
		return nil, err
	}

	n := &Narrator{
		cfg:     cfg,
		store:   store,
		llm:     llm,
		cost:    cost,
		idx:     idx,
		entries: entries,
		tools:   BuildTools(cfg.CreaturesDir, cfg.ListCreatures, idx),
		log:     log.With().Str("component", "narrator").Logger(),
	}

	return n, nil
}

// isInteresting reports whether evt is in the taxonomy subset that can trigger a narration
// (spec.md §4.10).
func isInteresting(evt models.Event) bool {
	switch evt.Type {
	case models.EventCreatureDream, models.EventCreatureSelfEval, models.EventCreatorEvaluation, models.EventCreatureWake:
		return true
	case models.EventCreatureSleep:
		text, _ := evt.Data["text"].(string)
		return text != ""
	case models.EventCreatureThought:
		text, _ := evt.Data["text"].(string)
		return len(text) > 20
	case models.EventBudgetExceeded, models.EventBudgetReset:
		return true
	default:
		return false
	}
}

// Start subscribes to the event store and launches the cron scheduler
// (`@every <interval>`, SPEC_FULL.md §6).
func (n *Narrator) Start(ctx context.Context) {
	n.unsubscribe = n.store.Subscribe(func(evt models.Event) {
		if !isInteresting(evt) {
			return
		}
		n.mu.Lock()
		n.buffer = append(n.buffer, evt)
		n.mu.Unlock()
	})

	interval := time.Duration(n.cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	n.cronRunner = cron.New()
	_, _ = n.cronRunner.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		n.tick(ctx)
	})

	go func() {
		select {
		case <-time.After(initialDelay):
			n.tick(ctx)
		case <-ctx.Done():
			return
		}
		n.cronRunner.Start()
	}()
}

// Stop unsubscribes and halts the cron scheduler.
func (n *Narrator) Stop() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
	if n.cronRunner != nil {
		<-n.cronRunner.Stop().Done()
	}
}

// tick drains the buffer; an empty buffer is a silent no-op (spec.md §8
// Scenario F). Single-flight guarded.
func (n *Narrator) tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&n.running, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&n.running, 0)

	n.mu.Lock()
	batch := n.buffer
	n.buffer = nil
	n.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := n.runOnce(ctx, batch); err != nil {
		n.log.Warn().Err(err).Msg("narration tick failed")
	}
}

func (n *Narrator) runOnce(ctx context.Context, batch []models.Event) error {
	n.mu.Lock()
	recent := lastN(n.entries, 5)
	n.mu.Unlock()

	messages := []llmproxy.SourceMessage{
		{Role: "user", Content: mustJSON(buildUserPrompt(batch, recent))},
	}

	var inTokens, outTokens int64
	var finalText string

	for round := 0; round < maxRounds; round++ {
		req := llmproxy.SourceRequest{
			Model:    n.cfg.Model,
			System:   mustJSON(systemPrompt),
			Messages: messages,
			Tools:    toolDeclarations(n.tools),
		}
		resp, err := n.llm.Complete(ctx, req)
		if err != nil {
			return err
		}
		inTokens += resp.Usage.InputTokens
		outTokens += resp.Usage.OutputTokens

		toolUses := toolUseBlocks(resp.Content)
		if len(toolUses) == 0 {
			finalText = textOf(resp.Content)
			break
		}

		assistantContent, _ := json.Marshal(resp.Content)
		messages = append(messages, llmproxy.SourceMessage{Role: "assistant", Content: assistantContent})

		var results []llmproxy.ContentBlock
		for _, tu := range toolUses {
			out := n.runTool(ctx, tu)
			results = append(results, llmproxy.ContentBlock{
				Type:      llmproxy.BlockToolResult,
				ToolUseID: tu.ID,
				Content:   out,
			})
		}
		resultsJSON, _ := json.Marshal(results)
		messages = append(messages, llmproxy.SourceMessage{Role: "user", Content: resultsJSON})
	}

	n.cost.Record(models.NarratorIdentity, inTokens, outTokens, n.cfg.Model)

	if strings.EqualFold(strings.TrimSpace(finalText), "SKIP") {
		return nil
	}
	if finalText == "" {
		return nil
	}

	prose, shares := extractShareBlock(finalText)
	entry := models.NarrationEntry{
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Text:              strings.TrimSpace(prose),
		Shares:            shares,
		CreaturesMentioned: mentionedCreatures(prose, n.cfg.ListCreatures()),
		SourceEventCount:  len(batch),
	}

	return n.persist(ctx, entry)
}

func (n *Narrator) runTool(ctx context.Context, tu llmproxy.ContentBlock) string {
	for _, t := range n.tools {
		if t.Name == tu.Name {
			out, err := t.Execute(ctx, tu.Input)
			if err != nil {
				return "error: " + err.Error()
			}
			return out
		}
	}
	return "error: unknown tool " + tu.Name
}

func (n *Narrator) persist(ctx context.Context, entry models.NarrationEntry) error {
	n.mu.Lock()
	n.entries = append(n.entries, entry)
	if len(n.entries) > maxEntries {
		n.entries = n.entries[len(n.entries)-maxEntries:]
	}
	snapshot := make([]models.NarrationEntry, len(n.entries))
	copy(snapshot, n.entries)
	n.mu.Unlock()

	if err := writeNarrationFile(n.cfg.NarrationPath, snapshot); err != nil {
		n.log.Warn().Err(err).Msg("failed to persist narration file")
	}
	if n.idx != nil {
		if err := n.idx.Append(ctx, entry); err != nil {
			n.log.Warn().Err(err).Msg("failed to append to narration search index")
		}
	}
	return nil
}

// Entries returns a snapshot of the in-memory narration entries, newest
// last.
func (n *Narrator) Entries(limit int) []models.NarrationEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lastN(n.entries, limit)
}

func lastN(entries []models.NarrationEntry, n int) []models.NarrationEntry {
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([]models.NarrationEntry, n)
	copy(out, entries[len(entries)-n:])
	return out
}

const systemPrompt = `You narrate the recent activity of a fleet of autonomous creatures. Write concise prose, one short paragraph per creature that did something notable. If nothing is worth narrating, reply with exactly SKIP. End your reply with a fenced json code block mapping creature name to a one-sentence share, e.g.:
` + "```json" + `
{"alpha": "alpha refactored its planner."}
` + "```"

func buildUserPrompt(batch []models.Event, recent []models.NarrationEntry) string {
	var b strings.Builder
	b.WriteString("New events since the last narration:\n")
	for _, e := range batch {
		b.WriteString(fmt.Sprintf("- [%s] %s %s: %v\n", e.Timestamp, e.Creature, e.Type, e.Data))
	}
	if len(recent) > 0 {
		b.WriteString("\nRecent narration for continuity:\n")
		for _, e := range recent {
			b.WriteString(fmt.Sprintf("- [%s] %s\n", e.Timestamp, e.Text))
		}
	}
	return b.String()
}

var shareBlockRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// extractShareBlock strips a fenced JSON share-block from text and parses
// it, returning the remaining prose plus the share map (spec.md §4.10).
func extractShareBlock(text string) (string, map[string]string) {
	loc := shareBlockRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil
	}
	jsonPart := text[loc[2]:loc[3]]
	prose := text[:loc[0]] + text[loc[1]:]

	var shares map[string]string
	_ = json.Unmarshal([]byte(jsonPart), &shares)
	return prose, shares
}

// mentionedCreatures computes creatures_mentioned by regex over known
// creature names (spec.md §4.10).
func mentionedCreatures(prose string, known []string) []string {
	var out []string
	for _, name := range known {
		if name == "" {
			continue
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if re.MatchString(prose) {
			out = append(out, name)
		}
	}
	return out
}

func toolDeclarations(tools []Tool) []llmproxy.SourceTool {
	out := make([]llmproxy.SourceTool, len(tools))
	for i, t := range tools {
		out[i] = llmproxy.SourceTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}
	return out
}

func toolUseBlocks(content []llmproxy.ContentBlock) []llmproxy.ContentBlock {
	var out []llmproxy.ContentBlock
	for _, b := range content {
		if b.Type == llmproxy.BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

func textOf(content []llmproxy.ContentBlock) string {
	var b strings.Builder
	for _, c := range content {
		if c.Type == llmproxy.BlockText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

func mustJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
