// Package creator implements C11: a per-creature evaluator that runs an
// agentic LLM loop scoped to one creature's directory, optionally commits
// and restarts the creature, and logs its verdict (spec.md §4.11).
package creator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/llmproxy"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// maxRounds bounds the agentic tool-use loop (spec.md §4.11 "up to 30 LLM
// turns").
const maxRounds = 30

// shellTimeout bounds every creator shell invocation (spec.md §5).
const shellTimeout = 60 * time.Second

// EventStore is the subset of *events.Store the creator reads and writes.
type EventStore interface {
	ReadRecent(creature string, n int) []models.Event
	Append(creature string, evt models.Event) models.Event
}

// Restarter requests a supervised restart; satisfied by *supervisor.Supervisor.
type Restarter interface {
	Restart(ctx context.Context) error
}

// StatusProvider reports a creature's current public state.
type StatusProvider interface {
	Status() models.Creature
}

// CostRecorder records LLM usage; satisfied by *cost.Tracker.
type CostRecorder interface {
	Record(identity string, inputTokens, outputTokens int64, model string)
}

// Config scopes a Creator to one creature.
type Config struct {
	Name       string
	Directory  string // the creature's directory (root of its git repository)
	BuildCheck string // e.g. "go build ./...", "npm run build", "true"
	Model      string
	LogPath    string // <creaturesDir>/<name>/.self/creator-log.jsonl
}

// Creator is the per-creature evaluator.
type Creator struct {
	cfg    Config
	events EventStore
	llm    *llmproxy.Client
	cost   CostRecorder
	status StatusProvider
	rs     Restarter
	tools  []Tool
	log    zerolog.Logger
}

// New creates a Creator for one creature.
func New(cfg Config, events EventStore, llm *llmproxy.Client, cost CostRecorder, status StatusProvider, rs Restarter, log zerolog.Logger) *Creator {
	c := &Creator{
		cfg:    cfg,
		events: events,
		llm:    llm,
		cost:   cost,
		status: status,
		rs:     rs,
		log:    log.With().Str("component", "creator").Str("creature", cfg.Name).Logger(),
	}
	c.tools = c.buildTools()
	return c
}

// outcome accumulates the `done` tool's verdict across the loop.
type outcome struct {
	reasoning string
	changed   string
	restarted bool
	done      bool
}

// Evaluate runs the up-to-30-turn agentic loop for reason (the triggering
// dream/API-call/request_evolution description), appends to
// creator-log.jsonl, and emits creator.evaluation. Cost is recorded under
// identity `creator:<name>` (spec.md §4.11).
func (c *Creator) Evaluate(ctx context.Context, reason string) error {
	messages := []llmproxy.SourceMessage{
		{Role: "user", Content: mustJSON(buildPrompt(c.cfg.Name, reason))},
	}

	out := &outcome{}
	var inTokens, outTokens int64

	for round := 0; round < maxRounds && !out.done; round++ {
		req := llmproxy.SourceRequest{
			Model:    c.cfg.Model,
			System:   mustJSON(systemPrompt),
			Messages: messages,
			Tools:    toolDeclarations(c.tools),
		}
		resp, err := c.llm.Complete(ctx, req)
		if err != nil {
			return fmt.Errorf("creator llm call failed: %w", err)
		}
		inTokens += resp.Usage.InputTokens
		outTokens += resp.Usage.OutputTokens

		toolUses := toolUseBlocks(resp.Content)
		if len(toolUses) == 0 {
			// No tool call and no `done` yet: treat the reply as the
			// closing reasoning and stop, rather than spin to the cap.
			out.reasoning = textOf(resp.Content)
			break
		}

		assistantContent, _ := json.Marshal(resp.Content)
		messages = append(messages, llmproxy.SourceMessage{Role: "assistant", Content: assistantContent})

		var results []llmproxy.ContentBlock
		for _, tu := range toolUses {
			result := c.runTool(ctx, tu, out)
			results = append(results, llmproxy.ContentBlock{
				Type:      llmproxy.BlockToolResult,
				ToolUseID: tu.ID,
				Content:   result,
			})
		}
		resultsJSON, _ := json.Marshal(results)
		messages = append(messages, llmproxy.SourceMessage{Role: "user", Content: resultsJSON})
	}

	c.cost.Record(identity(c.cfg.Name), inTokens, outTokens, c.cfg.Model)

	entry := models.CreatorLogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		Reasoning: out.reasoning,
		Changed:   out.changed,
		Restarted: out.restarted,
	}
	if err := appendCreatorLog(c.cfg.LogPath, entry); err != nil {
		c.log.Warn().Err(err).Msg("failed to append creator-log.jsonl")
	}

	c.events.Append(c.cfg.Name, models.Event{
		Type: models.EventCreatorEvaluation,
		Data: map[string]interface{}{
			"reason":    reason,
			"reasoning": out.reasoning,
			"changed":   out.changed,
			"restarted": out.restarted,
		},
	})

	return nil
}

// identity formats the cost-tracker identity for a creature's creator
// evaluation (spec.md §4.11 "creator:<name>").
func identity(name string) string { return "creator:" + name }

const systemPrompt = `You are the creator evaluator for one autonomous creature. Investigate its recent behavior and source using the provided tools, decide whether a change is warranted, and make it if so. When you are finished, call the done tool exactly once with your reasoning and a summary of what (if anything) changed.`

func buildPrompt(name, reason string) string {
	return fmt.Sprintf("Evaluate creature %q. Trigger: %s", name, reason)
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
