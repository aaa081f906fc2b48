package creator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"os/exec"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/gitutil"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/llmproxy"
)

// Tool is one entry in the creator's directory-scoped tool set
// (spec.md §4.11).
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Execute     func(ctx context.Context, input json.RawMessage) (string, error)
}

type shellArgs struct {
	Command string `json:"command"`
}

type recentArgs struct {
	Limit int `json:"limit"`
}

type doneArgs struct {
	Reasoning string `json:"reasoning"`
	Changed   string `json:"changed"`
}

// buildTools assembles the fixed tool set bound to this Creator's
// creature directory, event store, status, and restarter.
func (c *Creator) buildTools() []Tool {
	return []Tool{
		{
			Name:        "shell",
			Description: "Run a shell command in the creature's source directory, 60s timeout.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args shellArgs
				if err := json.Unmarshal(input, &args); err != nil {
					return "", err
				}
				return c.runShell(ctx, args.Command)
			},
		},
		{
			Name:        "recent_events",
			Description: "Read the creature's most recent events.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer"}}}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args recentArgs
				_ = json.Unmarshal(input, &args)
				if args.Limit <= 0 {
					args.Limit = 20
				}
				evts := c.events.ReadRecent(c.cfg.Name, args.Limit)
				b, _ := json.Marshal(evts)
				return string(b), nil
			},
		},
		{
			Name:        "recent_dreams",
			Description: "Read the creature's most recent dream events.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer"}}}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args recentArgs
				_ = json.Unmarshal(input, &args)
				if args.Limit <= 0 {
					args.Limit = 50
				}
				evts := c.events.ReadRecent(c.cfg.Name, args.Limit)
				var dreams []interface{}
				for _, e := range evts {
					if e.Type == "creature.dream" {
						dreams = append(dreams, e)
					}
				}
				b, _ := json.Marshal(dreams)
				return string(b), nil
			},
		},
		{
			Name:        "status",
			Description: "Report the creature's current supervisor status.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				b, _ := json.Marshal(c.status.Status())
				return string(b), nil
			},
		},
		{
			Name:        "restart",
			Description: "Validate the source compiles, commit the working tree, and request a supervisor restart.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}}}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				return c.runRestart(ctx)
			},
		},
		{
			Name:        "done",
			Description: "End the evaluation with a reasoning and changed summary.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"reasoning":{"type":"string"},"changed":{"type":"string"}},"required":["reasoning","changed"]}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args doneArgs
				if err := json.Unmarshal(input, &args); err != nil {
					return "", err
				}
				return "acknowledged", nil // outcome applied by runTool
			},
		},
	}
}

// runTool dispatches a tool_use block, applying side effects on out for
// the restart/done tools which mutate the loop's terminal outcome.
func (c *Creator) runTool(ctx context.Context, tu llmproxy.ContentBlock, out *outcome) string {
	if tu.Name == "done" {
		var args doneArgs
		_ = json.Unmarshal(tu.Input, &args)
		out.reasoning = args.Reasoning
		out.changed = args.Changed
		out.done = true
		return "acknowledged"
	}

	for _, t := range c.tools {
		if t.Name != tu.Name {
			continue
		}
		result, err := t.Execute(ctx, tu.Input)
		if err != nil {
			return "error: " + err.Error()
		}
		if tu.Name == "restart" && result == "restarted" {
			out.restarted = true
		}
		return result
	}
	return "error: unknown tool " + tu.Name
}

// runShell executes command in the creature's directory under a 60s
// timeout (spec.md §5).
func (c *Creator) runShell(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = c.cfg.Directory
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// runRestart validates the build, commits, and requests a supervisor
// restart (spec.md §4.11, §9 Open Question resolution: BuildCheck is
// parameterized per creature, not hardcoded to one language).
func (c *Creator) runRestart(ctx context.Context) (string, error) {
	if c.cfg.BuildCheck != "" && c.cfg.BuildCheck != "true" {
		out, err := c.runShell(ctx, c.cfg.BuildCheck)
		if err != nil {
			return fmt.Sprintf("build check failed: %v\n%s", err, out), nil
		}
	}

	if err := gitutil.Commit(c.cfg.Directory, "creator: automated change"); err != nil {
		return "", fmt.Errorf("commit failed: %w", err)
	}

	if err := c.rs.Restart(ctx); err != nil {
		return "", fmt.Errorf("restart request failed: %w", err)
	}
	return "restarted", nil
}
