package narrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/gitutil"
)

// Tool is one entry in the narrator's fixed investigation tool set
// (spec.md §4.10).
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Execute     func(ctx context.Context, input json.RawMessage) (string, error)
}

// readFileArgs is read_file's input shape.
type readFileArgs struct {
	Creature string `json:"creature"`
	Path     string `json:"path"`
}

// creatureArgs is the shared shape for git_log/git_diff.
type creatureArgs struct {
	Creature string `json:"creature"`
}

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// BuildTools assembles the narrator's fixed tool set bound to
// creaturesDir, listCreatures, and idx.
func BuildTools(creaturesDir string, listCreatures func() []string, idx *Index) []Tool {
	return []Tool{
		{
			Name:        "read_file",
			Description: "Read a file from a creature's directory.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"creature":{"type":"string"},"path":{"type":"string"}},"required":["creature","path"]}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args readFileArgs
				if err := json.Unmarshal(input, &args); err != nil {
					return "", err
				}
				return readConfinedFile(creaturesDir, args.Creature, args.Path)
			},
		},
		{
			Name:        "git_log",
			Description: "Show the recent commit log for a creature's directory.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"creature":{"type":"string"}},"required":["creature"]}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args creatureArgs
				if err := json.Unmarshal(input, &args); err != nil {
					return "", err
				}
				return gitutil.Log(filepath.Join(creaturesDir, args.Creature, "src"), 10)
			},
		},
		{
			Name:        "git_diff",
			Description: "Show the working-tree diff for a creature's directory.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"creature":{"type":"string"}},"required":["creature"]}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args creatureArgs
				if err := json.Unmarshal(input, &args); err != nil {
					return "", err
				}
				return gitutil.Diff(filepath.Join(creaturesDir, args.Creature, "src"))
			},
		},
		{
			Name:        "list_creatures",
			Description: "List every known creature's name.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				return strings.Join(listCreatures(), "\n"), nil
			},
		},
		{
			Name:        "search_narration",
			Description: "Search past narration entries for a keyword.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`),
			Execute: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args searchArgs
				if err := json.Unmarshal(input, &args); err != nil {
					return "", err
				}
				hits, err := idx.Search(ctx, args.Query, args.Limit)
				if err != nil {
					return "", err
				}
				return strings.Join(hits, "\n"), nil
			},
		},
	}
}

// readConfinedFile resolves path under <creaturesDir>/<creature>/ and
// refuses anything that escapes it (spec.md §4.10 "path-confined to the
// creature dir").
func readConfinedFile(creaturesDir, creature, path string) (string, error) {
	root := filepath.Join(creaturesDir, creature)
	full := filepath.Join(root, path)
	rel, err := filepath.Rel(root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path escapes creature directory: %s", path)
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
