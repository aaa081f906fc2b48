package api

import (
	"fmt"
	"os"
	"path/filepath"
)

// GenomeScaffolder lays out a new creature's directory before its
// supervisor starts. The genome's own source template is explicitly out of
// scope (spec.md §1 "the on-disk creature template/genome scaffolding");
// this seam only creates the fixed layout every creature needs
// (spec.md §6.1) plus a placeholder PURPOSE.md, leaving the genome's actual
// starter files to whatever out-of-process tool owns that template.
type GenomeScaffolder func(dir, genome, purpose string) error

// DefaultScaffolder creates the directory skeleton spec.md §6.1 requires
// and writes PURPOSE.md. It does not populate src/ — that is the genome
// template's job, outside this orchestrator's scope.
func DefaultScaffolder(dir, genome, purpose string) error {
	for _, sub := range []string{"src", ".self", ".sys", "workspace"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}

	if purpose == "" {
		purpose = fmt.Sprintf("Scaffolded from genome %q.\n", genome)
	}
	return os.WriteFile(filepath.Join(dir, "PURPOSE.md"), []byte(purpose), 0o644)
}
