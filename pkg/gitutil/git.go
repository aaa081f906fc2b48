// Package gitutil provides the git operations used over a creature's
// directory: the SHA reads and writes the supervisor needs (spec.md §4.5),
// plus Log, Diff, Init and Commit. Failures never panic or
// return an error to the caller for reads; they return the empty string, so
// a creature with no git history degrades gracefully instead of wedging the
// supervisor's state machine.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// cliTimeout bounds every git invocation (spec.md §5).
const cliTimeout = 10 * time.Second

// lastGoodFile is where the last-known-good SHA is persisted, under the
// untracked .sys/ directory (spec.md §6.1).
const lastGoodFile = ".sys/last-good"

func run(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

// CurrentSHA returns the directory's current HEAD SHA, or "" on any error.
func CurrentSHA(dir string) string {
	sha, err := run(dir, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return sha
}

// LastGoodSHA reads `.sys/last-good`, returning "" if it does not exist or
// cannot be read (spec.md §4.5).
func LastGoodSHA(dir string) string {
	b, err := os.ReadFile(filepath.Join(dir, lastGoodFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// SetLastGoodSHA persists sha to `.sys/last-good`, creating the directory
// if needed. Errors are returned so callers can log, but are never fatal to
// the caller's own control flow.
func SetLastGoodSHA(dir, sha string) error {
	path := filepath.Join(dir, lastGoodFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sha+"\n"), 0o644)
}

// ResetToSHA hard-resets the working tree to sha.
func ResetToSHA(dir, sha string) error {
	_, err := run(dir, "reset", "--hard", sha)
	return err
}

// Log returns the last n commit subjects, one per line, oldest last
// (narrator `git_log` tool, spec.md §4.10).
func Log(dir string, n int) (string, error) {
	if n <= 0 {
		n = 10
	}
	return run(dir, "log", fmt.Sprintf("-%d", n), "--pretty=format:%h %ad %s", "--date=short")
}

// Diff returns the working tree's diff against HEAD (narrator `git_diff`
// tool, spec.md §4.10).
func Diff(dir string) (string, error) {
	return run(dir, "diff", "HEAD")
}

// Init initializes a new git repository at dir if one does not already
// exist. Used when scaffolding a freshly spawned creature (spec.md §6.3
// "POST /creatures"), before its first Commit.
func Init(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return nil
	}
	_, err := run(dir, "init")
	return err
}

// Commit stages every change under dir and commits it with message. A
// clean tree (nothing to commit) is not an error. Used by the creator's
// `restart` tool after a validated edit (spec.md §4.11).
func Commit(dir, message string) error {
	if _, err := run(dir, "add", "-A"); err != nil {
		return err
	}
	if _, err := run(dir, "diff", "--cached", "--quiet"); err == nil {
		return nil // nothing staged
	}
	_, err := run(dir, "commit", "-m", message)
	return err
}
