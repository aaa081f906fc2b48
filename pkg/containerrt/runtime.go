// Package containerrt abstracts the container runtime behind a small
// interface so the supervisor never shells out directly (spec.md §9
// "abstract [container CLI shell-outs] behind a small interface with a
// mockable implementation for tests").
package containerrt

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Spec describes the container to create (spec.md §4.8 step 4).
type Spec struct {
	Name        string
	Image       string
	CPULimit    string            // e.g. "1.0"
	MemoryLimit string            // e.g. "512m"
	HostPort    int               // mapped to ContainerPort
	ContainerPort int
	BindMounts  []Mount
	Volumes     []Mount
	Env         map[string]string
}

// Mount is a host/named-volume -> container path binding.
type Mount struct {
	Source   string // host path or volume name
	Target   string
	ReadOnly bool
}

// Info is the subset of `inspect` output the supervisor needs.
type Info struct {
	Name    string
	Running bool
	Exists  bool
}

// Runtime is every container operation the supervisor needs (spec.md §7
// "Container runtime — CLI shell-outs: run, start, stop, restart, kill, rm,
// wait, inspect, logs -f. No HTTP API assumed.").
type Runtime interface {
	Run(ctx context.Context, spec Spec) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Kill(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	Wait(ctx context.Context, name string) error
	Inspect(ctx context.Context, name string) (Info, error)
	// Logs streams the container's combined output starting at tail lines
	// back, until ctx is cancelled.
	Logs(ctx context.Context, name string, tail int) (io.ReadCloser, error)
}

// CLIRuntime shells out to a container CLI binary (docker/podman-compatible
// argument surface).
type CLIRuntime struct {
	bin     string // "docker" or "podman"
	timeout time.Duration
}

// NewCLIRuntime returns a Runtime backed by bin (spec.md §5: "container CLI
// invocations: 5-30s depending on operation").
func NewCLIRuntime(bin string) *CLIRuntime {
	if bin == "" {
		bin = "docker"
	}
	return &CLIRuntime{bin: bin, timeout: 30 * time.Second}
}

func (r *CLIRuntime) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", r.bin, strings.Join(args, " "), err, out.String())
	}
	return strings.TrimSpace(out.String()), nil
}

func (r *CLIRuntime) Run(ctx context.Context, spec Spec) error {
	args := []string{"run", "-d", "--name", spec.Name}
	if spec.CPULimit != "" {
		args = append(args, "--cpus", spec.CPULimit)
	}
	if spec.MemoryLimit != "" {
		args = append(args, "--memory", spec.MemoryLimit)
	}
	if spec.HostPort != 0 && spec.ContainerPort != 0 {
		args = append(args, "-p", fmt.Sprintf("%d:%d", spec.HostPort, spec.ContainerPort))
	}
	for _, m := range spec.BindMounts {
		args = append(args, "-v", mountFlag(m))
	}
	for _, v := range spec.Volumes {
		args = append(args, "-v", mountFlag(v))
	}
	for k, v := range spec.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, spec.Image)

	_, err := r.run(ctx, r.timeout, args...)
	return err
}

func mountFlag(m Mount) string {
	if m.ReadOnly {
		return fmt.Sprintf("%s:%s:ro", m.Source, m.Target)
	}
	return fmt.Sprintf("%s:%s", m.Source, m.Target)
}

func (r *CLIRuntime) Start(ctx context.Context, name string) error {
	_, err := r.run(ctx, r.timeout, "start", name)
	return err
}

func (r *CLIRuntime) Stop(ctx context.Context, name string) error {
	_, err := r.run(ctx, r.timeout, "stop", name)
	return err
}

func (r *CLIRuntime) Restart(ctx context.Context, name string) error {
	_, err := r.run(ctx, r.timeout, "restart", name)
	return err
}

func (r *CLIRuntime) Kill(ctx context.Context, name string) error {
	_, err := r.run(ctx, 10*time.Second, "kill", name)
	return err
}

func (r *CLIRuntime) Remove(ctx context.Context, name string) error {
	_, err := r.run(ctx, 10*time.Second, "rm", "-f", name)
	return err
}

func (r *CLIRuntime) Wait(ctx context.Context, name string) error {
	_, err := r.run(ctx, r.timeout, "wait", name)
	return err
}

func (r *CLIRuntime) Inspect(ctx context.Context, name string) (Info, error) {
	out, err := r.run(ctx, 5*time.Second, "inspect", "-f", "{{.State.Running}}", name)
	if err != nil {
		if strings.Contains(err.Error(), "No such") || strings.Contains(err.Error(), "no such") {
			return Info{Name: name, Exists: false}, nil
		}
		return Info{}, err
	}
	return Info{Name: name, Exists: true, Running: strings.TrimSpace(out) == "true"}, nil
}

func (r *CLIRuntime) Logs(ctx context.Context, name string, tail int) (io.ReadCloser, error) {
	args := []string{"logs", "-f"}
	if tail > 0 {
		args = append(args, "--tail", fmt.Sprintf("%d", tail))
	}
	args = append(args, name)

	cmd := exec.CommandContext(ctx, r.bin, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, err
	}
	go func() {
		_ = cmd.Wait()
		pw.Close()
	}()
	return pr, nil
}

// ScanLines is a convenience for callers attaching a line-oriented reader to
// Logs' stream.
func ScanLines(r io.Reader, fn func(line string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
}
