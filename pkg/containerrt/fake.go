package containerrt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Fake is an in-memory Runtime for supervisor tests: no real container
// engine is invoked, state lives in a map.
type Fake struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer

	// Inject errors/behavior per operation name ("run", "start", ...) to
	// exercise the supervisor's failure paths.
	Fail map[string]error

	// Calls records every invocation in order, e.g. "run:alpha".
	Calls []string
}

type fakeContainer struct {
	spec    Spec
	running bool
}

// NewFake returns an empty Fake runtime.
func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]*fakeContainer),
		Fail:       make(map[string]error),
	}
}

func (f *Fake) record(op, name string) error {
	f.Calls = append(f.Calls, op+":"+name)
	return f.Fail[op]
}

func (f *Fake) Run(ctx context.Context, spec Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("run", spec.Name); err != nil {
		return err
	}
	f.containers[spec.Name] = &fakeContainer{spec: spec, running: true}
	return nil
}

func (f *Fake) Start(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("start", name); err != nil {
		return err
	}
	c, ok := f.containers[name]
	if !ok {
		return fmt.Errorf("no such container: %s", name)
	}
	c.running = true
	return nil
}

func (f *Fake) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("stop", name); err != nil {
		return err
	}
	if c, ok := f.containers[name]; ok {
		c.running = false
	}
	return nil
}

func (f *Fake) Restart(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("restart", name); err != nil {
		return err
	}
	c, ok := f.containers[name]
	if !ok {
		return fmt.Errorf("no such container: %s", name)
	}
	c.running = true
	return nil
}

func (f *Fake) Kill(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("kill", name); err != nil {
		return err
	}
	if c, ok := f.containers[name]; ok {
		c.running = false
	}
	return nil
}

func (f *Fake) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("rm", name); err != nil {
		return err
	}
	delete(f.containers, name)
	return nil
}

func (f *Fake) Wait(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("wait", name)
}

func (f *Fake) Inspect(ctx context.Context, name string) (Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("inspect", name); err != nil {
		return Info{}, err
	}
	c, ok := f.containers[name]
	if !ok {
		return Info{Name: name, Exists: false}, nil
	}
	return Info{Name: name, Exists: true, Running: c.running}, nil
}

func (f *Fake) Logs(ctx context.Context, name string, tail int) (io.ReadCloser, error) {
	f.mu.Lock()
	err := f.record("logs", name)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("")), nil
}
