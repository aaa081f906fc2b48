// Package api implements the orchestrator's HTTP surface (C9): the REST API
// over the fleet of per-creature supervisors, the SSE event stream, and the
// mount points for the LLM proxy and credential-proxy side-car
// (spec.md §4.9, §6.3).
package api

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/containerrt"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/cost"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/creator"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/events"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/gitutil"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/llmproxy"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/supervisor"
)

// entry bundles one creature's actor and its evaluator.
type entry struct {
	sup     *supervisor.Supervisor
	creator *creator.Creator
}

// SystemDefaults carries the fleet-wide settings applied to every spawned
// creature (spec.md §4.8's Config fields, sourced from pkg/config.SystemConfig).
type SystemDefaults struct {
	CreaturesDir    string
	Image           string
	ContainerPort   int
	PortRangeStart  int
	CPULimit        string
	MemoryLimit     string
	OrchestratorURL string
	PackageVolume   string
	JWTSecret       []byte
	CreatorModel    string
}

// Registry owns the fleet: one supervisor actor plus one evaluator per
// creature (spec.md §5 "Supervisor map: one actor per creature"). The API
// layer dispatches every per-creature call through it.
type Registry struct {
	defaults SystemDefaults
	runtime  containerrt.Runtime
	events   *events.Store
	rollback supervisor.RollbackLogger
	cost     *cost.Tracker
	llm      *llmproxy.Client
	scaffold GenomeScaffolder
	log      zerolog.Logger

	mu       sync.RWMutex
	entries  map[string]*entry
	nextPort int
}

// NewRegistry creates an empty Registry. Call Discover to load creatures
// already present on disk at boot.
func NewRegistry(defaults SystemDefaults, runtime containerrt.Runtime, store *events.Store, rollback supervisor.RollbackLogger, tracker *cost.Tracker, llm *llmproxy.Client, scaffold GenomeScaffolder, log zerolog.Logger) *Registry {
	if scaffold == nil {
		scaffold = DefaultScaffolder
	}
	portStart := defaults.PortRangeStart
	if portStart <= 0 {
		portStart = 17000
	}
	return &Registry{
		defaults: defaults,
		runtime:  runtime,
		events:   store,
		rollback: rollback,
		cost:     tracker,
		llm:      llm,
		scaffold: scaffold,
		log:      log.With().Str("component", "registry").Logger(),
		entries:  make(map[string]*entry),
		nextPort: portStart,
	}
}

// allocatePort hands out a fresh host port for a creature's health-check
// gate. Called with mu held.
func (r *Registry) allocatePort() int {
	p := r.nextPort
	r.nextPort++
	return p
}

// Discover starts a supervisor (reconnecting to any already-running
// container) for each of names not already registered. Used at orchestrator
// boot with the creature directories the caller found under creaturesDir.
func (r *Registry) Discover(ctx context.Context, names []string) {
	for _, name := range names {
		if _, ok := r.Get(name); ok {
			continue
		}
		r.register(ctx, name, "", "", r.defaults.CreaturesDirEntry(name), true)
	}
}

// CreaturesDirEntry joins the creatures dir and a creature name.
func (d SystemDefaults) CreaturesDirEntry(name string) string {
	return d.CreaturesDir + "/" + name
}

func (r *Registry) register(ctx context.Context, name, genome, model, dir string, reconnect bool) *supervisor.Supervisor {
	r.mu.Lock()
	port := r.allocatePort()
	r.mu.Unlock()

	sup := supervisor.New(supervisor.Config{
		Name:            name,
		Directory:       dir,
		Port:            port,
		ContainerPort:   r.defaults.ContainerPort,
		Image:           r.defaults.Image,
		Model:           model,
		CPULimit:        r.defaults.CPULimit,
		MemoryLimit:     r.defaults.MemoryLimit,
		OrchestratorURL: r.defaults.OrchestratorURL,
		PackageVolume:   r.defaults.PackageVolume,
		JWTSecret:       r.defaults.JWTSecret,
	}, r.runtime, r.events, r.rollback, r.log)

	cr := creator.New(creator.Config{
		Name:      name,
		Directory: dir,
		Model:     r.defaults.CreatorModel,
		LogPath:   dir + "/.self/creator-log.jsonl",
	}, r.events, r.llm, r.cost, sup, sup, r.log)

	r.mu.Lock()
	r.entries[name] = &entry{sup: sup, creator: cr}
	r.mu.Unlock()

	sup.Start(ctx)
	return sup
}

// validNamePattern excludes path separators and traversal sequences from
// creature names, since a name is concatenated directly into a filesystem
// path (CreaturesDirEntry).
var validNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ErrAlreadyExists is returned by Spawn for a duplicate creature name.
var ErrAlreadyExists = fmt.Errorf("creature already exists")

// ErrNotFound is returned when a named creature isn't registered.
var ErrNotFound = fmt.Errorf("creature not found")

// SpawnRequest is the body of POST /creatures.
type SpawnRequest struct {
	Name    string `json:"name"`
	Genome  string `json:"genome"`
	Purpose string `json:"purpose"`
	Model   string `json:"model"`
}

// Spawn scaffolds a new creature's directory (spec.md §6.1 layout; the
// genome's own source template is an out-of-scope seam, spec.md §1) and
// starts its supervisor.
func (r *Registry) Spawn(ctx context.Context, req SpawnRequest) (*supervisor.Supervisor, error) {
	if len(req.Name) == 0 || len(req.Name) > models.NameMaxLen || !validNamePattern.MatchString(req.Name) {
		return nil, fmt.Errorf("invalid creature name")
	}
	if _, ok := r.Get(req.Name); ok {
		return nil, ErrAlreadyExists
	}

	dir := r.defaults.CreaturesDirEntry(req.Name)
	if err := r.scaffold(dir, req.Genome, req.Purpose); err != nil {
		return nil, fmt.Errorf("failed to scaffold creature: %w", err)
	}
	if err := gitutil.Init(dir); err != nil {
		return nil, fmt.Errorf("failed to initialize git repository: %w", err)
	}
	if err := gitutil.Commit(dir, "scaffold: initial creature layout"); err != nil {
		r.log.Warn().Err(err).Str("creature", req.Name).Msg("initial scaffold commit failed")
	}

	sup := r.register(ctx, req.Name, req.Genome, req.Model, dir, false)
	r.events.Append(req.Name, models.Event{Type: models.EventHostSpawn, Data: map[string]interface{}{
		"genome": req.Genome,
	}})
	return sup, nil
}

// Archive stops a creature's supervisor and removes it from the registry.
// The on-disk directory is left in place (spec.md makes no provision for
// destructive deletion via the API).
func (r *Registry) Archive(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	e.sup.Stop()
	return nil
}

// Get returns the named creature's supervisor.
func (r *Registry) Get(name string) (*supervisor.Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.sup, true
}

// GetCreator returns the named creature's evaluator.
func (r *Registry) GetCreator(name string) (*creator.Creator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.creator, true
}

// List returns every registered creature's public summary, sorted by name
// (spec.md §6.3 "GET /creatures").
func (r *Registry) List() []models.ListItem {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	snapshot := make(map[string]*entry, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	sort.Strings(names)
	out := make([]models.ListItem, 0, len(names))
	for _, name := range names {
		st := snapshot[name].sup.Status()
		out = append(out, models.ListItem{
			Name:        st.Name,
			Status:      st.Status,
			Model:       st.Model,
			SHA:         st.CurrentSHA,
			SleepReason: st.SleepReason,
		})
	}
	return out
}

// ObserveInbound feeds an event the creature itself posted into its
// supervisor's state machine and the event store (spec.md §6.3
// "POST /creatures/:name/event").
func (r *Registry) ObserveInbound(name string, evt models.Event) error {
	sup, ok := r.Get(name)
	if !ok {
		return ErrNotFound
	}
	stamped := r.events.Append(name, evt)
	sup.Observe(stamped)
	return nil
}

// StopAll stops every supervisor, used during graceful shutdown.
func (r *Registry) StopAll() {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			e.sup.Stop()
		}(e)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}
