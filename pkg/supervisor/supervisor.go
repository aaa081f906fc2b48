// Package supervisor implements the per-creature actor (C8): container
// lifecycle, health gating, SHA promotion, and failure recovery
// (spec.md §4.8).
package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/containerrt"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/gitutil"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

const (
	// healthGateInterval is the health-poll period and healthGateSustained
	// the sustained-success duration needed to promote a freshly started
	// creature to running (spec.md §4.8).
	healthGateInterval  = time.Second
	healthGateSustained = 10 * time.Second
	rollbackTimeout     = 30 * time.Second
	maxConsecutiveFails = 5
	initialBackoff      = time.Second
	maxBackoff           = 30 * time.Second

	// IdentityHeader carries the creature's API key as "<prefix>:<name>"
	// (spec.md §4.8 step 4, §4.7).
	IdentityHeader = "X-Creature-Key"
	identityPrefix = "creature"
)

// EventPublisher appends an event and returns it with a stamped timestamp;
// satisfied by *events.Store.
type EventPublisher interface {
	Append(creature string, evt models.Event) models.Event
}

// RollbackLogger appends a structured rollback record to the global rollback
// log. Per creature, a rollback is recorded only as a host.rollback event.
type RollbackLogger interface {
	LogRollback(creature, from, to, reason string)
}

// Config is one creature's static configuration.
type Config struct {
	Name          string
	Directory     string
	Port          int
	ContainerPort int
	Image         string
	Model         string
	BuildCheck    string
	CPULimit      string
	MemoryLimit   string
	OrchestratorURL string
	PackageVolume string // named volume for package caches
	JWTSecret     []byte
}

// Supervisor is one creature's actor: a single goroutine processing
// commands from a mailbox, guaranteeing serialized state transitions
// (spec.md §5 "Supervisor map: one actor per creature").
type Supervisor struct {
	cfg     Config
	runtime containerrt.Runtime
	events  EventPublisher
	rollbackLog RollbackLogger
	log     zerolog.Logger

	mu                sync.RWMutex
	status            models.Status
	sleepReason       string
	currentSHA        string
	lastGoodSHA       string
	consecutiveFails  int
	healthyAt         time.Time

	cmds     chan command
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	gateCancel     context.CancelFunc
	rollbackCancel context.CancelFunc
}

type command struct {
	kind   string // start, stop, restart, rebuild, observe, health_timeout
	event  models.Event
	result chan error
}

// New creates a Supervisor for one creature. Call Start to launch its
// actor loop.
func New(cfg Config, runtime containerrt.Runtime, events EventPublisher, rollbackLog RollbackLogger, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		runtime: runtime,
		events:  events,
		rollbackLog: rollbackLog,
		log:     log.With().Str("component", "supervisor").Str("creature", cfg.Name).Logger(),
		status:  models.StatusStopped,
		cmds:    make(chan command, 32),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the actor goroutine and runs the start/reconnect algorithm
// on it, returning once that first pass has completed.
func (s *Supervisor) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
	s.submit("start", models.Event{})
}

// Stop halts the actor loop. In-flight work is allowed to reach a stable
// state first (spec.md §5 cancellation semantics).
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Supervisor) submit(kind string, evt models.Event) error {
	result := make(chan error, 1)
	select {
	case s.cmds <- command{kind: kind, event: evt, result: result}:
	case <-s.stopCh:
		return fmt.Errorf("supervisor stopped")
	}
	select {
	case err := <-result:
		return err
	case <-s.stopCh:
		return nil
	}
}

// Restart requests a restart (container preserved, spec.md §4.8).
func (s *Supervisor) Restart(ctx context.Context) error { return s.submit("restart", models.Event{}) }

// Rebuild requests a full destroy-and-respawn (operator-only, spec.md §4.8).
func (s *Supervisor) Rebuild(ctx context.Context) error { return s.submit("rebuild", models.Event{}) }

// StopCreature requests a graceful stop, transitioning to stopped.
func (s *Supervisor) StopCreature(ctx context.Context) error { return s.submit("stop", models.Event{}) }

// Observe feeds an event for this creature into the state machine
// (spec.md §4.8 "Observed event integration").
func (s *Supervisor) Observe(evt models.Event) {
	_ = s.submit("observe", evt)
}

// Wake requests an explicit wake (the HTTP API's per-creature `wake`
// lifecycle action, spec.md §6.3): a sleeping or errored creature
// transitions back to running, same as if it had emitted a tool_call.
func (s *Supervisor) Wake(ctx context.Context) error {
	return s.submit("observe", models.Event{Type: models.EventCreatureWake})
}

// Status returns a point-in-time snapshot of the creature's public state.
func (s *Supervisor) Status() models.Creature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Creature{
		Name:        s.cfg.Name,
		Directory:   s.cfg.Directory,
		Port:        s.cfg.Port,
		Model:       s.cfg.Model,
		Status:      s.status,
		CurrentSHA:  s.currentSHA,
		LastGoodSHA: s.lastGoodSHA,
		SleepReason: s.sleepReason,
		BuildCheck:  s.cfg.BuildCheck,
	}
}

func (s *Supervisor) setStatus(st models.Status) {
	s.mu.Lock()
	s.status = st
	if st != models.StatusSleeping {
		s.sleepReason = ""
	}
	s.mu.Unlock()
}

func (s *Supervisor) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case cmd := <-s.cmds:
			err := s.handle(ctx, cmd)
			if cmd.result != nil {
				cmd.result <- err
			}
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case "start":
		return s.startOrReconnect(ctx)
	case "stop":
		s.cancelTimers()
		if err := s.runtime.Stop(ctx, s.cfg.Name); err != nil {
			s.log.Warn().Err(err).Msg("stop failed")
		}
		s.setStatus(models.StatusStopped)
		return nil
	case "restart":
		s.cancelTimers()
		if err := s.runtime.Restart(ctx, s.cfg.Name); err != nil {
			return s.handleFailure(ctx, "restart failed: "+err.Error())
		}
		s.setStatus(models.StatusStarting)
		s.startHealthGate(ctx, false)
		return nil
	case "rebuild":
		s.cancelTimers()
		_ = s.runtime.Kill(ctx, s.cfg.Name)
		_ = s.runtime.Wait(ctx, s.cfg.Name)
		_ = s.runtime.Remove(ctx, s.cfg.Name)
		return s.startOrReconnect(ctx)
	case "observe":
		s.applyObservedEvent(cmd.event)
		return nil
	case "health_timeout":
		return s.handleFailure(ctx, "health timeout")
	}
	return nil
}

// startOrReconnect implements spec.md §4.8's numbered start algorithm.
func (s *Supervisor) startOrReconnect(ctx context.Context) error {
	s.mu.Lock()
	s.currentSHA = gitutil.CurrentSHA(s.cfg.Directory)
	s.lastGoodSHA = gitutil.LastGoodSHA(s.cfg.Directory)
	s.mu.Unlock()

	s.setStatus(models.StatusStarting)

	info, err := s.runtime.Inspect(ctx, s.cfg.Name)
	if err != nil {
		return s.handleFailure(ctx, "container runtime unreachable: "+err.Error())
	}

	fresh := false
	switch {
	case info.Exists && info.Running:
		// reconnect: silent, no host.spawn.
	case info.Exists && !info.Running:
		if err := s.runtime.Start(ctx, s.cfg.Name); err != nil {
			return s.handleFailure(ctx, "start existing container failed: "+err.Error())
		}
	default:
		if err := s.createContainer(ctx); err != nil {
			return s.handleFailure(ctx, "create container failed: "+err.Error())
		}
		fresh = true
		s.events.Append(s.cfg.Name, models.Event{Type: models.EventHostSpawn, Data: map[string]interface{}{
			"sha": s.currentSHA,
		}})
	}

	s.startHealthGate(ctx, fresh)
	return nil
}

func (s *Supervisor) createContainer(ctx context.Context) error {
	apiKey := s.cfg.Name
	if len(s.cfg.JWTSecret) > 0 {
		if signed, err := s.signIdentity(); err == nil {
			apiKey = signed
		} else {
			s.log.Warn().Err(err).Msg("failed to sign creature identity, falling back to plain key")
		}
	}

	dir := s.cfg.Directory
	orchestratorURL := s.cfg.OrchestratorURL
	// When the orchestrator itself runs inside a container, paths/URLs must
	// be rewritten to the host's view (spec.md §4.8 step 4).
	if hostDir := os.Getenv("HOST_CREATURES_DIR"); hostDir != "" {
		dir = filepath.Join(hostDir, filepath.Base(s.cfg.Directory))
	}
	if hostURL := os.Getenv("HOST_ORCHESTRATOR_URL"); hostURL != "" {
		orchestratorURL = hostURL
	}

	spec := containerrt.Spec{
		Name:        s.cfg.Name,
		Image:       s.cfg.Image,
		CPULimit:    s.cfg.CPULimit,
		MemoryLimit: s.cfg.MemoryLimit,
		HostPort:    s.cfg.Port,
		ContainerPort: s.cfg.ContainerPort,
		BindMounts: []containerrt.Mount{
			{Source: dir, Target: "/creature"},
		},
		Volumes: []containerrt.Mount{
			{Source: s.cfg.PackageVolume, Target: "/cache"},
		},
		Env: map[string]string{
			"ORCHESTRATOR_URL": orchestratorURL,
			"CREATURE_NAME":    s.cfg.Name,
			"CREATURE_MODEL":   s.cfg.Model,
			"CREATURE_API_KEY": identityPrefix + ":" + apiKey,
		},
	}
	return s.runtime.Run(ctx, spec)
}

func (s *Supervisor) signIdentity() (string, error) {
	claims := jwt.MapClaims{
		"sub": s.cfg.Name,
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWTSecret)
}

// startHealthGate launches the 1s health-poll loop and, for a fresh spawn,
// the 30s rollback timer (spec.md §4.8 "Health gate" / "Rollback timer").
func (s *Supervisor) startHealthGate(ctx context.Context, fresh bool) {
	s.cancelTimers()

	gateCtx, cancel := context.WithCancel(ctx)
	s.gateCancel = cancel
	s.mu.Lock()
	s.healthyAt = time.Time{}
	s.mu.Unlock()

	go s.healthGateLoop(gateCtx)

	if fresh {
		rbCtx, rbCancel := context.WithCancel(ctx)
		s.rollbackCancel = rbCancel
		go s.rollbackTimer(rbCtx)
	}
}

func (s *Supervisor) cancelTimers() {
	if s.gateCancel != nil {
		s.gateCancel()
		s.gateCancel = nil
	}
	if s.rollbackCancel != nil {
		s.rollbackCancel()
		s.rollbackCancel = nil
	}
}

func (s *Supervisor) healthGateLoop(ctx context.Context) {
	ticker := time.NewTicker(healthGateInterval)
	defer ticker.Stop()
	client := &http.Client{Timeout: 3 * time.Second}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.pingHealthy(client) {
				s.mu.Lock()
				if s.healthyAt.IsZero() {
					s.healthyAt = time.Now()
				}
				sustained := time.Since(s.healthyAt) >= healthGateSustained
				s.mu.Unlock()
				if sustained {
					s.promote()
					return
				}
			} else {
				s.mu.Lock()
				s.healthyAt = time.Time{}
				s.mu.Unlock()
			}
		}
	}
}

func (s *Supervisor) pingHealthy(client *http.Client) bool {
	url := fmt.Sprintf("http://localhost:%d/healthz", s.cfg.Port)
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (s *Supervisor) rollbackTimer(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(rollbackTimeout):
	}

	s.mu.RLock()
	unset := s.healthyAt.IsZero()
	s.mu.RUnlock()
	if unset {
		_ = s.submit("health_timeout", models.Event{})
	}
}

// promote clears timers, records last-good SHA, resets the failure
// counter, and transitions to running (spec.md §4.8 "Health gate").
func (s *Supervisor) promote() {
	s.cancelTimers()

	s.mu.Lock()
	sha := s.currentSHA
	s.lastGoodSHA = sha
	s.consecutiveFails = 0
	s.mu.Unlock()

	if err := gitutil.SetLastGoodSHA(s.cfg.Directory, sha); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist last-good SHA")
	}

	s.setStatus(models.StatusRunning)
	s.events.Append(s.cfg.Name, models.Event{Type: models.EventHostPromote, Data: map[string]interface{}{
		"sha": sha,
	}})
}

// applyObservedEvent updates status per the observed-event rules
// (spec.md §4.8 state machine).
func (s *Supervisor) applyObservedEvent(evt models.Event) {
	s.mu.Lock()
	cur := s.status
	s.mu.Unlock()

	switch evt.Type {
	case models.EventCreatureSleep:
		reason, _ := evt.Data["reason"].(string)
		s.mu.Lock()
		s.status = models.StatusSleeping
		s.sleepReason = reason
		s.mu.Unlock()
	case models.EventCreatureWake, models.EventCreatureToolCall, models.EventCreatureThought:
		if cur == models.StatusSleeping || cur == models.StatusError {
			s.setStatus(models.StatusRunning)
		}
	case models.EventCreatureError:
		s.setStatus(models.StatusError)
	}
}

// handleFailure implements spec.md §4.8's numbered failure handler.
func (s *Supervisor) handleFailure(ctx context.Context, reason string) error {
	s.cancelTimers()

	if !s.runtimeReachable(ctx) {
		s.setStatus(models.StatusStopped)
		s.events.Append(s.cfg.Name, models.Event{Type: models.EventHostInfraFailure, Data: map[string]interface{}{
			"reason": reason,
		}})
		return fmt.Errorf("infra failure: %s", reason)
	}

	s.mu.Lock()
	current := s.currentSHA
	lastGood := s.lastGoodSHA
	needsRollback := current != "" && lastGood != "" && current != lastGood
	s.consecutiveFails++
	fails := s.consecutiveFails
	s.mu.Unlock()

	if needsRollback {
		s.events.Append(s.cfg.Name, models.Event{Type: models.EventHostRollback, Data: map[string]interface{}{
			"from":   current,
			"to":     lastGood,
			"reason": reason,
		}})
		if s.rollbackLog != nil {
			s.rollbackLog.LogRollback(s.cfg.Name, current, lastGood, reason)
		}
	}

	if fails >= maxConsecutiveFails {
		s.setStatus(models.StatusStopped)
		return fmt.Errorf("giving up after %d consecutive failures: %s", fails, reason)
	}

	if needsRollback {
		if err := gitutil.ResetToSHA(s.cfg.Directory, lastGood); err != nil {
			s.log.Warn().Err(err).Msg("rollback reset failed")
		} else {
			s.mu.Lock()
			s.currentSHA = lastGood
			s.mu.Unlock()
		}
	}

	info, _ := s.runtime.Inspect(ctx, s.cfg.Name)
	if info.Exists {
		if err := s.runtime.Restart(ctx, s.cfg.Name); err != nil {
			s.log.Warn().Err(err).Msg("restart-after-failure failed, will recreate on respawn")
			_ = s.runtime.Remove(ctx, s.cfg.Name)
		}
	}

	backoff := backoffForAttempt(fails)
	s.setStatus(models.StatusError)
	time.Sleep(backoff)

	return s.startOrReconnect(ctx)
}

func (s *Supervisor) runtimeReachable(ctx context.Context) bool {
	_, err := s.runtime.Inspect(ctx, s.cfg.Name)
	return err == nil
}

// backoffForAttempt returns 1s, 2s, 4s... capped at 30s, with a small
// jitter so many failing supervisors do not retry in lockstep.
func backoffForAttempt(attempt int) time.Duration {
	d := initialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			d = maxBackoff
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4 + 1))
	return d + jitter
}
