// Package credproxy boots and supervises the credential-proxy side-car
// process that brokers authenticated API calls on behalf of creatures
// (spec.md §4.6, §6.2). The side-car's own internals are out of scope; this
// package only owns the process lifecycle and its restart policy.
package credproxy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the managed side-car process.
type Config struct {
	ConfigFilePath string        // side-car's own config file; absence disables the manager
	Command        string        // binary to exec
	Args           []string
	Port           int           // fixed port the side-car binds to
	RunnerKeyPath  string        // where the shared runner key is persisted
	HealthPath     string        // path appended to authorityUrl() for health polling
	HealthAttempts int           // wait up to N x 1s for health (spec.md §4.6)
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	maxAttempts    = 5
)

// Manager owns the side-car's process, restart policy, and shared secret
// (spec.md §5: "serialized by a single supervisor task with an explicit
// state variable and a restart timer").
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	runnerKey   string
	attempts    int
	autoRestart bool
	stopped     chan struct{}
	stopOnce    sync.Once
}

// New creates a Manager. It does not start the side-car; call Start.
func New(cfg Config, log zerolog.Logger) *Manager {
	if cfg.HealthAttempts <= 0 {
		cfg.HealthAttempts = 10
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	return &Manager{
		cfg:         cfg,
		log:         log.With().Str("component", "credproxy").Logger(),
		autoRestart: true,
		stopped:     make(chan struct{}),
	}
}

// Enabled reports whether the side-car's config file is present; the
// manager is a no-op when it is not (spec.md §4.6).
func (m *Manager) Enabled() bool {
	_, err := os.Stat(m.cfg.ConfigFilePath)
	return err == nil
}

// Start spawns the side-car and blocks until its health endpoint reports ok
// or the attempt budget is exhausted.
func (m *Manager) Start(ctx context.Context) error {
	if !m.Enabled() {
		m.log.Info().Msg("credential-proxy config absent, manager disabled")
		return nil
	}

	if err := m.loadOrGenerateRunnerKey(); err != nil {
		return fmt.Errorf("runner key: %w", err)
	}

	return m.spawnWithRetry(ctx)
}

func (m *Manager) loadOrGenerateRunnerKey() error {
	if b, err := os.ReadFile(m.cfg.RunnerKeyPath); err == nil && len(b) > 0 {
		m.mu.Lock()
		m.runnerKey = string(b)
		m.mu.Unlock()
		return nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	keyHex := hex.EncodeToString(key)
	if err := os.WriteFile(m.cfg.RunnerKeyPath, []byte(keyHex), 0o600); err != nil {
		return err
	}
	m.mu.Lock()
	m.runnerKey = keyHex
	m.mu.Unlock()
	return nil
}

// spawnWithRetry implements the auto-restart backoff policy: 1s doubling to
// a 30s cap, up to 5 attempts; a port-in-use failure reschedules without
// counting against the attempt budget (spec.md §4.6).
func (m *Manager) spawnWithRetry(ctx context.Context) error {
	backoff := initialBackoff
	for {
		m.mu.Lock()
		restart := m.autoRestart
		m.mu.Unlock()
		if !restart {
			return fmt.Errorf("credential-proxy: stopped, not restarting")
		}

		err := m.spawnOnce(ctx)
		if err == nil {
			return nil
		}

		if isPortInUse(err) {
			m.log.Warn().Err(err).Msg("credential-proxy port in use, rescheduling")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}

		m.mu.Lock()
		m.attempts++
		attempts := m.attempts
		m.mu.Unlock()

		if attempts >= maxAttempts {
			return fmt.Errorf("credential-proxy: giving up after %d attempts: %w", attempts, err)
		}

		m.log.Warn().Err(err).Int("attempt", attempts).Dur("backoff", backoff).Msg("credential-proxy spawn failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = minDuration(backoff*2, maxBackoff)
	}
}

func (m *Manager) spawnOnce(ctx context.Context) error {
	cmd := exec.Command(m.cfg.Command, m.cfg.Args...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PORT=%d", m.cfg.Port),
		fmt.Sprintf("RUNNER_KEY=%s", m.runnerKeyUnsafe()),
	)
	if err := cmd.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cmd = cmd
	m.mu.Unlock()

	go m.watchExit(cmd)

	if err := m.waitHealthy(ctx); err != nil {
		_ = cmd.Process.Kill()
		return err
	}
	return nil
}

func (m *Manager) runnerKeyUnsafe() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runnerKey
}

func (m *Manager) watchExit(cmd *exec.Cmd) {
	err := cmd.Wait()
	m.mu.Lock()
	restart := m.autoRestart
	m.mu.Unlock()
	if err != nil {
		m.log.Warn().Err(err).Msg("credential-proxy process exited")
	}
	if restart {
		select {
		case <-m.stopped:
		default:
			go func() { _ = m.spawnWithRetry(context.Background()) }()
		}
	}
}

func (m *Manager) waitHealthy(ctx context.Context) error {
	client := &http.Client{Timeout: 2 * time.Second}
	url := m.authorityURLUnsafe() + m.cfg.HealthPath
	for i := 0; i < m.cfg.HealthAttempts; i++ {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("credential-proxy: health check never succeeded after %d attempts", m.cfg.HealthAttempts)
}

func isPortInUse(err error) bool {
	var opErr *net.OpError
	if ok := asOpError(err, &opErr); ok {
		return opErr.Op == "listen"
	}
	return false
}

func asOpError(err error, target **net.OpError) bool {
	for err != nil {
		if oe, ok := err.(*net.OpError); ok {
			*target = oe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// AuthorityURL returns the URL reachable from inside creature containers
// (spec.md §4.6).
func (m *Manager) AuthorityURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authorityURLUnsafe()
}

func (m *Manager) authorityURLUnsafe() string {
	return "http://host.docker.internal:" + strconv.Itoa(m.cfg.Port)
}

// RunnerKey returns the shared secret the side-car and its callers use.
func (m *Manager) RunnerKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runnerKey
}

// StopJanee disables auto-restart and terminates the running process
// (name kept as spec.md §4.6 names it).
func (m *Manager) StopJanee() {
	m.mu.Lock()
	m.autoRestart = false
	cmd := m.cmd
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopped) })

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
