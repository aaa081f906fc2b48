// Package pricing loads and caches the model -> $/token pricing table used
// by the cost tracker (spec.md §4.3).
package pricing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// DefaultURL is the well-known upstream pricing table URL, matching the
// litellm-style provider-prefixed cost table the creature fleet's models are
// billed against.
const DefaultURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// maxStaleAge is the cache freshness window (spec.md §4.3 step 1).
const maxStaleAge = 24 * time.Hour

// fetchTimeout bounds the upstream HTTP GET (spec.md §4.3 step 2, §5).
const fetchTimeout = 15 * time.Second

// DependencyName is the name this loader reports itself under to the health
// monitor (spec.md §4.4).
const DependencyName = "pricing"

// prefixes is tried in order against a bare model name when an exact key
// match fails (spec.md §4.3 step 3).
var prefixes = []string{"", "gemini/", "vertex_ai/", "openrouter/", "openai/", "anthropic/"}

// rawEntry is the subset of fields the upstream table's per-model object
// carries that we care about.
type rawEntry struct {
	InputCostPerToken  float64 `json:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token"`
}

// StatusSetter receives dependency health updates. Implemented by the
// health monitor (pkg/healthmon).
type StatusSetter interface {
	SetDependency(name string, status models.DependencyState, errMsg string)
}

// Loader owns the pricing table, a local cache file, and a dependency
// status callback.
type Loader struct {
	cachePath string
	url       string
	client    *http.Client
	log       zerolog.Logger

	mu     sync.RWMutex
	table  map[string]models.ModelPrice
	status StatusSetter
}

// New creates a Loader. cachePath is the on-disk JSON cache file; url
// overrides DefaultURL when non-empty. status may be nil.
func New(cachePath, url string, status StatusSetter, log zerolog.Logger) *Loader {
	if url == "" {
		url = DefaultURL
	}
	return &Loader{
		cachePath: cachePath,
		url:       url,
		client:    &http.Client{Timeout: fetchTimeout},
		log:       log.With().Str("component", "pricing").Logger(),
		table:     make(map[string]models.ModelPrice),
		status:    status,
	}
}

// Load runs the startup algorithm (spec.md §4.3): try the cache, refresh
// from the network if missing or stale, and report dependency health.
func (l *Loader) Load(ctx context.Context) {
	cached, age, err := l.readCache()
	if err == nil {
		l.setTable(cached)
	}

	if err == nil && age < maxStaleAge {
		l.markUp("")
		return
	}

	if refreshErr := l.Refresh(ctx); refreshErr != nil {
		if err == nil {
			// Stale cache beats nothing: keep serving it and stay "up".
			l.log.Warn().Err(refreshErr).Msg("pricing refresh failed, serving stale cache")
			l.markUp("")
			return
		}
		l.log.Error().Err(refreshErr).Msg("pricing unavailable: no cache and refresh failed")
		l.markDown(refreshErr.Error())
	}
}

// Refresh fetches the pricing table from the network and persists it to the
// cache file on success.
func (l *Loader) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var raw map[string]rawEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return err
	}

	table := toTable(raw)
	l.setTable(table)

	if err := l.writeCache(body); err != nil {
		l.log.Warn().Err(err).Msg("failed to persist pricing cache")
	}
	l.markUp("")
	return nil
}

func toTable(raw map[string]rawEntry) map[string]models.ModelPrice {
	table := make(map[string]models.ModelPrice, len(raw))
	for k, v := range raw {
		table[k] = models.ModelPrice{Input: v.InputCostPerToken, Output: v.OutputCostPerToken}
	}
	return table
}

// LookupPricing resolves a model name to its (input,output) $/token rates
// following spec.md §4.3 step 3: exact match, then each fixed prefix, then a
// suffix match against any key ending with "/<model>".
func (l *Loader) LookupPricing(model string) (models.ModelPrice, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if p, ok := l.table[model]; ok {
		return p, true
	}
	for _, prefix := range prefixes {
		if p, ok := l.table[prefix+model]; ok {
			return p, true
		}
	}
	suffix := "/" + model
	for k, p := range l.table {
		if strings.HasSuffix(k, suffix) {
			return p, true
		}
	}
	return models.ModelPrice{}, false
}

func (l *Loader) setTable(t map[string]models.ModelPrice) {
	l.mu.Lock()
	l.table = t
	l.mu.Unlock()
}

func (l *Loader) readCache() (map[string]models.ModelPrice, time.Duration, error) {
	info, err := os.Stat(l.cachePath)
	if err != nil {
		return nil, 0, err
	}
	b, err := os.ReadFile(l.cachePath)
	if err != nil {
		return nil, 0, err
	}
	var raw map[string]rawEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, 0, err
	}
	return toTable(raw), time.Since(info.ModTime()), nil
}

func (l *Loader) writeCache(body []byte) error {
	if err := os.MkdirAll(filepath.Dir(l.cachePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(l.cachePath, body, 0o644)
}

func (l *Loader) markUp(version string) {
	if l.status != nil {
		l.status.SetDependency(DependencyName, models.DependencyUp, "")
	}
	_ = version
}

func (l *Loader) markDown(errMsg string) {
	if l.status != nil {
		l.status.SetDependency(DependencyName, models.DependencyDown, errMsg)
	}
}

type errStatus int

func (e errStatus) Error() string {
	return "pricing fetch: unexpected HTTP status " + http.StatusText(int(e))
}
