// Package cost implements the per-identity token/cost accounting tracker
// (spec.md §4.2).
package cost

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// PricingLookup resolves a model name to its $/token rates. Implemented by
// pkg/pricing.Loader.
type PricingLookup interface {
	LookupPricing(model string) (models.ModelPrice, bool)
}

// autosaveInterval is how often dirty state is flushed to disk (spec.md §4.2).
const autosaveInterval = 30 * time.Second

// Tracker is the process-wide cost tracker: one instance, serialized by
// construction (spec.md §5).
type Tracker struct {
	path    string
	pricing PricingLookup
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[string]models.UsageEntry
	dirty   bool

	stop chan struct{}
	once sync.Once
}

// New creates a Tracker backed by path (a JSON file keyed by identity) and
// loads any existing state.
func New(path string, pricing PricingLookup, log zerolog.Logger) *Tracker {
	t := &Tracker{
		path:    path,
		pricing: pricing,
		log:     log.With().Str("component", "cost").Logger(),
		entries: make(map[string]models.UsageEntry),
		stop:    make(chan struct{}),
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	b, err := os.ReadFile(t.path)
	if err != nil {
		return
	}
	var entries map[string]models.UsageEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		t.log.Warn().Err(err).Msg("failed to parse usage file, starting fresh")
		return
	}
	t.entries = entries
}

// Start launches the 30s autosave timer.
func (t *Tracker) Start() {
	go t.autosaveLoop()
}

func (t *Tracker) autosaveLoop() {
	ticker := time.NewTicker(autosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.saveIfDirty()
		case <-t.stop:
			return
		}
	}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// Record updates cumulative and daily totals for identity. If model is
// unknown to the pricing table, tokens and call count are still recorded
// but the cost delta is zero (spec.md §4.2, §8 boundary behaviors).
func (t *Tracker) Record(identity string, inputTokens, outputTokens int64, model string) {
	var price models.ModelPrice
	if model != "" && t.pricing != nil {
		if p, ok := t.pricing.LookupPricing(model); ok {
			price = p
		} else {
			t.log.Warn().Str("model", model).Msg("unknown model, recording zero cost")
		}
	}

	delta := float64(inputTokens)*price.Input + float64(outputTokens)*price.Output

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[identity]
	day := today()
	if e.DailyDate != day {
		e.DailyDate = day
		e.DailyCostUSD = 0
	}

	e.InputTokens += inputTokens
	e.OutputTokens += outputTokens
	e.CostUSD += delta
	e.DailyCostUSD += delta
	e.Calls++

	t.entries[identity] = e
	t.dirty = true
}

// Get returns a point-in-time copy of an identity's usage entry.
func (t *Tracker) Get(identity string) models.UsageEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[identity]
}

// GetAll returns a snapshot of every tracked identity's usage.
func (t *Tracker) GetAll() map[string]models.UsageEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]models.UsageEntry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// GetTotal returns the cumulative cost across every identity.
func (t *Tracker) GetTotal() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, e := range t.entries {
		total += e.CostUSD
	}
	return total
}

// GetCreatureCost sums a creature's own identity plus any "creator:<name>"
// or "<prefix>:<name>" entries (spec.md §4.2).
func (t *Tracker) GetCreatureCost(name string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for id, e := range t.entries {
		if identityBelongsTo(id, name) {
			total += e.CostUSD
		}
	}
	return total
}

// GetCreatureDailyCost is GetCreatureCost's daily-cost equivalent.
func (t *Tracker) GetCreatureDailyCost(name string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	day := today()
	var total float64
	for id, e := range t.entries {
		if identityBelongsTo(id, name) && e.DailyDate == day {
			total += e.DailyCostUSD
		}
	}
	return total
}

func identityBelongsTo(identity, name string) bool {
	if identity == name {
		return true
	}
	if idx := strings.IndexByte(identity, ':'); idx >= 0 {
		return identity[idx+1:] == name
	}
	return false
}

func (t *Tracker) saveIfDirty() {
	t.mu.Lock()
	if !t.dirty {
		t.mu.Unlock()
		return
	}
	snapshot := make(map[string]models.UsageEntry, len(t.entries))
	for k, v := range t.entries {
		snapshot[k] = v
	}
	t.dirty = false
	t.mu.Unlock()

	t.writeSnapshot(snapshot)
}

func (t *Tracker) writeSnapshot(snapshot map[string]models.UsageEntry) {
	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.log.Warn().Err(err).Msg("failed to marshal usage snapshot")
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		t.log.Warn().Err(err).Msg("failed to create usage directory")
		return
	}
	if err := os.WriteFile(t.path, b, 0o644); err != nil {
		t.log.Warn().Err(err).Msg("failed to write usage snapshot")
	}
}

// Destroy cancels the autosave timer and flushes synchronously
// (spec.md §4.2).
func (t *Tracker) Destroy() {
	t.once.Do(func() { close(t.stop) })

	t.mu.Lock()
	snapshot := make(map[string]models.UsageEntry, len(t.entries))
	for k, v := range t.entries {
		snapshot[k] = v
	}
	t.dirty = false
	t.mu.Unlock()

	t.writeSnapshot(snapshot)
}
