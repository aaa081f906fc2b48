package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/config"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/containerrt"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/cost"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/events"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/healthmon"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

type fakePricing struct{}

func (fakePricing) LookupPricing(model string) (models.ModelPrice, bool) {
	return models.ModelPrice{Input: 1e-6, Output: 2e-6}, true
}

func newTestServer(t *testing.T) (*Server, *Registry, string) {
	t.Helper()
	creaturesDir := t.TempDir()
	store := events.New(creaturesDir, events.DefaultTailSize, zerolog.Nop())
	tracker := cost.New(filepath.Join(t.TempDir(), "usage.json"), fakePricing{}, zerolog.Nop())
	health := healthmon.New(map[string]healthmon.Checker{}, time.Minute, zerolog.Nop())
	rollback := &noopRollback{}

	cfg := &config.Config{
		System:   config.SystemConfig{CreaturesDir: creaturesDir, ContainerPort: 8080},
		Budgets:  config.BudgetsConfig{Global: models.Budget{Action: models.BudgetActionOff}, Creatures: map[string]models.Budget{}},
		Narrator: config.NarratorConfig{Model: "claude-haiku", IntervalMinutes: 15},
		Creator:  config.CreatorConfig{Model: "claude-sonnet"},
	}

	registry := NewRegistry(SystemDefaults{
		CreaturesDir:  creaturesDir,
		ContainerPort: 8080,
		CreatorModel:  "claude-sonnet",
	}, containerrt.NewFake(), store, rollback, tracker, nil, nil, zerolog.Nop())

	srv := NewServer(cfg, registry, store, tracker, health, nil, nil, nil, nil, zerolog.Nop())
	return srv, registry, creaturesDir
}

type noopRollback struct{}

func (*noopRollback) LogRollback(creature, from, to, reason string) {}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestListCreatures_EmptyRegistryReturnsEmptyArray(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/creatures", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSpawnCreature_CreatesLayoutAndReturnsStatus(t *testing.T) {
	srv, _, dir := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/creatures", SpawnRequest{Name: "alpha", Genome: "go-basic", Purpose: "test"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var st models.Creature
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "alpha", st.Name)

	assert.DirExists(t, filepath.Join(dir, "alpha", "src"))
	assert.DirExists(t, filepath.Join(dir, "alpha", ".self"))
	assert.FileExists(t, filepath.Join(dir, "alpha", "PURPOSE.md"))
}

func TestSpawnCreature_DuplicateNameConflicts(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/creatures", SpawnRequest{Name: "alpha", Genome: "go-basic"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec2 := doRequest(t, srv, http.MethodPost, "/api/creatures", SpawnRequest{Name: "alpha", Genome: "go-basic"})
	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestLifecycleHandler_UnknownCreatureIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/creatures/ghost/stop", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveCreature_RemovesFromRegistry(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	_, err := registry.Spawn(context.Background(), SpawnRequest{Name: "beta", Genome: "go-basic"})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPost, "/api/creatures/beta/archive", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, ok := registry.Get("beta")
	assert.False(t, ok)
}

func TestCreatureBudget_GetReflectsGlobalFallback(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	_, err := registry.Spawn(context.Background(), SpawnRequest{Name: "gamma", Genome: "go-basic"})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodGet, "/api/creatures/gamma/budget", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view budgetView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, models.BudgetActionOff, view.Action)
}

func TestCreatureBudget_PutSetsOverride(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	_, err := registry.Spawn(context.Background(), SpawnRequest{Name: "delta", Genome: "go-basic"})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPut, "/api/creatures/delta/budget", budgetView{DailyCapUSD: 2.5, Action: models.BudgetActionSleep})
	require.Equal(t, http.StatusOK, rec.Code)

	get := doRequest(t, srv, http.MethodGet, "/api/creatures/delta/budget", nil)
	var view budgetView
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &view))
	assert.Equal(t, 2.5, view.DailyCapUSD)
	assert.Equal(t, models.BudgetActionSleep, view.Action)
}

func TestGlobalBudget_RoundTrips(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPut, "/api/budget", budgetView{DailyCapUSD: 10, Action: models.BudgetActionWarn})
	require.Equal(t, http.StatusOK, rec.Code)

	get := doRequest(t, srv, http.MethodGet, "/api/budget", nil)
	var view budgetView
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &view))
	assert.Equal(t, 10.0, view.DailyCapUSD)
}

func TestUsageHandler_ReflectsCostTracker(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view usageView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 0.0, view.Total)
}

func TestStatusHandler_NoCheckersIsHealthy(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view statusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, models.AggregateHealthy, view.Status)
}

func TestInboundEvent_UnknownCreatureIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/creatures/ghost/event", map[string]string{"type": "creature.thought"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInboundEvent_KnownCreatureIsAccepted(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	_, err := registry.Spawn(context.Background(), SpawnRequest{Name: "epsilon", Genome: "go-basic"})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPost, "/api/creatures/epsilon/event", map[string]interface{}{"type": "creature.thought", "text": "hello"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHealthHandler_ReportsConfigStats(t *testing.T) {
	srv, _, dir := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), dir)
}
