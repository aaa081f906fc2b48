package supervisor

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/containerrt"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/gitutil"
	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

type fakeEvents struct {
	appended []models.Event
}

func (f *fakeEvents) Append(creature string, evt models.Event) models.Event {
	evt.Creature = creature
	f.appended = append(f.appended, evt)
	return evt
}

func (f *fakeEvents) has(t models.EventType) bool {
	for _, e := range f.appended {
		if e.Type == t {
			return true
		}
	}
	return false
}

type fakeRollbackLog struct {
	entries []string
}

func (f *fakeRollbackLog) LogRollback(creature, from, to, reason string) {
	f.entries = append(f.entries, creature+":"+from+":"+to+":"+reason)
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	run("commit", "--allow-empty", "-q", "-m", "init")
}

func newTestSupervisor(t *testing.T, rt containerrt.Runtime, ev EventPublisher) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	if _, err := exec.LookPath("git"); err == nil {
		initRepo(t, dir)
	}
	cfg := Config{
		Name:          "alpha",
		Directory:     dir,
		Port:          18080,
		ContainerPort: 8080,
		Image:         "creature:test",
		PackageVolume: "pkgcache",
	}
	return New(cfg, rt, ev, nil, zerolog.Nop())
}

func TestStartOrReconnect_FreshSpawnEmitsHostSpawn(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	rt := containerrt.NewFake()
	ev := &fakeEvents{}
	s := newTestSupervisor(t, rt, ev)

	require.NoError(t, s.startOrReconnect(context.Background()))

	assert.True(t, ev.has(models.EventHostSpawn))
	assert.Equal(t, models.StatusStarting, s.Status().Status)
	s.cancelTimers()
}

func TestStartOrReconnect_ReconnectIsSilent(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	rt := containerrt.NewFake()
	ev := &fakeEvents{}
	s := newTestSupervisor(t, rt, ev)
	require.NoError(t, rt.Run(context.Background(), containerrt.Spec{Name: "alpha"}))

	require.NoError(t, s.startOrReconnect(context.Background()))

	assert.False(t, ev.has(models.EventHostSpawn))
	s.cancelTimers()
}

func TestStartOrReconnect_InfraFailureEmitsHostInfraFailure(t *testing.T) {
	rt := containerrt.NewFake()
	rt.Fail["inspect"] = assertErr
	ev := &fakeEvents{}
	s := newTestSupervisor(t, rt, ev)

	err := s.startOrReconnect(context.Background())

	assert.Error(t, err)
	assert.True(t, ev.has(models.EventHostInfraFailure))
	assert.Equal(t, models.StatusStopped, s.Status().Status)
}

func TestPromote_RecordsLastGoodSHAAndEmitsHostPromote(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	rt := containerrt.NewFake()
	ev := &fakeEvents{}
	s := newTestSupervisor(t, rt, ev)
	s.mu.Lock()
	s.currentSHA = "deadbeef"
	s.mu.Unlock()

	s.promote()

	assert.True(t, ev.has(models.EventHostPromote))
	assert.Equal(t, models.StatusRunning, s.Status().Status)
	assert.Equal(t, "deadbeef", s.Status().LastGoodSHA)

	assert.Equal(t, "deadbeef", gitutil.LastGoodSHA(s.cfg.Directory))
}

func TestApplyObservedEvent_SleepThenToolCallWakes(t *testing.T) {
	rt := containerrt.NewFake()
	ev := &fakeEvents{}
	s := newTestSupervisor(t, rt, ev)
	s.setStatus(models.StatusRunning)

	s.applyObservedEvent(models.Event{Type: models.EventCreatureSleep, Data: map[string]interface{}{"reason": "napping"}})
	st := s.Status()
	assert.Equal(t, models.StatusSleeping, st.Status)
	assert.Equal(t, "napping", st.SleepReason)

	s.applyObservedEvent(models.Event{Type: models.EventCreatureToolCall})
	assert.Equal(t, models.StatusRunning, s.Status().Status)
}

func TestWake_TransitionsSleepingToRunning(t *testing.T) {
	rt := containerrt.NewFake()
	ev := &fakeEvents{}
	s := newTestSupervisor(t, rt, ev)
	s.Start(context.Background())
	defer s.Stop()

	s.applyObservedEvent(models.Event{Type: models.EventCreatureSleep, Data: map[string]interface{}{"reason": "napping"}})
	require.Equal(t, models.StatusSleeping, s.Status().Status)

	require.NoError(t, s.Wake(context.Background()))
	assert.Equal(t, models.StatusRunning, s.Status().Status)
}

func TestApplyObservedEvent_ErrorTransitionsToError(t *testing.T) {
	rt := containerrt.NewFake()
	ev := &fakeEvents{}
	s := newTestSupervisor(t, rt, ev)
	s.setStatus(models.StatusRunning)

	s.applyObservedEvent(models.Event{Type: models.EventCreatureError})

	assert.Equal(t, models.StatusError, s.Status().Status)
}

// Testable property (spec.md §8): consecutive failures cap at 5 then stop.
func TestHandleFailure_StopsAfterMaxConsecutiveFailures(t *testing.T) {
	rt := containerrt.NewFake()
	rt.Fail["inspect"] = nil // reachable
	ev := &fakeEvents{}
	s := newTestSupervisor(t, rt, ev)
	s.mu.Lock()
	s.consecutiveFails = maxConsecutiveFails - 1
	s.currentSHA = "a"
	s.lastGoodSHA = "a"
	s.mu.Unlock()

	err := s.handleFailure(context.Background(), "boom")

	require.Error(t, err)
	assert.Equal(t, models.StatusStopped, s.Status().Status)
}

func TestBackoffForAttempt_CapsAtThirtySeconds(t *testing.T) {
	d := backoffForAttempt(10)
	assert.LessOrEqual(t, d, maxBackoff+maxBackoff/4+time.Second)
	assert.GreaterOrEqual(t, d, maxBackoff)
}

func TestStartStop_ActorLoopShutsDownCleanly(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	rt := containerrt.NewFake()
	ev := &fakeEvents{}
	s := newTestSupervisor(t, rt, ev)

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
}

var assertErr = fakeErr("engine down")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
