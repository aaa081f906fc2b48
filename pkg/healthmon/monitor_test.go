package healthmon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

func upChecker(ctx context.Context) models.DependencyStatus {
	return models.DependencyStatus{Status: models.DependencyUp}
}

func downChecker(ctx context.Context) models.DependencyStatus {
	return models.DependencyStatus{Status: models.DependencyDown, Error: "boom"}
}

func TestSnapshot_StartsUnknown(t *testing.T) {
	m := New(map[string]Checker{"cr": upChecker}, time.Hour, zerolog.Nop())
	snap, agg := m.Snapshot()
	assert.Equal(t, models.DependencyUnknown, snap["cr"].Status)
	assert.Equal(t, models.AggregateDegraded, agg)
}

func TestRunOnce_AllUpIsHealthy(t *testing.T) {
	m := New(map[string]Checker{"cr": upChecker, "cp": upChecker}, time.Hour, zerolog.Nop())
	m.runOnce(context.Background())

	_, agg := m.Snapshot()
	assert.Equal(t, models.AggregateHealthy, agg)
}

func TestRunOnce_OneDownIsDegraded(t *testing.T) {
	m := New(map[string]Checker{"cr": upChecker, "cp": downChecker}, time.Hour, zerolog.Nop())
	m.runOnce(context.Background())

	snap, agg := m.Snapshot()
	assert.Equal(t, models.AggregateDegraded, agg)
	assert.Equal(t, "boom", snap["cp"].Error)
}

func TestOnChange_FiresOnlyOnTransition(t *testing.T) {
	m := New(map[string]Checker{"cr": upChecker}, time.Hour, zerolog.Nop())
	var fired int32
	m.OnChange(func(_ map[string]models.DependencyStatus, _ models.AggregateStatus) {
		atomic.AddInt32(&fired, 1)
	})

	m.runOnce(context.Background()) // unknown -> healthy, fires
	m.runOnce(context.Background()) // healthy -> healthy, no fire

	assert.EqualValues(t, 1, atomic.LoadInt32(&fired))
}

func TestSetDependency_NotifiesOnTransition(t *testing.T) {
	m := New(map[string]Checker{}, time.Hour, zerolog.Nop())
	var gotAgg models.AggregateStatus
	m.OnChange(func(_ map[string]models.DependencyStatus, agg models.AggregateStatus) {
		gotAgg = agg
	})

	m.SetDependency("pricing", models.DependencyDown, "timeout")
	assert.Equal(t, models.AggregateDegraded, gotAgg)

	m.SetDependency("pricing", models.DependencyUp, "")
	assert.Equal(t, models.AggregateHealthy, gotAgg)
}

func TestRunOnce_SkipsWhenInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	blocking := func(ctx context.Context) models.DependencyStatus {
		atomic.AddInt32(&calls, 1)
		<-release
		return models.DependencyStatus{Status: models.DependencyUp}
	}
	m := New(map[string]Checker{"slow": blocking}, time.Hour, zerolog.Nop())

	go m.runOnce(context.Background())
	time.Sleep(20 * time.Millisecond) // let the first run enter

	m.runOnce(context.Background()) // should skip immediately
	close(release)
	time.Sleep(20 * time.Millisecond)

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestStartStop_CompletesCleanly(t *testing.T) {
	m := New(map[string]Checker{"cr": upChecker}, 5*time.Millisecond, zerolog.Nop())
	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	_, agg := m.Snapshot()
	require.Equal(t, models.AggregateHealthy, agg)
}
