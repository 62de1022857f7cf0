package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/dues/store"
	"github.com/warp/dues-engine/period"
)

// gatedMembers holds the first Profiles call until release is closed.
type gatedMembers struct {
	*store.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedMembers) Profiles(ctx context.Context) ([]dues.Profile, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Memory.Profiles(ctx)
}

func newSchedulerEngine(t *testing.T, members dues.MemberStore, mem *store.Memory) *dues.Engine {
	t.Helper()
	e := dues.NewEngine(members, mem, mem)
	e.Clock = func() time.Time { return time.Date(2025, time.April, 10, 9, 0, 0, 0, time.UTC) }
	return e
}

func TestOverdueScheduler_StopDuringSweep(t *testing.T) {
	// GIVEN: a scheduler whose first sweep is blocked inside the member store
	mem := store.NewMemory()
	contribution := dues.MustMoney("10.00")
	require.NoError(t, mem.SaveProfile(context.Background(), dues.Profile{
		MemberID:     "anna",
		JoinDate:     period.NewDate(2025, time.January, 1),
		Contribution: &contribution,
		Interval:     period.Monthly,
	}))
	gate := &gatedMembers{Memory: mem, entered: make(chan struct{}), release: make(chan struct{})}

	s := NewOverdueScheduler(newSchedulerEngine(t, gate, mem), zap.NewNop())
	s.CheckInterval = time.Hour
	s.Start()
	<-gate.entered

	// WHEN: stopping while the sweep is still running
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the running sweep finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate.release)

	// THEN: Stop waits for the sweep and the loop exits cleanly
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.Members)
	assert.Equal(t, 3, last.OverduePeriods, "January to March")

	s.Stop()
}

func TestOverdueScheduler_Disabled(t *testing.T) {
	mem := store.NewMemory()
	s := NewOverdueScheduler(newSchedulerEngine(t, mem, mem), nil)
	s.CheckInterval = 0

	s.Start()
	s.Stop()

	_, ok := s.Last()
	assert.False(t, ok, "disabled scheduler never sweeps")
}

func TestOverdueScheduler_TicksUntilStopped(t *testing.T) {
	mem := store.NewMemory()
	s := NewOverdueScheduler(newSchedulerEngine(t, mem, mem), zap.NewNop())
	s.CheckInterval = 5 * time.Millisecond

	s.Start()
	require.Eventually(t, func() bool {
		_, ok := s.Last()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	last, _ := s.Last()
	assert.Equal(t, 0, last.Members)
}
