package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mferrill/workherald/internal/metrics"
)

func init() {
	metrics.Init()
}

// fakeLauncher hands out cancellable contexts and records every identity it
// was asked to launch with.
type fakeLauncher struct {
	agents  []string
	cancels []context.CancelFunc
	err     error
}

func (f *fakeLauncher) launch(agent string) (context.Context, context.CancelFunc, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.agents = append(f.agents, agent)
	ctx, cancel := context.WithCancel(context.Background())
	f.cancels = append(f.cancels, cancel)
	return ctx, cancel, nil
}

func newTestPool(t *testing.T, cfg Config, launcher *fakeLauncher) *Pool {
	t.Helper()
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = time.Hour
	}
	p := New(cfg, zap.NewNop())
	p.launch = launcher.launch
	t.Cleanup(p.Shutdown)
	return p
}

func TestAcquireLaunchesLazily(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	p := newTestPool(t, Config{MaxUses: 3}, launcher)
	require.Empty(t, launcher.agents, "no launch before first acquire")

	session, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Len(t, launcher.agents, 1)
	require.Equal(t, launcher.agents[0], session.Agent())
}

func TestAcquireRecyclesAtUseCeiling(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	p := newTestPool(t, Config{MaxUses: 3}, launcher)

	for range 3 {
		_, err := p.Acquire(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, launcher.agents, 1)

	// The acquisition past the ceiling replaces the session even though the
	// prior one is healthy; the new identity is observable.
	session, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Len(t, launcher.agents, 2)
	require.Equal(t, launcher.agents[1], session.Agent())
}

func TestAcquireReplacesDeadSession(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	p := newTestPool(t, Config{MaxUses: 10}, launcher)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	// Simulate a browser crash: the session context finishes.
	launcher.cancels[0]()

	_, err = p.Acquire(context.Background())
	require.NoError(t, err)
	require.Len(t, launcher.agents, 2)
}

func TestAcquireRotatesIdentity(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	p := newTestPool(t, Config{MaxUses: 1, UserAgents: []string{"agent-a", "agent-b"}}, launcher)

	for range 6 {
		_, err := p.Acquire(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, launcher.agents, 6)
	for i := 1; i < len(launcher.agents); i++ {
		require.NotEqual(t, launcher.agents[i-1], launcher.agents[i],
			"consecutive sessions must not share an identity")
	}
}

func TestAcquireToleratesDuplicateIdentityList(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	p := newTestPool(t, Config{MaxUses: 1, UserAgents: []string{"agent-a", "agent-a"}}, launcher)

	// Every configured identity is the same string; recycling must settle on
	// it instead of searching for a different one.
	for range 3 {
		session, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.Equal(t, "agent-a", session.Agent())
	}
	require.Len(t, launcher.agents, 3)
}

func TestFailedLivenessProbeReplacesSession(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	p := newTestPool(t, Config{MaxUses: 10, UserAgents: []string{"agent-a", "agent-b"}}, launcher)
	p.probe = func(context.Context) error { return errors.New("browser unresponsive") }

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.healthCheck()

	// The dead session is gone before the next acquire: a fresh launch
	// happened under a different identity and the old context is canceled.
	require.Len(t, launcher.agents, 2)
	require.Error(t, first.ctx.Err())

	second, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Len(t, launcher.agents, 2, "acquire reuses the proactively recycled session")
	require.Equal(t, launcher.agents[1], second.Agent())
	require.NotEqual(t, first.Agent(), second.Agent())
}

func TestHealthyLivenessProbeLeavesSessionAlone(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	p := newTestPool(t, Config{MaxUses: 10}, launcher)
	p.probe = func(context.Context) error { return nil }

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.healthCheck()

	require.Len(t, launcher.agents, 1)
	require.NoError(t, first.ctx.Err())
}

func TestAcquireLaunchFailurePropagates(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{err: errors.New("no chrome binary")}
	p := newTestPool(t, Config{MaxUses: 3}, launcher)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "launch browser")

	// Failure leaves no dangling reference; a later acquire retries.
	launcher.err = nil
	_, err = p.Acquire(context.Background())
	require.NoError(t, err)
}

func TestAcquireHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	p := newTestPool(t, Config{MaxUses: 3}, launcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, launcher.agents)
}

func TestShutdownClosesSession(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{}
	p := newTestPool(t, Config{MaxUses: 3}, launcher)

	session, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Shutdown()
	require.Error(t, session.ctx.Err(), "shutdown cancels the browser context")
	require.Nil(t, p.browserCtx)
}
