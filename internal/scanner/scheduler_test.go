package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/types"
)

type fakeRunner struct {
	mu      sync.Mutex
	modes   []types.ScanMode
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
}

func newFakeRunner(block bool) *fakeRunner {
	r := &fakeRunner{started: make(chan struct{}, 16)}
	if block {
		r.release = make(chan struct{})
	}
	return r
}

func (f *fakeRunner) Run(ctx context.Context, mode types.ScanMode, cfg models.DetectionConfig) (*models.ScanRun, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	select {
	case f.started <- struct{}{}:
	default:
	}

	status := types.ScanStatusCompleted
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			status = types.ScanStatusCancelled
		}
	}
	return &models.ScanRun{ID: "run", Mode: mode, Status: status}, nil
}

func newTestScheduler(t *testing.T, runner Runner, interval time.Duration, runOnStart bool) *Scheduler {
	t.Helper()
	s, err := NewScheduler(runner, SchedulerConfig{
		Mode:       types.ScanModeRecent,
		Interval:   interval,
		Detection:  models.DefaultDetectionConfig(),
		RunOnStart: runOnStart,
		Logger:     logging.Nop(),
	})
	require.NoError(t, err)
	return s
}

func waitStarted(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not start")
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler(nil, SchedulerConfig{Mode: types.ScanModeRecent, Interval: time.Second, Detection: models.DefaultDetectionConfig()})
	assert.Error(t, err)

	_, err = NewScheduler(newFakeRunner(false), SchedulerConfig{Mode: "bogus", Interval: time.Second, Detection: models.DefaultDetectionConfig()})
	assert.Error(t, err)

	_, err = NewScheduler(newFakeRunner(false), SchedulerConfig{Mode: types.ScanModeRecent, Detection: models.DefaultDetectionConfig()})
	assert.Error(t, err)

	_, err = NewScheduler(newFakeRunner(false), SchedulerConfig{Mode: types.ScanModeRecent, Interval: time.Second})
	assert.Error(t, err, "zero detection config has no price ceiling")
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	runner := newFakeRunner(false)
	s := newTestScheduler(t, runner, 20*time.Millisecond, true)

	require.NoError(t, s.Start(context.Background()))
	waitStarted(t, runner)
	waitStarted(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(2))
	st := s.Status()
	assert.False(t, st.Running)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, types.ScanModeRecent, st.LastRun.Mode)
}

func TestScheduler_StartTwice(t *testing.T) {
	s := newTestScheduler(t, newFakeRunner(false), time.Hour, false)
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Error(t, s.Stop(context.Background()))
}

func TestScheduler_TriggerGuardsInFlightScan(t *testing.T) {
	runner := newFakeRunner(true)
	s := newTestScheduler(t, runner, time.Hour, false)

	assert.ErrorIs(t, s.Trigger(types.ScanModeFull), ErrSchedulerStopped)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Trigger(types.ScanModeFull))
	waitStarted(t, runner)
	assert.True(t, s.Status().Scanning)

	assert.ErrorIs(t, s.Trigger(types.ScanModeTrackedWallets), ErrScanInProgress)
	assert.Error(t, s.Trigger("bogus"))

	close(runner.release)
	require.Eventually(t, func() bool { return !s.Status().Scanning }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Trigger("wallets"))
	waitStarted(t, runner)
	require.NoError(t, s.Stop(context.Background()))

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []types.ScanMode{types.ScanModeFull, types.ScanModeTrackedWallets}, runner.modes)
}

func TestScheduler_StopCancelsInFlightScan(t *testing.T) {
	runner := newFakeRunner(true)
	s := newTestScheduler(t, runner, time.Hour, true)

	require.NoError(t, s.Start(context.Background()))
	waitStarted(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	st := s.Status()
	require.NotNil(t, st.LastRun)
	assert.Equal(t, types.ScanStatusCancelled, st.LastRun.Status)
	assert.False(t, st.Scanning)
}
