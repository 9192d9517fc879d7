package scanner

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/types"
)

// ErrScanInProgress is returned by Trigger while another scan is running
var ErrScanInProgress = stderrors.New("a scan is already in progress")

// ErrSchedulerStopped is returned by Trigger when the scheduler is not running
var ErrSchedulerStopped = stderrors.New("scheduler is not running")

// Runner executes a single scan. Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, mode types.ScanMode, cfg models.DetectionConfig) (*models.ScanRun, error)
}

// SchedulerConfig holds configuration for a Scheduler
type SchedulerConfig struct {
	Mode      types.ScanMode
	Interval  time.Duration
	Detection models.DetectionConfig
	// RunOnStart runs a scan immediately instead of waiting for the first tick
	RunOnStart bool
	Logger     *logging.Logger
}

// SchedulerStatus is a point-in-time view of the scheduler
type SchedulerStatus struct {
	Running         bool            `json:"running"`
	Scanning        bool            `json:"scanning"`
	Mode            types.ScanMode  `json:"mode"`
	IntervalSeconds int             `json:"intervalSeconds"`
	LastRun         *models.ScanRun `json:"lastRun,omitempty"`
	LastError       string          `json:"lastError,omitempty"`
}

// Scheduler runs the configured scan every interval. At most one scan runs at
// a time; a tick that arrives while a scan is in flight is skipped.
type Scheduler struct {
	runner     Runner
	mode       types.ScanMode
	interval   time.Duration
	detection  models.DetectionConfig
	runOnStart bool
	logger     *logging.Logger

	mu        sync.RWMutex
	running   bool
	baseCtx   context.Context
	cancel    context.CancelFunc
	stopCh    chan struct{}
	doneCh    chan struct{}
	lastRun   *models.ScanRun
	lastError error

	scanning atomic.Bool
	scans    sync.WaitGroup
}

// NewScheduler creates a scheduler
func NewScheduler(runner Runner, cfg SchedulerConfig) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	mode, ok := types.ParseScanMode(string(cfg.Mode))
	if !ok {
		return nil, fmt.Errorf("unknown scan mode %q", cfg.Mode)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	if err := cfg.Detection.Validate(); err != nil {
		return nil, fmt.Errorf("detection config: %w", err)
	}
	return &Scheduler{
		runner:     runner,
		mode:       mode,
		interval:   cfg.Interval,
		detection:  cfg.Detection,
		runOnStart: cfg.RunOnStart,
		logger:     logging.OrGlobal(cfg.Logger).WithField("component", "scheduler"),
	}, nil
}

// Start begins the polling loop. Scans run under ctx; cancelling it stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	baseCtx, stopCh, doneCh := s.baseCtx, s.stopCh, s.doneCh
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"mode":     s.mode,
		"interval": s.interval.String(),
	}).Info("Starting scan scheduler")

	go s.pollLoop(baseCtx, stopCh, doneCh)
	return nil
}

// Stop halts the polling loop, cancels an in-flight scan and waits for it to
// record its partial results.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	close(s.stopCh)
	cancel, doneCh := s.cancel, s.doneCh
	s.mu.Unlock()

	s.logger.Info("Stopping scan scheduler")
	cancel()

	waitCh := make(chan struct{})
	go func() {
		<-doneCh
		s.scans.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		s.logger.Info("Scan scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scan scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) pollLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	if s.runOnStart {
		s.tryScan(ctx, s.mode, false)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.tryScan(ctx, s.mode, false)
		}
	}
}

// Trigger starts an ad-hoc scan in the background
func (s *Scheduler) Trigger(mode types.ScanMode) error {
	parsed, ok := types.ParseScanMode(string(mode))
	if !ok {
		return fmt.Errorf("unknown scan mode %q", mode)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return ErrSchedulerStopped
	}
	if !s.tryScan(s.baseCtx, parsed, true) {
		return ErrScanInProgress
	}
	return nil
}

// tryScan runs a scan unless one is in flight. async scans run in their own goroutine.
func (s *Scheduler) tryScan(ctx context.Context, mode types.ScanMode, async bool) bool {
	if !s.scanning.CompareAndSwap(false, true) {
		s.logger.WithField("mode", mode).Info("Scan still in progress, skipping")
		return false
	}
	s.scans.Add(1)
	if async {
		go s.scan(ctx, mode)
	} else {
		s.scan(ctx, mode)
	}
	return true
}

func (s *Scheduler) scan(ctx context.Context, mode types.ScanMode) {
	defer s.scans.Done()
	defer s.scanning.Store(false)

	run, err := s.runner.Run(ctx, mode, s.detection)

	s.mu.Lock()
	if run != nil {
		s.lastRun = run
	}
	s.lastError = err
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).WithField("mode", mode).Error("Scan failed")
	}
}

// Status returns the current scheduler status
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SchedulerStatus{
		Running:         s.running,
		Scanning:        s.scanning.Load(),
		Mode:            s.mode,
		IntervalSeconds: int(s.interval.Seconds()),
		LastRun:         s.lastRun,
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}
