package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"photo-triage/internal/domain"
	"photo-triage/internal/runlock"
	"photo-triage/internal/triage"
)

// PipelineRunner isolates the triage pipeline behind an interface.
type PipelineRunner interface {
	Run(ctx context.Context, req triage.Request) (triage.Summary, error)
}

// RunOptions carries the per-run inputs chosen by an observer.
type RunOptions struct {
	TargetPath string
	Threshold  float64
	Settings   domain.Settings
	// OnEvent receives every progress event of the run after it is recorded.
	OnEvent func(Event)
}

// Coordinator enforces a single active run per process and, through the run
// lock file, per user. It records run state in a Manager and every progress
// event in an EventBus.
type Coordinator struct {
	Manager *Manager
	Events  *EventBus

	pipeline PipelineRunner
	lockPath string
	newID    func() string
	logger   *slog.Logger

	mu       sync.Mutex
	activeID string
	lock     *runlock.Lock
	cancel   context.CancelFunc
}

// NewCoordinator wires a coordinator. An empty lockPath disables the
// cross-process lock.
func NewCoordinator(pipeline PipelineRunner, lockPath string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		Manager:  NewManager(),
		Events:   NewEventBus(1000),
		pipeline: pipeline,
		lockPath: lockPath,
		newID:    uuid.NewString,
		logger:   logger,
	}
}

// Begin reserves the single active run slot for targetPath.
func (c *Coordinator) Begin(targetPath string) (domain.Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeID != "" {
		return domain.Run{}, ErrRunAlreadyActive
	}

	var lock *runlock.Lock
	if c.lockPath != "" {
		var err error
		lock, err = runlock.Acquire(c.lockPath)
		if err != nil {
			return domain.Run{}, err
		}
	}

	runID := c.newID()
	if err := c.Manager.Start(runID, targetPath); err != nil {
		_ = lock.Release()
		return domain.Run{}, err
	}
	c.activeID = runID
	c.lock = lock
	return c.Manager.Current(), nil
}

// Execute runs the pipeline for a run reserved by Begin and releases the
// reservation when the run ends.
func (c *Coordinator) Execute(ctx context.Context, runID string, opts RunOptions) (triage.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.activeID != runID {
		c.mu.Unlock()
		return triage.Summary{}, ErrNoActiveRun
	}
	c.cancel = cancel
	c.mu.Unlock()
	defer c.finish(runID)

	if c.Manager.Current().Status == domain.RunStatusCancelled {
		cancel()
	}

	settings := opts.Settings
	req := triage.Request{
		TargetPath:    opts.TargetPath,
		Threshold:     opts.Threshold,
		AnalyzerPath:  settings.AnalyzerPath,
		AnalyzerArgs:  settings.AnalyzerArgs,
		Mode:          settings.Mode,
		ReadyTimeout:  settings.ReadyTimeout(),
		ShutdownGrace: settings.ShutdownGrace(),
		OnEvent: func(ev domain.ProgressEvent) {
			c.Manager.Observe(ev)
			published := c.Events.Publish(Event{RunID: runID, Event: ev})
			if opts.OnEvent != nil {
				opts.OnEvent(published)
			}
		},
		OnState: func(status domain.RunStatus) {
			if err := c.Manager.Transition(status); err != nil {
				c.logger.Debug("run state not applied", "run_id", runID, "status", status, "error", err)
			}
		},
		OnOutputFolder: c.Manager.SetOutputPath,
	}

	summary, err := c.pipeline.Run(ctx, req)
	final := domain.RunStatusDone
	if err != nil {
		final = domain.RunStatusFailed
		var runErr *triage.RunError
		if errors.As(err, &runErr) && runErr.Kind == triage.KindCancelled {
			final = domain.RunStatusCancelled
		}
	} else {
		_ = c.Manager.Transition(domain.RunStatusDraining)
	}
	if terr := c.Manager.Transition(final); terr != nil {
		c.logger.Debug("final run state not applied", "run_id", runID, "status", final, "error", terr)
	}
	return summary, err
}

// Run reserves and executes a run in one call. A rejected reservation is
// reported to opts.OnEvent as an error event before it is returned.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions) (triage.Summary, error) {
	run, err := c.Begin(opts.TargetPath)
	if err != nil {
		if opts.OnEvent != nil {
			opts.OnEvent(Event{Event: domain.ErrorEvent(err.Error())})
		}
		return triage.Summary{}, err
	}
	return c.Execute(ctx, run.ID, opts)
}

// Cancel stops the active run. The pipeline observes the cancellation at its
// next blocking point and shuts the worker down.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	cancel := c.cancel
	active := c.activeID != ""
	c.mu.Unlock()

	if !active {
		return ErrNoActiveRun
	}
	if cancel != nil {
		cancel()
	}
	if err := c.Manager.Cancel(); err != nil && !errors.Is(err, ErrNoActiveRun) {
		return err
	}
	return nil
}

func (c *Coordinator) finish(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID != runID {
		return
	}
	if err := c.lock.Release(); err != nil {
		c.logger.Warn("release run lock failed", "path", c.lockPath, "error", err)
	}
	c.activeID = ""
	c.lock = nil
	c.cancel = nil
}
