package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"photo-triage/internal/domain"
	"photo-triage/internal/worker"
	"photo-triage/internal/workerproto"
)

const (
	// DaemonFlag is appended to the analyzer arguments in persistent mode.
	DaemonFlag = "--daemon"

	maxOutputFolderAttempts = 100
)

// Request describes one run over one target folder.
type Request struct {
	TargetPath    string
	Threshold     float64
	AnalyzerPath  string
	AnalyzerArgs  []string
	Mode          string
	ReadyTimeout  time.Duration
	ShutdownGrace time.Duration
	// OnEvent receives start, progress, error and done events in order.
	OnEvent func(domain.ProgressEvent)
	// OnState receives booting, dispatching and draining transitions.
	OnState func(domain.RunStatus)
	// OnOutputFolder receives the created output folder before dispatch.
	OnOutputFolder func(path string)
}

// Summary reports what a run did, including partial runs that ended in error.
type Summary struct {
	TargetPath string `json:"targetPath"`
	OutputPath string `json:"outputPath"`
	Mode       string `json:"mode"`
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Kept       int    `json:"kept"`
}

// workerHandle is the part of *worker.Process the pipeline drives.
type workerHandle interface {
	AwaitReady(ctx context.Context, timeout time.Duration) error
	Send(value any) error
	Next(ctx context.Context) (string, error)
	Exited() <-chan struct{}
	Status() worker.ExitStatus
	Shutdown(grace time.Duration) error
}

// Pipeline walks a folder's candidate images and classifies them one at a
// time through an analyzer worker.
type Pipeline struct {
	spawn    func(spec worker.Spec, logger *slog.Logger) (workerHandle, error)
	runner   worker.Runner
	readDir  func(name string) ([]os.DirEntry, error)
	stat     func(name string) (os.FileInfo, error)
	mkdir    func(name string, perm os.FileMode) error
	remove   func(name string) error
	copyFile func(src, dst string) error
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// NewPipeline constructs the production pipeline with OS dependencies.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		spawn: func(spec worker.Spec, logger *slog.Logger) (workerHandle, error) {
			proc, err := worker.Start(spec, logger)
			if err != nil {
				return nil, err
			}
			return proc, nil
		},
		runner:   worker.ExecRunner{},
		readDir:  readDirUnsorted,
		stat:     os.Stat,
		mkdir:    os.Mkdir,
		remove:   os.Remove,
		copyFile: copyFile,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger,
	}
}

// Run executes one run. Events are delivered to req.OnEvent as they occur;
// on failure the returned error is a *RunError whose message was also emitted
// as the terminal error event.
func (p *Pipeline) Run(ctx context.Context, req Request) (Summary, error) {
	progress := newProgressChannel(req.OnEvent, p.logger)

	summary, err := p.run(ctx, req, progress)
	if err != nil {
		var runErr *RunError
		if !errors.As(err, &runErr) {
			runErr = runError(KindWorkerCrashed, "run failed unexpectedly", err)
		}
		p.logger.Error("run failed",
			"target", req.TargetPath,
			"kind", runErr.Kind,
			"processed", summary.Processed,
			"total", summary.Total,
			"error", runErr.Err,
		)
		progress.emit(domain.ErrorEvent(runErr.Message))
		return summary, runErr
	}

	progress.emit(domain.DoneEvent())
	p.logger.Info("run finished",
		"target", summary.TargetPath,
		"output", summary.OutputPath,
		"total", summary.Total,
		"kept", summary.Kept,
	)
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, progress *progressChannel) (Summary, error) {
	summary := Summary{Mode: normalizeMode(req.Mode)}

	target, err := p.validateTarget(req.TargetPath)
	if err != nil {
		return summary, err
	}
	summary.TargetPath = target

	outputPath, err := p.createOutputFolder(target)
	if err != nil {
		return summary, runError(KindSetupFailure, "cannot create the output folder, check write permissions", err)
	}

	candidates, err := p.listCandidates(target, outputPath)
	if err != nil {
		_ = p.remove(outputPath)
		return summary, runError(KindSetupFailure, "cannot read the image list", err)
	}
	summary.Total = len(candidates)

	// The worker is ready (or one-shot is chosen) before start is emitted, so
	// a spawn failure produces a lone error event.
	var handle workerHandle
	if len(candidates) > 0 && summary.Mode != domain.ModeOneShot {
		emitState(req.OnState, domain.RunStatusBooting)
		handle, err = p.boot(ctx, req)
		if err != nil {
			var runErr *RunError
			if summary.Mode != domain.ModeAuto || !errors.As(err, &runErr) || runErr.Kind != KindSpawnFailure {
				_ = p.remove(outputPath)
				return summary, err
			}
			p.logger.Warn("persistent analyzer unavailable, falling back to one-shot mode", "error", err)
			summary.Mode = domain.ModeOneShot
		}
	}
	summary.OutputPath = outputPath
	if req.OnOutputFolder != nil {
		req.OnOutputFolder(outputPath)
	}

	p.logger.Info("run started",
		"target", target,
		"output", outputPath,
		"total", len(candidates),
		"mode", summary.Mode,
		"threshold", req.Threshold,
	)
	progress.emit(domain.StartEvent(len(candidates)))
	if len(candidates) == 0 {
		emitState(req.OnState, domain.RunStatusDraining)
		return summary, nil
	}

	applier := &Applier{copyFile: p.copyFile, logger: p.logger}
	record := func(ev domain.ProgressEvent) {
		summary.Processed++
		if ev.Keep {
			summary.Kept++
		}
		progress.emit(ev)
	}

	if handle == nil {
		return summary, p.dispatchOneShot(ctx, req, candidates, applier, record)
	}
	return summary, p.dispatchDaemon(ctx, req, handle, candidates, applier, record)
}

// validateTarget resolves the target to an absolute directory path.
func (p *Pipeline) validateTarget(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", runError(KindInputInvalid, "the target path is empty", nil)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", runError(KindInputInvalid, "the target path cannot be resolved", err)
	}

	info, err := p.stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", runError(KindInputInvalid, "the target path does not exist", err)
		}
		return "", runError(KindInputInvalid, "cannot read the target path attributes", err)
	}
	if !info.IsDir() {
		return "", runError(KindInputInvalid, "the target path is not a folder", nil)
	}
	return abs, nil
}

// createOutputFolder creates the run's timestamped folder, adding a numeric
// suffix when a folder of that name already exists.
func (p *Pipeline) createOutputFolder(target string) (string, error) {
	base := filepath.Join(target, OutputFolderName(p.now()))
	for attempt := 1; attempt <= maxOutputFolderAttempts; attempt++ {
		path := base
		if attempt > 1 {
			path = fmt.Sprintf("%s_%d", base, attempt)
		}
		err := p.mkdir(path, 0o755)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("output folders %s through _%d already exist", base, maxOutputFolderAttempts)
}

// boot spawns the persistent worker and waits for its readiness token.
func (p *Pipeline) boot(ctx context.Context, req Request) (workerHandle, error) {
	spec := worker.Spec{
		Path: req.AnalyzerPath,
		Args: append(append([]string{}, req.AnalyzerArgs...), DaemonFlag),
	}
	handle, err := p.spawn(spec, p.logger)
	if err != nil {
		return nil, runError(KindSpawnFailure, "cannot start the analysis engine", err)
	}

	if err := handle.AwaitReady(ctx, req.ReadyTimeout); err != nil {
		_ = handle.Shutdown(req.ShutdownGrace)
		if ctx.Err() != nil {
			return nil, runError(KindCancelled, "run cancelled", ctx.Err())
		}
		var crash *worker.CrashError
		if errors.As(err, &crash) {
			return nil, runError(KindSpawnFailure,
				fmt.Sprintf("the analysis engine exited before it was ready (exit code %d)", crash.ExitCode), err)
		}
		return nil, runError(KindSpawnFailure, "the analysis engine did not become ready", err)
	}
	return handle, nil
}

// dispatchDaemon sends one request at a time and binds each response line to
// the file in flight. The worker is released on every path.
func (p *Pipeline) dispatchDaemon(
	ctx context.Context,
	req Request,
	handle workerHandle,
	candidates []Candidate,
	applier *Applier,
	record func(domain.ProgressEvent),
) error {
	defer func() {
		if err := handle.Shutdown(req.ShutdownGrace); err != nil {
			p.logger.Warn("worker shutdown failed", "error", err)
		}
	}()

	emitState(req.OnState, domain.RunStatusDispatching)
	for cursor, candidate := range candidates {
		if ctx.Err() != nil {
			return runError(KindCancelled, "run cancelled", ctx.Err())
		}

		requestID := p.newID()
		err := handle.Send(workerproto.Request{
			ID:        requestID,
			File:      candidate.Path,
			Threshold: req.Threshold,
		})
		if err != nil {
			return p.crashError(handle, cursor, len(candidates), err)
		}

		line, err := handle.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return runError(KindCancelled, "run cancelled", ctx.Err())
			}
			return p.crashError(handle, cursor, len(candidates), err)
		}

		resp := p.correlate(line, requestID, candidate)
		record(applier.Apply(cursor+1, candidate, resp))
	}

	emitState(req.OnState, domain.RunStatusDraining)
	return nil
}

// correlate parses the response for the request in flight. Unreadable lines
// and responses echoing another request's id become rejects.
func (p *Pipeline) correlate(line, requestID string, candidate Candidate) workerproto.Response {
	resp, err := workerproto.ParseResponse(line)
	if err != nil {
		p.logger.Warn("malformed analyzer response", "file", candidate.Path, "error", err)
		return workerproto.Response{Reason: "the analysis engine returned an unreadable response"}
	}
	if resp.ID != "" && resp.ID != requestID {
		p.logger.Warn("analyzer response does not match request in flight",
			"file", candidate.Path,
			"request_id", requestID,
			"response_id", resp.ID,
		)
		return workerproto.Response{Reason: "the analysis engine answered a different request"}
	}
	return resp
}

// crashError converts a failed send or read into a worker-crashed error,
// waiting briefly for the exit status when the worker is going away.
func (p *Pipeline) crashError(handle workerHandle, cursor, total int, err error) error {
	var crash *worker.CrashError
	if !errors.As(err, &crash) {
		select {
		case <-handle.Exited():
			status := handle.Status()
			crash = &worker.CrashError{ExitCode: status.Code, Signal: status.Signal}
		case <-time.After(time.Second):
		}
	}
	if crash == nil {
		return runError(KindWorkerCrashed,
			fmt.Sprintf("lost contact with the analysis engine after %d of %d files", cursor, total), err)
	}

	p.logger.Error("analyzer crashed",
		"exit_code", crash.ExitCode,
		"signal", crash.Signal,
		"stderr", crash.Stderr,
	)
	return runError(KindWorkerCrashed,
		fmt.Sprintf("the analysis engine exited unexpectedly (exit code %d) after %d of %d files", crash.ExitCode, cursor, total), err)
}

func normalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case domain.ModeOneShot:
		return domain.ModeOneShot
	case domain.ModeAuto:
		return domain.ModeAuto
	default:
		return domain.ModeDaemon
	}
}

func emitState(cb func(domain.RunStatus), status domain.RunStatus) {
	if cb != nil {
		cb(status)
	}
}
