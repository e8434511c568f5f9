package triage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"photo-triage/internal/domain"
	"photo-triage/internal/worker"
	"photo-triage/internal/workerproto"
)

// fakeWorker emulates a persistent analyzer. It answers requests synchronously
// and can crash after a fixed number of answers, or exit on its own right
// after answering a given request.
type fakeWorker struct {
	t *testing.T

	readyErr   error
	respond    func(n int, req workerproto.Request) string
	crashAfter int
	exitAfter  int
	exitCode   int
	blockOn    int

	mu        sync.Mutex
	spec      worker.Spec
	requests  []workerproto.Request
	inFlight  int
	shutdowns int
	exited    chan struct{}
	closeOnce sync.Once
}

func newFakeWorker(t *testing.T) *fakeWorker {
	return &fakeWorker{
		t:          t,
		crashAfter: -1,
		exitAfter:  -1,
		blockOn:    -1,
		exited:     make(chan struct{}),
		respond: func(n int, req workerproto.Request) string {
			return mustJSON(t, workerproto.Response{ID: req.ID, Keep: true, Reason: "sharp"})
		},
	}
}

// AwaitReady returns the configured readiness error.
func (f *fakeWorker) AwaitReady(ctx context.Context, timeout time.Duration) error {
	return f.readyErr
}

// Send records a request and checks the one-in-flight invariant.
func (f *fakeWorker) Send(value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.exited:
		return worker.ErrWriteFailure
	default:
	}
	req, ok := value.(workerproto.Request)
	if !ok {
		f.t.Fatalf("unexpected frame type %T", value)
	}
	f.inFlight++
	if f.inFlight > 1 {
		f.t.Errorf("request %d sent while another was in flight", len(f.requests)+1)
	}
	f.requests = append(f.requests, req)
	return nil
}

// Next answers the request in flight, or crashes.
func (f *fakeWorker) Next(ctx context.Context) (string, error) {
	f.mu.Lock()
	n := len(f.requests)
	f.mu.Unlock()

	if n-1 == f.blockOn {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.crashAfter >= 0 && n > f.crashAfter {
		f.exit()
		return "", &worker.CrashError{ExitCode: f.exitCode}
	}

	f.mu.Lock()
	req := f.requests[n-1]
	f.inFlight--
	f.mu.Unlock()
	line := f.respond(n, req)
	if n == f.exitAfter {
		f.exit()
	}
	return line, nil
}

// Exited is closed after a crash or shutdown.
func (f *fakeWorker) Exited() <-chan struct{} {
	return f.exited
}

// Status reports the configured exit code.
func (f *fakeWorker) Status() worker.ExitStatus {
	return worker.ExitStatus{Code: f.exitCode}
}

// Shutdown records the release.
func (f *fakeWorker) Shutdown(grace time.Duration) error {
	f.mu.Lock()
	f.shutdowns++
	f.mu.Unlock()
	f.exit()
	return nil
}

func (f *fakeWorker) exit() {
	f.closeOnce.Do(func() { close(f.exited) })
}

// fakeRunner simulates one-shot analyzer invocations.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (worker.CommandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (worker.CommandResult, error) {
	if f.run == nil {
		return worker.CommandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// eventLog collects observer events.
type eventLog struct {
	events []domain.ProgressEvent
}

func (l *eventLog) add(ev domain.ProgressEvent) {
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []domain.EventType {
	out := make([]domain.EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func (l *eventLog) progress() []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for _, ev := range l.events {
		if ev.Type == domain.EventProgress {
			out = append(out, ev)
		}
	}
	return out
}

var fixedNow = time.Date(2026, 3, 7, 9, 5, 3, 0, time.Local)

func newTestPipeline(fw *fakeWorker) *Pipeline {
	p := NewPipeline(slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.spawn = func(spec worker.Spec, _ *slog.Logger) (workerHandle, error) {
		fw.spec = spec
		return fw, nil
	}
	p.now = func() time.Time { return fixedNow }
	return p
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

// listDir returns the names in dir, or nil when it does not exist.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}
