package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photo-triage/internal/diagnostics"
	"photo-triage/internal/domain"
	"photo-triage/internal/jobs"
	"photo-triage/internal/logging"
	"photo-triage/internal/triage"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
	saved    []domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save records saved settings and makes them the loaded ones.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.saved = append(s.saved, settings)
	s.settings = settings
	return nil
}

// fakePipeline allows injecting custom run behavior per test.
type fakePipeline struct {
	run func(ctx context.Context, req triage.Request) (triage.Summary, error)
}

// Run delegates to injected function.
func (p *fakePipeline) Run(ctx context.Context, req triage.Request) (triage.Summary, error) {
	if p.run == nil {
		return triage.Summary{}, nil
	}
	return p.run(ctx, req)
}

func newTestApp(t *testing.T, pipeline *fakePipeline) (*App, *fakeStore) {
	t.Helper()
	store := &fakeStore{settings: domain.Settings{
		AnalyzerPath: "blurcheck",
		Threshold:    200,
		Mode:         domain.ModeDaemon,
	}}
	return &App{
		Store:    store,
		Runs:     jobs.NewCoordinator(pipeline, "", logging.Discard()),
		stateDir: t.TempDir(),
		logger:   logging.Discard(),
	}, store
}

// TestStartRunEnforcesSingleActiveRun checks the single-run guard.
func TestStartRunEnforcesSingleActiveRun(t *testing.T) {
	app, _ := newTestApp(t, &fakePipeline{run: func(ctx context.Context, req triage.Request) (triage.Summary, error) {
		<-ctx.Done()
		req.OnEvent(domain.ErrorEvent("run cancelled"))
		return triage.Summary{}, &triage.RunError{Kind: triage.KindCancelled, Message: "run cancelled", Err: ctx.Err()}
	}})

	if _, err := app.StartRun("/photos", 0); err != nil {
		t.Fatalf("start first run: %v", err)
	}
	if _, err := app.StartRun("/photos-2", 0); !errors.Is(err, jobs.ErrRunAlreadyActive) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrRunAlreadyActive)
	}

	if err := app.CancelRun(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForStatus(t, app, domain.RunStatusCancelled)
	waitForEventType(t, app, domain.EventError)
}

// TestStartRunRecordsProgressEvents checks event flow through the coordinator.
func TestStartRunRecordsProgressEvents(t *testing.T) {
	var got triage.Request
	app, _ := newTestApp(t, &fakePipeline{run: func(_ context.Context, req triage.Request) (triage.Summary, error) {
		got = req
		req.OnEvent(domain.StartEvent(1))
		req.OnState(domain.RunStatusDispatching)
		req.OnEvent(domain.ProgressEvent{Type: domain.EventProgress, Current: 1, FileName: "a.jpg", Keep: true})
		req.OnState(domain.RunStatusDraining)
		req.OnEvent(domain.DoneEvent())
		return triage.Summary{Total: 1, Processed: 1, Kept: 1}, nil
	}})

	run, err := app.StartRun("/photos", 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.Status != domain.RunStatusBooting || run.ID == "" {
		t.Fatalf("run = %+v", run)
	}

	waitForStatus(t, app, domain.RunStatusDone)
	waitForEventType(t, app, domain.EventDone)

	if got.Threshold != 200 {
		t.Fatalf("threshold = %v, want configured 200", got.Threshold)
	}
	if current := app.CurrentRun(); current.Kept != 1 || current.Total != 1 {
		t.Fatalf("current = %+v", current)
	}
	if events := app.RunEvents(0); len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	if events := app.RunEvents(2); len(events) != 1 || events[0].Event.Type != domain.EventDone {
		t.Fatalf("events since 2 = %+v", events)
	}
}

// TestStartRunUsesExplicitThreshold checks caller threshold wins.
func TestStartRunUsesExplicitThreshold(t *testing.T) {
	thresholds := make(chan float64, 1)
	app, _ := newTestApp(t, &fakePipeline{run: func(_ context.Context, req triage.Request) (triage.Summary, error) {
		thresholds <- req.Threshold
		return triage.Summary{}, nil
	}})

	if _, err := app.StartRun("/photos", 75); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case got := <-thresholds:
		if got != 75 {
			t.Fatalf("threshold = %v, want 75", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline not invoked")
	}
}

// TestCancelRunWithoutActiveRun reports the idle state.
func TestCancelRunWithoutActiveRun(t *testing.T) {
	app, _ := newTestApp(t, &fakePipeline{})
	if err := app.CancelRun(); !errors.Is(err, jobs.ErrNoActiveRun) {
		t.Fatalf("cancel error = %v, want %v", err, jobs.ErrNoActiveRun)
	}
}

// TestSaveSettingsNormalizesAndRefreshesDiagnostics checks persistence path.
func TestSaveSettingsNormalizesAndRefreshesDiagnostics(t *testing.T) {
	app, store := newTestApp(t, &fakePipeline{})
	app.checker = diagnostics.NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.Stat, os.MkdirAll, os.CreateTemp, os.Remove,
	)

	saved, err := app.SaveSettings(domain.Settings{AnalyzerPath: " blurcheck ", Mode: "AUTO"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.AnalyzerPath != "blurcheck" || saved.Mode != domain.ModeAuto || saved.Threshold != 200 {
		t.Fatalf("saved = %+v", saved)
	}
	if len(store.saved) != 1 {
		t.Fatalf("store saves = %d", len(store.saved))
	}
	if report := app.GetDiagnostics(); report.HasFailures || len(report.Items) == 0 {
		t.Fatalf("report = %+v", report)
	}
}

// TestOpenOutputFolderRequiresPath checks the empty-path guard.
func TestOpenOutputFolderRequiresPath(t *testing.T) {
	app, _ := newTestApp(t, &fakePipeline{})
	if err := app.OpenOutputFolder(""); err == nil {
		t.Fatal("expected error without output path")
	}
	if err := app.OpenOutputFolder(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing path")
	}
}

// TestPickFolderRequiresRuntime checks dialogs fail before startup.
func TestPickFolderRequiresRuntime(t *testing.T) {
	app, _ := newTestApp(t, &fakePipeline{})
	if _, err := app.PickFolder(); err == nil {
		t.Fatal("expected runtime context error")
	}
}

// waitForStatus polls until the run reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.RunStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentRun().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentRun().Status, want)
}

// waitForEventType polls until an event of given type is recorded.
func waitForEventType(t *testing.T, app *App, want domain.EventType) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, event := range app.RunEvents(0) {
			if event.Event.Type == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event type %s not found", want)
}
