package jobs

import (
	"testing"

	"photo-triage/internal/domain"
)

// TestManagerLifecycle verifies normal progression to done state.
func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if m.IsActive() {
		t.Fatal("new manager should be idle")
	}

	if err := m.Start("run-1", "/photos"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.IsActive() {
		t.Fatal("expected active after start")
	}

	for _, status := range []domain.RunStatus{
		domain.RunStatusDispatching,
		domain.RunStatusDraining,
		domain.RunStatusDone,
	} {
		if err := m.Transition(status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	current := m.Current()
	if current.Status != domain.RunStatusDone || current.TargetPath != "/photos" {
		t.Fatalf("current = %+v", current)
	}
	if m.IsActive() {
		t.Fatal("done run should not be active")
	}
}

// TestManagerRejectsSecondStart checks the single-active-run guard.
func TestManagerRejectsSecondStart(t *testing.T) {
	m := NewManager()
	if err := m.Start("run-1", "/a"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start("run-2", "/b"); err != ErrRunAlreadyActive {
		t.Fatalf("second start error = %v, want %v", err, ErrRunAlreadyActive)
	}
	if m.Current().ID != "run-1" {
		t.Fatalf("current run replaced: %+v", m.Current())
	}

	if err := m.Transition(domain.RunStatusFailed); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := m.Start("run-2", "/b"); err != nil {
		t.Fatalf("start after terminal state: %v", err)
	}
}

// TestManagerRejectsInvalidTransition checks state machine constraints.
func TestManagerRejectsInvalidTransition(t *testing.T) {
	m := NewManager()
	if err := m.Start("run-1", "/a"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := m.Transition(domain.RunStatusDone); err == nil {
		t.Fatal("expected invalid transition error")
	}
	if err := NewManager().Transition(domain.RunStatusDispatching); err == nil {
		t.Fatal("expected error without an active run")
	}
}

// TestManagerObserveCountsProgress checks counters follow events.
func TestManagerObserveCountsProgress(t *testing.T) {
	m := NewManager()
	if err := m.Start("run-1", "/a"); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.SetOutputPath("/a/Selected_Good_20260101_000000")
	m.Observe(domain.StartEvent(3))
	m.Observe(domain.ProgressEvent{Type: domain.EventProgress, Current: 1, Keep: true})
	m.Observe(domain.ProgressEvent{Type: domain.EventProgress, Current: 2})

	run := m.Current()
	if run.Total != 3 || run.Processed != 2 || run.Kept != 1 || run.OutputPath == "" {
		t.Fatalf("run = %+v", run)
	}
}

// TestManagerCancel verifies cancel behavior and repeated cancel handling.
func TestManagerCancel(t *testing.T) {
	m := NewManager()
	if err := m.Start("run-1", "/a"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := m.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if m.Current().Status != domain.RunStatusCancelled {
		t.Fatalf("status = %s, want cancelled", m.Current().Status)
	}

	if err := m.Cancel(); err != ErrNoActiveRun {
		t.Fatalf("second cancel error = %v, want %v", err, ErrNoActiveRun)
	}
}
