package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"photo-triage/internal/domain"
)

// ErrRunAlreadyActive is returned when starting a second active run.
var ErrRunAlreadyActive = errors.New("a triage run is already active")

// ErrNoActiveRun is returned when cancel is requested for idle state.
var ErrNoActiveRun = errors.New("no active run")

// Manager tracks the single allowed active run and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Run
	now     func() time.Time
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Run{
			Status: domain.RunStatusIdle,
		},
		now: time.Now,
	}
}

// Start registers a new run over targetPath and moves it to booting state.
func (m *Manager) Start(runID, targetPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isActive(m.current.Status) {
		return ErrRunAlreadyActive
	}

	m.current = domain.Run{
		ID:         runID,
		Status:     domain.RunStatusBooting,
		TargetPath: targetPath,
		StartedAt:  m.now(),
	}
	return nil
}

// Transition validates and applies state transitions for the current run.
func (m *Manager) Transition(status domain.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.RunStatusIdle {
		return fmt.Errorf("cannot transition without an active run")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Observe folds one progress event into the current run's counters.
func (m *Manager) Observe(ev domain.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case domain.EventStart:
		m.current.Total = ev.Total
	case domain.EventProgress:
		m.current.Processed = ev.Current
		if ev.Keep {
			m.current.Kept++
		}
	}
}

// SetOutputPath records where the current run copies kept files.
func (m *Manager) SetOutputPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.OutputPath = path
}

// Current returns a snapshot of the current run.
func (m *Manager) Current() domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears run metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Run{Status: domain.RunStatusIdle}
}

// IsActive reports whether the current state is an active stage.
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.Status)
}

// Cancel moves an active run to cancelled state.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isActive(m.current.Status) {
		return ErrNoActiveRun
	}
	m.current.Status = domain.RunStatusCancelled
	return nil
}

// isActive checks if a status represents an unfinished run.
func isActive(status domain.RunStatus) bool {
	switch status {
	case domain.RunStatusBooting, domain.RunStatusDispatching, domain.RunStatusDraining:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed run state machine edges.
func isValidTransition(from, to domain.RunStatus) bool {
	switch from {
	case domain.RunStatusIdle:
		return to == domain.RunStatusBooting
	case domain.RunStatusBooting:
		return to == domain.RunStatusDispatching || to == domain.RunStatusDraining ||
			to == domain.RunStatusFailed || to == domain.RunStatusCancelled
	case domain.RunStatusDispatching:
		return to == domain.RunStatusDraining || to == domain.RunStatusFailed || to == domain.RunStatusCancelled
	case domain.RunStatusDraining:
		return to == domain.RunStatusDone || to == domain.RunStatusFailed || to == domain.RunStatusCancelled
	case domain.RunStatusDone, domain.RunStatusFailed, domain.RunStatusCancelled:
		return to == domain.RunStatusBooting || to == domain.RunStatusIdle
	default:
		return false
	}
}
