package domain

import "time"

// RunStatus tracks the dispatch state of a single triage run.
type RunStatus string

const (
	RunStatusIdle        RunStatus = "idle"
	RunStatusBooting     RunStatus = "booting"
	RunStatusDispatching RunStatus = "dispatching"
	RunStatusDraining    RunStatus = "draining"
	RunStatusDone        RunStatus = "done"
	RunStatusFailed      RunStatus = "failed"
	RunStatusCancelled   RunStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected for this run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusDone, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Analyzer modes.
const (
	ModeDaemon  = "daemon"
	ModeOneShot = "oneshot"
	ModeAuto    = "auto"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	AnalyzerPath         string   `json:"analyzerPath" toml:"analyzer_path"`
	AnalyzerArgs         []string `json:"analyzerArgs" toml:"analyzer_args"`
	Threshold            float64  `json:"threshold" toml:"threshold"`
	Mode                 string   `json:"mode" toml:"mode"`
	ReadyTimeoutSeconds  int      `json:"readyTimeoutSeconds" toml:"ready_timeout_seconds"`
	ShutdownGraceSeconds int      `json:"shutdownGraceSeconds" toml:"shutdown_grace_seconds"`
	LogLevel             string   `json:"logLevel" toml:"log_level"`
	LogFormat            string   `json:"logFormat" toml:"log_format"`
}

// ReadyTimeout returns the readiness wait as a duration.
func (s Settings) ReadyTimeout() time.Duration {
	return time.Duration(s.ReadyTimeoutSeconds) * time.Second
}

// ShutdownGrace returns how long a worker may take to exit after the shutdown token.
func (s Settings) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownGraceSeconds) * time.Second
}

// Run stores the identity and lifecycle status of the active triage run.
type Run struct {
	ID         string    `json:"id"`
	Status     RunStatus `json:"status"`
	TargetPath string    `json:"targetPath,omitempty"`
	OutputPath string    `json:"outputPath,omitempty"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Kept       int       `json:"kept"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

// DefaultThreshold is the blur threshold used when none is supplied.
const DefaultThreshold = 200.0
