package config

import (
	"os"
	"path/filepath"
	"strings"

	"photo-triage/internal/domain"
)

const appDirName = ".photo-triage"

// AppDir returns the per-user state directory holding settings and the run lock.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, appDirName)
}

// DefaultPath returns the settings file location.
func DefaultPath() string {
	return filepath.Join(AppDir(), "settings.toml")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		AnalyzerPath:         "python3",
		AnalyzerArgs:         []string{"analyzer.py"},
		Threshold:            domain.DefaultThreshold,
		Mode:                 domain.ModeDaemon,
		ReadyTimeoutSeconds:  120,
		ShutdownGraceSeconds: 5,
		LogLevel:             "info",
		LogFormat:            "auto",
	}
}

// Normalize fills zero or invalid fields with defaults. Mode and log settings are
// lower-cased; an unknown mode falls back to daemon.
func Normalize(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()

	cfg.AnalyzerPath = strings.TrimSpace(cfg.AnalyzerPath)
	if cfg.AnalyzerPath == "" {
		cfg.AnalyzerPath = def.AnalyzerPath
		if cfg.AnalyzerArgs == nil {
			cfg.AnalyzerArgs = def.AnalyzerArgs
		}
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}

	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch cfg.Mode {
	case domain.ModeDaemon, domain.ModeOneShot, domain.ModeAuto:
	default:
		cfg.Mode = def.Mode
	}

	if cfg.ReadyTimeoutSeconds <= 0 {
		cfg.ReadyTimeoutSeconds = def.ReadyTimeoutSeconds
	}
	if cfg.ShutdownGraceSeconds <= 0 {
		cfg.ShutdownGraceSeconds = def.ShutdownGraceSeconds
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
	return cfg
}
