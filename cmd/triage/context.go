package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"photo-triage/internal/config"
	"photo-triage/internal/domain"
	"photo-triage/internal/jobs"
	"photo-triage/internal/logging"
	"photo-triage/internal/runlock"
	"photo-triage/internal/triage"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	settingsOnce sync.Once
	store        *config.TOMLStore
	settings     domain.Settings
	settingsErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureSettings() (domain.Settings, error) {
	c.settingsOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.store = config.NewTOMLStore(path)
		c.settings, c.settingsErr = c.store.Load()
	})
	return c.settings, c.settingsErr
}

// stateDir holds the run lock next to the settings file.
func (c *commandContext) stateDir() string {
	_, _ = c.ensureSettings()
	return filepath.Dir(c.store.Path())
}

func (c *commandContext) logger(out io.Writer, minLevel string) (*slog.Logger, error) {
	settings, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	level := settings.LogLevel
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		level = *c.logLevelFlag
	} else if minLevel != "" {
		level = minLevel
	}
	return logging.New(logging.Options{Level: level, Format: settings.LogFormat, Output: out})
}

func (c *commandContext) coordinator(logger *slog.Logger) *jobs.Coordinator {
	lockPath := filepath.Join(c.stateDir(), runlock.FileName)
	return jobs.NewCoordinator(triage.NewPipeline(logger), lockPath, logger)
}
