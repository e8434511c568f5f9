package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"photo-triage/internal/config"
	"photo-triage/internal/diagnostics"
	"photo-triage/internal/domain"
	"photo-triage/internal/jobs"
	"photo-triage/internal/logging"
	"photo-triage/internal/runlock"
	"photo-triage/internal/triage"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ProcessUpdateEvent is the runtime event name carrying run progress.
const ProcessUpdateEvent = "process:update"

// App wires configuration, the run coordinator, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Runs        *jobs.Coordinator
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	stateDir    string
	logger      *slog.Logger

	mu         sync.Mutex
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	stateDir := config.AppDir()
	if err := ensureLocalBinOnPATH(stateDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewTOMLStore(filepath.Join(stateDir, "settings.toml"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	logger, err := logging.New(logging.Options{Level: settings.LogLevel, Format: settings.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings, stateDir)

	return &App{
		Settings:    settings,
		Store:       store,
		Runs:        jobs.NewCoordinator(triage.NewPipeline(logger), filepath.Join(stateDir, runlock.FileName), logger),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		stateDir:    stateDir,
		logger:      logger,
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Photo Triage",
		Width:       1000,
		Height:      720,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			_ = a.Runs.Cancel()
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// PickFolder opens a native directory picker for the photo folder.
func (a *App) PickFolder() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select the folder with the event photos",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or the current run's output folder) in the file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.Runs.Manager.Current().OutputPath
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// StartRun reserves the single run slot and triages targetPath asynchronously.
// A non-positive threshold uses the configured one.
func (a *App) StartRun(targetPath string, threshold float64) (domain.Run, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Run{}, fmt.Errorf("load settings: %w", err)
	}
	if threshold <= 0 {
		threshold = settings.Threshold
	}

	run, err := a.Runs.Begin(targetPath)
	if err != nil {
		return domain.Run{}, err
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	go a.executeRun(run.ID, jobs.RunOptions{
		TargetPath: targetPath,
		Threshold:  threshold,
		Settings:   settings,
		OnEvent:    a.publishEvent,
	})
	return run, nil
}

// CancelRun cancels the active run, if any.
func (a *App) CancelRun() error {
	return a.Runs.Cancel()
}

// CurrentRun returns current run metadata and status.
func (a *App) CurrentRun() domain.Run {
	return a.Runs.Manager.Current()
}

// RunEvents returns all events with sequence greater than sinceSeq.
func (a *App) RunEvents(sinceSeq int64) []jobs.Event {
	return a.Runs.Events.Since(sinceSeq)
}

func (a *App) executeRun(runID string, opts jobs.RunOptions) {
	summary, err := a.Runs.Execute(context.Background(), runID, opts)
	if err != nil {
		a.logger.Info("desktop run ended with error", "run_id", runID, "error", err)
		return
	}
	a.logger.Info("desktop run finished", "run_id", runID, "kept", summary.Kept, "total", summary.Total)
}

// publishEvent emits runtime push notifications for recorded events.
func (a *App) publishEvent(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, ProcessUpdateEvent, event)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
