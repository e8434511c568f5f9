package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"photo-triage/internal/config"
	"photo-triage/internal/domain"
)

// FixDiagnostic applies a remediation for one failed or warning diagnostic item.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	settingsChanged := false
	var fixErr error
	defaults := config.DefaultSettings()

	switch id {
	case "analyzer":
		settings, settingsChanged, fixErr = fixAnalyzer(settings)
	case "threshold":
		settings.Threshold = defaults.Threshold
		settingsChanged = true
	case "mode":
		settings.Mode = defaults.Mode
		settingsChanged = true
	case "lock_dir":
		fixErr = os.MkdirAll(a.stateDir, 0o755)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings, a.stateDir)
	}
	return a.Diagnostics
}

// fixAnalyzer marks an explicit analyzer file executable, or restores the
// default interpreter command when no analyzer is configured.
func fixAnalyzer(settings domain.Settings) (domain.Settings, bool, error) {
	path := strings.TrimSpace(settings.AnalyzerPath)
	if path == "" {
		defaults := config.DefaultSettings()
		settings.AnalyzerPath = defaults.AnalyzerPath
		settings.AnalyzerArgs = defaults.AnalyzerArgs
		return settings, true, nil
	}
	if !strings.ContainsRune(path, '/') && !strings.ContainsRune(path, filepath.Separator) {
		return settings, false, fmt.Errorf("%s is resolved through PATH; install it or place it in %s", path, localBinDir(config.AppDir()))
	}

	info, err := os.Stat(path)
	if err != nil {
		return settings, false, fmt.Errorf("stat analyzer: %w", err)
	}
	if info.IsDir() {
		return settings, false, fmt.Errorf("analyzer path %s is a directory", path)
	}
	if err := os.Chmod(path, info.Mode().Perm()|0o111); err != nil {
		return settings, false, fmt.Errorf("mark analyzer executable: %w", err)
	}
	return settings, false, nil
}

// ensureLocalBinOnPATH prepends the per-user bin directory so analyzers
// dropped there resolve by name.
func ensureLocalBinOnPATH(stateDir string) error {
	binDir := localBinDir(stateDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(stateDir string) string {
	return filepath.Join(stateDir, "bin")
}
