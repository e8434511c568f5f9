package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"photo-triage/internal/domain"
)

// Checker validates the analyzer command, run settings and the lock directory.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings, lockDir string) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkAnalyzer(settings.AnalyzerPath),
		c.checkAnalyzerScript(settings.AnalyzerArgs),
		checkThreshold(settings.Threshold),
		checkMode(settings.Mode),
		c.checkLockDir(lockDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkAnalyzer resolves the analyzer executable. Bare names go through PATH;
// anything with a separator is treated as a file path.
func (c *Checker) checkAnalyzer(path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "analyzer",
		Name: "Analyzer executable",
	}

	path = strings.TrimSpace(path)
	if path == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Analyzer path is empty."
		item.Hint = "Set analyzer_path in settings to the image analysis program."
		return item
	}

	if !strings.ContainsRune(path, filepath.Separator) && !strings.ContainsRune(path, '/') {
		resolved, err := c.lookPath(path)
		if err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Analyzer not found in PATH: %s", path)
			item.Hint = "Install it or set analyzer_path to an absolute path."
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", resolved)
		return item
	}

	info, err := c.stat(path)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if IsNotExist(err) {
			item.Message = fmt.Sprintf("Analyzer does not exist: %s", path)
		} else {
			item.Message = fmt.Sprintf("Cannot access analyzer: %s", path)
		}
		item.Hint = "Check analyzer_path in settings."
		return item
	}
	if info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Analyzer path is a directory: %s", path)
		item.Hint = "Point analyzer_path at the executable itself."
		return item
	}
	if info.Mode().Perm()&0o111 == 0 {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Analyzer is not marked executable: %s", path)
		item.Hint = "Run chmod +x on the analyzer or launch it through an interpreter."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkAnalyzerScript stats the first analyzer argument when it names a script file.
func (c *Checker) checkAnalyzerScript(args []string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "analyzer_script",
		Name: "Analyzer script",
	}

	if len(args) == 0 || strings.HasPrefix(args[0], "-") || filepath.Ext(args[0]) == "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "No analyzer script argument configured."
		return item
	}

	if _, err := c.stat(args[0]); err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Analyzer script not found: %s", args[0])
		item.Hint = "Relative script paths resolve against the working directory of the run."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Script found: %s", args[0])
	return item
}

func checkThreshold(threshold float64) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "threshold", Name: "Blur threshold"}
	if threshold <= 0 {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Threshold must be positive, got %g.", threshold)
		item.Hint = fmt.Sprintf("The usual value is %g.", domain.DefaultThreshold)
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Threshold %g", threshold)
	return item
}

func checkMode(mode string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "mode", Name: "Analyzer mode"}
	switch mode {
	case domain.ModeDaemon, domain.ModeOneShot, domain.ModeAuto:
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Mode %s", mode)
	default:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Unknown analyzer mode: %q", mode)
		item.Hint = "Use daemon, oneshot or auto."
	}
	return item
}

// checkLockDir validates the run lock directory existence and write access.
func (c *Checker) checkLockDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "lock_dir",
		Name: "State directory",
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "State directory is empty."
		item.Hint = "Ensure HOME is set so settings and the run lock have a home."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create state directory: %s", dir)
		item.Hint = "Adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("State directory is not writable: %s", dir)
		item.Hint = "The run lock cannot be taken without write access."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
