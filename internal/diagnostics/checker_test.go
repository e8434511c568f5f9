package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"photo-triage/internal/domain"
)

func osChecker(lookPath func(string) (string, error)) *Checker {
	return NewCheckerForTests(lookPath, os.Stat, os.MkdirAll, os.CreateTemp, os.Remove)
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "analyzer.py")
	if err := os.WriteFile(script, []byte("print('READY')"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	checker := osChecker(func(name string) (string, error) { return "/usr/bin/" + name, nil })
	report := checker.Run(domain.Settings{
		AnalyzerPath: "python3",
		AnalyzerArgs: []string{script},
		Threshold:    200,
		Mode:         domain.ModeDaemon,
	}, filepath.Join(root, "state"))

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	for _, item := range report.Items {
		if item.Status != domain.DiagnosticStatusPass {
			t.Fatalf("item %s = %s (%s)", item.ID, item.Status, item.Message)
		}
	}
}

// TestCheckerRunReportsFailures validates failure reporting.
func TestCheckerRunReportsFailures(t *testing.T) {
	checker := osChecker(func(string) (string, error) { return "", errors.New("not found") })

	report := checker.Run(domain.Settings{
		AnalyzerPath: "blurcheck",
		Threshold:    0,
		Mode:         "turbo",
	}, "")

	if !report.HasFailures {
		t.Fatal("expected failures")
	}
	assertStatusByID(t, report, "analyzer", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "threshold", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "mode", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "lock_dir", domain.DiagnosticStatusFail)
	if len(report.Failed()) != 4 {
		t.Fatalf("failed = %+v", report.Failed())
	}
}

// TestCheckerAnalyzerPathChecks covers explicit file paths.
func TestCheckerAnalyzerPathChecks(t *testing.T) {
	root := t.TempDir()
	exe := filepath.Join(root, "blurcheck")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write exe: %v", err)
	}
	plain := filepath.Join(root, "plain")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatalf("write plain: %v", err)
	}

	checker := osChecker(func(string) (string, error) {
		t.Fatal("lookPath must not be used for explicit paths")
		return "", nil
	})

	cases := map[string]domain.DiagnosticStatus{
		exe:                           domain.DiagnosticStatusPass,
		plain:                         domain.DiagnosticStatusWarn,
		root:                          domain.DiagnosticStatusFail,
		filepath.Join(root, "absent"): domain.DiagnosticStatusFail,
	}
	for path, want := range cases {
		if got := checker.checkAnalyzer(path).Status; got != want {
			t.Fatalf("checkAnalyzer(%s) = %s, want %s", path, got, want)
		}
	}
}

// TestCheckerMissingScriptWarns checks that a missing script is not fatal.
func TestCheckerMissingScriptWarns(t *testing.T) {
	checker := osChecker(nil)
	item := checker.checkAnalyzerScript([]string{filepath.Join(t.TempDir(), "missing.py")})
	if item.Status != domain.DiagnosticStatusWarn {
		t.Fatalf("status = %s, want warn", item.Status)
	}
	if got := checker.checkAnalyzerScript([]string{"--fast"}).Status; got != domain.DiagnosticStatusPass {
		t.Fatalf("flag argument status = %s", got)
	}
}

// TestCheckerLockDirNotWritable validates write-check failure handling.
func TestCheckerLockDirNotWritable(t *testing.T) {
	checker := NewCheckerForTests(
		nil,
		os.Stat,
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, errors.New("read-only") },
		os.Remove,
	)

	item := checker.checkLockDir("/state")
	if item.Status != domain.DiagnosticStatusFail {
		t.Fatalf("status = %s, want fail", item.Status)
	}
}

func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("%s status = %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic id %s not found", id)
}
