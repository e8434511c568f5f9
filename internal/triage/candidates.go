package triage

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OutputFolderPrefix starts the name of every run's output folder.
const OutputFolderPrefix = "Selected_Good_"

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// Candidate is one image eligible for classification.
type Candidate struct {
	Name     string
	Path     string
	DestPath string
}

// IsImage reports whether name has a supported image extension, ignoring case.
func IsImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// OutputFolderName returns the timestamped folder name for a run started at t.
func OutputFolderName(t time.Time) string {
	return OutputFolderPrefix + t.Format("20060102_150405")
}

// readDirUnsorted lists a directory in the order the filesystem returns it.
func readDirUnsorted(name string) ([]os.DirEntry, error) {
	dir, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	return dir.ReadDir(-1)
}

// listCandidates keeps regular image files in listing order. Entries are
// resolved through stat so symlinks to images count as images.
func (p *Pipeline) listCandidates(targetDir, outputDir string) ([]Candidate, error) {
	entries, err := p.readDir(targetDir)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !IsImage(name) {
			continue
		}

		path := filepath.Join(targetDir, name)
		info, err := p.stat(path)
		if err != nil {
			p.logger.Warn("skipping unreadable directory entry", "file", path, "error", err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		candidates = append(candidates, Candidate{
			Name:     name,
			Path:     path,
			DestPath: filepath.Join(outputDir, name),
		})
	}
	return candidates, nil
}
