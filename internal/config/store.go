package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"photo-triage/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// TOMLStore persists settings in a single TOML file on disk.
type TOMLStore struct {
	path string
}

// NewTOMLStore creates a TOML-backed settings store. An empty path uses DefaultPath.
func NewTOMLStore(path string) *TOMLStore {
	if path == "" {
		path = DefaultPath()
	}
	return &TOMLStore{path: path}
}

// Path returns the backing file location.
func (s *TOMLStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing. Keys absent from
// the file are filled in by Normalize.
func (s *TOMLStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return domain.Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var cfg domain.Settings
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return Normalize(cfg), nil
}

// Save writes settings as TOML and creates parent directories.
func (s *TOMLStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	data, err := toml.Marshal(Normalize(cfg))
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}
