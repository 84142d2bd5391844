// Package prefs persists user preferences between runs.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type file struct {
	AudioEnabled *bool `yaml:"audio_enabled,omitempty"`
}

// Store is a small YAML-backed preference file. The zero value of every
// preference applies until it is written.
type Store struct {
	path string

	mu   sync.Mutex
	data file
}

// Load reads path. A missing file yields defaults.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// AudioEnabled reports whether sound was left on. Defaults to true.
func (s *Store) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AudioEnabled == nil || *s.data.AudioEnabled
}

// SetAudioEnabled records the on/off preference and writes the file.
func (s *Store) SetAudioEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.AudioEnabled = &enabled
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
