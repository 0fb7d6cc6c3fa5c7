package config

import (
	"context"
	"reflect"
	"sync"
)

// AppConfigStore holds the active application configuration and lets long-running commands
// pick up edits without a restart.
type AppConfigStore struct {
	mu       sync.RWMutex
	cfg      AppConfig
	path     string
	onChange func(AppConfig) error
}

// NewAppConfigStore constructs a store seeded with initial. path is re-read by Reload; onChange,
// when set, is invoked with every accepted snapshot that differs from the current one.
func NewAppConfigStore(initial AppConfig, path string, onChange func(AppConfig) error) (*AppConfigStore, error) {
	clone := initial.Clone()
	if err := clone.normalise(); err != nil {
		return nil, err
	}
	if err := clone.Validate(); err != nil {
		return nil, err
	}
	return &AppConfigStore{mu: sync.RWMutex{}, cfg: clone, path: path, onChange: onChange}, nil
}

// Snapshot returns a deep copy of the current configuration.
func (s *AppConfigStore) Snapshot() AppConfig {
	if s == nil {
		return DefaultAppConfig()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Replace swaps the whole configuration. Invalid snapshots are rejected and leave the store
// untouched; unchanged snapshots do not trigger onChange.
func (s *AppConfigStore) Replace(cfg AppConfig) (bool, error) {
	if s == nil {
		return false, nil
	}
	updated := cfg.Clone()
	if err := updated.normalise(); err != nil {
		return false, err
	}
	if err := updated.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if reflect.DeepEqual(s.cfg, updated) {
		return false, nil
	}
	if s.onChange != nil {
		if err := s.onChange(updated.Clone()); err != nil {
			return false, err
		}
	}
	s.cfg = updated
	return true, nil
}

// Reload re-reads the backing file. Stores created without a path keep their snapshot.
func (s *AppConfigStore) Reload(ctx context.Context) (bool, error) {
	if s == nil || s.path == "" {
		return false, nil
	}
	cfg, err := Load(ctx, s.path)
	if err != nil {
		return false, err
	}
	return s.Replace(cfg)
}
