package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is the app and per-user settings table the engine reads its
// switches from. Writes are visible to subsequent reads immediately.
type Store interface {
	GetAppValue(app, key, def string) string
	SetAppValue(app, key, value string) error
	GetUserValue(uid, app, key, def string) string
	SetUserValue(uid, app, key, value string) error
}

type storeState struct {
	App  map[string]map[string]string            `yaml:"app"`
	User map[string]map[string]map[string]string `yaml:"user"`
}

// MemoryStore is a Store held in memory, optionally persisted to a YAML
// state file on every write.
type MemoryStore struct {
	mu    sync.RWMutex
	state storeState
	path  string
}

// NewMemoryStore creates an empty settings store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: storeState{
			App:  make(map[string]map[string]string),
			User: make(map[string]map[string]map[string]string),
		},
	}
}

// NewStoreFromConfig builds a settings store seeded with the engine
// switches from cfg. When cfg.StateFile is set, previously persisted
// values are loaded on top of the seed and writes are persisted back.
func NewStoreFromConfig(cfg *Config) (*MemoryStore, error) {
	s := NewMemoryStore()
	s.seedLocked("core", "encryption_enabled", boolValue(cfg.Encryption.Enabled))
	s.seedLocked("encryption", "installed", boolValue(cfg.Encryption.Installed))
	if cfg.Encryption.KeyStorageRoot != "" {
		s.seedLocked("core", "encryption.key_storage_root", cfg.Encryption.KeyStorageRoot)
	}

	if cfg.StateFile != "" {
		s.path = cfg.StateFile
		data, err := os.ReadFile(cfg.StateFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read state file: %w", err)
		}
		if len(data) > 0 {
			var persisted storeState
			if err := yaml.Unmarshal(data, &persisted); err != nil {
				return nil, fmt.Errorf("failed to parse state file: %w", err)
			}
			s.mergeLocked(persisted)
		}
	}
	return s, nil
}

func boolValue(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (s *MemoryStore) seedLocked(app, key, value string) {
	if s.state.App[app] == nil {
		s.state.App[app] = make(map[string]string)
	}
	s.state.App[app][key] = value
}

func (s *MemoryStore) mergeLocked(in storeState) {
	for app, kv := range in.App {
		for k, v := range kv {
			s.seedLocked(app, k, v)
		}
	}
	for uid, apps := range in.User {
		for app, kv := range apps {
			for k, v := range kv {
				s.setUserLocked(uid, app, k, v)
			}
		}
	}
}

func (s *MemoryStore) setUserLocked(uid, app, key, value string) {
	if s.state.User[uid] == nil {
		s.state.User[uid] = make(map[string]map[string]string)
	}
	if s.state.User[uid][app] == nil {
		s.state.User[uid][app] = make(map[string]string)
	}
	s.state.User[uid][app][key] = value
}

func (s *MemoryStore) GetAppValue(app, key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kv, ok := s.state.App[app]; ok {
		if v, ok := kv[key]; ok {
			return v
		}
	}
	return def
}

func (s *MemoryStore) SetAppValue(app, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seedLocked(app, key, value)
	return s.persistLocked()
}

func (s *MemoryStore) GetUserValue(uid, app, key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if apps, ok := s.state.User[uid]; ok {
		if kv, ok := apps[app]; ok {
			if v, ok := kv[key]; ok {
				return v
			}
		}
	}
	return def
}

func (s *MemoryStore) SetUserValue(uid, app, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setUserLocked(uid, app, key, value)
	return s.persistLocked()
}

func (s *MemoryStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
