package encryption

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/syncdrive/encryptd/internal/config"
)

// ModuleFactory creates a module instance on demand. Registration is
// cheap, the module only comes to life when a file actually needs it.
type ModuleFactory func() (Module, error)

type moduleEntry struct {
	id          string
	displayName string
	factory     ModuleFactory
}

// Manager is the encryption module registry and the engine's switchboard.
type Manager struct {
	store   config.Store
	util    *Util
	logger  *logrus.Logger
	modules map[string]moduleEntry
}

// NewManager creates a module registry.
func NewManager(store config.Store, util *Util, logger *logrus.Logger) *Manager {
	return &Manager{
		store:   store,
		util:    util,
		logger:  logger,
		modules: make(map[string]moduleEntry),
	}
}

// IsEnabled reports whether server side encryption is switched on.
func (m *Manager) IsEnabled() bool {
	if m.store.GetAppValue("encryption", "installed", "no") != "yes" {
		return false
	}
	return m.store.GetAppValue("core", "encryption_enabled", "no") == "yes"
}

// SetEnabled flips the engine switch.
func (m *Manager) SetEnabled(enabled bool) error {
	value := "no"
	if enabled {
		value = "yes"
	}
	return m.store.SetAppValue("core", "encryption_enabled", value)
}

// IsReady reports whether the engine can operate, which requires a
// reachable key storage location. A custom root must carry the marker
// file, a bare directory is what an unmounted external storage leaves
// behind.
func (m *Manager) IsReady() bool {
	root := m.util.GetKeyStorageRoot()
	if root == "" {
		// default root is always valid
		return true
	}
	return m.util.View().FileExists(pathClean(root) + "/" + keyStorageMarkerName)
}

// IsReadyForUser reports whether every registered module can serve the
// given user.
func (m *Manager) IsReadyForUser(uid string) bool {
	if !m.IsReady() {
		return false
	}
	for id := range m.modules {
		module, err := m.instantiate(id)
		if err != nil {
			m.logger.WithError(err).WithField("module", id).Warn("Failed to instantiate encryption module")
			return false
		}
		if !module.IsReadyForUser(uid) {
			m.logger.WithFields(logrus.Fields{
				"module": id,
				"user":   uid,
			}).Debug("Encryption module not ready for user")
			return false
		}
	}
	return true
}

// RegisterModule adds a module to the registry. The first registered
// module becomes the default unless one is configured already.
func (m *Manager) RegisterModule(id, displayName string, factory ModuleFactory) error {
	if existing, ok := m.modules[id]; ok {
		return &ModuleAlreadyExistsError{ID: id, Name: existing.displayName}
	}
	m.modules[id] = moduleEntry{id: id, displayName: displayName, factory: factory}
	if m.defaultModuleID() == "" {
		if err := m.SetDefaultModule(id); err != nil {
			return fmt.Errorf("failed to set default encryption module: %w", err)
		}
	}
	return nil
}

// UnregisterModule removes a module from the registry.
func (m *Manager) UnregisterModule(id string) {
	delete(m.modules, id)
}

// GetModule returns the module with the given id, or the default module
// when id is empty.
func (m *Manager) GetModule(id string) (Module, error) {
	if id == "" {
		return m.GetDefaultModule()
	}
	if _, ok := m.modules[id]; !ok {
		return nil, &ModuleDoesNotExistError{ID: id}
	}
	return m.instantiate(id)
}

// GetDefaultModule returns the configured default module.
func (m *Manager) GetDefaultModule() (Module, error) {
	id := m.defaultModuleID()
	if id == "" {
		return nil, &ModuleDoesNotExistError{}
	}
	if _, ok := m.modules[id]; !ok {
		return nil, &ModuleDoesNotExistError{ID: id}
	}
	return m.instantiate(id)
}

// SetDefaultModule makes the given registered module the default.
func (m *Manager) SetDefaultModule(id string) error {
	if _, ok := m.modules[id]; !ok {
		return &ModuleDoesNotExistError{ID: id}
	}
	return m.store.SetAppValue("core", "default_encryption_module", id)
}

// Modules returns the ids and display names of all registered modules.
func (m *Manager) Modules() map[string]string {
	out := make(map[string]string, len(m.modules))
	for id, entry := range m.modules {
		out[id] = entry.displayName
	}
	return out
}

func (m *Manager) defaultModuleID() string {
	return m.store.GetAppValue("core", "default_encryption_module", "")
}

func (m *Manager) instantiate(id string) (Module, error) {
	entry := m.modules[id]
	module, err := entry.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption module %s: %w", id, err)
	}
	return module, nil
}
