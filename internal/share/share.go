package share

import (
	"sync"
)

// Access is the share-derived visibility of a single path.
type Access struct {
	Users  []string
	Public bool
	Remote bool
}

// Manager resolves who a path has been shared with. The engine only reads
// access lists, share creation is the sharing layer's business.
type Manager interface {
	// GetAccessList returns the users, link and remote state for exactly
	// the given virtual path. With includeReshares false, shares created
	// by a recipient of another share are left out.
	GetAccessList(path string, includeReshares bool) (Access, error)
}

// Share is a single grant on a path.
type Share struct {
	Path    string
	With    string // empty for link shares
	Public  bool
	Remote  bool
	Reshare bool
}

// MemoryManager is an in-memory share table used by the CLI and tests.
type MemoryManager struct {
	mu     sync.RWMutex
	shares map[string][]Share
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{shares: make(map[string][]Share)}
}

// Add records a share grant.
func (m *MemoryManager) Add(s Share) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shares[s.Path] = append(m.shares[s.Path], s)
}

// Remove drops every grant on path for the given user (or all link shares
// when with is empty).
func (m *MemoryManager) Remove(path, with string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.shares[path][:0]
	for _, s := range m.shares[path] {
		if with != "" && s.With == with && !s.Public {
			continue
		}
		if with == "" && s.Public {
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		delete(m.shares, path)
		return
	}
	m.shares[path] = kept
}

func (m *MemoryManager) GetAccessList(path string, includeReshares bool) (Access, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var acc Access
	for _, s := range m.shares[path] {
		if s.Reshare && !includeReshares {
			continue
		}
		if s.Public {
			acc.Public = true
			continue
		}
		if s.Remote {
			acc.Remote = true
		}
		if s.With != "" {
			acc.Users = append(acc.Users, s.With)
		}
	}
	return acc, nil
}
