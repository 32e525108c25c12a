package share

import (
	"sort"
	"sync"
)

// UserManager enumerates and validates user accounts.
type UserManager interface {
	Exists(uid string) bool
	// List returns up to limit uids starting at offset, in a stable order.
	// An empty result marks the end of the enumeration.
	List(offset, limit int) []string
}

// GroupManager resolves group membership.
type GroupManager interface {
	IsInGroup(uid, gid string) bool
	UsersInGroup(gid string) []string
}

// MemoryUsers is a map-backed UserManager.
type MemoryUsers struct {
	mu   sync.RWMutex
	uids []string
	set  map[string]bool
}

func NewMemoryUsers(uids ...string) *MemoryUsers {
	m := &MemoryUsers{set: make(map[string]bool)}
	for _, uid := range uids {
		m.AddUser(uid)
	}
	return m
}

func (m *MemoryUsers) AddUser(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set[uid] {
		return
	}
	m.set[uid] = true
	m.uids = append(m.uids, uid)
	sort.Strings(m.uids)
}

func (m *MemoryUsers) Exists(uid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set[uid]
}

func (m *MemoryUsers) List(offset, limit int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset >= len(m.uids) {
		return nil
	}
	end := offset + limit
	if end > len(m.uids) {
		end = len(m.uids)
	}
	out := make([]string, end-offset)
	copy(out, m.uids[offset:end])
	return out
}

// MemoryGroups is a map-backed GroupManager.
type MemoryGroups struct {
	mu     sync.RWMutex
	groups map[string][]string
}

func NewMemoryGroups() *MemoryGroups {
	return &MemoryGroups{groups: make(map[string][]string)}
}

func (m *MemoryGroups) AddMember(gid, uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.groups[gid] {
		if u == uid {
			return
		}
	}
	m.groups[gid] = append(m.groups[gid], uid)
}

func (m *MemoryGroups) IsInGroup(uid, gid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.groups[gid] {
		if u == uid {
			return true
		}
	}
	return false
}

func (m *MemoryGroups) UsersInGroup(gid string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.groups[gid]))
	copy(out, m.groups[gid])
	return out
}
