package storage

import (
	"path"
	"sort"
	"strings"
	"sync"
)

// ApplicableAll marks a system-wide mount as accessible to every user.
const ApplicableAll = "all"

// Mount binds a storage to a point in the virtual tree. System-wide mounts
// additionally carry an applicability list restricting which users see them.
type Mount struct {
	MountPoint       string // virtual path, e.g. "/" or "/ext/projects"
	SystemWide       bool
	ApplicableUsers  []string // explicit uids, or the single entry "all"
	ApplicableGroups []string
	Backing          Storage

	wrapped Storage
}

// Storage returns the effective storage for this mount, with the registered
// storage wrapper applied if one has run.
func (m *Mount) Storage() Storage {
	if m.wrapped != nil {
		return m.wrapped
	}
	return m.Backing
}

// AppliesTo reports whether uid may access this mount. Non-system mounts
// apply to everyone under their mountpoint.
func (m *Mount) AppliesTo(uid string, groups GroupMembership) bool {
	if !m.SystemWide {
		return true
	}
	for _, u := range m.ApplicableUsers {
		if u == ApplicableAll || u == uid {
			return true
		}
	}
	if groups == nil {
		return false
	}
	for _, g := range m.ApplicableGroups {
		if groups.IsInGroup(uid, g) {
			return true
		}
	}
	return false
}

// WrapperFunc decorates a storage at mount time. Returning the input storage
// unchanged leaves the mount unwrapped.
type WrapperFunc func(mountPoint string, st Storage, mount *Mount) Storage

// MountManager keeps the registered mounts and resolves virtual paths to
// them by longest mountpoint prefix.
type MountManager struct {
	mu      sync.RWMutex
	mounts  []*Mount
	wrapper WrapperFunc
}

func NewMountManager() *MountManager {
	return &MountManager{}
}

// Register adds a mount. The current storage wrapper, if any, is applied
// immediately.
func (mm *MountManager) Register(m *Mount) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	m.MountPoint = cleanPath(m.MountPoint)
	if mm.wrapper != nil {
		m.wrapped = mm.wrapper(m.MountPoint, m.Backing, m)
	}
	mm.mounts = append(mm.mounts, m)
	// Longest mountpoint first so prefix resolution picks the most specific.
	sort.SliceStable(mm.mounts, func(i, j int) bool {
		return len(mm.mounts[i].MountPoint) > len(mm.mounts[j].MountPoint)
	})
}

// RegisterStorageWrapper installs the wrapper and re-applies it to every
// already-registered mount.
func (mm *MountManager) RegisterStorageWrapper(w WrapperFunc) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.wrapper = w
	for _, m := range mm.mounts {
		m.wrapped = w(m.MountPoint, m.Backing, m)
	}
}

// FindMount resolves path to the mount with the longest matching mountpoint.
func (mm *MountManager) FindMount(p string) *Mount {
	p = cleanPath(p)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	for _, m := range mm.mounts {
		if pathHasPrefix(p, m.MountPoint) {
			return m
		}
	}
	return nil
}

// Mounts returns all registered mounts.
func (mm *MountManager) Mounts() []*Mount {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	out := make([]*Mount, len(mm.mounts))
	copy(out, mm.mounts)
	return out
}

// SystemMounts returns the registered system-wide mounts.
func (mm *MountManager) SystemMounts() []*Mount {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	var out []*Mount
	for _, m := range mm.mounts {
		if m.SystemWide {
			out = append(out, m)
		}
	}
	return out
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// pathHasPrefix reports whether p is prefix itself or lies under it,
// respecting path boundaries ("/extra" is not under "/ext").
func pathHasPrefix(p, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
