package storage

import (
	"fmt"
	"path"
	"strings"
)

// Entry is a directory listing entry resolved against the mount table, so
// callers can probe the owning mount's storage capabilities.
type Entry struct {
	FileInfo
	Mount *Mount
}

// View is a path-addressed facade over the mount table. All paths are
// absolute virtual paths (/<uid>/files/...).
type View struct {
	mounts *MountManager
}

func NewView(mm *MountManager) *View {
	return &View{mounts: mm}
}

// MountManager exposes the underlying mount table.
func (v *View) MountManager() *MountManager {
	return v.mounts
}

// Resolve maps a virtual path to its owning mount and the path inside
// that mount's storage.
func (v *View) Resolve(p string) (*Mount, string, error) {
	return v.resolve(p)
}

func (v *View) resolve(p string) (*Mount, string, error) {
	p = cleanPath(p)
	m := v.mounts.FindMount(p)
	if m == nil {
		return nil, "", fmt.Errorf("no mount for path %s", p)
	}
	internal := strings.TrimPrefix(p, m.MountPoint)
	if internal == "" {
		internal = "/"
	}
	if !strings.HasPrefix(internal, "/") {
		internal = "/" + internal
	}
	return m, internal, nil
}

func (v *View) IsDir(p string) bool {
	m, internal, err := v.resolve(p)
	if err != nil {
		return false
	}
	return m.Storage().IsDir(internal)
}

func (v *View) FileExists(p string) bool {
	m, internal, err := v.resolve(p)
	if err != nil {
		return false
	}
	return m.Storage().FileExists(internal)
}

func (v *View) ReadFile(p string) ([]byte, error) {
	m, internal, err := v.resolve(p)
	if err != nil {
		return nil, err
	}
	return m.Storage().ReadFile(internal)
}

func (v *View) WriteFile(p string, data []byte) error {
	m, internal, err := v.resolve(p)
	if err != nil {
		return err
	}
	return m.Storage().WriteFile(internal, data)
}

func (v *View) Mkdir(p string) error {
	m, internal, err := v.resolve(p)
	if err != nil {
		return err
	}
	return m.Storage().Mkdir(internal)
}

// Copy copies src to dst. Same-mount copies delegate to the storage, cross
// mount copies fall back to read and write.
func (v *View) Copy(src, dst string) error {
	sm, sInternal, err := v.resolve(src)
	if err != nil {
		return err
	}
	dm, dInternal, err := v.resolve(dst)
	if err != nil {
		return err
	}
	if sm == dm {
		return sm.Storage().Copy(sInternal, dInternal)
	}
	data, err := sm.Storage().ReadFile(sInternal)
	if err != nil {
		return err
	}
	return dm.Storage().WriteFile(dInternal, data)
}

// Rename moves src to dst, falling back to copy and unlink across mounts.
func (v *View) Rename(src, dst string) error {
	sm, sInternal, err := v.resolve(src)
	if err != nil {
		return err
	}
	dm, dInternal, err := v.resolve(dst)
	if err != nil {
		return err
	}
	if sm == dm {
		return sm.Storage().Rename(sInternal, dInternal)
	}
	if err := v.Copy(src, dst); err != nil {
		return err
	}
	return sm.Storage().Unlink(sInternal)
}

func (v *View) Unlink(p string) error {
	m, internal, err := v.resolve(p)
	if err != nil {
		return err
	}
	return m.Storage().Unlink(internal)
}

// GetDirectoryContent lists p and rewrites entry paths back into virtual
// paths. Mountpoints of other mounts directly below p show up as directories
// of their own mounts.
func (v *View) GetDirectoryContent(p string) ([]Entry, error) {
	p = cleanPath(p)
	m, internal, err := v.resolve(p)
	if err != nil {
		return nil, err
	}
	infos, err := m.Storage().ReadDir(internal)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(infos))
	seen := make(map[string]bool, len(infos))
	for _, fi := range infos {
		virtual := path.Join(p, fi.Name)
		owner := v.mounts.FindMount(virtual)
		if owner == nil {
			owner = m
		}
		fi.Path = virtual
		entries = append(entries, Entry{FileInfo: fi, Mount: owner})
		seen[fi.Name] = true
	}
	// Surface mounts whose mountpoint sits directly below p.
	for _, other := range v.mounts.Mounts() {
		if other == m || other.MountPoint == "/" {
			continue
		}
		if path.Dir(other.MountPoint) != p {
			continue
		}
		name := path.Base(other.MountPoint)
		if seen[name] {
			continue
		}
		entries = append(entries, Entry{
			FileInfo: FileInfo{Name: name, Path: other.MountPoint, IsDir: true},
			Mount:    other,
		})
	}
	return entries, nil
}
