package storage

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Storage used by tests and as a scratch backend.
// The Shared and NoEncryption knobs let tests exercise the capability
// interfaces without a real share or external mount in place.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool

	Shared       bool
	NoEncryption bool
}

func NewMemory() *Memory {
	return &Memory{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
}

// IsShared implements SharedStorage.
func (m *Memory) IsShared() bool { return m.Shared }

// EncryptionDisabled implements DisablesEncryption.
func (m *Memory) EncryptionDisabled() bool { return m.NoEncryption }

func (m *Memory) IsDir(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirs[cleanPath(p)]
}

func (m *Memory) FileExists(p string) bool {
	p = cleanPath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[p]; ok {
		return true
	}
	return m.dirs[p]
}

func (m *Memory) ReadFile(p string) ([]byte, error) {
	p = cleanPath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("file %s does not exist", p)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) WriteFile(p string, data []byte) error {
	p = cleanPath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[p] = cp
	m.mkdirAllLocked(path.Dir(p))
	return nil
}

func (m *Memory) Copy(src, dst string) error {
	data, err := m.ReadFile(src)
	if err != nil {
		return err
	}
	return m.WriteFile(dst, data)
}

func (m *Memory) Rename(src, dst string) error {
	src, dst = cleanPath(src), cleanPath(dst)
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[src]
	if !ok {
		return fmt.Errorf("file %s does not exist", src)
	}
	m.files[dst] = data
	delete(m.files, src)
	m.mkdirAllLocked(path.Dir(dst))
	return nil
}

func (m *Memory) Unlink(p string) error {
	p = cleanPath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		delete(m.dirs, p)
		prefix := p + "/"
		for f := range m.files {
			if strings.HasPrefix(f, prefix) {
				delete(m.files, f)
			}
		}
		for d := range m.dirs {
			if strings.HasPrefix(d, prefix) {
				delete(m.dirs, d)
			}
		}
		return nil
	}
	if _, ok := m.files[p]; !ok {
		return fmt.Errorf("file %s does not exist", p)
	}
	delete(m.files, p)
	return nil
}

func (m *Memory) ReadDir(p string) ([]FileInfo, error) {
	p = cleanPath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.dirs[p] {
		return nil, fmt.Errorf("directory %s does not exist", p)
	}
	names := make(map[string]FileInfo)
	for f, data := range m.files {
		if name, ok := directChild(p, f); ok {
			names[name] = FileInfo{Name: name, Path: cleanPath(p + "/" + name), Size: int64(len(data)), MTime: time.Now()}
		}
	}
	for d := range m.dirs {
		if name, ok := directChild(p, d); ok {
			names[name] = FileInfo{Name: name, Path: cleanPath(p + "/" + name), IsDir: true}
		}
	}
	out := make([]FileInfo, 0, len(names))
	for _, fi := range names {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Mkdir(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAllLocked(cleanPath(p))
	return nil
}

func (m *Memory) mkdirAllLocked(p string) {
	for p != "/" && p != "." {
		m.dirs[p] = true
		p = path.Dir(p)
	}
	m.dirs["/"] = true
}

// directChild returns full's name if it lives directly inside dir. Deeper
// entries surface through the intermediate dir entries mkdirAllLocked keeps.
func directChild(dir, full string) (string, bool) {
	prefix := dir + "/"
	if dir == "/" {
		prefix = "/"
	}
	if !strings.HasPrefix(full, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(full, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
