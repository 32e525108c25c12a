package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local is a Storage rooted at a directory on the local filesystem.
type Local struct {
	root string
}

// NewLocal creates a local storage rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage root must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", dir, err)
	}
	return &Local{root: dir}, nil
}

func (l *Local) abs(p string) string {
	p = strings.TrimPrefix(cleanPath(p), "/")
	return filepath.Join(l.root, filepath.FromSlash(p))
}

func (l *Local) IsDir(p string) bool {
	fi, err := os.Stat(l.abs(p))
	return err == nil && fi.IsDir()
}

func (l *Local) FileExists(p string) bool {
	_, err := os.Stat(l.abs(p))
	return err == nil
}

func (l *Local) ReadFile(p string) ([]byte, error) {
	data, err := os.ReadFile(l.abs(p))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

func (l *Local) WriteFile(p string, data []byte) error {
	target := l.abs(p)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", p, err)
	}
	if err := os.WriteFile(target, data, 0o640); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

func (l *Local) Copy(src, dst string) error {
	in, err := os.Open(l.abs(src))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	target := l.abs(dst)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", dst, err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

func (l *Local) Rename(src, dst string) error {
	target := l.abs(dst)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", dst, err)
	}
	if err := os.Rename(l.abs(src), target); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}
	return nil
}

func (l *Local) Unlink(p string) error {
	if err := os.RemoveAll(l.abs(p)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", p, err)
	}
	return nil
}

func (l *Local) ReadDir(p string) ([]FileInfo, error) {
	entries, err := os.ReadDir(l.abs(p))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", p, err)
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		fi := FileInfo{
			Name:  e.Name(),
			Path:  cleanPath(p + "/" + e.Name()),
			IsDir: e.IsDir(),
		}
		if st, err := e.Info(); err == nil {
			fi.Size = st.Size()
			fi.MTime = st.ModTime()
		}
		infos = append(infos, fi)
	}
	return infos, nil
}

func (l *Local) Mkdir(p string) error {
	if err := os.MkdirAll(l.abs(p), 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", p, err)
	}
	return nil
}
