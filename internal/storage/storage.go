package storage

import (
	"time"
)

// FileInfo describes a single entry inside a storage.
type FileInfo struct {
	Name  string
	Path  string // path relative to the storage root, always starting with "/"
	IsDir bool
	Size  int64
	MTime time.Time
}

// Storage is the backend abstraction all higher layers are written against.
// Paths are slash-separated and relative to the storage root.
type Storage interface {
	IsDir(path string) bool
	FileExists(path string) bool
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Copy(src, dst string) error
	Rename(src, dst string) error
	Unlink(path string) error
	ReadDir(path string) ([]FileInfo, error)
	Mkdir(path string) error
}

// DisablesEncryption is implemented by storages that manage their own
// encryption and must never be wrapped by the encryption decorator.
type DisablesEncryption interface {
	EncryptionDisabled() bool
}

// SharedStorage is implemented by storages that expose another user's files
// through a share mount. Batch operations only touch the owner's copy.
type SharedStorage interface {
	IsShared() bool
}

// GroupMembership resolves group membership for mount applicability checks.
type GroupMembership interface {
	IsInGroup(uid, gid string) bool
}
