package encryption

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/syncdrive/encryptd/internal/metrics"
	"github.com/syncdrive/encryptd/internal/storage"
)

// EncryptedStorage decorates a Storage so documents are encrypted on
// write and decrypted on read. Paths outside the document area and
// content without an encryption header pass through untouched.
type EncryptedStorage struct {
	inner      storage.Storage
	mountPoint string
	manager    *Manager
	util       *Util
	file       *File
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	uid        string
}

// NewEncryptedStorage wraps inner for the given mount point.
func NewEncryptedStorage(inner storage.Storage, mountPoint string, manager *Manager, util *Util, file *File, logger *logrus.Logger, m *metrics.Metrics, uid string) *EncryptedStorage {
	return &EncryptedStorage{
		inner:      inner,
		mountPoint: mountPoint,
		manager:    manager,
		util:       util,
		file:       file,
		logger:     logger,
		metrics:    m,
		uid:        uid,
	}
}

// Inner returns the decorated storage.
func (e *EncryptedStorage) Inner() storage.Storage { return e.inner }

func (e *EncryptedStorage) fullPath(p string) string {
	return pathClean(e.mountPoint + "/" + p)
}

// shouldEncrypt decides whether content written to p gets a header.
func (e *EncryptedStorage) shouldEncrypt(full string) bool {
	if !e.manager.IsEnabled() {
		return false
	}
	if e.util.IsExcluded(full) {
		return false
	}
	return e.util.IsFile(full)
}

func (e *EncryptedStorage) IsDir(p string) bool       { return e.inner.IsDir(p) }
func (e *EncryptedStorage) FileExists(p string) bool  { return e.inner.FileExists(p) }
func (e *EncryptedStorage) Mkdir(p string) error      { return e.inner.Mkdir(p) }
func (e *EncryptedStorage) Unlink(p string) error     { return e.inner.Unlink(p) }

// Copy decrypts src and writes it to dst through the decorator, so the
// copy gets its own keys, or stays plaintext while encryption is off.
func (e *EncryptedStorage) Copy(src, dst string) error {
	data, err := e.ReadFile(src)
	if err != nil {
		return err
	}
	return e.WriteFile(dst, data)
}

// Rename moves the raw bytes, header included. The wrapped keys travel
// in the header, so a moved file stays readable.
func (e *EncryptedStorage) Rename(src, dst string) error {
	return e.inner.Rename(src, dst)
}

func (e *EncryptedStorage) ReadDir(p string) ([]storage.FileInfo, error) {
	infos, err := e.inner.ReadDir(p)
	if err != nil {
		return nil, err
	}
	// report the plaintext size, readers never see the header block
	for i := range infos {
		if !infos[i].IsDir && infos[i].Size >= HeaderSize {
			if data, err := e.inner.ReadFile(infos[i].Path); err == nil && HasSignature(data) {
				infos[i].Size -= HeaderSize
			}
		}
	}
	return infos, nil
}

func (e *EncryptedStorage) WriteFile(p string, data []byte) error {
	e.metrics.RecordStorageOperation("write")
	full := e.fullPath(p)
	if !e.shouldEncrypt(full) {
		return e.inner.WriteFile(p, data)
	}

	if !e.manager.IsReadyForUser(e.uid) {
		return &NotReadyError{UID: e.uid}
	}

	module, err := e.manager.GetDefaultModule()
	if err != nil {
		return err
	}

	access, err := e.file.GetAccessList(full)
	if err != nil {
		return fmt.Errorf("failed to resolve access list for %s: %w", full, err)
	}

	start := time.Now()
	ciphertext, headerData, err := module.Encrypt(data, full, e.uid, access)
	if err != nil {
		e.metrics.RecordEncryptionError("encrypt", "module")
		return fmt.Errorf("failed to encrypt %s: %w", full, err)
	}

	header, err := CreateHeader(headerData, module.ID())
	if err != nil {
		e.metrics.RecordEncryptionError("encrypt", "header")
		return err
	}

	e.metrics.RecordEncryptionOperation("encrypt", time.Since(start), int64(len(data)))
	return e.inner.WriteFile(p, append(header, ciphertext...))
}

func (e *EncryptedStorage) ReadFile(p string) ([]byte, error) {
	e.metrics.RecordStorageOperation("read")
	raw, err := e.inner.ReadFile(p)
	if err != nil {
		e.metrics.RecordStorageError("read")
		return nil, err
	}
	if len(raw) < HeaderSize || !HasSignature(raw) {
		// legacy or never encrypted content
		return raw, nil
	}

	header := ParseRawHeader(raw[:HeaderSize])
	moduleID := GetEncryptionModuleID(header)
	if moduleID == "" {
		return raw, nil
	}

	module, err := e.manager.GetModule(moduleID)
	if err != nil {
		return nil, err
	}

	full := e.fullPath(p)
	start := time.Now()
	plaintext, err := module.Decrypt(raw[HeaderSize:], full, e.uid, header)
	if err != nil {
		e.metrics.RecordEncryptionError("decrypt", "module")
		return nil, &DecryptionFailedError{Path: full, Err: err}
	}
	e.metrics.RecordEncryptionOperation("decrypt", time.Since(start), int64(len(plaintext)))
	return plaintext, nil
}

// IsEncrypted reports whether the file at p carries an encryption
// header.
func (e *EncryptedStorage) IsEncrypted(p string) (bool, error) {
	raw, err := e.inner.ReadFile(p)
	if err != nil {
		return false, err
	}
	if len(raw) < HeaderSize || !HasSignature(raw) {
		return false, nil
	}
	return GetEncryptionModuleID(ParseRawHeader(raw[:HeaderSize])) != "", nil
}
