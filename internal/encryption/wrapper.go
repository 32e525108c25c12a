package encryption

import (
	"github.com/sirupsen/logrus"

	"github.com/syncdrive/encryptd/internal/metrics"
	"github.com/syncdrive/encryptd/internal/storage"
)

// Wrapper decides per mount whether the encryption decorator is put in
// front of a storage.
type Wrapper struct {
	manager *Manager
	util    *Util
	file    *File
	logger  *logrus.Logger
	metrics *metrics.Metrics
	uid     string
}

// NewWrapper creates a storage wrapper acting on behalf of uid.
func NewWrapper(manager *Manager, util *Util, file *File, logger *logrus.Logger, m *metrics.Metrics, uid string) *Wrapper {
	return &Wrapper{
		manager: manager,
		util:    util,
		file:    file,
		logger:  logger,
		metrics: m,
		uid:     uid,
	}
}

// WrapStorage wraps st with the encryption decorator unless the storage
// opted out or the mount is the root mount. force overrides both, the
// bulk decryption run uses it to reach files on storages that would
// normally stay unwrapped.
func (w *Wrapper) WrapStorage(mountPoint string, st storage.Storage, mount *storage.Mount, force bool) storage.Storage {
	if !force {
		if d, ok := st.(storage.DisablesEncryption); ok && d.EncryptionDisabled() {
			return st
		}
		if mountPoint == "/" {
			return st
		}
	}
	w.logger.WithField("mountPoint", mountPoint).Debug("Wrapping storage with encryption")
	return NewEncryptedStorage(st, mountPoint, w.manager, w.util, w.file, w.logger, w.metrics, w.uid)
}

// SetupStorage registers the wrapper with the mount manager so every
// present and future mount gets the encryption decorator. Without a
// registered module and with encryption switched off there is nothing
// to decorate, the mounts stay bare.
func (w *Wrapper) SetupStorage(mounts *storage.MountManager) {
	if len(w.manager.Modules()) == 0 && !w.manager.IsEnabled() {
		return
	}
	mounts.RegisterStorageWrapper(func(mountPoint string, st storage.Storage, mount *storage.Mount) storage.Storage {
		return w.WrapStorage(mountPoint, st, mount, false)
	})
}
