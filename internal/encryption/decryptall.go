package encryption

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/syncdrive/encryptd/internal/audit"
	"github.com/syncdrive/encryptd/internal/metrics"
	"github.com/syncdrive/encryptd/internal/storage"
)

// usersPageSize is how many accounts one user backend page holds.
const usersPageSize = 500

// DecryptAll turns every encrypted file of one user, or of all users,
// back into plaintext. It expects encryption to be switched off before
// the run so freshly written content stays unencrypted.
type DecryptAll struct {
	manager *Manager
	util    *Util
	view    *storage.View
	logger  *logrus.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger
	out     io.Writer

	failed map[string][]string
}

// NewDecryptAll creates a bulk decryption run. Progress is written to
// out, audit may be nil.
func NewDecryptAll(manager *Manager, util *Util, view *storage.View, logger *logrus.Logger, m *metrics.Metrics, auditLog *audit.Logger, out io.Writer) *DecryptAll {
	return &DecryptAll{
		manager: manager,
		util:    util,
		view:    view,
		logger:  logger,
		metrics: m,
		audit:   auditLog,
		out:     out,
		failed:  make(map[string][]string),
	}
}

// Run decrypts the files of uid, or of every known user when uid is
// empty. The return value reflects whether the run could start at all.
// Per-file failures do not abort the run, they are collected in Failed.
func (d *DecryptAll) Run(ctx context.Context, uid string) bool {
	start := time.Now()

	var users []string
	if uid == "" {
		for offset := 0; ; offset += usersPageSize {
			page := d.util.UserManager().List(offset, usersPageSize)
			if len(page) == 0 {
				break
			}
			users = append(users, page...)
		}
	} else {
		if !d.util.UserManager().Exists(uid) {
			fmt.Fprintf(d.out, "User \"%s\" does not exist. Please check the username and try again\n", uid)
			return false
		}
		users = []string{uid}
	}

	ok, err := d.prepareModules(uid)
	if err != nil {
		d.logger.WithError(err).Error("Failed to prepare encryption modules")
		return false
	}
	if !ok {
		return false
	}

	fmt.Fprintf(d.out, "\nstarting to decrypt files...\n\n")
	for _, user := range users {
		select {
		case <-ctx.Done():
			d.logger.Warn("Bulk decryption interrupted")
			return false
		default:
		}
		d.decryptUserFiles(ctx, user)
	}

	d.metrics.RecordDecryptAllDuration(time.Since(start))
	if d.audit != nil {
		d.audit.LogDecryptRun(uid, len(d.failed) == 0, time.Since(start))
	}

	if len(d.failed) == 0 {
		fmt.Fprintf(d.out, "\nall files could be decrypted successfully!\n")
	} else {
		fmt.Fprintf(d.out, "\nfiles which could not be decrypted:\n")
		for user, paths := range d.failed {
			for _, p := range paths {
				fmt.Fprintf(d.out, "  [%s] %s\n", user, p)
			}
		}
	}
	return true
}

// Failed returns the files that could not be decrypted, per user.
func (d *DecryptAll) Failed() map[string][]string {
	return d.failed
}

// prepareModules gives every registered module the chance to collect
// key material, or to refuse the run.
func (d *DecryptAll) prepareModules(uid string) (bool, error) {
	for id := range d.manager.Modules() {
		module, err := d.manager.GetModule(id)
		if err != nil {
			return false, err
		}
		ready, err := module.PrepareDecryptAll(uid)
		if err != nil {
			return false, fmt.Errorf("failed to prepare module %s: %w", id, err)
		}
		if !ready {
			fmt.Fprintf(d.out, "Module \"%s\" does not support the decryption of all files, aborting\n", module.DisplayName())
			return false, nil
		}
	}
	return true, nil
}

// decryptUserFiles walks the user's document tree iteratively and
// decrypts every encrypted file found.
func (d *DecryptAll) decryptUserFiles(ctx context.Context, uid string) {
	fmt.Fprintf(d.out, "decrypting files for user %s\n", uid)

	stack := []string{"/" + uid + "/files"}
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := d.view.GetDirectoryContent(dir)
		if err != nil {
			d.logger.WithError(err).WithField("path", dir).Error("Failed to list directory")
			d.failed[uid] = append(d.failed[uid], dir)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir {
				stack = append(stack, entry.Path)
				continue
			}
			// files living on a shared storage belong to the sharer and
			// get decrypted with the sharer's files
			if shared, ok := underlyingStorage(entry.Mount.Storage()).(storage.SharedStorage); ok && shared.IsShared() {
				d.metrics.RecordDecryptAllFile("skipped")
				continue
			}
			if !d.decryptFile(uid, entry.Path) {
				d.failed[uid] = append(d.failed[uid], entry.Path)
			}
		}
	}
}

// decryptFile replaces one encrypted file with its plaintext. The
// plaintext is staged next to the original and swapped in with a
// rename, a failed decryption leaves the original untouched.
func (d *DecryptAll) decryptFile(uid, p string) bool {
	start := time.Now()

	mount, internal, err := d.view.Resolve(p)
	if err != nil {
		d.logger.WithError(err).WithField("path", p).Error("Failed to resolve file")
		d.metrics.RecordDecryptAllFile("failed")
		return false
	}
	encryptedStorage, ok := mount.Storage().(*EncryptedStorage)
	if !ok {
		// unwrapped storage, nothing on it is encrypted
		d.metrics.RecordDecryptAllFile("skipped")
		return true
	}
	encrypted, err := encryptedStorage.IsEncrypted(internal)
	if err != nil {
		d.logger.WithError(err).WithField("path", p).Error("Failed to inspect file header")
		d.metrics.RecordDecryptAllFile("failed")
		return false
	}
	if !encrypted {
		d.metrics.RecordDecryptAllFile("skipped")
		return true
	}

	target := fmt.Sprintf("%s.decrypted.%d", p, time.Now().Unix())
	if err := d.view.Copy(p, target); err != nil {
		d.cleanupTarget(target)
		d.logger.WithError(err).WithField("path", p).Error("Failed to decrypt file")
		d.metrics.RecordDecryptAllFile("failed")
		if d.audit != nil {
			d.audit.LogDecryptFile(uid, p, false, err, time.Since(start))
		}
		return false
	}
	if err := d.view.Rename(target, p); err != nil {
		d.cleanupTarget(target)
		d.logger.WithError(err).WithField("path", p).Error("Failed to move decrypted file into place")
		d.metrics.RecordDecryptAllFile("failed")
		if d.audit != nil {
			d.audit.LogDecryptFile(uid, p, false, err, time.Since(start))
		}
		return false
	}

	d.metrics.RecordDecryptAllFile("decrypted")
	if d.audit != nil {
		d.audit.LogDecryptFile(uid, p, true, nil, time.Since(start))
	}
	return true
}

func (d *DecryptAll) cleanupTarget(target string) {
	if d.view.FileExists(target) {
		if err := d.view.Unlink(target); err != nil {
			d.logger.WithError(err).WithField("path", target).Warn("Failed to remove partial plaintext")
		}
	}
}

// underlyingStorage unwraps the encryption decorator so capability
// checks see the real storage.
func underlyingStorage(st storage.Storage) storage.Storage {
	for {
		es, ok := st.(*EncryptedStorage)
		if !ok {
			return st
		}
		st = es.Inner()
	}
}
