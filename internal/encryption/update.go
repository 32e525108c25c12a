package encryption

import (
	"context"
	"fmt"
	"path"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/syncdrive/encryptd/internal/metrics"
)

// Update reacts to share and file lifecycle changes by re-wrapping the
// per-file keys of every affected file.
type Update struct {
	manager *Manager
	util    *Util
	file    *File
	logger  *logrus.Logger
	metrics *metrics.Metrics
	uid     string
}

// NewUpdate creates an update handler acting on behalf of uid.
func NewUpdate(manager *Manager, util *Util, file *File, logger *logrus.Logger, m *metrics.Metrics, uid string) *Update {
	return &Update{
		manager: manager,
		util:    util,
		file:    file,
		logger:  logger,
		metrics: m,
		uid:     uid,
	}
}

// PostShared handles a file or folder having been shared.
func (u *Update) PostShared(ctx context.Context, p string) error {
	return u.update(ctx, p)
}

// PostUnshared handles a share having been revoked.
func (u *Update) PostUnshared(ctx context.Context, p string) error {
	return u.update(ctx, p)
}

// PostRestore handles a file having been restored from the trash. The
// restored file may land in a folder with different shares than the one
// it was deleted from.
func (u *Update) PostRestore(ctx context.Context, p string) error {
	return u.update(ctx, p)
}

// PostRename handles a file or folder move. A rename inside the same
// directory cannot change who has access, so only real moves trigger a
// key update.
func (u *Update) PostRename(ctx context.Context, source, target string) error {
	if path.Dir(source) == path.Dir(target) {
		return nil
	}
	return u.update(ctx, target)
}

// update re-wraps the keys of the file at p, or of every file below p
// when p is a folder. Per-file failures are logged and counted but do
// not abort the remaining files.
func (u *Update) update(ctx context.Context, p string) error {
	if !u.manager.IsEnabled() {
		return nil
	}

	ctx, span := otel.Tracer("encryptd/encryption").Start(ctx, "update.keys",
		trace.WithAttributes(attribute.String("path", p)))
	defer span.End()

	module, err := u.manager.GetDefaultModule()
	if err != nil {
		return err
	}

	// modules without per-user key wrapping have nothing to re-wrap
	if !module.NeedDetailedAccessList() {
		u.logger.WithField("module", module.ID()).Debug("Module needs no access list, skipping key update")
		return nil
	}

	var files []string
	if u.util.View().IsDir(p) {
		files, err = u.util.GetAllFiles(p)
		if err != nil {
			return err
		}
	} else {
		files = []string{p}
	}
	span.SetAttributes(attribute.Int("files", len(files)))

	failures := 0
	for _, file := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		access, err := u.file.GetAccessList(file)
		if err != nil {
			failures++
			u.metrics.RecordKeyUpdate("error")
			u.logger.WithError(err).WithField("path", file).Error("Failed to resolve access list, keeping old keys")
			continue
		}
		if _, err := module.Update(file, u.uid, access); err != nil {
			failures++
			u.metrics.RecordKeyUpdate("error")
			u.logger.WithError(err).WithField("path", file).Error("Failed to update keys")
			continue
		}
		u.metrics.RecordKeyUpdate("ok")
	}
	if failures > 0 {
		return &GenericEncryptionError{
			Message: fmt.Sprintf("failed to update keys of %d of %d files under %s", failures, len(files), p),
		}
	}
	return nil
}
