package encryption

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/syncdrive/encryptd/internal/config"
	"github.com/syncdrive/encryptd/internal/share"
	"github.com/syncdrive/encryptd/internal/storage"
)

const (
	// HeaderSize is the fixed on-disk size of the encryption header.
	// Readers rely on the first block of an encrypted file being exactly
	// this long, so it never changes.
	HeaderSize = 8192

	// BlockSize is the unit content is chunked in behind the header.
	BlockSize = 8192

	headerStart = "HBEGIN"
	headerEnd   = "HEND"
	headerPad   = '-'

	// headerModuleKey is the reserved header key naming the module a
	// file was encrypted with.
	headerModuleKey = "oc_encryption_module"

	// legacyCipherKey marks headers written before modules had ids. Such
	// files belong to the default module.
	legacyCipherKey = "cipher"

	// DefaultModuleID is the id of the bundled default module and the
	// fallback for legacy headers.
	DefaultModuleID = "OC_DEFAULT_MODULE"
)

// CreateHeader serializes header data into one fixed-size header block.
// Key order is deterministic so identical input yields identical bytes.
func CreateHeader(headerData map[string]string, moduleID string) ([]byte, error) {
	keys := make([]string, 0, len(headerData))
	for k := range headerData {
		if k == headerModuleKey {
			return nil, &HeaderKeyExistsError{Key: k}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(headerStart)
	b.WriteString(":" + headerModuleKey + ":" + moduleID)
	for _, k := range keys {
		b.WriteString(":" + k + ":" + headerData[k])
	}
	b.WriteString(":" + headerEnd)

	if b.Len() > HeaderSize {
		return nil, &HeaderTooLargeError{}
	}

	header := make([]byte, HeaderSize)
	copy(header, b.String())
	for i := b.Len(); i < HeaderSize; i++ {
		header[i] = headerPad
	}
	return header, nil
}

// ParseRawHeader decodes the header block of an encrypted file into its
// key value pairs. Content without a header yields an empty map.
func ParseRawHeader(data []byte) map[string]string {
	header := make(map[string]string)
	raw := string(data)
	if !strings.HasPrefix(raw, headerStart) {
		return header
	}
	endAt := strings.Index(raw, headerEnd)
	if endAt < 0 {
		return header
	}
	// strip "HBEGIN:" and ":HEND"
	body := raw[len(headerStart):endAt]
	body = strings.Trim(body, ":")
	elements := strings.Split(body, ":")
	for i := 0; i+1 < len(elements); i += 2 {
		header[elements[i]] = elements[i+1]
	}
	return header
}

// HasSignature reports whether content starts with an encryption header.
func HasSignature(data []byte) bool {
	return strings.HasPrefix(string(data), headerStart+":")
}

// GetEncryptionModuleID resolves which module a parsed header belongs
// to. Legacy headers carrying only a cipher entry map to the default
// module. An empty result means the content is not encrypted.
func GetEncryptionModuleID(header map[string]string) string {
	if len(header) == 0 {
		return ""
	}
	if id, ok := header[headerModuleKey]; ok {
		return id
	}
	if _, ok := header[legacyCipherKey]; ok {
		return DefaultModuleID
	}
	return ""
}

// Util answers path and policy questions for the encryption engine.
type Util struct {
	view       *storage.View
	users      share.UserManager
	groups     share.GroupManager
	store      config.Store
	instanceID string
}

// NewUtil creates a Util bound to the given view and settings store.
func NewUtil(view *storage.View, users share.UserManager, groups share.GroupManager, store config.Store, instanceID string) *Util {
	return &Util{
		view:       view,
		users:      users,
		groups:     groups,
		store:      store,
		instanceID: instanceID,
	}
}

// excludedNames are the directory names that never hold user documents.
func (u *Util) excludedNames() []string {
	return []string{"files_encryption", "files_external", "appdata_" + u.instanceID}
}

// IsFile reports whether the given virtual path points into a user's
// document area. Only such paths carry encrypted content.
func (u *Util) IsFile(p string) bool {
	parts := strings.SplitN(strings.TrimPrefix(pathClean(p), "/"), "/", 3)
	return len(parts) >= 2 && parts[1] == "files"
}

// GetUIDAndFilename splits a virtual path into the owning user and the
// path relative to that user's root.
func (u *Util) GetUIDAndFilename(p string) (string, string, error) {
	parts := strings.SplitN(strings.TrimPrefix(pathClean(p), "/"), "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", "", fmt.Errorf("path %s does not belong to a user", p)
	}
	if !u.users.Exists(parts[0]) {
		return "", "", fmt.Errorf("user %s does not exist", parts[0])
	}
	return parts[0], "/" + parts[1], nil
}

// StripPartialFileExtension removes the upload suffix from a partial
// file path, including an embedded transfer id when present, so key
// lookups hit the final file name.
func StripPartialFileExtension(p string) string {
	if !strings.HasSuffix(p, ".part") {
		return p
	}
	p = strings.TrimSuffix(p, ".part")
	if dot := strings.LastIndex(p, "."); dot >= 0 {
		if strings.HasPrefix(p[dot+1:], "ocTransferId") {
			p = p[:dot]
		}
	}
	return p
}

// IsExcluded reports whether a path must never be encrypted: the key
// storage area, system folders and per-user infrastructure folders.
func (u *Util) IsExcluded(p string) bool {
	normalized := pathClean(p)
	root := u.GetKeyStorageRoot()
	if root != "" && strings.HasPrefix(normalized, pathClean(root)) {
		return true
	}
	parts := strings.SplitN(strings.TrimPrefix(normalized, "/"), "/", 3)
	if len(parts) == 0 || parts[0] == "" {
		return false
	}
	for _, name := range u.excludedNames() {
		if parts[0] == name {
			return true
		}
		if len(parts) >= 2 && u.users.Exists(parts[0]) && parts[1] == name {
			return true
		}
	}
	return false
}

// IsSystemWideMountPoint reports whether the mount point is provided
// system wide for the given user, as opposed to living in the user's
// own storage.
func (u *Util) IsSystemWideMountPoint(mountPoint, uid string) bool {
	for _, m := range u.view.MountManager().SystemMounts() {
		if pathClean(m.MountPoint) != pathClean(mountPoint) {
			continue
		}
		if m.AppliesTo(uid, u.groups) {
			return true
		}
	}
	return false
}

// RecoveryEnabled reports whether the user opted into admin recovery.
func (u *Util) RecoveryEnabled(uid string) bool {
	return u.store.GetUserValue(uid, "encryption", "recoveryEnabled", "0") == "1"
}

// keyStorageMarkerName is the flag file inside a custom key storage
// root. A root without it is an unmounted or wrong directory, reading
// or writing keys there would orphan them.
const keyStorageMarkerName = ".keystorage_root"

// GetKeyStorageRoot returns the configured key storage root, empty for
// the default location.
func (u *Util) GetKeyStorageRoot() string {
	return u.store.GetAppValue("core", "encryption.key_storage_root", "")
}

// SetKeyStorageRoot moves the key storage root and drops the marker
// file readiness checks look for.
func (u *Util) SetKeyStorageRoot(root string) error {
	if err := u.store.SetAppValue("core", "encryption.key_storage_root", root); err != nil {
		return err
	}
	if root == "" {
		return nil
	}
	marker := pathClean(root) + "/" + keyStorageMarkerName
	if u.view.FileExists(marker) {
		return nil
	}
	return u.view.WriteFile(marker, []byte("This file marks the key storage location. Do not remove it.\n"))
}

// GetAllFiles walks the tree below dir and returns every file path. The
// walk is iterative, deep trees do not grow the call stack.
func (u *Util) GetAllFiles(dir string) ([]string, error) {
	var files []string
	stack := []string{pathClean(dir)}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries, err := u.view.GetDirectoryContent(current)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", current, err)
		}
		for _, entry := range entries {
			if entry.IsDir {
				stack = append(stack, entry.Path)
			} else {
				files = append(files, entry.Path)
			}
		}
	}
	return files, nil
}

// UserManager exposes the user backend for collaborators that page over
// accounts.
func (u *Util) UserManager() share.UserManager { return u.users }

// GroupManager exposes the group backend.
func (u *Util) GroupManager() share.GroupManager { return u.groups }

// View exposes the virtual filesystem the Util operates on.
func (u *Util) View() *storage.View { return u.view }

func pathClean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
