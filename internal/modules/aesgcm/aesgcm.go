package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/syncdrive/encryptd/internal/encryption"
	"github.com/syncdrive/encryptd/internal/storage"
)

const (
	// DisplayName is the human readable module name.
	DisplayName = "Default encryption module"

	// CipherAESGCM selects AES-256-GCM for content and key wrapping.
	CipherAESGCM = "aes-gcm"
	// CipherChaCha20 selects ChaCha20-Poly1305.
	CipherChaCha20 = "chacha20-poly1305"

	// publicKeyID wraps the file key for link and remote recipients.
	publicKeyID = "public"

	// defaultKeyRoot is where key material lives unless an alternative
	// key storage root is configured.
	defaultKeyRoot = "/files_encryption"

	keySize       = 32
	saltSize      = 16
	pbkdf2Rounds  = 600000
	headerAlgKey  = "alg"
	headerKeyPref = "key."
)

// Module is the bundled encryption module. Every file gets a random
// content key which is wrapped for each user with access, the wrapped
// keys travel in the file header. Re-sharing therefore only rewrites
// the header, never the content.
type Module struct {
	view       *storage.View
	util       *encryption.Util
	cipherName string
	passphrase []byte
	prompt     func() ([]byte, error)
}

// New creates the module. prompt is asked for the passphrase when none
// is configured and a bulk decryption run starts, it may be nil.
func New(view *storage.View, util *encryption.Util, cipherName, passphrase string, prompt func() ([]byte, error)) (*Module, error) {
	if cipherName == "" {
		cipherName = CipherAESGCM
	}
	switch strings.ToLower(cipherName) {
	case CipherAESGCM, CipherChaCha20:
	default:
		return nil, fmt.Errorf("unsupported cipher %s", cipherName)
	}
	return &Module{
		view:       view,
		util:       util,
		cipherName: strings.ToLower(cipherName),
		passphrase: []byte(passphrase),
		prompt:     prompt,
	}, nil
}

func (m *Module) ID() string          { return encryption.DefaultModuleID }
func (m *Module) DisplayName() string { return DisplayName }

// NeedDetailedAccessList is true, key wrapping is per user.
func (m *Module) NeedDetailedAccessList() bool { return true }

// IsReadyForUser reports whether key material can be derived.
func (m *Module) IsReadyForUser(uid string) bool {
	return len(m.passphrase) > 0
}

// PrepareDecryptAll makes sure a passphrase is available, prompting if
// necessary. Without one the run is refused.
func (m *Module) PrepareDecryptAll(uid string) (bool, error) {
	if len(m.passphrase) > 0 {
		return true, nil
	}
	if m.prompt == nil {
		return false, nil
	}
	passphrase, err := m.prompt()
	if err != nil {
		return false, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		return false, nil
	}
	m.passphrase = passphrase
	return true, nil
}

// Encrypt encrypts plaintext with a fresh content key and wraps that
// key for everyone on the access list.
func (m *Module) Encrypt(plaintext []byte, path, uid string, access encryption.AccessList) ([]byte, map[string]string, error) {
	fileKey := make([]byte, keySize)
	if _, err := rand.Read(fileKey); err != nil {
		return nil, nil, fmt.Errorf("failed to generate file key: %w", err)
	}
	defer zeroBytes(fileKey)

	ciphertext, err := m.seal(fileKey, plaintext)
	if err != nil {
		return nil, nil, err
	}

	headerData, err := m.wrapForAccess(fileKey, uid, access)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, headerData, nil
}

// Decrypt unwraps the caller's copy of the content key and opens the
// ciphertext with it.
func (m *Module) Decrypt(ciphertext []byte, path, uid string, headerData map[string]string) ([]byte, error) {
	fileKey, err := m.unwrapFileKey(headerData, uid)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(fileKey)

	plaintext, err := m.open(fileKey, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	return plaintext, nil
}

// Update rewrites the header of an already encrypted file so the
// wrapped keys match the new access list. The content stays untouched.
func (m *Module) Update(path, uid string, access encryption.AccessList) (bool, error) {
	mount, internal, err := m.view.Resolve(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	st := rawStorage(mount.Storage())

	raw, err := st.ReadFile(internal)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(raw) < encryption.HeaderSize || !encryption.HasSignature(raw) {
		// plaintext file, nothing to re-wrap
		return false, nil
	}
	header := encryption.ParseRawHeader(raw[:encryption.HeaderSize])
	if encryption.GetEncryptionModuleID(header) != m.ID() {
		return false, nil
	}

	fileKey, err := m.unwrapFileKey(header, uid)
	if err != nil {
		return false, fmt.Errorf("failed to unwrap key of %s: %w", path, err)
	}
	defer zeroBytes(fileKey)

	headerData, err := m.wrapForAccess(fileKey, uid, access)
	if err != nil {
		return false, err
	}
	newHeader, err := encryption.CreateHeader(headerData, m.ID())
	if err != nil {
		return false, err
	}
	if err := st.WriteFile(internal, append(newHeader, raw[encryption.HeaderSize:]...)); err != nil {
		return false, fmt.Errorf("failed to rewrite header of %s: %w", path, err)
	}
	return true, nil
}

// wrapForAccess wraps fileKey for the calling user plus everyone on the
// access list.
func (m *Module) wrapForAccess(fileKey []byte, uid string, access encryption.AccessList) (map[string]string, error) {
	headerData := map[string]string{headerAlgKey: m.cipherName}

	recipients := make(map[string]bool)
	if uid != "" {
		recipients[uid] = true
	}
	for _, u := range access.Users {
		recipients[u] = true
	}
	if access.Public {
		recipients[publicKeyID] = true
	}

	for recipient := range recipients {
		kek, err := m.userKey(recipient, true)
		if err != nil {
			return nil, err
		}
		wrapped, err := m.seal(kek, fileKey)
		zeroBytes(kek)
		if err != nil {
			return nil, err
		}
		headerData[headerKeyPref+recipient] = base64.RawURLEncoding.EncodeToString(wrapped)
	}
	return headerData, nil
}

// unwrapFileKey recovers the content key from the header, preferring
// the caller's wrap and falling back to any other wrap the configured
// passphrase can open.
func (m *Module) unwrapFileKey(headerData map[string]string, uid string) ([]byte, error) {
	candidates := make([]string, 0, len(headerData))
	if uid != "" {
		if v, ok := headerData[headerKeyPref+uid]; ok {
			candidates = append(candidates, headerKeyPref+uid+"\x00"+v)
		}
	}
	for k, v := range headerData {
		if strings.HasPrefix(k, headerKeyPref) && k != headerKeyPref+uid {
			candidates = append(candidates, k+"\x00"+v)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("header carries no wrapped keys")
	}

	var lastErr error
	for _, candidate := range candidates {
		parts := strings.SplitN(candidate, "\x00", 2)
		recipient := strings.TrimPrefix(parts[0], headerKeyPref)
		wrapped, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err != nil {
			lastErr = err
			continue
		}
		kek, err := m.userKey(recipient, false)
		if err != nil {
			lastErr = err
			continue
		}
		fileKey, err := m.open(kek, wrapped)
		zeroBytes(kek)
		if err != nil {
			lastErr = err
			continue
		}
		return fileKey, nil
	}
	return nil, fmt.Errorf("no wrapped key could be opened: %w", lastErr)
}

// userKey derives the key encryption key of one recipient from the
// passphrase and the recipient's persisted salt. With create false a
// missing salt is an error, unwrapping must never mint key material.
func (m *Module) userKey(recipient string, create bool) ([]byte, error) {
	if len(m.passphrase) == 0 {
		return nil, fmt.Errorf("no passphrase configured")
	}
	salt, err := m.loadSalt(recipient, create)
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key(m.passphrase, salt, pbkdf2Rounds, keySize, sha256.New), nil
}

func (m *Module) keyRoot() string {
	if root := m.util.GetKeyStorageRoot(); root != "" {
		return root
	}
	return defaultKeyRoot
}

func (m *Module) saltPath(recipient string) string {
	return m.keyRoot() + "/" + recipient + "/salt"
}

func (m *Module) loadSalt(recipient string, create bool) ([]byte, error) {
	p := m.saltPath(recipient)
	if m.view.FileExists(p) {
		salt, err := m.view.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read salt for %s: %w", recipient, err)
		}
		return salt, nil
	}
	if !create {
		return nil, fmt.Errorf("no key material for %s", recipient)
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := m.view.WriteFile(p, salt); err != nil {
		return nil, fmt.Errorf("failed to persist salt for %s: %w", recipient, err)
	}
	return salt, nil
}

func (m *Module) aead(key []byte) (cipher.AEAD, error) {
	switch m.cipherName {
	case CipherChaCha20:
		return chacha20poly1305.New(key)
	default:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		return cipher.NewGCM(block)
	}
}

// seal encrypts data with key, prefixing the random nonce.
func (m *Module) seal(key, data []byte) ([]byte, error) {
	aead, err := m.aead(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, data, nil), nil
}

// open decrypts nonce-prefixed data sealed with key.
func (m *Module) open(key, data []byte) ([]byte, error) {
	aead, err := m.aead(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	return aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], nil)
}

// rawStorage unwraps the encryption decorator so header rewrites see
// the bytes on disk.
func rawStorage(st storage.Storage) storage.Storage {
	for {
		es, ok := st.(*encryption.EncryptedStorage)
		if !ok {
			return st
		}
		st = es.Inner()
	}
}

// zeroBytes clears sensitive data from memory.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
