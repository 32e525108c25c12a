package encryption

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/syncdrive/encryptd/internal/config"
	"github.com/syncdrive/encryptd/internal/metrics"
	"github.com/syncdrive/encryptd/internal/share"
	"github.com/syncdrive/encryptd/internal/storage"
)

type testEnv struct {
	root    *storage.Memory
	mounts  *storage.MountManager
	view    *storage.View
	users   *share.MemoryUsers
	groups  *share.MemoryGroups
	shares  *share.MemoryManager
	store   *config.MemoryStore
	logger  *logrus.Logger
	metrics *metrics.Metrics
	util    *Util
	manager *Manager
	file    *File
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := storage.NewMemory()
	mounts := storage.NewMountManager()
	mounts.Register(&storage.Mount{MountPoint: "/", Backing: root})
	view := storage.NewView(mounts)

	users := share.NewMemoryUsers("alice", "bob")
	groups := share.NewMemoryGroups()
	shares := share.NewMemoryManager()

	store := config.NewMemoryStore()
	if err := store.SetAppValue("encryption", "installed", "yes"); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	if err := store.SetAppValue("core", "encryption_enabled", "yes"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	util := NewUtil(view, users, groups, store, "testinst")
	manager := NewManager(store, util, logger)
	file := NewFile(util, shares, 64)

	return &testEnv{
		root:    root,
		mounts:  mounts,
		view:    view,
		users:   users,
		groups:  groups,
		shares:  shares,
		store:   store,
		logger:  logger,
		metrics: metrics.NewMetricsWithRegistry(prometheus.NewRegistry()),
		util:    util,
		manager: manager,
		file:    file,
	}
}

// fakeModule is a minimal Module whose ciphertext equals the plaintext.
type fakeModule struct {
	id            string
	needDetailed  bool
	notReadyFor   map[string]bool
	refusePrepare bool
	prepareCalls  int
	updateErr     map[string]error
	updates       []string
	lastAccess    map[string]AccessList
}

func newFakeModule(id string) *fakeModule {
	return &fakeModule{
		id:           id,
		needDetailed: true,
		updateErr:    make(map[string]error),
		lastAccess:   make(map[string]AccessList),
	}
}

func (f *fakeModule) ID() string          { return f.id }
func (f *fakeModule) DisplayName() string { return "Fake module " + f.id }

func (f *fakeModule) Encrypt(plaintext []byte, path, uid string, access AccessList) ([]byte, map[string]string, error) {
	out := make([]byte, len(plaintext))
	copy(out, plaintext)
	return out, map[string]string{"fk": "1"}, nil
}

func (f *fakeModule) Decrypt(ciphertext []byte, path, uid string, headerData map[string]string) ([]byte, error) {
	if bytes.Contains(ciphertext, []byte("poison")) {
		return nil, fmt.Errorf("corrupt key material")
	}
	out := make([]byte, len(ciphertext))
	copy(out, ciphertext)
	return out, nil
}

func (f *fakeModule) Update(path, uid string, access AccessList) (bool, error) {
	f.updates = append(f.updates, path)
	f.lastAccess[path] = access
	if err := f.updateErr[path]; err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeModule) NeedDetailedAccessList() bool { return f.needDetailed }

func (f *fakeModule) IsReadyForUser(uid string) bool { return !f.notReadyFor[uid] }

func (f *fakeModule) PrepareDecryptAll(uid string) (bool, error) {
	f.prepareCalls++
	return !f.refusePrepare, nil
}

func (e *testEnv) registerFake(t *testing.T, m *fakeModule) {
	t.Helper()
	if err := e.manager.RegisterModule(m.id, m.DisplayName(), func() (Module, error) {
		return m, nil
	}); err != nil {
		t.Fatalf("register module: %v", err)
	}
}

// writeEncrypted stores header+content at p, bypassing any decorator.
func (e *testEnv) writeEncrypted(t *testing.T, p, moduleID string, content []byte) {
	t.Helper()
	header, err := CreateHeader(map[string]string{"fk": "1"}, moduleID)
	if err != nil {
		t.Fatalf("create header: %v", err)
	}
	if err := e.root.WriteFile(p, append(header, content...)); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}
