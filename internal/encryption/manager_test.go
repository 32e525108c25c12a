package encryption

import (
	"errors"
	"testing"
)

func TestRegisterModuleDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.registerFake(t, newFakeModule("M1"))

	err := env.manager.RegisterModule("M1", "again", func() (Module, error) {
		return newFakeModule("M1"), nil
	})
	var existsErr *ModuleAlreadyExistsError
	if !errors.As(err, &existsErr) {
		t.Fatalf("err = %v, want ModuleAlreadyExistsError", err)
	}
	if existsErr.ID != "M1" {
		t.Errorf("ID = %q, want M1", existsErr.ID)
	}
}

func TestFirstRegisteredModuleBecomesDefault(t *testing.T) {
	env := newTestEnv(t)
	env.registerFake(t, newFakeModule("M1"))
	env.registerFake(t, newFakeModule("M2"))

	module, err := env.manager.GetDefaultModule()
	if err != nil {
		t.Fatal(err)
	}
	if module.ID() != "M1" {
		t.Errorf("default module = %q, want M1", module.ID())
	}

	// empty id resolves to the default as well
	module, err = env.manager.GetModule("")
	if err != nil {
		t.Fatal(err)
	}
	if module.ID() != "M1" {
		t.Errorf("GetModule(\"\") = %q, want M1", module.ID())
	}
}

func TestGetModuleUnknown(t *testing.T) {
	env := newTestEnv(t)
	env.registerFake(t, newFakeModule("M1"))

	_, err := env.manager.GetModule("NOPE")
	var notExists *ModuleDoesNotExistError
	if !errors.As(err, &notExists) {
		t.Fatalf("err = %v, want ModuleDoesNotExistError", err)
	}
}

func TestGetDefaultModuleWithoutModules(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.GetDefaultModule()
	var notExists *ModuleDoesNotExistError
	if !errors.As(err, &notExists) {
		t.Fatalf("err = %v, want ModuleDoesNotExistError", err)
	}
}

func TestSetDefaultModuleUnregistered(t *testing.T) {
	env := newTestEnv(t)
	env.registerFake(t, newFakeModule("M1"))

	if err := env.manager.SetDefaultModule("NOPE"); err == nil {
		t.Error("expected error for unregistered module")
	}
	// default unchanged
	module, err := env.manager.GetDefaultModule()
	if err != nil {
		t.Fatal(err)
	}
	if module.ID() != "M1" {
		t.Errorf("default = %q, want M1", module.ID())
	}
}

func TestUnregisterModule(t *testing.T) {
	env := newTestEnv(t)
	env.registerFake(t, newFakeModule("M1"))
	env.manager.UnregisterModule("M1")

	if _, err := env.manager.GetModule("M1"); err == nil {
		t.Error("expected error after unregister")
	}
	if len(env.manager.Modules()) != 0 {
		t.Error("registry not empty after unregister")
	}
}

func TestIsEnabled(t *testing.T) {
	env := newTestEnv(t)
	if !env.manager.IsEnabled() {
		t.Fatal("expected enabled")
	}
	if err := env.manager.SetEnabled(false); err != nil {
		t.Fatal(err)
	}
	if env.manager.IsEnabled() {
		t.Fatal("expected disabled")
	}

	// not installed beats the enabled switch
	if err := env.manager.SetEnabled(true); err != nil {
		t.Fatal(err)
	}
	if err := env.store.SetAppValue("encryption", "installed", "no"); err != nil {
		t.Fatal(err)
	}
	if env.manager.IsEnabled() {
		t.Fatal("expected disabled while not installed")
	}
}

func TestIsReady(t *testing.T) {
	env := newTestEnv(t)
	if !env.manager.IsReady() {
		t.Fatal("default key storage root should be ready")
	}

	// an empty directory is what an unmounted external storage leaves
	// behind, it must not pass for a key storage root
	if err := env.store.SetAppValue("core", "encryption.key_storage_root", "/keys"); err != nil {
		t.Fatal(err)
	}
	if err := env.root.Mkdir("/keys"); err != nil {
		t.Fatal(err)
	}
	if env.manager.IsReady() {
		t.Fatal("custom root without marker file should not be ready")
	}

	// moving the root through the engine drops the marker file
	if err := env.util.SetKeyStorageRoot("/keys"); err != nil {
		t.Fatal(err)
	}
	if !env.manager.IsReady() {
		t.Fatal("custom root with marker file should be ready")
	}
}

func TestIsReadyForUser(t *testing.T) {
	env := newTestEnv(t)
	m := newFakeModule("M1")
	m.notReadyFor = map[string]bool{"bob": true}
	env.registerFake(t, m)

	if !env.manager.IsReadyForUser("alice") {
		t.Error("expected ready for alice")
	}
	if env.manager.IsReadyForUser("bob") {
		t.Error("expected not ready for bob")
	}
}
