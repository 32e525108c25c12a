package main

import (
	"testing"

	"github.com/syncdrive/encryptd/internal/storage"
)

func TestStorageUsers(t *testing.T) {
	root := storage.NewMemory()
	mm := storage.NewMountManager()
	mm.Register(&storage.Mount{MountPoint: "/", Backing: root})
	view := storage.NewView(mm)

	for _, p := range []string{
		"/alice/files/a.txt",
		"/bob/files/b.txt",
		"/carol/cache/tmp", // no files folder, not an account
	} {
		if err := root.WriteFile(p, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	users := newStorageUsers(view)

	if !users.Exists("alice") || !users.Exists("bob") {
		t.Error("accounts with a files folder must exist")
	}
	if users.Exists("carol") {
		t.Error("carol has no files folder")
	}
	if users.Exists("") {
		t.Error("empty uid must not exist")
	}

	page := users.List(0, 1)
	if len(page) != 1 || page[0] != "alice" {
		t.Errorf("first page = %v", page)
	}
	page = users.List(1, 10)
	if len(page) != 1 || page[0] != "bob" {
		t.Errorf("second page = %v", page)
	}
	if page = users.List(2, 10); page != nil {
		t.Errorf("past the end = %v", page)
	}
}
