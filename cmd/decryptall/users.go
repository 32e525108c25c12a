package main

import (
	"sort"

	"github.com/syncdrive/encryptd/internal/storage"
)

// storageUsers derives the user list from the storage layout, every top
// level directory with a files folder is an account. The engine has no
// user database of its own.
type storageUsers struct {
	view *storage.View
}

func newStorageUsers(view *storage.View) *storageUsers {
	return &storageUsers{view: view}
}

func (s *storageUsers) Exists(uid string) bool {
	if uid == "" {
		return false
	}
	return s.view.IsDir("/" + uid + "/files")
}

func (s *storageUsers) List(offset, limit int) []string {
	entries, err := s.view.GetDirectoryContent("/")
	if err != nil {
		return nil
	}
	var uids []string
	for _, entry := range entries {
		if entry.IsDir && s.Exists(entry.Name) {
			uids = append(uids, entry.Name)
		}
	}
	sort.Strings(uids)
	if offset >= len(uids) {
		return nil
	}
	end := offset + limit
	if end > len(uids) {
		end = len(uids)
	}
	return uids[offset:end]
}
