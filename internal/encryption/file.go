package encryption

import (
	"fmt"
	"path"
	"strings"

	"github.com/syncdrive/encryptd/internal/cache"
	"github.com/syncdrive/encryptd/internal/share"
	"github.com/syncdrive/encryptd/internal/storage"
)

// File resolves which users may read a file, combining the owner, the
// shares on the file itself and the shares on every ancestor folder.
type File struct {
	util   *Util
	shares share.Manager

	// parentCache memoizes the aggregated ancestor access per directory.
	// Bulk operations touch many files in the same folder, so this saves
	// one ancestor walk per sibling.
	parentCache *cache.Bounded[share.Access]
}

// NewFile creates an access list resolver. maxCacheItems bounds the per
// directory cache.
func NewFile(util *Util, shares share.Manager, maxCacheItems int) *File {
	return &File{
		util:        util,
		shares:      shares,
		parentCache: cache.NewBounded[share.Access](maxCacheItems),
	}
}

// GetAccessList returns everyone with access to the given virtual path.
// The owner is always part of the result, so a file never loses its
// owner's key no matter how shares change.
func (f *File) GetAccessList(p string) (AccessList, error) {
	owner, ownerPath, err := f.util.GetUIDAndFilename(p)
	if err != nil {
		return AccessList{}, fmt.Errorf("failed to resolve owner of %s: %w", p, err)
	}

	users := []string{owner}
	if !f.util.IsFile("/" + owner + ownerPath) {
		// not a document, keys are only needed for the owner
		return AccessList{Users: users}, nil
	}

	rel := strings.TrimPrefix(ownerPath, "/files")
	if rel == "" {
		rel = "/"
	}
	rel = StripPartialFileExtension(rel)

	parent := path.Dir(rel)
	cacheKey := owner + ":" + parent
	parentAccess, ok := f.parentCache.Get(cacheKey)
	if !ok {
		parentAccess, err = f.ancestorAccess(owner, parent)
		if err != nil {
			return AccessList{}, err
		}
		f.parentCache.Set(cacheKey, parentAccess)
	}

	fileAccess, err := f.shares.GetAccessList(f.virtualPath(owner, rel), false)
	if err != nil {
		return AccessList{}, fmt.Errorf("failed to get shares of %s: %w", p, err)
	}

	users = append(users, parentAccess.Users...)
	users = append(users, fileAccess.Users...)
	users = append(users, f.systemMountUsers(f.virtualPath(owner, rel))...)

	return AccessList{
		Users:  uniqueUsers(users),
		Public: parentAccess.Public || parentAccess.Remote || fileAccess.Public || fileAccess.Remote,
	}, nil
}

// systemMountUsers returns everyone a system-wide mount above p is
// provided to. Files on such mounts are visible to the whole mount
// audience, not just the owner and their shares.
func (f *File) systemMountUsers(p string) []string {
	var users []string
	groups := f.util.GroupManager()
	for _, m := range f.util.View().MountManager().SystemMounts() {
		if p != m.MountPoint && !strings.HasPrefix(p, m.MountPoint+"/") {
			continue
		}
		for _, u := range m.ApplicableUsers {
			if u == storage.ApplicableAll {
				users = append(users, f.allUsers()...)
				continue
			}
			users = append(users, u)
		}
		for _, g := range m.ApplicableGroups {
			users = append(users, groups.UsersInGroup(g)...)
		}
	}
	return users
}

// allUsers pages over the whole user backend.
func (f *File) allUsers() []string {
	var users []string
	for offset := 0; ; offset += usersPageSize {
		page := f.util.UserManager().List(offset, usersPageSize)
		if len(page) == 0 {
			return users
		}
		users = append(users, page...)
	}
}

// ancestorAccess unions the shares of dir and every folder above it up
// to the user's root.
func (f *File) ancestorAccess(owner, dir string) (share.Access, error) {
	var acc share.Access
	for current := dir; ; current = path.Dir(current) {
		a, err := f.shares.GetAccessList(f.virtualPath(owner, current), true)
		if err != nil {
			return share.Access{}, fmt.Errorf("failed to get shares of %s: %w", current, err)
		}
		acc.Users = append(acc.Users, a.Users...)
		acc.Public = acc.Public || a.Public
		acc.Remote = acc.Remote || a.Remote
		if current == "/" || current == "." {
			break
		}
	}
	acc.Users = uniqueUsers(acc.Users)
	return acc, nil
}

func (f *File) virtualPath(owner, rel string) string {
	return pathClean("/" + owner + "/files" + rel)
}

func uniqueUsers(users []string) []string {
	seen := make(map[string]bool, len(users))
	out := users[:0]
	for _, u := range users {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
