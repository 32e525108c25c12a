package storage

import "testing"

func TestFindMountLongestPrefix(t *testing.T) {
	mm := NewMountManager()
	root := &Mount{MountPoint: "/", Backing: NewMemory()}
	ext := &Mount{MountPoint: "/ext", Backing: NewMemory()}
	deep := &Mount{MountPoint: "/ext/projects", Backing: NewMemory()}
	mm.Register(root)
	mm.Register(ext)
	mm.Register(deep)

	tests := []struct {
		path string
		want *Mount
	}{
		{"/alice/files/doc.txt", root},
		{"/ext", ext},
		{"/ext/other", ext},
		{"/ext/projects", deep},
		{"/ext/projects/readme", deep},
		{"/extra/file", root}, // boundary respected, not under /ext
	}
	for _, tt := range tests {
		if got := mm.FindMount(tt.path); got != tt.want {
			t.Errorf("FindMount(%q) = %v, want %v", tt.path, got.MountPoint, tt.want.MountPoint)
		}
	}
}

func TestRegisterStorageWrapperAppliesToExistingMounts(t *testing.T) {
	mm := NewMountManager()
	mem := NewMemory()
	mm.Register(&Mount{MountPoint: "/data", Backing: mem})

	wrapped := NewMemory()
	mm.RegisterStorageWrapper(func(mountPoint string, st Storage, mount *Mount) Storage {
		return wrapped
	})

	if got := mm.FindMount("/data/x").Storage(); got != Storage(wrapped) {
		t.Error("wrapper not applied to existing mount")
	}

	// and to later registrations
	mm.Register(&Mount{MountPoint: "/later", Backing: NewMemory()})
	if got := mm.FindMount("/later/x").Storage(); got != Storage(wrapped) {
		t.Error("wrapper not applied to new mount")
	}
}

func TestAppliesTo(t *testing.T) {
	groups := groupTable{"staff": {"bob"}}
	tests := []struct {
		name  string
		mount Mount
		uid   string
		want  bool
	}{
		{"non system mount", Mount{}, "anyone", true},
		{"applicable all", Mount{SystemWide: true, ApplicableUsers: []string{ApplicableAll}}, "alice", true},
		{"explicit user", Mount{SystemWide: true, ApplicableUsers: []string{"alice"}}, "alice", true},
		{"other user", Mount{SystemWide: true, ApplicableUsers: []string{"alice"}}, "bob", false},
		{"group member", Mount{SystemWide: true, ApplicableGroups: []string{"staff"}}, "bob", true},
		{"group outsider", Mount{SystemWide: true, ApplicableGroups: []string{"staff"}}, "alice", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mount.AppliesTo(tt.uid, groups); got != tt.want {
				t.Errorf("AppliesTo = %v, want %v", got, tt.want)
			}
		})
	}
}

type groupTable map[string][]string

func (g groupTable) IsInGroup(uid, gid string) bool {
	for _, u := range g[gid] {
		if u == uid {
			return true
		}
	}
	return false
}
