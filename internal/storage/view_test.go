package storage

import (
	"bytes"
	"sort"
	"testing"
)

func newTestView(t *testing.T) (*View, *Memory, *Memory) {
	t.Helper()
	root := NewMemory()
	ext := NewMemory()
	mm := NewMountManager()
	mm.Register(&Mount{MountPoint: "/", Backing: root})
	mm.Register(&Mount{MountPoint: "/ext", Backing: ext})
	return NewView(mm), root, ext
}

func TestViewReadWriteAcrossMounts(t *testing.T) {
	v, root, ext := newTestView(t)

	if err := v.WriteFile("/alice/files/a.txt", []byte("root data")); err != nil {
		t.Fatal(err)
	}
	if err := v.WriteFile("/ext/b.txt", []byte("ext data")); err != nil {
		t.Fatal(err)
	}

	if got, _ := root.ReadFile("/alice/files/a.txt"); string(got) != "root data" {
		t.Errorf("root file = %q", got)
	}
	if got, _ := ext.ReadFile("/b.txt"); string(got) != "ext data" {
		t.Errorf("ext file = %q", got)
	}
	if got, err := v.ReadFile("/ext/b.txt"); err != nil || string(got) != "ext data" {
		t.Errorf("view read = %q, %v", got, err)
	}
}

func TestViewCopySameMount(t *testing.T) {
	v, _, _ := newTestView(t)
	if err := v.WriteFile("/a.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := v.Copy("/a.txt", "/b.txt"); err != nil {
		t.Fatal(err)
	}
	got, err := v.ReadFile("/b.txt")
	if err != nil || string(got) != "x" {
		t.Errorf("copy = %q, %v", got, err)
	}
}

func TestViewCopyCrossMount(t *testing.T) {
	v, _, ext := newTestView(t)
	if err := v.WriteFile("/src.txt", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := v.Copy("/src.txt", "/ext/dst.txt"); err != nil {
		t.Fatal(err)
	}
	got, err := ext.ReadFile("/dst.txt")
	if err != nil || !bytes.Equal(got, []byte("payload")) {
		t.Errorf("cross mount copy = %q, %v", got, err)
	}
}

func TestViewRenameCrossMount(t *testing.T) {
	v, root, ext := newTestView(t)
	if err := v.WriteFile("/src.txt", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := v.Rename("/src.txt", "/ext/dst.txt"); err != nil {
		t.Fatal(err)
	}
	if root.FileExists("/src.txt") {
		t.Error("source still exists after rename")
	}
	if got, _ := ext.ReadFile("/dst.txt"); string(got) != "payload" {
		t.Errorf("renamed file = %q", got)
	}
}

func TestViewGetDirectoryContentSurfacesMounts(t *testing.T) {
	v, _, _ := newTestView(t)
	if err := v.WriteFile("/readme.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}

	entries, err := v.GetDirectoryContent("/")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)

	want := []string{"ext", "readme.txt"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entries = %v, want %v", names, want)
		}
	}

	for _, e := range entries {
		if e.Name == "ext" {
			if !e.IsDir {
				t.Error("mountpoint entry not a directory")
			}
			if e.Mount.MountPoint != "/ext" {
				t.Errorf("entry mount = %q, want /ext", e.Mount.MountPoint)
			}
		}
	}
}

func TestViewEntryMountResolution(t *testing.T) {
	v, _, ext := newTestView(t)
	if err := ext.WriteFile("/inner/doc.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}

	entries, err := v.GetDirectoryContent("/ext/inner")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Path != "/ext/inner/doc.txt" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Mount.MountPoint != "/ext" {
		t.Errorf("mount = %q, want /ext", entries[0].Mount.MountPoint)
	}
}

func TestMemoryReadDirDirectChildrenOnly(t *testing.T) {
	m := NewMemory()
	for _, p := range []string{"/d/a.txt", "/d/sub/b.txt", "/top.txt"} {
		if err := m.WriteFile(p, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := m.ReadDir("/d")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "sub" {
		t.Errorf("names = %v, want [a.txt sub]", names)
	}
}

func TestMemoryUnlinkDirectory(t *testing.T) {
	m := NewMemory()
	for _, p := range []string{"/d/a.txt", "/d/sub/b.txt"} {
		if err := m.WriteFile(p, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Unlink("/d"); err != nil {
		t.Fatal(err)
	}
	if m.FileExists("/d/a.txt") || m.FileExists("/d/sub/b.txt") || m.IsDir("/d") {
		t.Error("directory subtree not removed")
	}
}
