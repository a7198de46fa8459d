package walker

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/bimmerbailey/sift/internal/errors"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWalk_RecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "c.dcm")
	touch(t, dir, "a.dcm")
	touch(t, dir, "series/02/img.dcm")
	touch(t, dir, "series/01/img.dcm")
	touch(t, dir, "b.txt")

	got, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	want := []string{"a.dcm", "b.txt", "c.dcm", "series/01/img.dcm", "series/02/img.dcm"}
	if !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWalk_SkipsDirectoriesAndSymlinks(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "real.txt")
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !sliceEqual(got, []string{"real.txt"}) {
		t.Errorf("got %v, want only the regular file", got)
	}
}

func TestWalk_EmptyTree(t *testing.T) {
	got, err := Collect(t.TempDir())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := Walk(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("Walk() should fail for a missing root")
	}
	if !errors.IsFilesystemError(err) {
		t.Errorf("Walk() error = %v, want a filesystem error", err)
	}
}

func TestWalk_RootIsFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "file")

	_, err := Walk(filepath.Join(dir, "file"))
	if !errors.IsFilesystemError(err) {
		t.Errorf("Walk() error = %v, want a filesystem error", err)
	}
}

func TestWalk_UnreadableRoot(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	dir := t.TempDir()
	touch(t, dir, "in/a.dcm")
	root := filepath.Join(dir, "in")
	if err := os.Chmod(root, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(root, 0o755) })

	seq, err := Walk(root)
	if err == nil {
		t.Fatal("Walk() should fail for an unreadable root")
	}
	if seq != nil {
		t.Error("Walk() returned a sequence alongside the error")
	}
	if !errors.IsFilesystemError(err) {
		t.Errorf("Walk() error = %v, want a filesystem error", err)
	}
}

func TestWalk_StopsEarly(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "1")
	touch(t, dir, "2")
	touch(t, dir, "3")

	seq, err := Walk(dir)
	if err != nil {
		t.Fatal(err)
	}
	var seen []string
	for p := range seq {
		seen = append(seen, p)
		if len(seen) == 2 {
			break
		}
	}
	if !sliceEqual(seen, []string{"1", "2"}) {
		t.Errorf("got %v", seen)
	}
}

func TestWalk_UnreadableSubdirYieldsError(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	dir := t.TempDir()
	touch(t, dir, "ok.txt")
	touch(t, dir, "locked/secret.txt")
	locked := filepath.Join(dir, "locked")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	seq, err := Walk(dir)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	var failed []string
	for p, err := range seq {
		if err != nil {
			failed = append(failed, p)
			continue
		}
		paths = append(paths, p)
	}
	if !sliceEqual(paths, []string{"ok.txt"}) {
		t.Errorf("paths = %v", paths)
	}
	if !sliceEqual(failed, []string{"locked"}) {
		t.Errorf("failed = %v, want [locked]", failed)
	}
}
