package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/minigit/pkg/errkind"
)

func assertDir(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if !info.IsDir() {
		t.Fatalf("%s is not a directory", path)
	}
}

func TestInitCreatesStructure(t *testing.T) {
	dir := t.TempDir()

	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init(%q): %v", dir, err)
	}
	if r.RootDir != dir {
		t.Errorf("RootDir = %q, want %q", r.RootDir, dir)
	}
	gitDir := filepath.Join(dir, ".git")
	if r.GitDir != gitDir {
		t.Errorf("GitDir = %q, want %q", r.GitDir, gitDir)
	}
	assertDir(t, filepath.Join(gitDir, "objects"))
	assertDir(t, filepath.Join(gitDir, "refs", "heads"))

	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if string(head) != "ref: refs/heads/main\n" {
		t.Fatalf("HEAD = %q", head)
	}
	if r.Store == nil || r.Store.Root() != gitDir {
		t.Fatalf("Store not rooted at %s", gitDir)
	}
}

func TestInitExistingRepoFails(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	_, err := Init(dir)
	if !errkind.Is(err, errkind.Usage) {
		t.Fatalf("second Init error = %v, want %q", err, errkind.Usage)
	}
}

func TestOpenFromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sub := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	r, err := Open(sub)
	if err != nil {
		t.Fatalf("Open(%q): %v", sub, err)
	}
	if r.RootDir != dir {
		t.Fatalf("RootDir = %q, want %q", r.RootDir, dir)
	}
}

func TestOpenOutsideRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	if !errkind.Is(err, errkind.Usage) {
		t.Fatalf("Open error = %v, want %q", err, errkind.Usage)
	}
}
