package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
)

const (
	refHashA = object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	refHashB = object.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestUpdateAndResolveRef(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.ResolveRef("HEAD"); !errkind.Is(err, errkind.ObjectNotFound) {
		t.Fatalf("unborn HEAD error = %v, want %q", err, errkind.ObjectNotFound)
	}

	if err := r.UpdateRef("refs/heads/main", refHashA); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(r.GitDir, "refs", "heads", "main"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(refHashA)+"\n" {
		t.Fatalf("ref file = %q", data)
	}
	if _, err := os.Stat(filepath.Join(r.GitDir, "refs", "heads", "main.lock")); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind: %v", err)
	}

	for _, name := range []string{"HEAD", "main", "refs/heads/main"} {
		h, err := r.ResolveRef(name)
		if err != nil {
			t.Fatalf("ResolveRef(%q): %v", name, err)
		}
		if h != refHashA {
			t.Fatalf("ResolveRef(%q) = %s, want %s", name, h, refHashA)
		}
	}

	if err := r.UpdateRef("refs/tags/v1", refHashB); err != nil {
		t.Fatalf("UpdateRef tag: %v", err)
	}
	if h, err := r.ResolveRef("v1"); err != nil || h != refHashB {
		t.Fatalf("ResolveRef(v1) = %s, %v", h, err)
	}
	if h, err := r.ResolveRef(string(refHashB)); err != nil || h != refHashB {
		t.Fatalf("ResolveRef(raw hash) = %s, %v", h, err)
	}
	if _, err := r.ResolveRef("nope"); !errkind.Is(err, errkind.ObjectNotFound) {
		t.Fatalf("ResolveRef(nope) error = %v", err)
	}
}

func TestWriteHead(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := r.WriteHead(string(refHashB)); err != nil {
		t.Fatalf("WriteHead(hash): %v", err)
	}
	head, err := r.Head()
	if err != nil {
		t.Fatal(err)
	}
	if head != string(refHashB) {
		t.Fatalf("Head() = %q", head)
	}
	if h, err := r.ResolveRef("HEAD"); err != nil || h != refHashB {
		t.Fatalf("detached ResolveRef(HEAD) = %s, %v", h, err)
	}

	if err := r.WriteHead("refs/heads/dev"); err != nil {
		t.Fatalf("WriteHead(ref): %v", err)
	}
	data, err := os.ReadFile(filepath.Join(r.GitDir, "HEAD"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ref: refs/heads/dev\n" {
		t.Fatalf("HEAD = %q", data)
	}

	if err := r.WriteHead("dev"); !errkind.Is(err, errkind.Usage) {
		t.Fatalf("WriteHead(dev) error = %v, want %q", err, errkind.Usage)
	}
}

func TestRefNameValidation(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"refs/../../escape", "refs/tags/v1^{}", "refs/heads/", "/abs", "refs/heads/x.lock", "refs/heads/.hidden"} {
		if err := r.UpdateRef(name, refHashA); !errkind.Is(err, errkind.Usage) {
			t.Fatalf("UpdateRef(%q) error = %v, want %q", name, err, errkind.Usage)
		}
	}
	if err := r.UpdateRef("refs/heads/main", "xyz"); !errkind.Is(err, errkind.Usage) {
		t.Fatalf("UpdateRef(bad hash) error = %v", err)
	}
}

func TestListRefs(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for name, h := range map[string]object.Hash{
		"refs/heads/main":      refHashA,
		"refs/heads/feature/x": refHashB,
		"refs/tags/v1":         refHashB,
	} {
		if err := r.UpdateRef(name, h); err != nil {
			t.Fatalf("UpdateRef(%q): %v", name, err)
		}
	}

	all, err := r.ListRefs("")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(all) != 3 || all["heads/feature/x"] != refHashB || all["tags/v1"] != refHashB {
		t.Fatalf("ListRefs = %v", all)
	}
	heads, err := r.ListRefs("heads")
	if err != nil {
		t.Fatalf("ListRefs(heads): %v", err)
	}
	if len(heads) != 2 || heads["heads/main"] != refHashA {
		t.Fatalf("ListRefs(heads) = %v", heads)
	}
	none, err := r.ListRefs("remotes")
	if err != nil || len(none) != 0 {
		t.Fatalf("ListRefs(remotes) = %v, %v", none, err)
	}
}
