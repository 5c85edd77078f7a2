package repo

import (
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/util"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
)

// Render writes the tree named by tree into target (relative to fsys; ""
// is the root). Subtrees become directories, 100644 and 100755 blobs become
// files with permission 0644 and 0755. Other modes (symlinks, gitlinks) are
// skipped. Existing files are overwritten; nothing is deleted.
//
// Entries are decoded leniently: a truncated or malformed entry ends the
// directory without error, keeping what was decoded before it.
func Render(store *object.Store, fsys billy.Filesystem, tree object.Hash, target string) error {
	objType, payload, err := store.Read(tree)
	if err != nil {
		return err
	}
	if objType != object.TypeTree {
		return errkind.Errorf(errkind.CorruptObject, "render %s: expected tree, got %s", tree, objType)
	}
	if target != "" {
		if err := fsys.MkdirAll(target, 0o755); err != nil {
			return errkind.Errorf(errkind.IoFailure, "render: mkdir %q: %s", target, err)
		}
	}

	entries, _ := object.ParseTreeEntries(payload)
	for _, e := range entries {
		if e.Name == "" || e.Name == "." || e.Name == ".." || e.Name == GitDirName || containsSeparator(e.Name) {
			continue
		}
		p := fsys.Join(target, e.Name)

		if e.IsDir() {
			if err := Render(store, fsys, e.Hash, p); err != nil {
				return err
			}
			continue
		}
		perm, ok := filePermFromMode(e.Mode)
		if !ok {
			continue
		}
		blob, err := store.ReadBlob(e.Hash)
		if err != nil {
			return err
		}
		if err := util.WriteFile(fsys, p, blob.Data, perm); err != nil {
			return errkind.Errorf(errkind.IoFailure, "render: write %q: %s", p, err)
		}
	}
	return nil
}

func containsSeparator(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == '\\' {
			return true
		}
	}
	return false
}

// CheckoutCommit renders the tree of commit into the repository's worktree.
func (r *Repo) CheckoutCommit(commit object.Hash) error {
	c, err := r.Store.ReadCommit(commit)
	if err != nil {
		return err
	}
	return Render(r.Store, r.Worktree(), c.TreeHash, "")
}
