package repo

import (
	"io"
	"sort"
	"strings"

	"gopkg.in/src-d/go-billy.v4"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
)

// skipWorktreeName reports whether a directory entry stays out of trees.
// Names beginning with "." or "_" are skipped, which always covers .git.
func skipWorktreeName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// BuildTree snapshots dir (relative to fsys; "" is the root) into tree
// objects, writing every blob and subtree to store, and returns the root
// tree's hash.
//
// Regular files become blobs with mode 100644 whatever their permission
// bits, so a tree's hash depends only on names and content. Directories
// recurse with mode 40000. Symlinks and other
// special files are skipped. An empty directory yields the empty tree.
func BuildTree(store *object.Store, fsys billy.Filesystem, dir string) (object.Hash, error) {
	infos, err := fsys.ReadDir(dir)
	if err != nil {
		return "", errkind.Errorf(errkind.IoFailure, "build tree: read dir %q: %s", dir, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	entries := make([]object.TreeEntry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if skipWorktreeName(name) {
			continue
		}
		p := fsys.Join(dir, name)

		switch {
		case info.IsDir():
			h, err := BuildTree(store, fsys, p)
			if err != nil {
				return "", err
			}
			entries = append(entries, object.TreeEntry{Mode: object.TreeModeDir, Name: name, Hash: h})
		case info.Mode().IsRegular():
			data, err := readWorktreeFile(fsys, p)
			if err != nil {
				return "", err
			}
			h, err := store.WriteBlob(&object.Blob{Data: data})
			if err != nil {
				return "", err
			}
			entries = append(entries, object.TreeEntry{Mode: object.TreeModeFile, Name: name, Hash: h})
		}
	}

	return store.WriteTree(&object.TreeObj{Entries: entries})
}

func readWorktreeFile(fsys billy.Filesystem, p string) ([]byte, error) {
	f, err := fsys.Open(p)
	if err != nil {
		return nil, errkind.Errorf(errkind.IoFailure, "build tree: open %q: %s", p, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errkind.Errorf(errkind.IoFailure, "build tree: read %q: %s", p, err)
	}
	return data, nil
}

// WriteTree snapshots the repository's worktree.
func (r *Repo) WriteTree() (object.Hash, error) {
	return BuildTree(r.Store, r.Worktree(), "")
}
