package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
)

// PlaceholderIdentity is written as author and committer when none is given.
// There is no identity configuration.
const PlaceholderIdentity = "minigit <minigit@localhost>"

// CommitOptions controls CommitTree.
type CommitOptions struct {
	// Parent is the single parent commit; empty for a root commit.
	Parent object.Hash
	// Author and Committer are "Name <email>"; empty uses PlaceholderIdentity.
	Author    string
	Committer string
	// Now supplies the commit timestamp; nil uses time.Now.
	Now func() time.Time
}

// CommitTree writes a commit pointing at tree and returns its hash. The tree
// and the parent (if any) must already be in the store. A message without a
// trailing newline gets one.
func CommitTree(store *object.Store, tree object.Hash, message string, opts CommitOptions) (object.Hash, error) {
	if err := object.ValidateHash(tree); err != nil {
		return "", errkind.Wrap(errkind.Usage, err, "commit-tree: tree")
	}
	if _, err := store.ReadTree(tree); err != nil {
		return "", errkind.Wrap(errkind.ObjectNotFound, err, "commit-tree: tree "+string(tree))
	}

	var parents []object.Hash
	if opts.Parent != "" {
		if err := object.ValidateHash(opts.Parent); err != nil {
			return "", errkind.Wrap(errkind.Usage, err, "commit-tree: parent")
		}
		if _, err := store.ReadCommit(opts.Parent); err != nil {
			return "", errkind.Wrap(errkind.ObjectNotFound, err, "commit-tree: parent "+string(opts.Parent))
		}
		parents = []object.Hash{opts.Parent}
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	stamp := formatTimestamp(now())

	if message != "" && !strings.HasSuffix(message, "\n") {
		message += "\n"
	}

	return store.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    identityOr(opts.Author) + " " + stamp,
		Committer: identityOr(opts.Committer) + " " + stamp,
		Message:   message,
	})
}

func identityOr(id string) string {
	if strings.TrimSpace(id) == "" {
		return PlaceholderIdentity
	}
	return strings.TrimSpace(id)
}

// formatTimestamp renders "<unix seconds> <+hhmm>".
func formatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d %s", t.Unix(), t.Format("-0700"))
}

// Commit snapshots the worktree, commits it on top of HEAD and advances the
// branch HEAD points to (or HEAD itself when detached).
func (r *Repo) Commit(message string, opts CommitOptions) (object.Hash, error) {
	tree, err := r.WriteTree()
	if err != nil {
		return "", err
	}
	if opts.Parent == "" {
		if parent, err := r.ResolveRef("HEAD"); err == nil {
			opts.Parent = parent
		} else if !errkind.Is(err, errkind.ObjectNotFound) {
			return "", err
		}
	}
	h, err := CommitTree(r.Store, tree, message, opts)
	if err != nil {
		return "", err
	}

	head, err := r.Head()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(head, "refs/") {
		err = r.UpdateRef(head, h)
	} else {
		err = r.WriteHead(string(h))
	}
	if err != nil {
		return "", err
	}
	return h, nil
}
