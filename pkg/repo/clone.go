package repo

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
	"github.com/odvcencio/minigit/pkg/remote"
)

// CloneOptions controls Clone.
type CloneOptions struct {
	// Client configures the smart-HTTP client. Its Logger defaults to Logger.
	Client remote.ClientOptions
	// Repo configures the new repository's store; nil uses DefaultOptions.
	Repo *Options
	// Logger receives progress logging; nil discards it.
	Logger *slog.Logger
	// OnProgress receives remote progress messages (sideband band 2).
	OnProgress func(string)
}

// CloneResult describes a finished clone.
type CloneResult struct {
	Repo *Repo
	// Refs is the remote advertisement, peeled entries included.
	Refs map[string]object.Hash
	// HeadRef is the branch HEAD points to, or "" when HEAD is detached or
	// the remote is empty.
	HeadRef string
	// Head is the checked-out object, or "" for an empty remote.
	Head object.Hash
	// Unpack is nil when there was nothing to fetch.
	Unpack *object.UnpackResult
}

// Clone creates a repository in dir (which must be missing or empty) from
// the smart-HTTP remote at url:
//
//  1. discover refs and initialize dir/.git;
//  2. write every advertised ref, HEAD and the remote's URL;
//  3. fetch one pack holding every advertised hash and unpack it;
//  4. render the head commit's tree into dir.
//
// The worktree is only touched after the whole pack is unpacked and the
// head's object graph is known to be complete. An empty remote yields an
// empty repository.
func Clone(ctx context.Context, url, dir string, opts CloneOptions) (*CloneResult, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	if opts.Client.Logger == nil {
		opts.Client.Logger = log
	}
	repoOpts := DefaultOptions()
	if opts.Repo != nil {
		repoOpts = *opts.Repo
	}

	client, err := remote.NewClientWithOptions(url, opts.Client)
	if err != nil {
		return nil, err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errkind.Errorf(errkind.IoFailure, "clone: resolve %s: %s", dir, err)
	}
	if err := ensureEmptyDir(absDir); err != nil {
		return nil, err
	}

	refs, err := client.DiscoverRefs(ctx)
	if err != nil {
		return nil, err
	}
	r, err := InitWithOptions(absDir, repoOpts)
	if err != nil {
		return nil, err
	}
	result := &CloneResult{Repo: r, Refs: refs}

	headRef, head := selectHead(refs, client.Capabilities())
	if err := writeAdvertisedRefs(r, refs, headRef, head); err != nil {
		return nil, err
	}
	if head != "" && headRef != "" {
		result.HeadRef = headRef
	}
	if err := r.SetRemote(client.URL(), result.HeadRef); err != nil {
		return nil, err
	}
	log.Info("clone refs written", "dir", absDir, "refs", len(refs), "head", string(head), "head_ref", headRef)

	wants := make([]object.Hash, 0, len(refs))
	for _, h := range refs {
		wants = append(wants, h)
	}
	if len(wants) == 0 {
		log.Info("cloned empty repository", "dir", absDir)
		return result, nil
	}

	unpacked, err := remote.FetchIntoStore(ctx, client, r.Store, wants, opts.OnProgress)
	if err != nil {
		return nil, err
	}
	result.Unpack = unpacked

	if head == "" {
		return result, nil
	}
	tree, err := treeOf(r.Store, head)
	if err != nil {
		return nil, err
	}
	if err := Render(r.Store, r.Worktree(), tree, ""); err != nil {
		return nil, err
	}
	result.Head = head
	log.Info("checked out", "dir", absDir, "commit", string(head), "tree", string(tree))
	return result, nil
}

// ensureEmptyDir creates path if needed and fails when it has any entries.
func ensureEmptyDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errkind.Errorf(errkind.IoFailure, "clone: mkdir %s: %s", path, err)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return errkind.Errorf(errkind.IoFailure, "clone: read %s: %s", path, err)
	}
	if len(entries) > 0 {
		return errkind.Errorf(errkind.Usage, "clone: destination path %q is not empty", path)
	}
	return nil
}

// selectHead picks the ref to check out: HEAD (with its symref target when
// advertised), then refs/heads/main, refs/heads/master, then the first
// branch by name. It returns "" for an empty advertisement.
func selectHead(refs map[string]object.Hash, caps remote.Capabilities) (string, object.Hash) {
	if h, ok := refs["HEAD"]; ok {
		if target, ok := caps.Symref("HEAD"); ok {
			return target, h
		}
		for _, name := range []string{"refs/heads/main", "refs/heads/master"} {
			if refs[name] == h {
				return name, h
			}
		}
		return "", h
	}
	for _, name := range []string{"refs/heads/main", "refs/heads/master"} {
		if h, ok := refs[name]; ok {
			return name, h
		}
	}
	var branches []string
	for name := range refs {
		if strings.HasPrefix(name, "refs/heads/") {
			branches = append(branches, name)
		}
	}
	if len(branches) == 0 {
		return "", ""
	}
	sort.Strings(branches)
	return branches[0], refs[branches[0]]
}

// writeAdvertisedRefs records every advertised ref under .git/ and points
// HEAD at headRef, or at head directly when there is no branch to follow.
// Peeled tag entries and names outside refs/ are not written.
func writeAdvertisedRefs(r *Repo, refs map[string]object.Hash, headRef string, head object.Hash) error {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !strings.HasPrefix(name, "refs/") || strings.HasSuffix(name, "^{}") {
			continue
		}
		if err := r.UpdateRef(name, refs[name]); err != nil {
			return err
		}
	}

	switch {
	case head == "":
		return nil
	case headRef != "":
		if _, ok := refs[headRef]; !ok {
			if err := r.UpdateRef(headRef, head); err != nil {
				return err
			}
		}
		return r.WriteHead(headRef)
	default:
		return r.WriteHead(string(head))
	}
}

// treeOf peels h through annotated tags and commits down to a tree.
func treeOf(store *object.Store, h object.Hash) (object.Hash, error) {
	for i := 0; i < 8; i++ {
		objType, payload, err := store.Read(h)
		if err != nil {
			return "", err
		}
		switch objType {
		case object.TypeTree:
			return h, nil
		case object.TypeCommit:
			c, err := object.UnmarshalCommit(payload)
			if err != nil {
				return "", errkind.Wrap(errkind.CorruptObject, err, "read commit "+string(h))
			}
			h = c.TreeHash
		case object.TypeTag:
			t, err := object.UnmarshalTag(payload)
			if err != nil {
				return "", errkind.Wrap(errkind.CorruptObject, err, "read tag "+string(h))
			}
			h = t.Object
		case object.TypeBlob:
			return "", errkind.Errorf(errkind.CorruptObject, "head %s is a blob, not a commit", h)
		default:
			return "", errkind.Errorf(errkind.UnsupportedObjectType, "head %s has type %s", h, objType)
		}
	}
	return "", errkind.Errorf(errkind.CorruptObject, "head %s: tag chain too deep", h)
}
