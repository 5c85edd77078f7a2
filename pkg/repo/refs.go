package repo

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
)

const (
	symrefPrefix = "ref: "

	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// Head reads .git/HEAD. If the content starts with "ref: ", it returns the
// ref path (e.g., "refs/heads/main"). Otherwise it returns the raw content
// as a detached hash string.
func (r *Repo) Head() (string, error) {
	headPath := filepath.Join(r.GitDir, "HEAD")
	data, err := os.ReadFile(headPath)
	if err != nil {
		return "", errkind.Errorf(errkind.IoFailure, "head: read %s: %s", headPath, err)
	}
	content := strings.TrimRight(string(data), "\n")
	if target, ok := strings.CutPrefix(content, symrefPrefix); ok {
		return target, nil
	}
	return content, nil
}

// WriteHead points HEAD at target. A target beginning with "refs/" is
// written as a symbolic ref; anything else must be a full object hash and
// detaches HEAD.
func (r *Repo) WriteHead(target string) error {
	var content string
	if strings.HasPrefix(target, "refs/") {
		if err := checkRefName(target); err != nil {
			return err
		}
		content = symrefPrefix + target + "\n"
	} else {
		if err := object.ValidateHash(object.Hash(target)); err != nil {
			return errkind.Wrap(errkind.Usage, err, "write HEAD")
		}
		content = target + "\n"
	}
	return r.writeRefFile("HEAD", content)
}

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. "HEAD": read HEAD; a symbolic HEAD resolves its target.
//  2. Names starting with "refs/" are read as .git/<name>.
//  3. Otherwise "refs/heads/<name>", then "refs/tags/<name>".
//  4. A full 40-hex name resolves to itself.
//
// A ref that does not exist is ObjectNotFound.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.ResolveRef(head)
		}
		if err := object.ValidateHash(object.Hash(head)); err != nil {
			return "", errkind.Errorf(errkind.CorruptObject, "resolve HEAD: detached value %q is not a hash", head)
		}
		return object.Hash(head), nil
	}

	candidates := []string{name}
	if !strings.HasPrefix(name, "refs/") {
		candidates = []string{"refs/heads/" + name, "refs/tags/" + name}
	}
	for _, ref := range candidates {
		if err := checkRefName(ref); err != nil {
			return "", err
		}
		h, ok, err := r.readRef(ref)
		if err != nil {
			return "", err
		}
		if ok {
			return h, nil
		}
	}
	if object.ValidateHash(object.Hash(name)) == nil {
		return object.Hash(name), nil
	}
	return "", errkind.Errorf(errkind.ObjectNotFound, "resolve ref %q: not found", name)
}

// readRef reads the hash stored in a ref file. ok is false when the file
// does not exist.
func (r *Repo) readRef(name string) (object.Hash, bool, error) {
	refPath := filepath.Join(r.GitDir, filepath.FromSlash(name))
	data, err := os.ReadFile(refPath)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errkind.Errorf(errkind.IoFailure, "read ref %q: %s", name, err)
	}
	h := object.Hash(strings.TrimSpace(string(data)))
	if err := object.ValidateHash(h); err != nil {
		return "", false, errkind.Errorf(errkind.CorruptObject, "read ref %q: %s holds %q, not a hash", name, refPath, h)
	}
	return h, true, nil
}

// UpdateRef writes a hash to the named ref file under .git/ using
// lockfile + rename so readers never observe a partial value. Parent
// directories are created as needed.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	if err := checkRefName(name); err != nil {
		return err
	}
	if err := object.ValidateHash(h); err != nil {
		return errkind.Wrap(errkind.Usage, err, "update ref "+name)
	}
	return r.writeRefFile(name, string(h)+"\n")
}

func (r *Repo) writeRefFile(name, content string) error {
	refPath := filepath.Join(r.GitDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return errkind.Errorf(errkind.IoFailure, "update ref %q: mkdir: %s", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return errkind.Errorf(errkind.IoFailure, "update ref %q: lock: %s", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	if _, err := lockFile.WriteString(content); err != nil {
		return errkind.Errorf(errkind.IoFailure, "update ref %q: write: %s", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return errkind.Errorf(errkind.IoFailure, "update ref %q: sync: %s", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return errkind.Errorf(errkind.IoFailure, "update ref %q: close: %s", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return errkind.Errorf(errkind.IoFailure, "update ref %q: rename: %s", name, err)
	}
	cleanupLock = false
	return nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, errkind.Errorf(errkind.IoFailure, "timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

// checkRefName rejects names that would escape the git directory or that
// git itself refuses.
func checkRefName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") ||
		strings.HasSuffix(name, ".lock") || strings.ContainsAny(name, "\x00\\ ~^:?*[") {
		return errkind.Errorf(errkind.Usage, "invalid ref name %q", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." || strings.HasPrefix(part, ".") {
			return errkind.Errorf(errkind.Usage, "invalid ref name %q", name)
		}
	}
	return nil
}

// ListRefs lists references under .git/refs.
// Names are returned relative to refs root, e.g. "heads/main", "tags/v1".
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(r.GitDir, "refs")
	dir := root
	if strings.TrimSpace(prefix) != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[name] = object.Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, errkind.Errorf(errkind.IoFailure, "list refs: %s", err)
	}
	return refs, nil
}
