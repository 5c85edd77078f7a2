package repo

import (
	"os"
	"path/filepath"

	"github.com/odvcencio/minigit/pkg/errkind"
)

// defaultHead is the HEAD a fresh repository starts with.
const defaultHead = "ref: refs/heads/main\n"

// Init creates a new repository at path with default options.
func Init(path string) (*Repo, error) {
	return InitWithOptions(path, DefaultOptions())
}

// InitWithOptions creates the .git/ directory structure at path: HEAD,
// objects/ and refs/heads/. It fails if a .git/ directory already exists.
func InitWithOptions(path string, opts Options) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errkind.Errorf(errkind.IoFailure, "init: abs path %s: %s", path, err)
	}
	gitDir := filepath.Join(abs, GitDirName)

	if _, err := os.Stat(gitDir); err == nil {
		return nil, errkind.Errorf(errkind.Usage, "init: repository already exists at %s", gitDir)
	}

	dirs := []string{
		filepath.Join(gitDir, "objects"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "tags"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errkind.Errorf(errkind.IoFailure, "init: mkdir %s: %s", d, err)
		}
	}

	headPath := filepath.Join(gitDir, "HEAD")
	if err := os.WriteFile(headPath, []byte(defaultHead), 0o644); err != nil {
		return nil, errkind.Errorf(errkind.IoFailure, "init: write %s: %s", headPath, err)
	}

	return newRepo(abs, gitDir, opts), nil
}

// Open searches upward from path for a .git/ directory and opens the
// repository with default options.
func Open(path string) (*Repo, error) {
	return OpenWithOptions(path, DefaultOptions())
}

// OpenWithOptions is Open with explicit store options.
func OpenWithOptions(path string, opts Options) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errkind.Errorf(errkind.IoFailure, "open: abs path %s: %s", path, err)
	}

	cur := abs
	for {
		gitDir := filepath.Join(cur, GitDirName)
		info, err := os.Stat(gitDir)
		if err == nil && info.IsDir() {
			return newRepo(cur, gitDir, opts), nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, errkind.Errorf(errkind.Usage, "open: not a git repository (or any parent up to /): %s", abs)
		}
		cur = parent
	}
}
