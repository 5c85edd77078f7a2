package repo

import (
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/odvcencio/minigit/pkg/object"
)

// GitDirName is the repository metadata directory inside the worktree.
const GitDirName = ".git"

// Repo represents an opened repository.
type Repo struct {
	RootDir string        // working directory root
	GitDir  string        // .git/ directory
	Store   *object.Store // content-addressed object store
}

// Options tunes how a repository's store is opened.
type Options struct {
	// CompressionLevel is the zlib level for new loose objects.
	CompressionLevel int
}

func newRepo(root, gitDir string, opts Options) *Repo {
	return &Repo{
		RootDir: root,
		GitDir:  gitDir,
		Store:   object.NewStoreWithOptions(gitDir, object.StoreOptions{CompressionLevel: opts.CompressionLevel}),
	}
}

// DefaultOptions returns Options with the library default compression.
func DefaultOptions() Options {
	return Options{CompressionLevel: -1}
}

// Worktree returns the working directory as a filesystem rooted at RootDir.
func (r *Repo) Worktree() billy.Filesystem {
	return osfs.New(r.RootDir)
}
