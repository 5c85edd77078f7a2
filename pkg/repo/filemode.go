package repo

import (
	"os"

	"github.com/odvcencio/minigit/pkg/object"
)

// filePermFromMode returns the permission a checked-out file gets, and
// false for modes the worktree does not materialize. Trees received from a
// remote may carry 100755; trees built locally only record 100644.
func filePermFromMode(mode string) (os.FileMode, bool) {
	switch mode {
	case object.TreeModeFile:
		return 0o644, true
	case object.TreeModeExecutable:
		return 0o755, true
	default:
		return 0, false
	}
}
