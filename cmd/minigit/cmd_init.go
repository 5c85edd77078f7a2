package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/repo"
)

func newInitCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return errkind.Errorf(errkind.IoFailure, "resolve path %s: %s", path, err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return errkind.Errorf(errkind.IoFailure, "create directory %s: %s", abs, err)
			}

			r, err := repo.InitWithOptions(abs, env.repoOptions())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty repository in %s%c\n", r.GitDir, filepath.Separator)
			return nil
		},
	}
}
