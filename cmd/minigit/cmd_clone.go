package main

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/repo"
)

func newCloneCmd(env *cliEnv) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "clone <url> [directory]",
		Short: "Clone a repository over smart HTTP",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			dest := defaultCloneDir(source)
			if len(args) == 2 {
				dest = args[1]
			}
			if strings.TrimSpace(dest) == "" {
				return errkind.Errorf(errkind.Usage, "clone: cannot derive a directory name from %q; pass one", source)
			}

			stderr := cmd.ErrOrStderr()
			repoOpts := env.repoOptions()
			opts := repo.CloneOptions{
				Client: env.clientOptions(),
				Repo:   &repoOpts,
				Logger: env.logger,
			}
			if !quiet {
				opts.OnProgress = func(msg string) { fmt.Fprint(stderr, "remote: "+msg) }
				fmt.Fprintf(stderr, "Cloning into '%s'...\n", dest)
			}

			res, err := repo.Clone(cmd.Context(), source, dest, opts)
			if err != nil {
				return err
			}
			switch {
			case quiet:
			case res.Head == "":
				fmt.Fprintln(stderr, "warning: You appear to have cloned an empty repository.")
			case res.Unpack != nil:
				fmt.Fprintf(stderr, "Received %d objects, checked out %s\n", res.Unpack.Header.NumObjects, res.Head)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}

// defaultCloneDir derives "proj" from ".../proj.git" or ".../proj/".
func defaultCloneDir(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	base := path.Base(strings.TrimRight(u.Path, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, ".git")
}
