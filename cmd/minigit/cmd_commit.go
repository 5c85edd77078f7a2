package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/repo"
)

func newWriteTreeCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "write-tree",
		Short: "Write the working directory as a tree object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := env.openRepo()
			if err != nil {
				return err
			}
			h, err := r.WriteTree()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func newCommitTreeCmd(env *cliEnv) *cobra.Command {
	var parent, message string

	cmd := &cobra.Command{
		Use:   "commit-tree <tree> [-p <parent>] -m <message>",
		Short: "Create a commit object for a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				return errkind.Errorf(errkind.Usage, "commit-tree: a message is required (-m)")
			}
			r, err := env.openRepo()
			if err != nil {
				return err
			}
			tree, err := r.ResolveRef(args[0])
			if err != nil {
				return err
			}
			opts := repo.CommitOptions{}
			if parent != "" {
				if opts.Parent, err = r.ResolveRef(parent); err != nil {
					return err
				}
			}
			h, err := repo.CommitTree(r.Store, tree, message, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().StringVarP(&parent, "parent", "p", "", "parent commit")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}

func newCommitCmd(env *cliEnv) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "commit -m <message>",
		Short: "Commit the working directory on top of HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				return errkind.Errorf(errkind.Usage, "commit: a message is required (-m)")
			}
			r, err := env.openRepo()
			if err != nil {
				return err
			}
			h, err := r.Commit(message, repo.CommitOptions{})
			if err != nil {
				return err
			}
			head, err := r.Head()
			if err != nil {
				return err
			}
			firstLine, _, _ := strings.Cut(message, "\n")
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", strings.TrimPrefix(head, "refs/heads/"), h[:7], firstLine)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}
