package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
	"github.com/odvcencio/minigit/pkg/repo"
)

func newCatFileCmd(env *cliEnv) *cobra.Command {
	var pretty, showType, showSize bool

	cmd := &cobra.Command{
		Use:   "cat-file (-p | -t | -s) <object>",
		Short: "Print an object's content, type or size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, b := range []bool{pretty, showType, showSize} {
				if b {
					selected++
				}
			}
			if selected != 1 {
				return errkind.Errorf(errkind.Usage, "cat-file: exactly one of -p, -t or -s is required")
			}

			r, err := env.openRepo()
			if err != nil {
				return err
			}
			h, err := r.ResolveRef(args[0])
			if err != nil {
				return err
			}
			objType, payload, err := r.Store.Read(h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case showType:
				fmt.Fprintln(out, objType)
			case showSize:
				fmt.Fprintln(out, len(payload))
			case objType == object.TypeTree:
				entries, _ := object.ParseTreeEntries(payload)
				printTreeEntries(out, entries, false)
			default:
				_, err := out.Write(payload)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "pretty-print the object's content")
	cmd.Flags().BoolVarP(&showType, "type", "t", false, "print the object's type")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "print the object's size")
	return cmd
}

func newHashObjectCmd(env *cliEnv) *cobra.Command {
	var write, stdin bool

	cmd := &cobra.Command{
		Use:   "hash-object [-w] (<file> | --stdin)",
		Short: "Compute a blob's hash and optionally store it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			switch {
			case stdin && len(args) == 0:
				data, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errkind.Errorf(errkind.IoFailure, "hash-object: read stdin: %s", err)
				}
			case !stdin && len(args) == 1:
				data, err = os.ReadFile(args[0])
				if err != nil {
					return errkind.Errorf(errkind.IoFailure, "hash-object: read %s: %s", args[0], err)
				}
			default:
				return errkind.Errorf(errkind.Usage, "hash-object: give exactly one of <file> or --stdin")
			}

			h := object.HashObject(object.TypeBlob, data)
			if write {
				r, err := env.openRepo()
				if err != nil {
					return err
				}
				if h, err = r.Store.WriteBlob(&object.Blob{Data: data}); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the blob into the object store")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read the content from standard input")
	return cmd
}

func newLsTreeCmd(env *cliEnv) *cobra.Command {
	var nameOnly bool

	cmd := &cobra.Command{
		Use:   "ls-tree [--name-only] <tree-ish>",
		Short: "List the entries of a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := env.openRepo()
			if err != nil {
				return err
			}
			h, err := r.ResolveRef(args[0])
			if err != nil {
				return err
			}
			tree, err := peelToTree(r, h)
			if err != nil {
				return err
			}
			printTreeEntries(cmd.OutOrStdout(), tree.Entries, nameOnly)
			return nil
		},
	}
	cmd.Flags().BoolVar(&nameOnly, "name-only", false, "list only entry names")
	return cmd
}

// peelToTree reads h as a tree, following a commit to its tree.
func peelToTree(r *repo.Repo, h object.Hash) (*object.TreeObj, error) {
	objType, _, err := r.Store.Read(h)
	if err != nil {
		return nil, err
	}
	if objType == object.TypeCommit {
		c, err := r.Store.ReadCommit(h)
		if err != nil {
			return nil, err
		}
		h = c.TreeHash
	}
	return r.Store.ReadTree(h)
}

// printTreeEntries writes entries the way git ls-tree does:
// "<mode> <type> <hash>\t<name>", modes zero-padded to six digits.
func printTreeEntries(w io.Writer, entries []object.TreeEntry, nameOnly bool) {
	for _, e := range entries {
		if nameOnly {
			fmt.Fprintln(w, e.Name)
			continue
		}
		fmt.Fprintf(w, "%s %s %s\t%s\n", padMode(e.Mode), entryType(e.Mode), e.Hash, e.Name)
	}
}

func padMode(mode string) string {
	if len(mode) >= 6 {
		return mode
	}
	return strings.Repeat("0", 6-len(mode)) + mode
}

func entryType(mode string) string {
	switch mode {
	case object.TreeModeDir:
		return "tree"
	case "160000":
		return "commit"
	default:
		return "blob"
	}
}
