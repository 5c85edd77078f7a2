package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/minigit/pkg/config"
	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/remote"
	"github.com/odvcencio/minigit/pkg/repo"
)

const version = "0.1.0-dev"

// cliEnv is the state shared by every subcommand once flags are parsed.
type cliEnv struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *slog.Logger
}

func (e *cliEnv) load(stderr io.Writer) error {
	path := e.configPath
	if path == "" {
		path = os.Getenv(config.EnvPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	if e.verbose {
		level = slog.LevelDebug
	}
	e.cfg = cfg
	e.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

func (e *cliEnv) repoOptions() repo.Options {
	return repo.Options{CompressionLevel: e.cfg.Store.CompressionLevel}
}

func (e *cliEnv) clientOptions() remote.ClientOptions {
	return remote.ClientOptions{
		Timeout:          e.cfg.HTTP.Timeout.Duration,
		UserAgent:        e.cfg.HTTP.UserAgent,
		MaxResponseBytes: e.cfg.HTTP.MaxResponseBytes,
		Logger:           e.logger,
	}
}

func (e *cliEnv) openRepo() (*repo.Repo, error) {
	return repo.OpenWithOptions(".", e.repoOptions())
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{}
	root := &cobra.Command{
		Use:           "minigit",
		Short:         "A minimal git object store and smart-HTTP clone",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&env.configPath, "config", "", "path to a TOML config file (default $"+config.EnvPath+")")
	root.PersistentFlags().BoolVarP(&env.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(env))
	root.AddCommand(newCatFileCmd(env))
	root.AddCommand(newHashObjectCmd(env))
	root.AddCommand(newLsTreeCmd(env))
	root.AddCommand(newWriteTreeCmd(env))
	root.AddCommand(newCommitTreeCmd(env))
	root.AddCommand(newCommitCmd(env))
	root.AddCommand(newCloneCmd(env))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "minigit:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error categories to process exit codes: 2 for bad usage,
// 1 for everything else.
func exitCode(err error) int {
	if errkind.Is(err, errkind.Usage) {
		return 2
	}
	return 1
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "minigit", version)
		},
	}
}
