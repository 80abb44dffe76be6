package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"example.com/closet/internal/platform"
)

// version is set at build time.
var version = "dev"

// resolvePaths and now are replaced in tests.
var (
	resolvePaths = platform.DefaultPaths
	now          = time.Now
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes args against it.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(&globalFlags{})
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	serverURL  string
	timezone   string
}

func newRootCommand(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "closet",
		Short: "Browse your closet activity from the terminal",
		Long: `closet shows what happened in your closet, grouped by day:
outfits logged or deleted, items added and streaks reached.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config TOML (defaults to the user config dir)")
	root.PersistentFlags().StringVar(&flags.serverURL, "server", "", "activity API base URL, overriding server.base_url")
	root.PersistentFlags().StringVar(&flags.timezone, "tz", "", "IANA time zone for day labels, overriding feed.timezone")

	root.AddCommand(
		newFeedCommand(flags),
		newListCommand(flags),
		newRecordCommand(flags),
		newLoginCommand(flags),
		newLogoutCommand(flags),
		newPathsCommand(flags),
		newConfigCommand(flags),
	)
	return root
}
