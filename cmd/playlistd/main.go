// Package main is the entry point for playlistd.
// playlistd is a headless audio player that plays collections of local or
// web-hosted tracks, integrates with the desktop media session and takes
// commands over a unix socket and the keyboard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// rootOptions holds the persistent flags
type rootOptions struct {
	configPath string
	verbose    bool
	logFile    string
}

func main() {
	_ = godotenv.Load()

	// Create context that cancels on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:     "playlistd",
		Short:   "Headless collection player",
		Version: Version,
		Long: `playlistd plays collections of audio tracks: every directory under the
library root (or every directory of a web index) is a collection.

Run without a subcommand to start the player. Control a running player
with "playlistd ctl", the desktop media keys, or the keyboard.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, "")
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/playlistd/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this file")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newCtlCommand(opts))
	root.AddCommand(newCollectionsCommand(opts))
	return root
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [collection]",
		Short: "Start the player, optionally selecting a collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := ""
			if len(args) == 1 {
				collection = args[0]
			}
			return runServe(cmd.Context(), opts, collection)
		},
	}
}
