package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/ipc"
	"github.com/austinkregel/local-media/playlistd/internal/player"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// ctlCommand describes one "playlistd ctl" subcommand
type ctlCommand struct {
	use   string
	short string
	args  cobra.PositionalArgs
	// raw leaves arguments such as "-5s" unparsed as flags
	raw bool
	run func(ctx context.Context, c *ipc.Client, out io.Writer, args []string) error
}

// simple sends cmd with the payload built from args
func simple(cmd ipc.CommandType, payload func(args []string) (interface{}, error)) func(context.Context, *ipc.Client, io.Writer, []string) error {
	return func(ctx context.Context, c *ipc.Client, out io.Writer, args []string) error {
		var data interface{}
		if payload != nil {
			var err error
			if data, err = payload(args); err != nil {
				return err
			}
		}
		return c.Call(ctx, cmd, data, nil)
	}
}

func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Newf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

var ctlCommands = []ctlCommand{
	{use: "play [track-id]", short: "Start or resume playback, or play a track", args: cobra.MaximumNArgs(1),
		run: simple(ipc.CmdPlay, func(args []string) (interface{}, error) {
			if len(args) == 0 {
				return nil, nil
			}
			return ipc.PlayRequest{ID: args[0]}, nil
		})},
	{use: "pause", short: "Pause playback", args: cobra.NoArgs, run: simple(ipc.CmdPause, nil)},
	{use: "resume", short: "Resume paused playback", args: cobra.NoArgs, run: simple(ipc.CmdResume, nil)},
	{use: "toggle", short: "Toggle play and pause", args: cobra.NoArgs, run: simple(ipc.CmdPlayPause, nil)},
	{use: "stop", short: "Stop playback", args: cobra.NoArgs, run: simple(ipc.CmdStop, nil)},
	{use: "next", short: "Skip to the next track", args: cobra.NoArgs, run: simple(ipc.CmdNext, nil)},
	{use: "prev", short: "Go back to the previous track", args: cobra.NoArgs, run: simple(ipc.CmdPrev, nil)},
	{use: "seek <position>", short: "Seek to a position (e.g. 1m30s or 90)", args: cobra.ExactArgs(1),
		run: simple(ipc.CmdSeek, func(args []string) (interface{}, error) {
			d, err := parseDuration(args[0])
			return ipc.SeekRequest{Position: d.Milliseconds()}, err
		})},
	{use: "seekby <delta>", short: "Seek relative to the current position (e.g. -5s)", args: cobra.ExactArgs(1), raw: true,
		run: simple(ipc.CmdSeekBy, func(args []string) (interface{}, error) {
			d, err := parseDuration(args[0])
			return ipc.SeekByRequest{Delta: d.Milliseconds()}, err
		})},
	{use: "volume <level>", short: "Set the volume, 0.0 to 1.0", args: cobra.ExactArgs(1),
		run: simple(ipc.CmdVolume, func(args []string) (interface{}, error) {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return nil, errors.Newf("invalid volume %q", args[0])
			}
			return ipc.VolumeRequest{Level: v}, nil
		})},
	{use: "collection <name>", short: "Switch to a collection", args: cobra.ExactArgs(1),
		run: simple(ipc.CmdSetCollection, func(args []string) (interface{}, error) {
			return ipc.CollectionRequest{Name: args[0]}, nil
		})},
	{use: "policy <none|shuffle|repeat-one|repeat-all>", short: "Set the queue policy", args: cobra.ExactArgs(1),
		run: simple(ipc.CmdSetPolicy, func(args []string) (interface{}, error) {
			return ipc.PolicyRequest{Policy: args[0]}, nil
		})},
	{use: "status", short: "Print the player status", args: cobra.NoArgs,
		run: func(ctx context.Context, c *ipc.Client, out io.Writer, args []string) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(out, st)
		}},
	{use: "tracks", short: "List the tracks of the active collection", args: cobra.NoArgs,
		run: func(ctx context.Context, c *ipc.Client, out io.Writer, args []string) error {
			resp, err := c.Tracks(ctx)
			if err != nil {
				return err
			}
			for _, t := range resp.Tracks {
				fmt.Fprintf(out, "%s\t%s\n", t.ID, t.Title)
			}
			return nil
		}},
	{use: "watch", short: "Print status updates until interrupted", args: cobra.NoArgs,
		run: func(ctx context.Context, c *ipc.Client, out io.Writer, args []string) error {
			updates, err := c.Subscribe(ctx)
			if err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case st, ok := <-updates:
					if !ok {
						return nil
					}
					fmt.Fprintln(out, formatStatus(st))
				}
			}
		}},
}

func formatStatus(st player.Status) string {
	track := "-"
	if st.Track != nil {
		track = st.Track.ID
	}
	line := fmt.Sprintf("%-9s %s %s/%s vol=%.2f %s", st.State, track,
		st.Elapsed().Truncate(time.Second), (time.Duration(st.Duration) * time.Millisecond).Truncate(time.Second),
		st.Volume, st.Policy)
	if st.Error != "" {
		line += fmt.Sprintf(" error=%s(%s)", st.ErrorKind, st.Error)
	}
	return line
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withClient resolves the socket from the config and dials it
func withClient(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, c *ipc.Client) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	c, err := ipc.Dial(dialCtx, cfg.IPC.Socket)
	if err != nil {
		return errors.Wrap(err, "cannot reach playlistd, is it running?")
	}
	defer c.Close()
	return fn(ctx, c)
}

func newCtlCommand(opts *rootOptions) *cobra.Command {
	ctl := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running player",
	}
	for _, def := range ctlCommands {
		def := def
		ctl.AddCommand(&cobra.Command{
			Use:                def.use,
			Short:              def.short,
			Args:               def.args,
			DisableFlagParsing: def.raw,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, opts, func(ctx context.Context, c *ipc.Client) error {
					return def.run(ctx, c, cmd.OutOrStdout(), args)
				})
			},
		})
	}
	return ctl
}

func newCollectionsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the collections of the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			lib, err := openLibrary(cfg.Library, cfg.Audio.ReadTimeout)
			if err != nil {
				return err
			}
			names, err := lib.Collections(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
