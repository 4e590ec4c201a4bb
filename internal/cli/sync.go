package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/resellerdesk/backend/internal/app"
	"github.com/kimhsiao/resellerdesk/backend/internal/notify"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass and exit",
		Long: `Replay every queued mutation into the remote store once.

Mutations the remote rejects stay queued for the next pass. The command
exits with status 1 when any mutation failed.

Examples:
  resellerd sync
  resellerd sync --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	out := newFormatter(opts, cmd.OutOrStdout())

	rt, err := app.Open(ctx, opts.config, notify.NewLog(), app.ProbeOnce(ctx, opts.config))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer rt.Close()

	result, err := rt.Engine.ForceSync(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "sync failed", err)
	}

	err = out.Success(result, func(w io.Writer) {
		if result.Declined() {
			fmt.Fprintf(w, "Sync skipped: %s\n", result.Skipped)
			return
		}
		fmt.Fprintf(w, "Synced %d, failed %d in %s\n", result.Succeeded, result.Failed, result.Duration)
	})
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d mutations failed to sync", result.Failed))
	}
	return nil
}
