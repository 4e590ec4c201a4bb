package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/resellerdesk/backend/internal/app"
	"github.com/kimhsiao/resellerdesk/backend/internal/notify"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, queue size and sync times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := app.Open(ctx, rootOpts.config, notify.NewLog(), app.ProbeOnce(ctx, rootOpts.config))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to start", err)
			}
			defer rt.Close()

			state, err := rt.Engine.State(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read sync state", err)
			}

			return newFormatter(rootOpts, cmd.OutOrStdout()).Success(state, func(w io.Writer) {
				online := "offline"
				if state.IsOnline {
					online = "online"
				}
				fmt.Fprintf(w, "Network:   %s\n", online)
				fmt.Fprintf(w, "Pending:   %d\n", state.PendingCount)
				fmt.Fprintf(w, "Last sync: %s\n", formatTime(state.LastSyncAt))
				fmt.Fprintf(w, "Next sync: %s\n", formatTime(state.NextSyncAt))
			})
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04 MST")
}
