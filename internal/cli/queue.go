package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/resellerdesk/backend/internal/app"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
	"github.com/kimhsiao/resellerdesk/backend/internal/notify"
)

// QueueListResult is the json output of queue list.
type QueueListResult struct {
	Items []*models.PendingMutation `json:"items"`
	Total int                       `json:"total"`
	Stats map[string]int            `json:"stats"`
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the pending mutation queue",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueClearCommand(rootOpts))
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued mutations in replay order",
		Long: `List queued mutations in the order they will be replayed.

Examples:
  resellerd queue list
  resellerd queue list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd, rootOpts)
		},
	}
}

func runQueueList(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()

	rt, err := app.Open(ctx, opts.config, notify.NewLog(), false)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer rt.Close()

	items, err := rt.Engine.Pending(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}
	stats, err := rt.Queue.Stats(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}

	result := QueueListResult{Items: items, Total: len(items), Stats: stats}
	return newFormatter(opts, cmd.OutOrStdout()).Success(result, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "Queue is empty")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tTABLE\tOP\tRECORD\tSUBMITTED\tATTEMPTS\tLAST ERROR")
		for _, m := range items {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
				m.Seq, m.Table, m.Operation, m.RecordID,
				m.Submitted().Format(time.RFC3339),
				m.Attempts, m.LastError)
		}
		tw.Flush()
		fmt.Fprintf(w, "%d pending\n", len(items))
	})
}

// QueueClearResult is the json output of queue clear.
type QueueClearResult struct {
	Cleared int `json:"cleared"`
}

func newQueueClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued mutation without syncing it",
		Long: `Drop every queued mutation. Unsynced local writes are lost; the cache
keeps showing them until the next refresh.

Examples:
  resellerd queue clear --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueClear(cmd, rootOpts, yes)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping unsynced writes")
	return cmd
}

func runQueueClear(cmd *cobra.Command, opts *RootOptions, yes bool) error {
	ctx := cmd.Context()

	rt, err := app.Open(ctx, opts.config, notify.NewLog(), false)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer rt.Close()

	n, err := rt.Queue.Count(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}
	if n > 0 && !yes {
		return NewExitError(ExitCommandError, fmt.Sprintf("refusing to drop %d pending mutations without --yes", n))
	}
	if err := rt.Queue.Clear(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to clear queue", err)
	}

	return newFormatter(opts, cmd.OutOrStdout()).Success(QueueClearResult{Cleared: n}, func(w io.Writer) {
		fmt.Fprintf(w, "Dropped %d pending mutations\n", n)
	})
}
