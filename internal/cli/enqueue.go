package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/resellerdesk/backend/internal/app"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
	"github.com/kimhsiao/resellerdesk/backend/internal/notify"
)

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	*RootOptions
	Table     string
	Operation string
	Payload   string
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a mutation without contacting the remote",
		Long: `Queue a mutation locally. It is delivered by the next sync pass.

Examples:
  resellerd enqueue --table clients --op insert --payload '{"name":"Maria"}'
  resellerd enqueue --table servers --op delete --payload '{"id":"s1"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Table, "table", "", "target table (required)")
	_ = cmd.MarkFlagRequired("table")
	cmd.Flags().StringVar(&opts.Operation, "op", "", "insert, update or delete (required)")
	_ = cmd.MarkFlagRequired("op")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "record as a JSON object")

	return cmd
}

func runEnqueue(cmd *cobra.Command, opts *EnqueueOptions) error {
	ctx := cmd.Context()

	payload, err := models.DecodeRecord([]byte(opts.Payload))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --payload", err)
	}

	rt, err := app.Open(ctx, opts.config, notify.NewLog(), false)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer rt.Close()

	id, err := rt.Engine.Enqueue(ctx, models.Table(opts.Table), models.Operation(opts.Operation), payload)
	if err != nil {
		return WrapExitError(ExitCommandError, "enqueue failed", err)
	}

	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Success(map[string]string{"id": id}, func(w io.Writer) {
		fmt.Fprintf(w, "Queued %s\n", id)
	})
}
