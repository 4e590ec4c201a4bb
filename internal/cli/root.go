// Package cli implements the resellerd command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/resellerdesk/backend/internal/config"
	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DataDir    string
	Remote     string
	Verbose    bool
	Format     string // "json" | "text"

	config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for resellerd.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

// Execute runs the command line with args and returns the process exit code.
// Errors are written to stderr in the selected output format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		newFormatter(opts, stderr).Fail(err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "resellerd",
		Short: "ResellerDesk offline sync daemon",
		Long: `resellerd keeps a local queue of writes made while offline and
replays them into the remote data service once connectivity returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory holding the local database")
	cmd.PersistentFlags().StringVar(&opts.Remote, "remote", "", "remote store kind (postgrest|postgres|memory)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd, opts
}

// load reads the config file and applies flag overrides, then sets up the
// global logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(o.ConfigPath, func(c *config.Config) {
		if o.DataDir != "" {
			c.DataDir = o.DataDir
		}
		if o.Remote != "" {
			c.Remote.Kind = o.Remote
		}
		if o.Verbose {
			c.LogLevel = "debug"
		}
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Init(cmd.ErrOrStderr(), level)

	o.config = cfg
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
