package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/turbolytics/eventreplay/internal/cmd/run"
	"github.com/turbolytics/eventreplay/internal/record"
	"github.com/turbolytics/eventreplay/internal/replay"
)

const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitParse       = 3
	ExitSink        = 4
	ExitInterrupted = 130
)

func NewRootCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "eventreplay",
		Short: "Replays recorded device events to a message broker in real time",
		Long: `eventreplay reads newline-delimited device events and publishes them
starting at the next full minute, keeping the gaps between events as they
were recorded and stamping each event with the time it was sent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(run.NewCommand())

	return cmd
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	var configErr *replay.ConfigurationError
	var parseErr *record.ParseError
	var sinkErr *replay.SinkError

	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &configErr):
		return ExitConfig
	case errors.As(err, &parseErr):
		return ExitParse
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &sinkErr):
		return ExitSink
	default:
		return ExitFailure
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(ExitCode(err))
	}
}
