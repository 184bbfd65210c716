package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turbolytics/eventreplay/internal/config"
	"github.com/turbolytics/eventreplay/internal/integrations/kafka"
	"github.com/turbolytics/eventreplay/internal/record"
	"github.com/turbolytics/eventreplay/internal/replay"
	"go.uber.org/zap"
)

func NewCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replays the recorded events to the target starting at the next sync boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := config.Load(v)
			if err != nil {
				return &replay.ConfigurationError{Err: err}
			}

			logger, err := config.NewLogger(c)
			if err != nil {
				return &replay.ConfigurationError{Err: err}
			}
			defer logger.Sync()
			l := logger.Named("eventreplay.run")

			loc, err := c.Location()
			if err != nil {
				return &replay.ConfigurationError{Err: err}
			}

			sid := uuid.Must(uuid.NewUUID())
			l.Info("starting replay!",
				zap.String("session_id", sid.String()),
				zap.String("source", c.Source.URI),
				zap.String("target", c.Target.URI),
			)

			session, err := load(ctx, c, loc, l)
			if err != nil {
				return err
			}

			sink, err := config.InitializeSink(ctx, c, l, sid.String(), cmd.OutOrStdout())
			if err != nil {
				return &replay.ConfigurationError{Err: fmt.Errorf("initializing target: %w", err)}
			}
			defer func() {
				// the run context may already be cancelled; closing still gets the full flush timeout
				closeCtx, cancel := context.WithTimeout(context.Background(), c.Target.FlushTimeout)
				defer cancel()
				if err := sink.Close(closeCtx); err != nil {
					l.Error("error closing target", zap.Error(err))
				}
				if k, ok := sink.(*kafka.Sink); ok {
					stats := k.Stats()
					l.Info("target stats",
						zap.String("topic", stats.Topic),
						zap.Int64("total_events", stats.TotalEvents),
						zap.Int64("delivered_events", stats.DeliveredEvents),
						zap.Int64("delivery_error_count", stats.DeliveryErrorCount),
					)
				}
			}()

			s, err := replay.New(
				replay.WithID(sid.String()),
				replay.WithSink(sink),
				replay.WithSynchronizer(replay.NewSynchronizer(c.Sync.Interval, loc)),
				replay.WithLogger(l.Named("scheduler")),
			)
			if err != nil {
				return err
			}

			summary, err := s.Run(ctx, session)
			if err != nil {
				l.Error("replay failed", append(summary.Fields(), zap.Error(err))...)
				return err
			}

			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "", "Path to config file")
	cmd.Flags().StringP("source", "s", config.DefaultSource, "Input file: a path, file://path or s3://bucket/key")
	cmd.Flags().Bool("lenient", false, "Skip malformed lines instead of aborting")
	cmd.Flags().StringP("target", "t", config.DefaultTarget, "Target URL (e.g., kafka://localhost:9092/device-events, stdout://)")
	cmd.Flags().Duration("flush-timeout", config.DefaultFlushTimeout, "How long to wait for outstanding messages at the end of the replay")
	cmd.Flags().Duration("sync-interval", config.DefaultInterval, "Start on the next multiple of this interval; 0 starts immediately")
	cmd.Flags().String("timezone", "Local", "Timezone for sync boundaries and recorded timestamps")
	cmd.Flags().String("log-level", "info", "Log level")

	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		panic(err)
	}

	return cmd
}

func load(ctx context.Context, c *config.Replay, loc *time.Location, l *zap.Logger) (*replay.Session, error) {
	rc, err := config.OpenSource(ctx, c, l)
	if err != nil {
		return nil, &replay.ConfigurationError{Err: fmt.Errorf("opening source %s: %w", c.Source.URI, err)}
	}
	defer rc.Close()

	session, err := replay.Load(rc, c.Source.URI, replay.LoadOptions{
		Location: loc,
		Lenient:  c.Source.Lenient,
		Logger:   l.Named("loader"),
	})

	var parseErr *record.ParseError
	switch {
	case err == nil:
		return session, nil
	case errors.As(err, &parseErr):
		return nil, err
	default:
		// empty or unreadable input
		return nil, &replay.ConfigurationError{Err: err}
	}
}
