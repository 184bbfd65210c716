package config

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/turbolytics/eventreplay/internal/integrations/kafka"
	"github.com/turbolytics/eventreplay/internal/integrations/stdout"
	"github.com/turbolytics/eventreplay/internal/local"
	"github.com/turbolytics/eventreplay/internal/replay"
	"github.com/turbolytics/eventreplay/internal/s3"
	"go.uber.org/zap"
)

// OpenSource opens the input named by the source uri: a local path,
// file://path or s3://bucket/key?region=...&endpoint=...&force_path_style=true.
func OpenSource(ctx context.Context, r *Replay, logger *zap.Logger) (io.ReadCloser, error) {
	u, err := url.Parse(r.Source.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid source URI: %w", err)
	}

	switch u.Scheme {
	case "", "file":
		return local.New(local.WithLogger(logger)).Open(ctx, u.Host+u.Path)
	case "s3":
		q := u.Query()
		reader, err := s3.New(
			s3.WithLogger(logger),
			s3.WithBucket(u.Host),
			s3.WithRegion(q.Get("region")),
			s3.WithEndpoint(q.Get("endpoint")),
			s3.WithForcePathStyle(q.Get("force_path_style") == "true"),
		)
		if err != nil {
			return nil, err
		}
		return reader.Open(ctx, u.Path)
	default:
		return nil, fmt.Errorf("unsupported source protocol: %s", u.Scheme)
	}
}

// InitializeSink builds and connects the sink named by the target uri.
// stdout:// writes to out.
func InitializeSink(ctx context.Context, r *Replay, logger *zap.Logger, sessionID string, out io.Writer) (replay.Sink, error) {
	u, err := url.Parse(r.Target.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid target URI: %w", err)
	}

	switch u.Scheme {
	case "kafka":
		sink, err := kafka.NewSink(u,
			kafka.WithLogger(logger.Named("kafka")),
			kafka.WithSessionID(sessionID),
			kafka.WithFlushTimeout(r.Target.FlushTimeout),
		)
		if err != nil {
			return nil, err
		}
		logger.Info("initializing kafka target",
			zap.String("brokers", u.Host),
			zap.String("topic", sink.Topic()))
		if err := sink.Connect(ctx); err != nil {
			return nil, err
		}
		return sink, nil
	case "stdout":
		logger.Info("initializing stdout target")
		return stdout.New(out), nil
	default:
		return nil, fmt.Errorf("unsupported target protocol: %s", u.Scheme)
	}
}
