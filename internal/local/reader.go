package local

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

type Option func(*Reader)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// Reader opens input files from the local filesystem.
type Reader struct {
	logger *zap.Logger
}

func New(opts ...Option) *Reader {
	r := &Reader{
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	r.logger.Info("opening file", zap.String("path", path))

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return os.Open(path)
}
