package s3

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"
)

type Option func(*Reader)

func WithRegion(region string) Option {
	return func(r *Reader) {
		r.Region = region
	}
}

func WithBucket(bucket string) Option {
	return func(r *Reader) {
		r.Bucket = bucket
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

func WithForcePathStyle(forcePathStyle bool) Option {
	return func(r *Reader) {
		r.ForcePathStyle = forcePathStyle
	}
}

func WithEndpoint(endpoint string) Option {
	return func(r *Reader) {
		r.Endpoint = endpoint
	}
}

// Reader streams input objects out of a bucket.
type Reader struct {
	logger *zap.Logger
	client *s3.S3

	Endpoint       string
	Region         string
	Bucket         string
	ForcePathStyle bool
}

func New(opts ...Option) (*Reader, error) {
	r := &Reader{
		logger: zap.NewNop(),
	}

	for _, o := range opts {
		o(r)
	}

	awsConfig := &aws.Config{
		S3ForcePathStyle: aws.Bool(r.ForcePathStyle),
	}
	if r.Region != "" {
		awsConfig.Region = aws.String(r.Region)
	}
	if r.Endpoint != "" {
		awsConfig.Endpoint = aws.String(r.Endpoint)
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsConfig,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}
	r.client = s3.New(sess)

	return r, nil
}

func (r *Reader) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key = strings.TrimPrefix(key, "/")

	r.logger.Debug(
		"S3 reader open",
		zap.String("key", key),
		zap.String("bucket", r.Bucket),
	)

	out, err := r.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}
