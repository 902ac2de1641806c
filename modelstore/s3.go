package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultRegion = "us-east-1"

type S3Options struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
	Anonymous    bool
	Timeout      time.Duration
}

// S3Fetcher downloads artifacts with a single GetObject call.
type S3Fetcher struct {
	client  *s3.Client
	timeout time.Duration
}

// NewS3Fetcher resolves credentials and region through the default AWS chain;
// opts override what the environment provides.
func NewS3Fetcher(ctx context.Context, opts S3Options) (*S3Fetcher, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Anonymous {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return NewS3FetcherWithClient(client, opts.Timeout), nil
}

func NewS3FetcherWithClient(client *s3.Client, timeout time.Duration) *S3Fetcher {
	return &S3Fetcher{client: client, timeout: timeout}
}

// Fetch writes the object to a temporary file next to destination and
// renames it into place, so a failed download never leaves a partial
// artifact behind.
func (f *S3Fetcher) Fetch(ctx context.Context, bucket, key, destination string) (err error) {
	if bucket == "" || key == "" {
		return errors.New("bucket and key are required")
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destination)
}
