package modelstore

import (
	"context"
	"errors"
)

var ErrRemoteDisabled = errors.New("remote storage is not configured")

// Fetcher downloads one object into a local destination path.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, key, destination string) error
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, bucket, key, destination string) error

func (f FetcherFunc) Fetch(ctx context.Context, bucket, key, destination string) error {
	return f(ctx, bucket, key, destination)
}

// NopFetcher is used when no remote storage is available.
type NopFetcher struct{}

func (NopFetcher) Fetch(context.Context, string, string, string) error {
	return ErrRemoteDisabled
}
