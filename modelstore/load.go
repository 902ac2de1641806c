package modelstore

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"powercast/ml"
)

type Options struct {
	// Bucket enables remote fetches when non-empty.
	Bucket  string
	Fetcher Fetcher
	Logger  *zap.Logger
	// Load deserializes one artifact; defaults to ml.LoadArtifact.
	Load func(path string) (ml.Predictor, error)
}

// Report summarizes startup. Err combines every LoadError and
// RemoteFetchError encountered.
type Report struct {
	Loaded  []string
	Skipped []string
	err     error
}

func (r *Report) Err() error { return r.err }

func (r *Report) Errors() []error { return multierr.Errors(r.err) }

// Initialize loads every registry entry once. It never fails: models that
// cannot be fetched or deserialized are logged and left out, and the store
// may end up empty.
func Initialize(ctx context.Context, registry Registry, opts Options) (*Store, *Report) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NopFetcher{}
	}
	load := opts.Load
	if load == nil {
		load = ml.LoadArtifact
	}

	report := &Report{}
	loaded := make([]LoadedModel, 0, len(registry))
	seen := make(map[string]struct{}, len(registry))

	for _, entry := range registry {
		log := logger.With(zap.String("model", entry.Name), zap.String("path", entry.Path))

		if _, dup := seen[entry.Name]; dup {
			err := &LoadError{Name: entry.Name, Path: entry.Path, Err: ErrDuplicateName}
			log.Warn("Skipping duplicate model entry")
			report.Skipped = append(report.Skipped, entry.Name)
			report.err = multierr.Append(report.err, err)
			continue
		}
		seen[entry.Name] = struct{}{}

		if opts.Bucket != "" && entry.RemoteKey != "" && !exists(entry.Path) {
			log.Info("Downloading model artifact",
				zap.String("bucket", opts.Bucket), zap.String("key", entry.RemoteKey))
			if err := fetcher.Fetch(ctx, opts.Bucket, entry.RemoteKey, entry.Path); err != nil {
				ferr := &RemoteFetchError{Name: entry.Name, Bucket: opts.Bucket, Key: entry.RemoteKey, Err: err}
				log.Warn("Failed to download model artifact", zap.Error(ferr))
				report.err = multierr.Append(report.err, ferr)
			}
		}

		predictor, err := load(entry.Path)
		if err != nil {
			lerr := &LoadError{Name: entry.Name, Path: entry.Path, Err: err}
			if errors.Is(err, fs.ErrNotExist) {
				log.Warn("Model file not found; this model will be unavailable")
			} else {
				log.Warn("Failed to load model; skipping", zap.Error(err))
			}
			report.Skipped = append(report.Skipped, entry.Name)
			report.err = multierr.Append(report.err, lerr)
			continue
		}

		log.Info("Loaded model")
		report.Loaded = append(report.Loaded, entry.Name)
		loaded = append(loaded, LoadedModel{Name: entry.Name, Predictor: predictor})
	}

	return New(loaded...), report
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
