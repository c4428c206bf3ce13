// Package timestamp derives a single UTC capture timestamp, with source
// provenance, for every raw deployment file. No timestamp is ever
// fabricated: a file whose capture time cannot be derived is skipped, not
// assigned a default. Resolution never consults filesystem mtimes, which
// are not stable across copies.
package timestamp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seafloor-imaging/go-voyage-media/voyage"
	"gocloud.dev/blob"
)

// ErrUnresolved is returned when no capture timestamp can be derived for a
// file from any source.
var ErrUnresolved = errors.New("unresolved timestamp")

// Resolution is a resolved capture timestamp together with where it came
// from.
type Resolution struct {
	// The resolved UTC capture timestamp.
	Timestamp time.Time
	// The source the timestamp was derived from.
	Source voyage.TimestampSource
}

// Resolver derives capture timestamps for the files of one deployment. It
// tries its filename pattern matchers in order first, then falls back to
// the file's own embedded metadata (EXIF for images, moov/mvhd for videos).
type Resolver struct {
	matchers []PatternMatcher
	logger   *slog.Logger
}

// NewResolver returns a Resolver for the given deployment. The default
// matcher set recognizes, in order: the canonical grammar for the
// deployment's instruments, a YYYYMMDDTHHMMSSZ token, a YYYYMMDD_HHMMSS
// token and the stills-camera date convention.
func NewResolver(cfg *voyage.Config, deployment_id string, logger *slog.Logger) *Resolver {

	matchers := []PatternMatcher{
		CanonicalMatcher(deployment_id, cfg.ImageInstrument, cfg.VideoInstrument),
		ISOTokenMatcher(),
		CompactTokenMatcher(),
		StillsMatcher(),
	}

	return &Resolver{
		matchers: matchers,
		logger:   logger.With("deployment", deployment_id),
	}
}

// Resolve returns the capture timestamp for the file stored under key in
// bucket. Resolving the same unchanged file twice yields the identical
// result.
func (r *Resolver) Resolve(ctx context.Context, bucket *blob.Bucket, key string, kind voyage.Kind) (*Resolution, error) {

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// pass
	}

	for _, m := range r.matchers {

		t, ok := m(key)

		if ok {

			rsp := &Resolution{
				Timestamp: t,
				Source:    voyage.SourceFilename,
			}

			return rsp, nil
		}
	}

	var t time.Time
	var err error

	switch kind {
	case voyage.KindImage:
		t, err = exifTimestamp(ctx, bucket, key)
	case voyage.KindVideo:
		t, err = mvhdTimestamp(ctx, bucket, key)
	default:
		return nil, fmt.Errorf("%w: no timestamp source for '%s'", ErrUnresolved, key)
	}

	if err != nil {
		r.logger.Debug("No embedded timestamp", "key", key, "error", err)
		return nil, fmt.Errorf("%w: '%s'", ErrUnresolved, key)
	}

	rsp := &Resolution{
		Timestamp: t,
		Source:    voyage.SourceEmbedded,
	}

	return rsp, nil
}
