// Package derive produces derived imagery for a deployment: per-image
// thumbnails and a single overview mosaic summarizing the deployment's
// image sequence.
package derive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aaronland/go-image-tools/util"
	"github.com/disintegration/imaging"
	"github.com/seafloor-imaging/go-voyage-media/common"
	"gocloud.dev/blob"
)

// ErrMediaDecode is returned when an image cannot be decoded (corrupt file,
// unsupported codec). The file is excluded from derived imagery and
// reported; it never aborts the rest of the deployment.
var ErrMediaDecode = errors.New("media decode error")

// source_checksum_key is the blob metadata key recording the SHA-256 of
// the thumbnail's source image.
const source_checksum_key = "source-sha256"

// ThumbnailOptions configures thumbnail generation for one deployment.
type ThumbnailOptions struct {
	// The bucket holding the deployment's processed files.
	Bucket *blob.Bucket
	// The maximum pixel dimension of generated thumbnails. Aspect ratio is
	// preserved.
	MaxPx int
	Logger *slog.Logger
}

// ThumbnailKey returns the deployment-scoped thumbnail key for a canonical
// image key, "<deployment>/thumbnails/<stem>_THUMB.<EXT>".
func ThumbnailKey(canonical_key string) string {

	base := path.Base(canonical_key)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	root := path.Dir(path.Dir(canonical_key))

	return path.Join(root, "thumbnails", fmt.Sprintf("%s_THUMB%s", stem, ext))
}

// Thumbnail generates a fixed-max-dimension, aspect-preserving derivative
// for the image stored under source_key and returns the thumbnail's key.
// The operation is idempotent: an existing thumbnail whose recorded source
// checksum matches the current source bytes is not regenerated.
func Thumbnail(ctx context.Context, opts *ThumbnailOptions, source_key string) (string, error) {

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		// pass
	}

	thumb_key := ThumbnailKey(source_key)

	r, err := opts.Bucket.NewReader(ctx, source_key, nil)

	if err != nil {
		return "", fmt.Errorf("Failed to create reader for '%s', %w", source_key, err)
	}

	body, err := io.ReadAll(r)
	r.Close()

	if err != nil {
		return "", fmt.Errorf("Failed to read '%s', %w", source_key, err)
	}

	fingerprint := common.FingerprintBytes(body)

	attrs, err := opts.Bucket.Attributes(ctx, thumb_key)

	if err == nil && attrs.Metadata[source_checksum_key] == fingerprint {
		opts.Logger.Debug("Thumbnail up to date", "key", thumb_key)
		return thumb_key, nil
	}

	im, format, err := util.DecodeImageFromReader(bytes.NewReader(body))

	if err != nil {
		return "", fmt.Errorf("%w: failed to decode '%s', %v", ErrMediaDecode, source_key, err)
	}

	thumb := imaging.Fit(im, opts.MaxPx, opts.MaxPx, imaging.Lanczos)

	wr_opts := &blob.WriterOptions{
		Metadata: map[string]string{
			source_checksum_key: fingerprint,
		},
	}

	wr, err := opts.Bucket.NewWriter(ctx, thumb_key, wr_opts)

	if err != nil {
		return "", fmt.Errorf("Failed to create writer for '%s', %w", thumb_key, err)
	}

	err = util.EncodeImage(thumb, format, wr)

	if err != nil {
		wr.Close()
		opts.Bucket.Delete(ctx, thumb_key)
		return "", fmt.Errorf("Failed to encode thumbnail for '%s', %w", source_key, err)
	}

	err = wr.Close()

	if err != nil {
		return "", fmt.Errorf("Failed to close writer for '%s', %w", thumb_key, err)
	}

	return thumb_key, nil
}
