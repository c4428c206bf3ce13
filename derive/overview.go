package derive

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"path"

	"github.com/aaronland/go-image-tools/util"
	"github.com/disintegration/imaging"
	"gocloud.dev/blob"
)

// OverviewOptions configures overview mosaic generation for one
// deployment.
type OverviewOptions struct {
	// The bucket holding the deployment's processed files.
	Bucket *blob.Bucket
	// The pixel size of each (square) mosaic tile.
	TilePx int
	// The number of tile columns in the mosaic.
	Cols int
	// The number of tile rows in the mosaic.
	Rows int
	Logger *slog.Logger
}

// SelectEvenly picks up to n items evenly spaced by ordinal position
// across items. When items holds n or fewer entries, everything is
// returned.
func SelectEvenly(n int, items []string) []string {

	if n <= 0 || len(items) <= n {
		return items
	}

	selected := make([]string, 0, n)

	for i := 0; i < n; i++ {
		selected = append(selected, items[(i*len(items))/n])
	}

	return selected
}

// Overview composites evenly sampled tiles from image_keys (the
// deployment's timestamp-sorted canonical image sequence) into a single
// gapless grid written to "<deployment_root>/overview.JPG". Images that
// fail to decode are excluded from the mosaic and logged; Overview only
// fails when no image could be composited at all.
func Overview(ctx context.Context, opts *OverviewOptions, deployment_root string, image_keys []string) (string, error) {

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		// pass
	}

	if len(image_keys) == 0 {
		return "", fmt.Errorf("No images to composite for '%s'", deployment_root)
	}

	selected := SelectEvenly(opts.Cols*opts.Rows, image_keys)

	tiles := make([]image.Image, 0, len(selected))

	for _, key := range selected {

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			// pass
		}

		r, err := opts.Bucket.NewReader(ctx, key, nil)

		if err != nil {
			opts.Logger.Warn("Failed to read mosaic tile, excluding", "key", key, "error", err)
			continue
		}

		im, _, err := util.DecodeImageFromReader(r)
		r.Close()

		if err != nil {
			opts.Logger.Warn("Failed to decode mosaic tile, excluding", "key", key, "error", err)
			continue
		}

		tiles = append(tiles, imaging.Thumbnail(im, opts.TilePx, opts.TilePx, imaging.Lanczos))
	}

	if len(tiles) == 0 {
		return "", fmt.Errorf("%w: no usable tiles for '%s'", ErrMediaDecode, deployment_root)
	}

	rows := (len(tiles) + opts.Cols - 1) / opts.Cols

	canvas := imaging.New(opts.Cols*opts.TilePx, rows*opts.TilePx, color.NRGBA{0, 0, 0, 255})

	for i, tile := range tiles {

		x := (i % opts.Cols) * opts.TilePx
		y := (i / opts.Cols) * opts.TilePx

		canvas = imaging.Paste(canvas, tile, image.Pt(x, y))
	}

	overview_key := path.Join(deployment_root, "overview.JPG")

	wr, err := opts.Bucket.NewWriter(ctx, overview_key, nil)

	if err != nil {
		return "", fmt.Errorf("Failed to create writer for '%s', %w", overview_key, err)
	}

	err = util.EncodeImage(canvas, "jpeg", wr)

	if err != nil {
		wr.Close()
		opts.Bucket.Delete(ctx, overview_key)
		return "", fmt.Errorf("Failed to encode overview for '%s', %w", deployment_root, err)
	}

	err = wr.Close()

	if err != nil {
		return "", fmt.Errorf("Failed to close writer for '%s', %w", overview_key, err)
	}

	return overview_key, nil
}
