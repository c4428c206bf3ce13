// Package process renames a deployment's raw files into the canonical
// naming grammar and generates derived imagery (thumbnails, an overview
// mosaic). Work is fanned out over a bounded worker pool with a join
// barrier between phases: every file must finish (success or recorded
// failure) before the next phase begins.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/seafloor-imaging/go-voyage-media/derive"
	"github.com/seafloor-imaging/go-voyage-media/naming"
	"github.com/seafloor-imaging/go-voyage-media/timestamp"
	"github.com/seafloor-imaging/go-voyage-media/voyage"
	"gocloud.dev/blob"
)

// RunOptions configures one process stage invocation for one deployment.
type RunOptions struct {
	// The pipeline's work bucket.
	Bucket *blob.Bucket
	// The deployment being processed.
	Deployment *voyage.Deployment
	// The run-wide pipeline configuration.
	Config *voyage.Config
	Logger *slog.Logger
}

func subdirForKind(k voyage.Kind) string {

	switch k {
	case voyage.KindImage:
		return "images"
	case voyage.KindVideo:
		return "video"
	default:
		return "data"
	}
}

// Run processes one imported deployment. Re-running is an idempotent
// resume: files already renamed into canonical form are left alone and
// only pending or previously-failed files are retried.
func Run(ctx context.Context, opts *RunOptions) (*voyage.Report, error) {

	report := voyage.NewReport()
	logger := opts.Logger.With("deployment", opts.Deployment.ID)

	err := inventory(ctx, opts, report)

	if err != nil {
		return nil, fmt.Errorf("Failed to inventory '%s', %w", opts.Deployment.ID, err)
	}

	retryFailed(opts)

	resolveTimestamps(ctx, opts, report, logger)
	renameFiles(ctx, opts, report, logger)
	generateThumbnails(ctx, opts, report, logger)
	generateOverview(ctx, opts, report, logger)

	return report, nil
}

// inventory registers the deployment's files from the work bucket: raw
// files at the deployment root become pending work, files already under
// the canonical subdirectories are recognized by name and recorded as
// succeeded so re-runs do not rename them again.
func inventory(ctx context.Context, opts *RunOptions, report *voyage.Report) error {

	d := opts.Deployment
	root := d.ID + "/"

	iter := opts.Bucket.List(&blob.ListOptions{
		Prefix: root,
	})

	for {

		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return err
		}

		if obj.IsDir {
			continue
		}

		rel := obj.Key[len(root):]

		switch path.Dir(rel) {

		case ".":

			// a raw file at the deployment root

			if strings.HasPrefix(rel, "overview") {
				continue
			}

			kind := voyage.KindForKey(obj.Key)

			if kind == voyage.KindUnknown {
				continue
			}

			f := &voyage.MediaFile{
				OriginalKey: obj.Key,
				Kind:        kind,
				Status:      voyage.StatusPending,
			}

			d.AddFile(f)

		case "images", "video", "data":

			kind := voyage.KindForKey(obj.Key)
			instrument := opts.Config.InstrumentForKind(kind)

			n, ok := naming.Parse(rel, instrument, d.ID)

			if !ok {
				continue
			}

			report.Append(voyage.Outcome{
				Deployment: d.ID,
				Path:       obj.Key,
				Stage:      voyage.StageProcessed.String(),
				Status:     voyage.StatusSkipped,
				Reason:     "already processed",
			})

			if _, ok := d.FileByCanonical(obj.Key); ok {
				// an in-memory re-run; the file is already tracked
				continue
			}

			f := &voyage.MediaFile{
				OriginalKey:  obj.Key,
				Kind:         kind,
				Instrument:   instrument,
				Timestamp:    n.Timestamp,
				CanonicalKey: obj.Key,
				Status:       voyage.StatusSuccess,
			}

			d.AddFile(f)

			if kind == voyage.KindSensorLog {
				d.SetSensorLogKey(obj.Key)
			}
		}
	}

	return nil
}

// retryFailed re-queues files that failed a previous run. A file that was
// never renamed goes back to pending for the full phase sequence; a file
// that failed after its rename (a thumbnail, typically) only has derived
// imagery outstanding, so it rejoins the succeeded set and the thumbnail
// phase retries it. Failures that recur are re-reported, never silently
// absorbed into a clean re-run.
func retryFailed(opts *RunOptions) {

	for _, f := range opts.Deployment.Files() {

		if f.Status != voyage.StatusFailed {
			continue
		}

		f.Reason = ""

		if f.CanonicalKey == "" {
			f.Status = voyage.StatusPending
		} else {
			f.Status = voyage.StatusSuccess
		}
	}
}

// resolveTimestamps derives a capture timestamp for every pending image
// and video, in parallel. Files with no derivable timestamp are skipped
// and reported, never assigned a default.
func resolveTimestamps(ctx context.Context, opts *RunOptions, report *voyage.Report, logger *slog.Logger) {

	resolver := timestamp.NewResolver(opts.Config, opts.Deployment.ID, logger)

	wg := new(sync.WaitGroup)
	throttle := make(chan bool, opts.Config.Workers)

	for _, f := range opts.Deployment.Files() {

		if f.Status != voyage.StatusPending {
			continue
		}

		if f.Kind == voyage.KindSensorLog {
			continue
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
			// pass
		}

		wg.Add(1)
		throttle <- true

		go func(f *voyage.MediaFile) {

			defer func() {
				<-throttle
				wg.Done()
			}()

			tctx, cancel := context.WithTimeout(ctx, opts.Config.FileTimeout)
			defer cancel()

			rsp, err := resolver.Resolve(tctx, opts.Bucket, f.OriginalKey, f.Kind)

			if err != nil {

				f.Status = voyage.StatusSkipped
				f.Reason = err.Error()

				report.Append(voyage.Outcome{
					Deployment: opts.Deployment.ID,
					Path:       f.OriginalKey,
					Stage:      voyage.StageProcessed.String(),
					Status:     voyage.StatusSkipped,
					Reason:     err.Error(),
					Err:        err,
				})

				return
			}

			f.Timestamp = rsp.Timestamp
			f.TimestampSource = rsp.Source

		}(f)
	}

	wg.Wait()
}

// renameFiles assigns canonical names in original-filename lexical order
// (single-threaded, so sequence disambiguation is deterministic) and then
// moves files into their instrument subdirectories in parallel. Moves are
// a bucket Copy followed by a Delete; the blob layer makes the Copy
// visible atomically, so cancellation never leaves a half-written
// canonical file.
func renameFiles(ctx context.Context, opts *RunOptions, report *voyage.Report, logger *slog.Logger) {

	d := opts.Deployment

	pending := make([]*voyage.MediaFile, 0)

	for _, f := range d.Files() {

		if f.Status != voyage.StatusPending {
			continue
		}

		if f.Kind != voyage.KindSensorLog && f.Timestamp.IsZero() {
			continue
		}

		pending = append(pending, f)
	}

	sort.Slice(pending, func(i int, j int) bool {
		return path.Base(pending[i].OriginalKey) < path.Base(pending[j].OriginalKey)
	})

	assigner := naming.NewAssigner(d.ID, opts.Config.InstrumentForKind)

	// reserve every name already issued so a resumed run can never
	// reassign a taken canonical name to a same-second pending file

	for _, f := range d.Files() {

		if f.CanonicalKey == "" {
			continue
		}

		n, ok := naming.Parse(f.CanonicalKey, f.Instrument, d.ID)

		if ok {
			assigner.Reserve(n)
		}
	}

	moves := make([]*voyage.MediaFile, 0, len(pending))

	for _, f := range pending {

		n, err := assigner.Assign(path.Base(f.OriginalKey), f.Kind, f.Timestamp)

		if err != nil {

			// a post-disambiguation collision indicates a logic defect
			// upstream so surface it prominently

			logger.Error("Canonical name conflict", "key", f.OriginalKey, "error", err)

			f.Status = voyage.StatusFailed
			f.Reason = err.Error()

			report.Append(voyage.Outcome{
				Deployment: d.ID,
				Path:       f.OriginalKey,
				Stage:      voyage.StageProcessed.String(),
				Status:     voyage.StatusFailed,
				Reason:     err.Error(),
				Err:        err,
			})

			continue
		}

		f.Instrument = n.Instrument
		f.CanonicalKey = path.Join(d.ID, subdirForKind(f.Kind), n.String())

		moves = append(moves, f)
	}

	wg := new(sync.WaitGroup)
	throttle := make(chan bool, opts.Config.Workers)

	for _, f := range moves {

		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
			// pass
		}

		wg.Add(1)
		throttle <- true

		go func(f *voyage.MediaFile) {

			defer func() {
				<-throttle
				wg.Done()
			}()

			o := voyage.Outcome{
				Deployment: d.ID,
				Path:       f.CanonicalKey,
				Stage:      voyage.StageProcessed.String(),
			}

			err := moveFile(ctx, opts.Bucket, f.OriginalKey, f.CanonicalKey)

			if err != nil {

				logger.Error("Failed to move file", "key", f.OriginalKey, "error", err)

				f.Status = voyage.StatusFailed
				f.Reason = err.Error()
				f.CanonicalKey = ""

				o.Status = voyage.StatusFailed
				o.Reason = err.Error()
				o.Err = err

				report.Append(o)
				return
			}

			f.Status = voyage.StatusSuccess

			if f.Kind == voyage.KindSensorLog {
				d.SetSensorLogKey(f.CanonicalKey)
			}

			o.Status = voyage.StatusSuccess
			report.Append(o)

		}(f)
	}

	wg.Wait()
}

func moveFile(ctx context.Context, bucket *blob.Bucket, src string, dst string) error {

	err := bucket.Copy(ctx, dst, src, nil)

	if err != nil {
		return fmt.Errorf("Failed to copy '%s' to '%s', %w", src, dst, err)
	}

	err = bucket.Delete(ctx, src)

	if err != nil {
		return fmt.Errorf("Failed to delete '%s', %w", src, err)
	}

	return nil
}

// generateThumbnails produces a thumbnail for every renamed image, in
// parallel. A decode failure marks that file failed and excludes it from
// the overview mosaic; everything else proceeds.
func generateThumbnails(ctx context.Context, opts *RunOptions, report *voyage.Report, logger *slog.Logger) {

	thumb_opts := &derive.ThumbnailOptions{
		Bucket: opts.Bucket,
		MaxPx:  opts.Config.ThumbnailMaxPx,
		Logger: logger,
	}

	wg := new(sync.WaitGroup)
	throttle := make(chan bool, opts.Config.Workers)

	for _, f := range opts.Deployment.Files() {

		if f.Kind != voyage.KindImage || f.Status != voyage.StatusSuccess {
			continue
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
			// pass
		}

		wg.Add(1)
		throttle <- true

		go func(f *voyage.MediaFile) {

			defer func() {
				<-throttle
				wg.Done()
			}()

			tctx, cancel := context.WithTimeout(ctx, opts.Config.FileTimeout)
			defer cancel()

			thumb_key, err := derive.Thumbnail(tctx, thumb_opts, f.CanonicalKey)

			if err != nil {

				if errors.Is(err, derive.ErrMediaDecode) {
					logger.Warn("Failed to decode image", "key", f.CanonicalKey, "error", err)
				} else {
					logger.Error("Failed to generate thumbnail", "key", f.CanonicalKey, "error", err)
				}

				f.Status = voyage.StatusFailed
				f.Reason = err.Error()

				report.Append(voyage.Outcome{
					Deployment: opts.Deployment.ID,
					Path:       f.CanonicalKey,
					Stage:      voyage.StageProcessed.String(),
					Status:     voyage.StatusFailed,
					Reason:     err.Error(),
					Err:        err,
				})

				return
			}

			f.ThumbnailKey = thumb_key

			report.Append(voyage.Outcome{
				Deployment: opts.Deployment.ID,
				Path:       thumb_key,
				Stage:      voyage.StageProcessed.String(),
				Status:     voyage.StatusSuccess,
			})

		}(f)
	}

	wg.Wait()
}

// generateOverview composites the deployment's overview mosaic from its
// timestamp-sorted image sequence, excluding files that failed earlier
// phases.
func generateOverview(ctx context.Context, opts *RunOptions, report *voyage.Report, logger *slog.Logger) {

	images := make([]*voyage.MediaFile, 0)

	for _, f := range opts.Deployment.Files() {

		if f.Kind == voyage.KindImage && f.Status == voyage.StatusSuccess {
			images = append(images, f)
		}
	}

	if len(images) == 0 {
		logger.Warn("No images for overview mosaic")
		return
	}

	sort.Slice(images, func(i int, j int) bool {

		if images[i].Timestamp.Equal(images[j].Timestamp) {
			return images[i].CanonicalKey < images[j].CanonicalKey
		}

		return images[i].Timestamp.Before(images[j].Timestamp)
	})

	keys := make([]string, len(images))

	for i, f := range images {
		keys[i] = f.CanonicalKey
	}

	overview_opts := &derive.OverviewOptions{
		Bucket: opts.Bucket,
		TilePx: opts.Config.OverviewTilePx,
		Cols:   opts.Config.OverviewCols,
		Rows:   opts.Config.OverviewRows,
		Logger: logger,
	}

	overview_key, err := derive.Overview(ctx, overview_opts, opts.Deployment.ID, keys)

	if err != nil {

		logger.Error("Failed to generate overview", "error", err)

		report.Append(voyage.Outcome{
			Deployment: opts.Deployment.ID,
			Path:       path.Join(opts.Deployment.ID, "overview.JPG"),
			Stage:      voyage.StageProcessed.String(),
			Status:     voyage.StatusFailed,
			Reason:     err.Error(),
			Err:        err,
		})

		return
	}

	report.Append(voyage.Outcome{
		Deployment: opts.Deployment.ID,
		Path:       overview_key,
		Stage:      voyage.StageProcessed.String(),
		Status:     voyage.StatusSuccess,
	})
}
