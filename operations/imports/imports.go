// Package imports copies a deployment's raw files from its source bucket
// into the pipeline's work bucket.
package imports

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/seafloor-imaging/go-voyage-media/voyage"
	"gocloud.dev/blob"
)

// RunOptions configures one import stage invocation.
type RunOptions struct {
	// The deployment's raw source bucket.
	Source *blob.Bucket
	// The pipeline's work bucket.
	Work *blob.Bucket
	// The deployment being imported.
	Deployment *voyage.Deployment
	// The number of concurrent per-file copies.
	Workers int
	Logger  *slog.Logger
}

// Run copies every raw image, video and sensor CSV from the deployment's
// source bucket into the work bucket under "<deployment id>/", flat. An
// already-copied identical key is skipped, so re-importing is a cheap
// no-op. A missing or unlistable source aborts the stage; per-file copy
// failures are recorded and do not.
func Run(ctx context.Context, opts *RunOptions) (*voyage.Report, error) {

	report := voyage.NewReport()
	logger := opts.Logger.With("deployment", opts.Deployment.ID)

	keys, err := listSource(ctx, opts.Source)

	if err != nil {
		return nil, fmt.Errorf("Failed to list source for '%s', %w", opts.Deployment.ID, err)
	}

	wg := new(sync.WaitGroup)
	throttle := make(chan bool, opts.Workers)

	for _, key := range keys {

		select {
		case <-ctx.Done():
			wg.Wait()
			return report, nil
		default:
			// pass
		}

		wg.Add(1)
		throttle <- true

		go func(key string) {

			defer func() {
				<-throttle
				wg.Done()
			}()

			o := voyage.Outcome{
				Deployment: opts.Deployment.ID,
				Path:       key,
				Stage:      voyage.StageImported.String(),
			}

			status, err := importFile(ctx, opts, key)

			if err != nil {
				logger.Error("Failed to import file", "key", key, "error", err)
				o.Status = voyage.StatusFailed
				o.Reason = err.Error()
				o.Err = err
			} else {
				o.Status = status
			}

			report.Append(o)

		}(key)
	}

	wg.Wait()
	return report, nil
}

// listSource returns the keys of every importable file in the source
// bucket, walking it recursively. Dotfiles and unrecognized kinds are
// ignored.
func listSource(ctx context.Context, bucket *blob.Bucket) ([]string, error) {

	keys := make([]string, 0)

	var list func(context.Context, *blob.Bucket, string) error

	list = func(ctx context.Context, b *blob.Bucket, prefix string) error {

		iter := b.List(&blob.ListOptions{
			Delimiter: "/",
			Prefix:    prefix,
		})

		for {

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				// pass
			}

			obj, err := iter.Next(ctx)

			if err == io.EOF {
				break
			}

			if err != nil {
				return err
			}

			if obj.IsDir {

				err := list(ctx, b, obj.Key)

				if err != nil {
					return err
				}

				continue
			}

			if strings.HasPrefix(path.Base(obj.Key), ".") {
				continue
			}

			if voyage.KindForKey(obj.Key) == voyage.KindUnknown {
				continue
			}

			keys = append(keys, obj.Key)
		}

		return nil
	}

	err := list(ctx, bucket, "")

	if err != nil {
		return nil, err
	}

	return keys, nil
}

// importFile copies one source file flat into the work bucket, registering
// it on the deployment.
func importFile(ctx context.Context, opts *RunOptions, key string) (voyage.FileStatus, error) {

	work_key := path.Join(opts.Deployment.ID, path.Base(key))

	f := &voyage.MediaFile{
		OriginalKey: work_key,
		Kind:        voyage.KindForKey(key),
		Status:      voyage.StatusPending,
	}

	opts.Deployment.AddFile(f)

	src_attrs, err := opts.Source.Attributes(ctx, key)

	if err != nil {
		return voyage.StatusFailed, fmt.Errorf("Failed to read attributes for '%s', %w", key, err)
	}

	work_attrs, err := opts.Work.Attributes(ctx, work_key)

	if err == nil && work_attrs.Size == src_attrs.Size {
		return voyage.StatusSkipped, nil
	}

	r, err := opts.Source.NewReader(ctx, key, nil)

	if err != nil {
		return voyage.StatusFailed, fmt.Errorf("Failed to create reader for '%s', %w", key, err)
	}

	defer r.Close()

	wr, err := opts.Work.NewWriter(ctx, work_key, nil)

	if err != nil {
		return voyage.StatusFailed, fmt.Errorf("Failed to create writer for '%s', %w", work_key, err)
	}

	_, err = io.Copy(wr, r)

	if err != nil {
		wr.Close()
		opts.Work.Delete(ctx, work_key)
		return voyage.StatusFailed, fmt.Errorf("Failed to copy '%s', %w", key, err)
	}

	err = wr.Close()

	if err != nil {
		return voyage.StatusFailed, fmt.Errorf("Failed to close writer for '%s', %w", work_key, err)
	}

	return voyage.StatusSuccess, nil
}
