// Package packaging assembles the final dataset for a processed
// deployment: one metadata entry per media file, correlated with the
// deployment's sensor log, written to the aggregate dataset document and
// embedded into each image's own metadata container on the way into the
// package target bucket.
package packaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/aaronland/go-image-tools/util"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/seafloor-imaging/go-voyage-media/common"
	"github.com/seafloor-imaging/go-voyage-media/derive"
	"github.com/seafloor-imaging/go-voyage-media/ifdo"
	"github.com/seafloor-imaging/go-voyage-media/naming"
	"github.com/seafloor-imaging/go-voyage-media/sensor"
	"github.com/seafloor-imaging/go-voyage-media/voyage"
	"github.com/tidwall/sjson"
	"gocloud.dev/blob"
)

// RunOptions configures one package stage invocation for one deployment.
type RunOptions struct {
	// The pipeline's work bucket, holding processed deployments.
	Work *blob.Bucket
	// The package target bucket.
	Target *blob.Bucket
	// The deployment being packaged.
	Deployment *voyage.Deployment
	// The run-wide pipeline configuration.
	Config *voyage.Config
	// The dataset statics supplied by the host.
	Options *voyage.PackageOptions
	// The metadata assembler for this packaging run.
	Assembler *ifdo.Assembler
	// The aggregate dataset document entries are appended to.
	Document *ifdo.Document
	Logger   *slog.Logger
}

type packageRsp struct {
	entry      *ifdo.ImageData
	instrument string
	outcome    voyage.Outcome
}

// Run packages one processed deployment. The deployment's sensor
// correlator is built once and shared read-only across all concurrent
// per-file workers; a malformed sensor log degrades the deployment to "no
// sensor data" rather than aborting the run.
func Run(ctx context.Context, opts *RunOptions) (*voyage.Report, error) {

	report := voyage.NewReport()
	logger := opts.Logger.With("deployment", opts.Deployment.ID)

	correlator := loadCorrelator(ctx, opts, logger)

	media_keys, err := listMedia(ctx, opts.Work, opts.Deployment.ID)

	if err != nil {
		return nil, fmt.Errorf("Failed to list media for '%s', %w", opts.Deployment.ID, err)
	}

	done_ch := make(chan bool)
	rsp_ch := make(chan *packageRsp)

	throttle := make(chan bool, opts.Config.Workers)

	for _, key := range media_keys {

		go func(key string) {

			defer func() {
				done_ch <- true
			}()

			throttle <- true

			defer func() {
				<-throttle
			}()

			tctx, cancel := context.WithTimeout(ctx, opts.Config.FileTimeout)
			defer cancel()

			rsp_ch <- packageFile(tctx, opts, correlator, key, logger)

		}(key)
	}

	remaining := len(media_keys)

	for remaining > 0 {

		select {

		case <-done_ch:
			remaining -= 1
		case rsp := <-rsp_ch:

			if rsp.entry != nil {
				opts.Document.Append(opts.Deployment.ID, rsp.instrument, rsp.entry)
			}

			report.Append(rsp.outcome)
		}
	}

	copyAncillary(ctx, opts, report, logger)

	return report, nil
}

// loadCorrelator builds the deployment's sensor index from its renamed
// CSV. Any failure degrades correlation to absent for every file in the
// deployment.
func loadCorrelator(ctx context.Context, opts *RunOptions, logger *slog.Logger) *sensor.Correlator {

	log_key := opts.Deployment.SensorLogKey()

	if log_key == "" {

		keys, err := listPrefix(ctx, opts.Work, path.Join(opts.Deployment.ID, "data")+"/")

		if err == nil {

			for _, k := range keys {

				if voyage.KindForKey(k) == voyage.KindSensorLog {
					log_key = k
					break
				}
			}
		}
	}

	if log_key == "" {
		logger.Warn("No sensor log, correlation degraded to absent")
		return nil
	}

	load_opts := &sensor.LoadOptions{
		TimestampColumn: opts.Config.TimestampColumn,
		MaxGap:          opts.Config.MaxSensorGap,
	}

	correlator, err := sensor.Load(ctx, opts.Work, log_key, load_opts)

	if err != nil {

		if errors.Is(err, sensor.ErrMalformedLog) {
			logger.Warn("Malformed sensor log, correlation degraded to absent", "key", log_key, "error", err)
		} else {
			logger.Error("Failed to load sensor log, correlation degraded to absent", "key", log_key, "error", err)
		}

		return nil
	}

	return correlator
}

func listPrefix(ctx context.Context, bucket *blob.Bucket, prefix string) ([]string, error) {

	keys := make([]string, 0)

	iter := bucket.List(&blob.ListOptions{
		Prefix: prefix,
	})

	for {

		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		if !obj.IsDir {
			keys = append(keys, obj.Key)
		}
	}

	return keys, nil
}

func listMedia(ctx context.Context, bucket *blob.Bucket, deployment_id string) ([]string, error) {

	media_keys := make([]string, 0)

	for _, subdir := range []string{"images", "video"} {

		keys, err := listPrefix(ctx, bucket, path.Join(deployment_id, subdir)+"/")

		if err != nil {
			return nil, err
		}

		media_keys = append(media_keys, keys...)
	}

	return media_keys, nil
}

// packageFile assembles and emits one media file: checksum, dimensions and
// perceptual hashes are computed, the nearest sensor record is matched,
// the entry is validated and the file is copied into the target bucket.
// Images receive an embedded byte-for-byte copy of their own entry during
// the copy; the checksum always covers the pre-embedding bytes.
func packageFile(ctx context.Context, opts *RunOptions, correlator *sensor.Correlator, key string, logger *slog.Logger) *packageRsp {

	d := opts.Deployment
	kind := voyage.KindForKey(key)
	instrument := opts.Config.InstrumentForKind(kind)

	rsp := &packageRsp{
		instrument: instrument,
		outcome: voyage.Outcome{
			Deployment: d.ID,
			Path:       key,
			Stage:      voyage.StagePackaged.String(),
		},
	}

	fail := func(err error) *packageRsp {
		logger.Error("Failed to package file", "key", key, "error", err)
		rsp.outcome.Status = voyage.StatusFailed
		rsp.outcome.Reason = err.Error()
		rsp.outcome.Err = err
		return rsp
	}

	n, ok := naming.Parse(key, instrument, d.ID)

	if !ok || n.Timestamp.IsZero() {
		rsp.outcome.Status = voyage.StatusSkipped
		rsp.outcome.Reason = fmt.Sprintf("'%s' is not a canonical media name", key)
		return rsp
	}

	r, err := opts.Work.NewReader(ctx, key, nil)

	if err != nil {
		return fail(fmt.Errorf("Failed to create reader for '%s', %w", key, err))
	}

	body, err := io.ReadAll(r)
	r.Close()

	if err != nil {
		return fail(fmt.Errorf("Failed to read '%s', %w", key, err))
	}

	// the checksum is computed on the original bytes, before any
	// metadata embedding

	fingerprint := common.FingerprintBytes(body)

	var record *sensor.Record

	if correlator != nil {

		rec, ok := correlator.Find(n.Timestamp)

		if ok {
			record = rec
		}
	}

	in := &ifdo.EntryInput{
		LocalPath:  key,
		Kind:       kind,
		Instrument: instrument,
		Timestamp:  n.Timestamp,
		Record:     record,
	}

	entry, err := opts.Assembler.Entry(d.ID, in)

	if err != nil {

		// the entry is excluded from the record set but the file is still
		// carried into the package

		copy_err := writeTarget(ctx, opts, key, body)

		if copy_err != nil {
			return fail(copy_err)
		}

		return fail(err)
	}

	updates := map[string]interface{}{
		"image-hash-sha256": fingerprint,
	}

	if kind == voyage.KindImage {

		im, _, err := util.DecodeImageFromReader(bytes.NewReader(body))

		if err != nil {
			return fail(fmt.Errorf("%w: failed to decode '%s', %v", derive.ErrMediaDecode, key, err))
		}

		bounds := im.Bounds()

		updates["image-width"] = bounds.Dx()
		updates["image-height"] = bounds.Dy()

		hashes, err := common.ImageHashes(ctx, im)

		if err == nil && len(hashes) > 0 {

			perceptual := make(map[string]string, len(hashes))

			for _, h := range hashes {
				perceptual[h.Approach] = h.Hash
			}

			updates["image-perceptual-hashes"] = perceptual
		}
	}

	// the entry is marshaled before the measured properties are applied;
	// they are injected into the JSON afterwards and mirrored on to the
	// struct so the embedded copy and the aggregate document agree

	entry_json, err := json.Marshal(entry)

	if err != nil {
		return fail(fmt.Errorf("Failed to marshal entry for '%s', %w", key, err))
	}

	for p, value := range updates {

		entry_json, err = sjson.SetBytes(entry_json, p, value)

		if err != nil {
			return fail(fmt.Errorf("Failed to assign %s property for '%s', %w", p, key, err))
		}
	}

	entry.HashSHA256 = fingerprint

	if w, ok := updates["image-width"].(int); ok {
		entry.Width = w
	}

	if h, ok := updates["image-height"].(int); ok {
		entry.Height = h
	}

	if perceptual, ok := updates["image-perceptual-hashes"].(map[string]string); ok {
		entry.PerceptualHashes = perceptual
	}

	out := body

	if kind == voyage.KindImage {

		out, err = ifdo.Embed(body, entry_json)

		if err != nil {
			return fail(fmt.Errorf("Failed to embed entry in '%s', %w", key, err))
		}
	}

	err = writeTarget(ctx, opts, key, out)

	if err != nil {
		return fail(err)
	}

	rsp.entry = entry
	rsp.outcome.Status = voyage.StatusSuccess

	return rsp
}

// copyAncillary carries the deployment's derived and data files
// (thumbnails, overview mosaic, renamed sensor CSV) into the package
// verbatim. They are part of the dataset but excluded from the metadata
// record set.
func copyAncillary(ctx context.Context, opts *RunOptions, report *voyage.Report, logger *slog.Logger) {

	d := opts.Deployment

	keys := make([]string, 0)

	for _, subdir := range []string{"thumbnails", "data"} {

		prefix_keys, err := listPrefix(ctx, opts.Work, path.Join(d.ID, subdir)+"/")

		if err != nil {
			logger.Error("Failed to list ancillary files", "subdir", subdir, "error", err)
			continue
		}

		keys = append(keys, prefix_keys...)
	}

	overview_key := path.Join(d.ID, "overview.JPG")

	exists, err := opts.Work.Exists(ctx, overview_key)

	if err == nil && exists {
		keys = append(keys, overview_key)
	}

	wg := new(sync.WaitGroup)
	throttle := make(chan bool, opts.Config.Workers)

	for _, key := range keys {

		select {
		case <-ctx.Done():
			wg.Wait()
			return
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
				Deployment: d.ID,
				Path:       key,
				Stage:      voyage.StagePackaged.String(),
			}

			err := copyVerbatim(ctx, opts, key)

			if err != nil {
				logger.Error("Failed to copy ancillary file", "key", key, "error", err)
				o.Status = voyage.StatusFailed
				o.Reason = err.Error()
				o.Err = err
			} else {
				o.Status = voyage.StatusSuccess
			}

			report.Append(o)

		}(key)
	}

	wg.Wait()
}

func copyVerbatim(ctx context.Context, opts *RunOptions, key string) error {

	r, err := opts.Work.NewReader(ctx, key, nil)

	if err != nil {
		return fmt.Errorf("Failed to create reader for '%s', %w", key, err)
	}

	defer r.Close()

	wr, err := opts.Target.NewWriter(ctx, key, writerOptions(opts.Options.S3ACL))

	if err != nil {
		return fmt.Errorf("Failed to create writer for '%s', %w", key, err)
	}

	_, err = io.Copy(wr, r)

	if err != nil {
		wr.Close()
		opts.Target.Delete(ctx, key)
		return fmt.Errorf("Failed to copy '%s', %w", key, err)
	}

	return wr.Close()
}

func writeTarget(ctx context.Context, opts *RunOptions, key string, body []byte) error {

	err := opts.Target.WriteAll(ctx, key, body, writerOptions(opts.Options.S3ACL))

	if err != nil {
		return fmt.Errorf("Failed to write '%s', %w", key, err)
	}

	return nil
}

// writerOptions applies an optional canned ACL when the target bucket is
// S3. Other backends ignore it.
func writerOptions(acl string) *blob.WriterOptions {

	if acl == "" {
		return nil
	}

	before := func(asFunc func(interface{}) bool) error {

		var req *s3.PutObjectInput

		if asFunc(&req) {
			req.ACL = s3types.ObjectCannedACL(strings.ToLower(acl))
		}

		return nil
	}

	return &blob.WriterOptions{
		BeforeWrite: before,
	}
}
