// Package pipeline sequences Import -> Process -> Package over a set of
// deployments. It implements the capability interface the hosting
// framework invokes and is the only component with cross-stage state. A
// run never aborts because one file or one deployment failed: outcomes
// are aggregated per file and the report carries the completion signal.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/seafloor-imaging/go-voyage-media/common"
	"github.com/seafloor-imaging/go-voyage-media/ifdo"
	"github.com/seafloor-imaging/go-voyage-media/operations/imports"
	"github.com/seafloor-imaging/go-voyage-media/operations/packaging"
	"github.com/seafloor-imaging/go-voyage-media/operations/process"
	"github.com/seafloor-imaging/go-voyage-media/voyage"
	"gocloud.dev/blob"
)

// Stages is the capability interface the hosting framework drives. The
// core does not assume a specific invocation runtime: each entry point
// returns a per-file outcome report consumable by the host's logging and
// CLI layers.
type Stages interface {
	ImportDeployment(ctx context.Context, id string, source_uri string) (*voyage.Report, error)
	ProcessAll(ctx context.Context) (*voyage.Report, error)
	PackageAll(ctx context.Context, opts *voyage.PackageOptions) (*voyage.Report, error)
}

var _ Stages = (*Pipeline)(nil)

// Pipeline implements Stages over a work bucket.
type Pipeline struct {
	cfg    *voyage.Config
	work   *blob.Bucket
	logger *slog.Logger

	mu          sync.Mutex
	deployments map[string]*voyage.Deployment
}

// New returns a Pipeline for the given validated configuration, backed by
// the work bucket at work_uri. Callers must call Close when done.
func New(ctx context.Context, cfg *voyage.Config, work_uri string, logger *slog.Logger) (*Pipeline, error) {

	err := cfg.Validate()

	if err != nil {
		return nil, fmt.Errorf("Failed to validate config, %w", err)
	}

	work, err := common.OpenBucket(ctx, work_uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to open work bucket, %w", err)
	}

	p := &Pipeline{
		cfg:         cfg,
		work:        work,
		logger:      logger,
		deployments: make(map[string]*voyage.Deployment),
	}

	return p, nil
}

// Close releases the pipeline's work bucket.
func (p *Pipeline) Close() error {
	return p.work.Close()
}

// ImportDeployment copies a deployment's raw files from source_uri into
// the work bucket and registers the deployment. Re-importing an existing
// deployment is an idempotent resume: identical already-copied files are
// skipped.
func (p *Pipeline) ImportDeployment(ctx context.Context, id string, source_uri string) (*voyage.Report, error) {

	if !p.cfg.ValidDeploymentID(id) {
		return nil, fmt.Errorf("Invalid deployment id '%s' for voyage '%s'", id, p.cfg.VoyageID)
	}

	p.mu.Lock()

	d, ok := p.deployments[id]

	if !ok {
		d = voyage.NewDeployment(id, source_uri)
		p.deployments[id] = d
	}

	p.mu.Unlock()

	source, err := common.OpenBucket(ctx, source_uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to open source for '%s', %w", id, err)
	}

	defer source.Close()

	opts := &imports.RunOptions{
		Source:     source,
		Work:       p.work,
		Deployment: d,
		Workers:    p.cfg.Workers,
		Logger:     p.logger,
	}

	report, err := imports.Run(ctx, opts)

	if err != nil {
		return nil, err
	}

	return report, nil
}

func (p *Pipeline) sorted() []*voyage.Deployment {

	p.mu.Lock()
	defer p.mu.Unlock()

	deployments := make([]*voyage.Deployment, 0, len(p.deployments))

	for _, d := range p.deployments {
		deployments = append(deployments, d)
	}

	sort.Slice(deployments, func(i int, j int) bool {
		return deployments[i].ID < deployments[j].ID
	})

	return deployments
}

// ProcessAll runs the process stage over every imported deployment. A
// deployment whose stage aborts (configuration-level failure) is recorded
// and the run continues with the rest.
func (p *Pipeline) ProcessAll(ctx context.Context) (*voyage.Report, error) {

	report := voyage.NewReport()

	for _, d := range p.sorted() {

		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
			// pass
		}

		opts := &process.RunOptions{
			Bucket:     p.work,
			Deployment: d,
			Config:     p.cfg,
			Logger:     p.logger,
		}

		d_report, err := process.Run(ctx, opts)

		if err != nil {

			p.logger.Error("Process stage aborted for deployment", "deployment", d.ID, "error", err)

			report.Append(voyage.Outcome{
				Deployment: d.ID,
				Path:       d.ID,
				Stage:      voyage.StageProcessed.String(),
				Status:     voyage.StatusFailed,
				Reason:     err.Error(),
				Err:        err,
			})

			continue
		}

		report.Merge(d_report)

		err = d.AdvanceTo(voyage.StageProcessed)

		if err != nil {
			p.logger.Error("Failed to advance deployment stage", "deployment", d.ID, "error", err)
		}
	}

	return report, nil
}

// PackageAll runs the package stage over every processed deployment and
// then writes the aggregate dataset document and, last, the flat
// manifest. Deployments that have not completed the process stage are
// recorded as failed and skipped.
func (p *Pipeline) PackageAll(ctx context.Context, pkg_opts *voyage.PackageOptions) (*voyage.Report, error) {

	err := pkg_opts.Validate()

	if err != nil {
		return nil, fmt.Errorf("Failed to validate package options, %w", err)
	}

	target, err := common.OpenBucket(ctx, pkg_opts.TargetURI)

	if err != nil {
		return nil, fmt.Errorf("Failed to open target bucket, %w", err)
	}

	defer target.Close()

	report := voyage.NewReport()

	assembler := ifdo.NewAssembler(p.cfg, pkg_opts)
	doc := ifdo.NewDocument(p.cfg, pkg_opts, time.Now())

	for _, d := range p.sorted() {

		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
			// pass
		}

		if d.Stage() < voyage.StageProcessed {

			report.Append(voyage.Outcome{
				Deployment: d.ID,
				Path:       d.ID,
				Stage:      voyage.StagePackaged.String(),
				Status:     voyage.StatusFailed,
				Reason:     fmt.Sprintf("deployment '%s' has not completed the process stage", d.ID),
			})

			continue
		}

		opts := &packaging.RunOptions{
			Work:       p.work,
			Target:     target,
			Deployment: d,
			Config:     p.cfg,
			Options:    pkg_opts,
			Assembler:  assembler,
			Document:   doc,
			Logger:     p.logger,
		}

		d_report, err := packaging.Run(ctx, opts)

		if err != nil {

			p.logger.Error("Package stage aborted for deployment", "deployment", d.ID, "error", err)

			report.Append(voyage.Outcome{
				Deployment: d.ID,
				Path:       d.ID,
				Stage:      voyage.StagePackaged.String(),
				Status:     voyage.StatusFailed,
				Reason:     err.Error(),
				Err:        err,
			})

			continue
		}

		report.Merge(d_report)

		err = d.AdvanceTo(voyage.StagePackaged)

		if err != nil {
			p.logger.Error("Failed to advance deployment stage", "deployment", d.ID, "error", err)
		}
	}

	err = doc.Write(ctx, target)

	if err != nil {
		return report, fmt.Errorf("Failed to write dataset document, %w", err)
	}

	// the manifest covers every emitted file so it is always written last

	err = ifdo.WriteManifest(ctx, target)

	if err != nil {
		return report, fmt.Errorf("Failed to write manifest, %w", err)
	}

	return report, nil
}
