package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/seafloor-imaging/go-voyage-media/pipeline"
	"github.com/seafloor-imaging/go-voyage-media/voyage"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

func main() {
	os.Exit(run(context.Background()))
}

// run holds the whole CLI body so that deferred cleanup executes on every
// exit path, which os.Exit in main would bypass.
func run(ctx context.Context) int {

	work_uri := flag.String("work-bucket-uri", "", "A valid gocloud.dev/blob URI for the pipeline's work (collection) bucket.")
	target_uri := flag.String("target-bucket-uri", "", "A valid gocloud.dev/blob URI for the package target bucket.")
	stages := flag.String("stages", "import,process,package", "A comma-separated list of stages to run.")

	dataset_name := flag.String("dataset-name", "", "The name of the packaged dataset.")
	contact := flag.String("contact", "", "A contact address recorded in the dataset header.")
	version := flag.String("version", "", "The dataset version string.")
	license_name := flag.String("license-name", "", "The license name applied to every record.")
	license_uri := flag.String("license-uri", "", "The license URI applied to every record.")
	copyright_holder := flag.String("copyright", "", "The copyright holder for the dataset.")
	pi_uri := flag.String("pi-uri", "", "The principal investigator's ORCID (or equivalent) URI.")
	zoom_level := flag.Int("zoom-level", 0, "The map zoom-level hint recorded in the dataset header.")
	s3_acl := flag.String("s3-acl", "", "An optional canned ACL applied to writes when the target bucket is S3.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] deployment_id=source_uri [deployment_id=source_uri ...]\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var cfg voyage.Config

	err := envconfig.Process("", &cfg)

	if err != nil {
		logger.Error("Failed to process configuration", "error", err)
		return 1
	}

	p, err := pipeline.New(ctx, &cfg, *work_uri, logger)

	if err != nil {
		logger.Error("Failed to create pipeline", "error", err)
		return 1
	}

	defer p.Close()

	ok := true

	emit := func(stage string, report *voyage.Report) {

		for _, o := range report.Outcomes() {

			enc, err := json.Marshal(o)

			if err != nil {
				logger.Error("Failed to marshal outcome", "error", err)
				continue
			}

			fmt.Println(string(enc))
		}

		if !report.OK() {
			logger.Error("Stage completed with failures", "stage", stage, "failed", report.Failed())
			ok = false
		}
	}

	for _, stage := range strings.Split(*stages, ",") {

		switch strings.TrimSpace(stage) {

		case "import":

			for _, arg := range flag.Args() {

				id, source_uri, found := strings.Cut(arg, "=")

				if !found {
					logger.Error("Invalid deployment argument, expected id=source_uri", "argument", arg)
					return 1
				}

				report, err := p.ImportDeployment(ctx, id, source_uri)

				if err != nil {
					logger.Error("Failed to import deployment", "deployment", id, "error", err)
					ok = false
					continue
				}

				emit("import", report)
			}

		case "process":

			report, err := p.ProcessAll(ctx)

			if err != nil {
				logger.Error("Failed to process deployments", "error", err)
				return 1
			}

			emit("process", report)

		case "package":

			pkg_opts := &voyage.PackageOptions{
				DatasetName: *dataset_name,
				Contact:     *contact,
				Version:     *version,
				LicenseName: *license_name,
				LicenseURI:  *license_uri,
				Copyright:   *copyright_holder,
				PIURI:       *pi_uri,
				ZoomLevel:   *zoom_level,
				TargetURI:   *target_uri,
				S3ACL:       *s3_acl,
			}

			report, err := p.PackageAll(ctx, pkg_opts)

			if err != nil {
				logger.Error("Failed to package deployments", "error", err)
				return 1
			}

			emit("package", report)

		default:
			logger.Error("Unknown stage", "stage", stage)
			return 1
		}
	}

	if !ok {
		return 1
	}

	return 0
}
