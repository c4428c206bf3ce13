package voyage

import (
	"fmt"
	"regexp"
	"time"
)

// re_deployment_id matches "<voyage id>_<3-digit sequence>", for example
// "IN2018_V06_001".
var re_deployment_id = regexp.MustCompile(`^(.+)_(\d{3})$`)

// Config is the immutable run-wide pipeline configuration. It is validated
// once at the pipeline boundary and passed explicitly to every component
// that needs it; nothing reads it from ambient state.
type Config struct {
	// The voyage identifier, for example "IN2018_V06".
	VoyageID string `envconfig:"VOYAGE_ID" required:"true"`
	// The principal investigator for the voyage.
	VoyagePI string `envconfig:"VOYAGE_PI"`
	// The first day of the voyage (YYYY-MM-DD).
	StartDate string `envconfig:"VOYAGE_START_DATE"`
	// The last day of the voyage (YYYY-MM-DD).
	EndDate string `envconfig:"VOYAGE_END_DATE"`
	// The platform (towed body) identifier, for example "MRITC".
	PlatformID string `envconfig:"VOYAGE_PLATFORM_ID" required:"true"`
	// The instrument code used for canonical image names. Defaults to
	// "<PlatformID>_SCP".
	ImageInstrument string `envconfig:"VOYAGE_IMAGE_INSTRUMENT"`
	// The instrument code used for canonical video and sensor log names.
	// Defaults to PlatformID.
	VideoInstrument string `envconfig:"VOYAGE_VIDEO_INSTRUMENT"`
	// The name of the timestamp column in deployment sensor logs.
	TimestampColumn string `envconfig:"VOYAGE_TIMESTAMP_COLUMN" default:"FinalTime"`
	// The name of the sensor log column identifying the camera.
	CameraColumn string `envconfig:"VOYAGE_CAMERA_COLUMN" default:"Camera"`
	// The maximum distance between a capture time and the nearest sensor
	// record before the match is rejected.
	MaxSensorGap time.Duration `envconfig:"VOYAGE_MAX_SENSOR_GAP" default:"60s"`
	// The maximum pixel dimension for generated thumbnails.
	ThumbnailMaxPx int `envconfig:"VOYAGE_THUMBNAIL_MAX_PX" default:"300"`
	// The pixel size of each tile in the overview mosaic.
	OverviewTilePx int `envconfig:"VOYAGE_OVERVIEW_TILE_PX" default:"256"`
	// The number of tile columns in the overview mosaic.
	OverviewCols int `envconfig:"VOYAGE_OVERVIEW_COLS" default:"4"`
	// The number of tile rows in the overview mosaic.
	OverviewRows int `envconfig:"VOYAGE_OVERVIEW_ROWS" default:"4"`
	// The number of concurrent per-file workers per stage.
	Workers int `envconfig:"VOYAGE_WORKERS" default:"8"`
	// The maximum wall-clock time spent on any single file operation.
	FileTimeout time.Duration `envconfig:"VOYAGE_FILE_TIMEOUT" default:"2m"`
}

// Validate performs presence and format checks on cfg and fills derived
// defaults. It does not re-derive or re-validate host-supplied semantics.
func (cfg *Config) Validate() error {

	if cfg.VoyageID == "" {
		return fmt.Errorf("Missing voyage id")
	}

	if cfg.PlatformID == "" {
		return fmt.Errorf("Missing platform id")
	}

	if cfg.ImageInstrument == "" {
		cfg.ImageInstrument = fmt.Sprintf("%s_SCP", cfg.PlatformID)
	}

	if cfg.VideoInstrument == "" {
		cfg.VideoInstrument = cfg.PlatformID
	}

	if cfg.TimestampColumn == "" {
		cfg.TimestampColumn = "FinalTime"
	}

	if cfg.MaxSensorGap <= 0 {
		cfg.MaxSensorGap = 60 * time.Second
	}

	if cfg.ThumbnailMaxPx <= 0 {
		cfg.ThumbnailMaxPx = 300
	}

	if cfg.OverviewTilePx <= 0 {
		cfg.OverviewTilePx = 256
	}

	if cfg.OverviewCols <= 0 {
		cfg.OverviewCols = 4
	}

	if cfg.OverviewRows <= 0 {
		cfg.OverviewRows = 4
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}

	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = 2 * time.Minute
	}

	return nil
}

// InstrumentForKind returns the instrument code canonical names use for
// files of kind k.
func (cfg *Config) InstrumentForKind(k Kind) string {

	switch k {
	case KindImage:
		return cfg.ImageInstrument
	default:
		return cfg.VideoInstrument
	}
}

// ValidDeploymentID reports whether id is a well-formed deployment
// identifier for cfg's voyage.
func (cfg *Config) ValidDeploymentID(id string) bool {

	m := re_deployment_id.FindStringSubmatch(id)

	if m == nil {
		return false
	}

	return m[1] == cfg.VoyageID
}

// PackageOptions carries the dataset-level statics supplied by the host at
// packaging time. The pipeline presence-checks these values but otherwise
// treats them as opaque.
type PackageOptions struct {
	// The name of the packaged dataset.
	DatasetName string
	// A contact address for the packaged dataset.
	Contact string
	// The dataset version string.
	Version string
	// The license name applied to every record.
	LicenseName string
	// The license URI applied to every record.
	LicenseURI string
	// The copyright holder for the dataset.
	Copyright string
	// The principal investigator's ORCID (or equivalent) URI.
	PIURI string
	// The map zoom-level hint recorded in the dataset header.
	ZoomLevel int
	// The gocloud.dev/blob URI of the package target bucket.
	TargetURI string
	// An optional canned ACL applied to writes when the target bucket is S3.
	S3ACL string
}

// Validate performs presence checks on the options the packager cannot
// proceed without.
func (opts *PackageOptions) Validate() error {

	if opts.DatasetName == "" {
		return fmt.Errorf("Missing dataset name")
	}

	if opts.TargetURI == "" {
		return fmt.Errorf("Missing package target URI")
	}

	return nil
}
