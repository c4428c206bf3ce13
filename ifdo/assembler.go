package ifdo

import (
	"fmt"

	"time"

	"github.com/google/uuid"
	"github.com/seafloor-imaging/go-voyage-media/sensor"
	"github.com/seafloor-imaging/go-voyage-media/voyage"
)

// EntryInput carries everything the assembler combines into one
// MetadataEntry: naming output, the resolved timestamp and the correlated
// sensor record. Measured imagery properties (checksum, dimensions,
// perceptual hashes) are injected by the packager after assembly.
type EntryInput struct {
	// The canonical dataset-relative path, for example
	// "IN2018_V06_001/images/MRITC_SCP_IN2018_V06_001_20181123T101500Z_0001.JPG".
	LocalPath string
	// The file's kind.
	Kind voyage.Kind
	// The instrument code encoded in the canonical name.
	Instrument string
	// The resolved UTC capture timestamp.
	Timestamp time.Time
	// The nearest sensor record within tolerance, or nil.
	Record *sensor.Record
}

// Assembler builds ImageData entries for one packaging run, combining
// per-file inputs with the run configuration and the dataset statics
// supplied at packaging time.
type Assembler struct {
	cfg  *voyage.Config
	opts *voyage.PackageOptions
}

// NewAssembler returns an Assembler for the given configuration and
// packaging options.
func NewAssembler(cfg *voyage.Config, opts *voyage.PackageOptions) *Assembler {

	return &Assembler{
		cfg:  cfg,
		opts: opts,
	}
}

// Entry assembles and validates the metadata record for one media file.
// Entries failing required-field validation return ErrIncompleteMetadata.
func (a *Assembler) Entry(deployment_id string, in *EntryInput) (*ImageData, error) {

	if in.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamp for '%s'", ErrIncompleteMetadata, in.LocalPath)
	}

	acquisition := "photo"

	if in.Kind == voyage.KindVideo {
		acquisition = "video"
	}

	sensor_name := in.Instrument

	d := &ImageData{
		LocalPath:      in.LocalPath,
		Datetime:       in.Timestamp.UTC().Format(DatetimeLayout),
		DatetimeFormat: DatetimeLayout,
		CRS:            CoordinateReferenceSystem,
		Event:          deployment_id,
		Platform:       a.cfg.PlatformID,
		UUID:           EntryUUID(a.opts.DatasetName, in.LocalPath),
		Copyright:      a.opts.Copyright,

		Acquisition:        acquisition,
		Quality:            "product",
		Deployment:         "survey",
		Navigation:         "satellite",
		Illumination:       "artificial light",
		PixelMagnitude:     "cm",
		MarineZone:         "seafloor",
		SpectralResolution: "rgb",
		CaptureMode:        "timer",
		FaunaAttraction:    "none",

		TargetEnvironment:    "Benthic habitat",
		IdentificationScheme: "<instrument>_<deployment_id>_<datetimestamp>_<image_id>.<ext>",
		CurationProtocol:     fmt.Sprintf("Processed with go-voyage-media v%s", Version),
	}

	if a.cfg.VoyagePI != "" {

		pi := &Agent{
			Name: a.cfg.VoyagePI,
			URI:  a.opts.PIURI,
		}

		d.PI = pi
		d.Creators = []*Agent{pi}
	}

	if a.opts.LicenseName != "" {

		d.License = &License{
			Name: a.opts.LicenseName,
			URI:  a.opts.LicenseURI,
		}
	}

	if in.Record != nil {

		d.SensorFields = in.Record.Fields

		if lat, ok := in.Record.Float("UsblLatitude"); ok {
			d.Latitude = &lat
		}

		if lon, ok := in.Record.Float("UsblLongitude"); ok {
			d.Longitude = &lon
		}

		if alt, ok := in.Record.Float("Altitude"); ok {
			d.Altitude = &alt
		}

		if pitch, ok := in.Record.Float("Pitch"); ok {
			d.Pitch = &pitch
		}

		if roll, ok := in.Record.Float("Roll"); ok {
			d.Roll = &roll
		}

		if camera, ok := in.Record.Fields[a.cfg.CameraColumn]; ok && camera != "" {
			sensor_name = camera
		}
	}

	d.Sensor = sensor_name

	err := d.Validate()

	if err != nil {
		return nil, err
	}

	return d, nil
}

// EntryUUID derives the deterministic v5 UUID for an entry from its
// canonical dataset path, so re-packaging an unchanged dataset yields
// identical identifiers.
func EntryUUID(dataset string, local_path string) string {

	name := fmt.Sprintf("voyage-media://%s/%s", dataset, local_path)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
