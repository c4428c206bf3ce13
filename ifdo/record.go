// Package ifdo assembles iFDO-style metadata records for processed voyage
// media, serializes the aggregate dataset document and embeds a per-file
// copy of each image's record into the image's own metadata container.
package ifdo

import (
	"errors"
	"fmt"
	"time"
)

// ErrIncompleteMetadata is returned when an entry is missing a mandatory
// field. Such entries are excluded from the final record set and reported,
// never silently dropped.
var ErrIncompleteMetadata = errors.New("incomplete metadata")

// Version is the pipeline version recorded in each entry's curation
// protocol.
const Version = "1.0.0"

// DatetimeLayout is the layout entry datetimes are rendered with,
// matching the sensor log's sub-second convention.
const DatetimeLayout = "2006-01-02 15:04:05.000000"

// CoordinateReferenceSystem is the CRS recorded on every georeferenced
// entry.
const CoordinateReferenceSystem = "EPSG:4326"

// Agent identifies a person (PI, creator) by name and URI.
type Agent struct {
	Name string `json:"name" yaml:"name"`
	URI  string `json:"uri,omitempty" yaml:"uri,omitempty"`
}

// License identifies the license applied to an entry.
type License struct {
	Name string `json:"name" yaml:"name"`
	URI  string `json:"uri,omitempty" yaml:"uri,omitempty"`
}

// ImageData is the packaged metadata record for one media file. Field
// names carry parallel json and yaml tags so the per-image embedded JSON
// copy and the aggregate YAML document agree field for field.
type ImageData struct {
	// The canonical dataset-relative path of the file the entry describes.
	LocalPath string `json:"image-local-path" yaml:"image-local-path"`
	// The capture datetime rendered with DatetimeLayout, UTC.
	Datetime string `json:"image-datetime" yaml:"image-datetime"`
	// The layout Datetime is rendered with.
	DatetimeFormat string `json:"image-datetime-format" yaml:"image-datetime-format"`

	// Position and attitude from the nearest sensor record. Nil means
	// explicitly absent: no record matched within tolerance. Values are
	// never stale or extrapolated.
	Latitude  *float64 `json:"image-latitude" yaml:"image-latitude"`
	Longitude *float64 `json:"image-longitude" yaml:"image-longitude"`
	Altitude  *float64 `json:"image-altitude" yaml:"image-altitude"`
	Pitch     *float64 `json:"image-camera-pitch-degrees" yaml:"image-camera-pitch-degrees"`
	Roll      *float64 `json:"image-camera-roll-degrees" yaml:"image-camera-roll-degrees"`

	CRS string `json:"image-coordinate-reference-system" yaml:"image-coordinate-reference-system"`

	// The deployment the file belongs to.
	Event string `json:"image-event" yaml:"image-event"`
	// The towed platform identifier.
	Platform string `json:"image-platform" yaml:"image-platform"`
	// The capturing sensor: the sensor log's camera column when matched,
	// else the instrument code.
	Sensor string `json:"image-sensor" yaml:"image-sensor"`

	// A deterministic v5 UUID derived from the canonical dataset path, so
	// re-packaging an unchanged dataset is reproducible.
	UUID string `json:"image-uuid" yaml:"image-uuid"`

	PI        *Agent   `json:"image-pi,omitempty" yaml:"image-pi,omitempty"`
	Creators  []*Agent `json:"image-creators,omitempty" yaml:"image-creators,omitempty"`
	License   *License `json:"image-license,omitempty" yaml:"image-license,omitempty"`
	Copyright string   `json:"image-copyright,omitempty" yaml:"image-copyright,omitempty"`

	// The SHA-256 of the file's original bytes, computed before any
	// metadata embedding.
	HashSHA256 string `json:"image-hash-sha256,omitempty" yaml:"image-hash-sha256,omitempty"`

	// Acquisition constants for towed-camera survey imagery.
	Acquisition        string `json:"image-acquisition" yaml:"image-acquisition"`
	Quality            string `json:"image-quality" yaml:"image-quality"`
	Deployment         string `json:"image-deployment" yaml:"image-deployment"`
	Navigation         string `json:"image-navigation" yaml:"image-navigation"`
	Illumination       string `json:"image-illumination" yaml:"image-illumination"`
	PixelMagnitude     string `json:"image-pixel-magnitude" yaml:"image-pixel-magnitude"`
	MarineZone         string `json:"image-marine-zone" yaml:"image-marine-zone"`
	SpectralResolution string `json:"image-spectral-resolution" yaml:"image-spectral-resolution"`
	CaptureMode        string `json:"image-capture-mode" yaml:"image-capture-mode"`
	FaunaAttraction    string `json:"image-fauna-attraction" yaml:"image-fauna-attraction"`

	TargetEnvironment    string `json:"image-target-environment,omitempty" yaml:"image-target-environment,omitempty"`
	IdentificationScheme string `json:"image-item-identification-scheme,omitempty" yaml:"image-item-identification-scheme,omitempty"`
	CurationProtocol     string `json:"image-curation-protocol,omitempty" yaml:"image-curation-protocol,omitempty"`

	// Pixel dimensions. Images only.
	Width  int `json:"image-width,omitempty" yaml:"image-width,omitempty"`
	Height int `json:"image-height,omitempty" yaml:"image-height,omitempty"`

	// Perceptual hashes keyed by approach. Images only.
	PerceptualHashes map[string]string `json:"image-perceptual-hashes,omitempty" yaml:"image-perceptual-hashes,omitempty"`

	// The full matched sensor row, raw values keyed by column name. Nil
	// when no record matched within tolerance.
	SensorFields map[string]string `json:"sensor-fields,omitempty" yaml:"sensor-fields,omitempty"`
}

// Validate checks the entry's mandatory fields.
func (d *ImageData) Validate() error {

	if d.LocalPath == "" {
		return fmt.Errorf("%w: missing local path", ErrIncompleteMetadata)
	}

	if d.Datetime == "" {
		return fmt.Errorf("%w: missing datetime for '%s'", ErrIncompleteMetadata, d.LocalPath)
	}

	_, err := time.Parse(DatetimeLayout, d.Datetime)

	if err != nil {
		return fmt.Errorf("%w: invalid datetime '%s' for '%s'", ErrIncompleteMetadata, d.Datetime, d.LocalPath)
	}

	return nil
}
