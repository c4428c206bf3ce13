package voyage

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// TimestampSource records where a media file's capture time was derived
// from.
type TimestampSource string

const (
	// The timestamp was parsed from the original filename.
	SourceFilename TimestampSource = "filename-pattern"
	// The timestamp was read from the file's own embedded metadata.
	SourceEmbedded TimestampSource = "media-embedded"
	// Reserved. The resolver never fabricates a timestamp from the sensor
	// log but downstream consumers may record one.
	SourceSensorLog TimestampSource = "log-interpolated"
)

// MediaFile is a still image or video belonging to exactly one Deployment.
type MediaFile struct {
	// The bucket key the file was imported under.
	OriginalKey string
	// The file's kind, derived from its extension.
	Kind Kind
	// The instrument code used for the file's canonical name.
	Instrument string
	// The resolved UTC capture timestamp.
	Timestamp time.Time
	// Where Timestamp was derived from.
	TimestampSource TimestampSource
	// The bucket key of the renamed (canonical) file.
	CanonicalKey string
	// The bucket key of the file's thumbnail. Images only.
	ThumbnailKey string
	// The file's current per-file status.
	Status FileStatus
	// A short human-readable reason for a skipped or failed status.
	Reason string
}

// Deployment is one physical camera lowering. Identity is immutable once
// created; the file set and stage advance as the pipeline runs.
type Deployment struct {
	// The deployment identifier, "<voyage id>_<3-digit sequence>".
	ID string
	// The gocloud.dev/blob URI the deployment was imported from.
	SourceURI string

	mu      sync.Mutex
	stage   Stage
	files   map[string]*MediaFile
	log_key string
}

// NewDeployment returns a Deployment at StageImported for the given id and
// source URI.
func NewDeployment(id string, source_uri string) *Deployment {

	return &Deployment{
		ID:        id,
		SourceURI: source_uri,
		stage:     StageImported,
		files:     make(map[string]*MediaFile),
	}
}

// Stage returns the deployment's current stage.
func (d *Deployment) Stage() Stage {

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.stage
}

// AdvanceTo moves the deployment to stage next. Transitions are
// one-directional and must not skip stages; re-asserting the current stage
// is a no-op.
func (d *Deployment) AdvanceTo(next Stage) error {

	d.mu.Lock()
	defer d.mu.Unlock()

	if next == d.stage {
		return nil
	}

	if next != d.stage+1 {
		return fmt.Errorf("Invalid stage transition for %s, %s -> %s", d.ID, d.stage, next)
	}

	d.stage = next
	return nil
}

// AddFile registers a media file under its original key. Re-adding an
// already-registered key returns the existing record so that re-runs do not
// clobber per-file state.
func (d *Deployment) AddFile(f *MediaFile) *MediaFile {

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.files[f.OriginalKey]

	if ok {
		return existing
	}

	d.files[f.OriginalKey] = f
	return f
}

// File returns the media file registered under key, if any.
func (d *Deployment) File(key string) (*MediaFile, bool) {

	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.files[key]
	return f, ok
}

// FileByCanonical returns the media file whose canonical key is key, if
// any.
func (d *Deployment) FileByCanonical(key string) (*MediaFile, bool) {

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, f := range d.files {

		if f.CanonicalKey == key {
			return f, true
		}
	}

	return nil, false
}

// Files returns the deployment's media files sorted by original key, for
// deterministic iteration.
func (d *Deployment) Files() []*MediaFile {

	d.mu.Lock()
	defer d.mu.Unlock()

	files := make([]*MediaFile, 0, len(d.files))

	for _, f := range d.files {
		files = append(files, f)
	}

	sort.Slice(files, func(i int, j int) bool {
		return files[i].OriginalKey < files[j].OriginalKey
	})

	return files
}

// SetSensorLogKey records the bucket key of the deployment's (renamed)
// sensor log.
func (d *Deployment) SetSensorLogKey(key string) {

	d.mu.Lock()
	defer d.mu.Unlock()

	d.log_key = key
}

// SensorLogKey returns the bucket key of the deployment's sensor log, or ""
// when the deployment has none.
func (d *Deployment) SensorLogKey() string {

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.log_key
}
