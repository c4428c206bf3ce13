package ifdo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/seafloor-imaging/go-voyage-media/voyage"
	"gocloud.dev/blob"
	"gopkg.in/yaml.v3"
)

// DocumentKey is the key of the aggregate interchange document at the
// dataset root.
const DocumentKey = "ifdo.yml"

// Header is the dataset-level block of the aggregate document.
type Header struct {
	Name      string `yaml:"image-set-name"`
	UUID      string `yaml:"image-set-uuid"`
	Voyage    string `yaml:"image-set-voyage"`
	Platform  string `yaml:"image-set-platform"`
	PI        string `yaml:"image-set-pi,omitempty"`
	Contact   string `yaml:"image-set-contact,omitempty"`
	Version   string `yaml:"image-set-version,omitempty"`
	License   string `yaml:"image-set-license,omitempty"`
	Copyright string `yaml:"image-set-copyright,omitempty"`
	StartDate string `yaml:"image-set-start-date,omitempty"`
	EndDate   string `yaml:"image-set-end-date,omitempty"`
	ZoomLevel int    `yaml:"image-set-zoom-level,omitempty"`
	Created   string `yaml:"image-set-created"`
}

// Document is the aggregate interchange document for one packaged dataset:
// a dataset header plus, per deployment per instrument, an ordered list of
// entries.
type Document struct {
	Header      Header                             `yaml:"image-set-header"`
	Deployments map[string]map[string][]*ImageData `yaml:"deployments"`
}

// NewDocument returns a Document with its header populated from the run
// configuration and packaging options.
func NewDocument(cfg *voyage.Config, opts *voyage.PackageOptions, created time.Time) *Document {

	header := Header{
		Name:      opts.DatasetName,
		UUID:      EntryUUID(opts.DatasetName, DocumentKey),
		Voyage:    cfg.VoyageID,
		Platform:  cfg.PlatformID,
		PI:        cfg.VoyagePI,
		Contact:   opts.Contact,
		Version:   opts.Version,
		License:   opts.LicenseName,
		Copyright: opts.Copyright,
		StartDate: cfg.StartDate,
		EndDate:   cfg.EndDate,
		ZoomLevel: opts.ZoomLevel,
		Created:   created.UTC().Format(time.RFC3339),
	}

	return &Document{
		Header:      header,
		Deployments: make(map[string]map[string][]*ImageData),
	}
}

// Append adds an entry under the given deployment and instrument.
func (doc *Document) Append(deployment_id string, instrument string, d *ImageData) {

	per_deployment, ok := doc.Deployments[deployment_id]

	if !ok {
		per_deployment = make(map[string][]*ImageData)
		doc.Deployments[deployment_id] = per_deployment
	}

	per_deployment[instrument] = append(per_deployment[instrument], d)
}

// Sort orders every entry list by canonical path, for deterministic
// output.
func (doc *Document) Sort() {

	for _, per_deployment := range doc.Deployments {

		for _, entries := range per_deployment {

			sort.Slice(entries, func(i int, j int) bool {
				return entries[i].LocalPath < entries[j].LocalPath
			})
		}
	}
}

// Write serializes the document as YAML under DocumentKey in bucket.
func (doc *Document) Write(ctx context.Context, bucket *blob.Bucket) error {

	doc.Sort()

	body, err := yaml.Marshal(doc)

	if err != nil {
		return fmt.Errorf("Failed to marshal dataset document, %w", err)
	}

	err = bucket.WriteAll(ctx, DocumentKey, body, nil)

	if err != nil {
		return fmt.Errorf("Failed to write '%s', %w", DocumentKey, err)
	}

	return nil
}
