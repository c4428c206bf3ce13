// Package naming derives canonical, collision-free filenames for raw
// deployment files. The mapping is pure: callers perform the actual
// filesystem moves using the returned names.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/seafloor-imaging/go-voyage-media/voyage"
)

// ErrConflict is returned when two raw files would map to an identical
// canonical name after sequence disambiguation. It should not occur given
// the per-timestamp counter and usually indicates a logic defect upstream.
var ErrConflict = errors.New("canonical name conflict")

// TimestampLayout is the timestamp token used in canonical filenames.
const TimestampLayout = "20060102T150405Z"

var re_canonical_ts = regexp.MustCompile(`^(\d{8}T\d{6}Z)(?:_(\d{4}))?$`)

// Name is a parsed canonical filename.
type Name struct {
	// The instrument code the name encodes.
	Instrument string
	// The deployment identifier the name encodes.
	DeploymentID string
	// The capture timestamp the name encodes, UTC, whole-second.
	Timestamp time.Time
	// The collision-disambiguation sequence. Zero for videos and sensor
	// logs, which carry no sequence token.
	Sequence int
	// The upper-cased filename extension, without the leading dot.
	Extension string
}

// String renders the canonical filename for n.
func (n *Name) String() string {

	ts := n.Timestamp.UTC().Format(TimestampLayout)

	if n.Sequence > 0 {
		return fmt.Sprintf("%s_%s_%s_%04d.%s", n.Instrument, n.DeploymentID, ts, n.Sequence, n.Extension)
	}

	if !n.Timestamp.IsZero() {
		return fmt.Sprintf("%s_%s_%s.%s", n.Instrument, n.DeploymentID, ts, n.Extension)
	}

	return fmt.Sprintf("%s_%s.%s", n.Instrument, n.DeploymentID, n.Extension)
}

// NormalizeExtension upper-cases a raw filename extension and folds ".jpeg"
// variants to "JPG".
func NormalizeExtension(raw string) string {

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(raw)), ".")

	if ext == "jpeg" {
		ext = "jpg"
	}

	return strings.ToUpper(ext)
}

// Assigner assigns canonical names for one deployment during one run.
// Assign must be called in original-filename lexical order so that sequence
// disambiguation is deterministic across runs.
type Assigner struct {
	instrument_for func(voyage.Kind) string
	deployment_id  string
	counters       map[time.Time]int
	seen           map[string]string
}

// NewAssigner returns an Assigner for the given deployment. instrument_for
// maps a file kind to the instrument code its names carry.
func NewAssigner(deployment_id string, instrument_for func(voyage.Kind) string) *Assigner {

	return &Assigner{
		instrument_for: instrument_for,
		deployment_id:  deployment_id,
		counters:       make(map[time.Time]int),
		seen:           make(map[string]string),
	}
}

// Reserve marks an already-assigned canonical name as taken, advancing the
// per-timestamp sequence counter past it. Resumed runs reserve every name
// parsed from a previously-renamed file before assigning new ones, so a
// pending file sharing a whole-second timestamp with a renamed file can
// never be issued the same canonical name again.
func (a *Assigner) Reserve(n *Name) {

	if n.Sequence > 0 {

		key := n.Timestamp.UTC().Truncate(time.Second)

		if n.Sequence > a.counters[key] {
			a.counters[key] = n.Sequence
		}
	}

	canonical := n.String()
	a.seen[canonical] = canonical
}

// Assign produces the canonical filename for a raw file. Images receive a
// per-timestamp sequence suffix; videos do not; sensor logs carry neither
// timestamp nor sequence. The timestamp is truncated to whole seconds.
func (a *Assigner) Assign(raw_name string, kind voyage.Kind, ts time.Time) (*Name, error) {

	n := &Name{
		Instrument:   a.instrument_for(kind),
		DeploymentID: a.deployment_id,
		Extension:    NormalizeExtension(raw_name),
	}

	switch kind {
	case voyage.KindImage:

		key := ts.UTC().Truncate(time.Second)

		a.counters[key] += 1

		n.Timestamp = key
		n.Sequence = a.counters[key]

	case voyage.KindVideo:
		n.Timestamp = ts.UTC().Truncate(time.Second)
	case voyage.KindSensorLog:
		// no timestamp token
	default:
		return nil, fmt.Errorf("Unsupported kind '%s' for %s", kind, raw_name)
	}

	canonical := n.String()

	if prev, ok := a.seen[canonical]; ok {
		return nil, fmt.Errorf("%w: '%s' and '%s' both map to %s", ErrConflict, prev, raw_name, canonical)
	}

	a.seen[canonical] = raw_name
	return n, nil
}

// Parse recognizes a canonical filename produced for the given instrument
// and deployment and returns its components. It is used to detect
// already-renamed files on re-runs and to recover capture timestamps
// deterministically at package time.
func Parse(name string, instrument string, deployment_id string) (*Name, bool) {

	base := filepath.Base(name)
	ext := filepath.Ext(base)

	if ext == "" {
		return nil, false
	}

	stem := strings.TrimSuffix(base, ext)
	prefix := fmt.Sprintf("%s_%s", instrument, deployment_id)

	if stem == prefix {

		// sensor log form, no timestamp token

		n := &Name{
			Instrument:   instrument,
			DeploymentID: deployment_id,
			Extension:    strings.TrimPrefix(ext, "."),
		}

		return n, true
	}

	rest, ok := strings.CutPrefix(stem, prefix+"_")

	if !ok {
		return nil, false
	}

	m := re_canonical_ts.FindStringSubmatch(rest)

	if m == nil {
		return nil, false
	}

	ts, err := time.Parse(TimestampLayout, m[1])

	if err != nil {
		return nil, false
	}

	seq := 0

	if m[2] != "" {
		seq, _ = strconv.Atoi(m[2])
	}

	n := &Name{
		Instrument:   instrument,
		DeploymentID: deployment_id,
		Timestamp:    ts.UTC(),
		Sequence:     seq,
		Extension:    strings.TrimPrefix(ext, "."),
	}

	return n, true
}
