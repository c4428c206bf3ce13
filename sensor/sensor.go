// Package sensor indexes a deployment's CSV sensor log by timestamp and
// answers nearest-neighbor lookups for capture times. The index is built
// once per deployment, is immutable after construction and is safe for
// concurrent readers.
package sensor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"gocloud.dev/blob"
)

// ErrMalformedLog is returned when a sensor log cannot be indexed: missing
// timestamp column, short rows or unparsable timestamps. Callers degrade
// the owning deployment to "no sensor data" rather than aborting the run.
var ErrMalformedLog = errors.New("malformed sensor log")

// DefaultTimestampColumn is the timestamp column name used when none is
// configured.
const DefaultTimestampColumn = "FinalTime"

// DefaultTimestampLayout parses the sensor log's sub-second timestamps.
const DefaultTimestampLayout = "2006-01-02 15:04:05.999999"

// Record is one timestamped row from a deployment's sensor log. Immutable
// once parsed.
type Record struct {
	// The row's UTC timestamp, floored to the whole second so capture-time
	// matching is second-resolution, like canonical filenames.
	Timestamp time.Time
	// The raw row values, keyed by header column name.
	Fields map[string]string
}

// Float extracts a named field as a float64.
func (r *Record) Float(name string) (float64, bool) {

	str, ok := r.Fields[name]

	if !ok {
		return 0, false
	}

	f, err := strconv.ParseFloat(str, 64)

	if err != nil {
		return 0, false
	}

	return f, true
}

// LoadOptions configures sensor log parsing.
type LoadOptions struct {
	// The name of the timestamp column. Defaults to DefaultTimestampColumn.
	TimestampColumn string
	// The layout the timestamp column is parsed with. Defaults to
	// DefaultTimestampLayout.
	TimestampLayout string
	// The maximum distance between a lookup time and the nearest record
	// before the match is rejected. Zero means no limit.
	MaxGap time.Duration
}

// Correlator answers nearest-timestamp lookups over one deployment's
// sensor log.
type Correlator struct {
	records []*Record
	max_gap time.Duration
}

// Load parses the CSV stored under key in bucket and returns a Correlator
// over its rows, sorted by timestamp.
func Load(ctx context.Context, bucket *blob.Bucket, key string, opts *LoadOptions) (*Correlator, error) {

	if opts == nil {
		opts = &LoadOptions{}
	}

	ts_col := opts.TimestampColumn

	if ts_col == "" {
		ts_col = DefaultTimestampColumn
	}

	layout := opts.TimestampLayout

	if layout == "" {
		layout = DefaultTimestampLayout
	}

	fh, err := bucket.NewReader(ctx, key, nil)

	if err != nil {
		return nil, fmt.Errorf("Failed to create reader for '%s', %w", key, err)
	}

	defer fh.Close()

	csv_r := csv.NewReader(fh)
	csv_r.TrimLeadingSpace = true

	header, err := csv_r.Read()

	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header for '%s', %v", ErrMalformedLog, key, err)
	}

	ts_idx := -1

	for i, col := range header {

		if col == ts_col {
			ts_idx = i
			break
		}
	}

	if ts_idx == -1 {
		return nil, fmt.Errorf("%w: '%s' is missing timestamp column '%s'", ErrMalformedLog, key, ts_col)
	}

	records := make([]*Record, 0)

	for row := 1; ; row++ {

		cols, err := csv_r.Read()

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: failed to read '%s' row %d, %v", ErrMalformedLog, key, row, err)
		}

		if len(cols) != len(header) {
			return nil, fmt.Errorf("%w: '%s' row %d has %d columns, expected %d", ErrMalformedLog, key, row, len(cols), len(header))
		}

		t, err := time.ParseInLocation(layout, cols[ts_idx], time.UTC)

		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse timestamp '%s' in '%s' row %d, %v", ErrMalformedLog, cols[ts_idx], key, row, err)
		}

		fields := make(map[string]string, len(header))

		for i, col := range header {
			fields[col] = cols[i]
		}

		r := &Record{
			Timestamp: t.Truncate(time.Second),
			Fields:    fields,
		}

		records = append(records, r)
	}

	sort.SliceStable(records, func(i int, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	c := &Correlator{
		records: records,
		max_gap: opts.MaxGap,
	}

	return c, nil
}

// Len returns the number of indexed records.
func (c *Correlator) Len() int {
	return len(c.records)
}

// Find returns the record nearest in time to t. The bracketing records are
// located by binary search and whichever is closer in absolute time wins;
// exact ties favor the earlier record, for determinism. Find returns
// (nil, false) when the nearest record is further away than the configured
// maximum gap, so matches are never fabricated across sensor dropouts.
func (c *Correlator) Find(t time.Time) (*Record, bool) {

	if len(c.records) == 0 {
		return nil, false
	}

	t = t.UTC()

	// index of the first record at or after t
	i := sort.Search(len(c.records), func(i int) bool {
		return !c.records[i].Timestamp.Before(t)
	})

	var nearest *Record

	switch i {
	case 0:
		nearest = c.records[0]
	case len(c.records):
		nearest = c.records[len(c.records)-1]
	default:

		before := c.records[i-1]
		after := c.records[i]

		d_before := t.Sub(before.Timestamp)
		d_after := after.Timestamp.Sub(t)

		if d_before <= d_after {
			nearest = before
		} else {
			nearest = after
		}
	}

	if c.max_gap > 0 {

		gap := t.Sub(nearest.Timestamp)

		if gap < 0 {
			gap = -gap
		}

		if gap > c.max_gap {
			return nil, false
		}
	}

	return nearest, true
}
