package ifdo

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/seafloor-imaging/go-voyage-media/common"
	"gocloud.dev/blob"
)

// ManifestKey is the key of the flat dataset manifest.
const ManifestKey = "manifest.csv"

// WriteManifest walks every file in the packaged dataset bucket and writes
// a flat manifest of (path, size, sha256) rows, ordered by path. The
// manifest itself is excluded; it must be written last, after every other
// dataset file.
func WriteManifest(ctx context.Context, bucket *blob.Bucket) error {

	type entry struct {
		key  string
		size int64
	}

	entries := make([]entry, 0)

	iter := bucket.List(nil)

	for {

		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("Failed to list dataset bucket, %w", err)
		}

		if obj.IsDir || obj.Key == ManifestKey {
			continue
		}

		entries = append(entries, entry{key: obj.Key, size: obj.Size})
	}

	sort.Slice(entries, func(i int, j int) bool {
		return entries[i].key < entries[j].key
	})

	wr, err := bucket.NewWriter(ctx, ManifestKey, nil)

	if err != nil {
		return fmt.Errorf("Failed to create writer for '%s', %w", ManifestKey, err)
	}

	csv_wr := csv.NewWriter(wr)

	err = csv_wr.Write([]string{"path", "size", "sha256"})

	if err != nil {
		wr.Close()
		return fmt.Errorf("Failed to write manifest header, %w", err)
	}

	for _, e := range entries {

		fingerprint, err := common.FingerprintFile(ctx, bucket, e.key)

		if err != nil {
			wr.Close()
			return fmt.Errorf("Failed to fingerprint '%s', %w", e.key, err)
		}

		err = csv_wr.Write([]string{e.key, strconv.FormatInt(e.size, 10), fingerprint})

		if err != nil {
			wr.Close()
			return fmt.Errorf("Failed to write manifest row for '%s', %w", e.key, err)
		}
	}

	csv_wr.Flush()

	err = csv_wr.Error()

	if err != nil {
		wr.Close()
		return fmt.Errorf("Failed to flush manifest, %w", err)
	}

	return wr.Close()
}
