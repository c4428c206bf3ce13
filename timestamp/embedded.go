package timestamp

import (
	"context"
	"fmt"
	"time"

	mp4 "github.com/abema/go-mp4"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/seafloor-imaging/go-voyage-media/common"
	"gocloud.dev/blob"
)

// exif_layout is the EXIF DateTime string layout. Values are interpreted as
// UTC, which is the towed-camera convention (the cameras are synced to ship
// time before each deployment).
const exif_layout = "2006:01:02 15:04:05"

// mvhd_epoch is the QuickTime/MP4 epoch, 1904-01-01 UTC.
var mvhd_epoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

// exifTimestamp reads a capture time from an image's EXIF block,
// preferring DateTimeOriginal over DateTime.
func exifTimestamp(ctx context.Context, bucket *blob.Bucket, key string) (time.Time, error) {

	r, err := bucket.NewReader(ctx, key, nil)

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to create reader for '%s', %w", key, err)
	}

	defer r.Close()

	x, err := exif.Decode(r)

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to decode EXIF data for '%s', %w", key, err)
	}

	fields := []exif.FieldName{
		exif.DateTimeOriginal,
		exif.DateTime,
	}

	for _, f := range fields {

		tag, err := x.Get(f)

		if err != nil {
			continue
		}

		str, err := tag.StringVal()

		if err != nil {
			continue
		}

		t, err := time.ParseInLocation(exif_layout, str, time.UTC)

		if err != nil {
			return time.Time{}, fmt.Errorf("Failed to parse EXIF %s value '%s' for '%s', %w", f, str, key, err)
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("No EXIF DateTime tags in '%s'", key)
}

// mvhdTimestamp reads the moov/mvhd creation time from an MP4 file using
// ranged reads, so large videos are never slurped into memory.
func mvhdTimestamp(ctx context.Context, bucket *blob.Bucket, key string) (time.Time, error) {

	rs, err := common.NewBlobReadSeeker(ctx, bucket, key)

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to create read seeker for '%s', %w", key, err)
	}

	boxes, err := mp4.ExtractBoxWithPayload(rs, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()})

	if err != nil {
		return time.Time{}, fmt.Errorf("Failed to extract mvhd box from '%s', %w", key, err)
	}

	if len(boxes) == 0 {
		return time.Time{}, fmt.Errorf("No mvhd box in '%s'", key)
	}

	mvhd, ok := boxes[0].Payload.(*mp4.Mvhd)

	if !ok {
		return time.Time{}, fmt.Errorf("Unexpected mvhd payload in '%s'", key)
	}

	var secs uint64

	if mvhd.Version == 0 {
		secs = uint64(mvhd.CreationTimeV0)
	} else {
		secs = mvhd.CreationTimeV1
	}

	if secs == 0 {
		return time.Time{}, fmt.Errorf("Zero creation time in '%s'", key)
	}

	return mvhd_epoch.Add(time.Duration(secs) * time.Second), nil
}
