package common

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// BlobReadSeeker adapts a blob.Bucket object to io.ReadSeeker using ranged
// reads, so that parsers which seek (MP4 box walkers, for example) never
// require the whole object in memory.
type BlobReadSeeker struct {
	ctx    context.Context
	bucket *blob.Bucket
	key    string
	size   int64
	offset int64
}

// NewBlobReadSeeker returns a BlobReadSeeker for key in bucket.
func NewBlobReadSeeker(ctx context.Context, bucket *blob.Bucket, key string) (*BlobReadSeeker, error) {

	attrs, err := bucket.Attributes(ctx, key)

	if err != nil {
		return nil, fmt.Errorf("Failed to read attributes for '%s', %w", key, err)
	}

	rs := &BlobReadSeeker{
		ctx:    ctx,
		bucket: bucket,
		key:    key,
		size:   attrs.Size,
	}

	return rs, nil
}

// Read implements io.Reader with a ranged read at the current offset.
func (rs *BlobReadSeeker) Read(p []byte) (int, error) {

	if rs.offset >= rs.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	remaining := rs.size - rs.offset

	if want > remaining {
		want = remaining
	}

	r, err := rs.bucket.NewRangeReader(rs.ctx, rs.key, rs.offset, want, nil)

	if err != nil {
		return 0, fmt.Errorf("Failed to create range reader for '%s', %w", rs.key, err)
	}

	defer r.Close()

	n, err := io.ReadFull(r, p[:want])
	rs.offset += int64(n)

	if err == io.ErrUnexpectedEOF {
		err = nil
	}

	return n, err
}

// Seek implements io.Seeker.
func (rs *BlobReadSeeker) Seek(offset int64, whence int) (int64, error) {

	var next int64

	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = rs.offset + offset
	case io.SeekEnd:
		next = rs.size + offset
	default:
		return 0, fmt.Errorf("Invalid whence %d", whence)
	}

	if next < 0 {
		return 0, fmt.Errorf("Negative seek offset for '%s'", rs.key)
	}

	rs.offset = next
	return next, nil
}
