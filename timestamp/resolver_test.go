package timestamp_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/seafloor-imaging/go-voyage-media/timestamp"
	"github.com/seafloor-imaging/go-voyage-media/voyage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

func testConfig(t *testing.T) *voyage.Config {

	cfg := &voyage.Config{
		VoyageID:   "IN2018_V06",
		PlatformID: "MRITC",
	}

	require.NoError(t, cfg.Validate())
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// exifJPEG assembles a minimal JPEG whose APP1 segment carries a TIFF
// block with a single DateTime tag.
func exifJPEG(datetime string) []byte {

	value := append([]byte(datetime), 0x00)

	var tiff bytes.Buffer

	tiff.WriteString("II")
	binary.Write(&tiff, binary.LittleEndian, uint16(0x002A))
	binary.Write(&tiff, binary.LittleEndian, uint32(8)) // IFD0 offset

	binary.Write(&tiff, binary.LittleEndian, uint16(1))      // one entry
	binary.Write(&tiff, binary.LittleEndian, uint16(0x0132)) // DateTime
	binary.Write(&tiff, binary.LittleEndian, uint16(2))      // ASCII
	binary.Write(&tiff, binary.LittleEndian, uint32(len(value)))
	binary.Write(&tiff, binary.LittleEndian, uint32(8+2+12+4)) // value offset
	binary.Write(&tiff, binary.LittleEndian, uint32(0))        // no next IFD

	tiff.Write(value)

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer

	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write([]byte{0xFF, 0xD9})

	return out.Bytes()
}

// minimalMP4 assembles an ftyp box plus a moov/mvhd box whose creation
// time is the given instant.
func minimalMP4(created time.Time) []byte {

	epoch := time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	secs := uint32(created.Sub(epoch) / time.Second)

	var out bytes.Buffer

	// ftyp
	binary.Write(&out, binary.BigEndian, uint32(16))
	out.WriteString("ftyp")
	out.WriteString("isom")
	binary.Write(&out, binary.BigEndian, uint32(0x200))

	// moov wrapping a version-0 mvhd
	var mvhd bytes.Buffer

	mvhd.Write([]byte{0x00, 0x00, 0x00, 0x00}) // version + flags
	binary.Write(&mvhd, binary.BigEndian, secs)       // creation
	binary.Write(&mvhd, binary.BigEndian, secs)       // modification
	binary.Write(&mvhd, binary.BigEndian, uint32(90000)) // timescale
	binary.Write(&mvhd, binary.BigEndian, uint32(0))     // duration
	binary.Write(&mvhd, binary.BigEndian, uint32(0x00010000)) // rate
	binary.Write(&mvhd, binary.BigEndian, uint16(0x0100))     // volume
	mvhd.Write(make([]byte, 10))                              // reserved

	matrix := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

	for _, v := range matrix {
		binary.Write(&mvhd, binary.BigEndian, v)
	}

	mvhd.Write(make([]byte, 24))                         // pre-defined
	binary.Write(&mvhd, binary.BigEndian, uint32(2))     // next track id

	binary.Write(&out, binary.BigEndian, uint32(8+8+mvhd.Len()))
	out.WriteString("moov")
	binary.Write(&out, binary.BigEndian, uint32(8+mvhd.Len()))
	out.WriteString("mvhd")
	out.Write(mvhd.Bytes())

	return out.Bytes()
}

func plainJPEG(t *testing.T) []byte {

	im := image.NewNRGBA(image.Rect(0, 0, 8, 8))

	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			im.Set(x, y, color.NRGBA{uint8(x * 32), uint8(y * 32), 0, 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, im, nil))

	return buf.Bytes()
}

func testBucket(t *testing.T) *blob.Bucket {

	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	require.NoError(t, err)

	t.Cleanup(func() {
		bucket.Close()
	})

	return bucket
}

func TestResolver_FilenamePattern(t *testing.T) {

	// Arrange
	ctx := context.Background()
	bucket := testBucket(t)

	r := timestamp.NewResolver(testConfig(t), "IN2018_V06_001", testLogger())

	key := "IN2018_V06_001/IMG_20181123T101500Z_A.JPG"
	require.NoError(t, bucket.WriteAll(ctx, key, []byte("irrelevant"), nil))

	// Act
	rsp, err := r.Resolve(ctx, bucket, key, voyage.KindImage)

	// Assert: the filename wins, file contents are never read
	require.NoError(t, err)
	assert.Equal(t, voyage.SourceFilename, rsp.Source)
	assert.Equal(t, time.Date(2018, 11, 23, 10, 15, 0, 0, time.UTC), rsp.Timestamp)
}

func TestResolver_CanonicalNameIsNoOp(t *testing.T) {

	// Arrange
	ctx := context.Background()
	bucket := testBucket(t)

	r := timestamp.NewResolver(testConfig(t), "IN2018_V06_001", testLogger())

	key := "IN2018_V06_001/images/MRITC_SCP_IN2018_V06_001_20181123T101500Z_0001.JPG"
	require.NoError(t, bucket.WriteAll(ctx, key, []byte("irrelevant"), nil))

	// Act
	rsp, err := r.Resolve(ctx, bucket, key, voyage.KindImage)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, voyage.SourceFilename, rsp.Source)
	assert.Equal(t, time.Date(2018, 11, 23, 10, 15, 0, 0, time.UTC), rsp.Timestamp)
}

func TestResolver_EXIFFallback(t *testing.T) {

	// Arrange
	ctx := context.Background()
	bucket := testBucket(t)

	r := timestamp.NewResolver(testConfig(t), "IN2018_V06_001", testLogger())

	key := "IN2018_V06_001/photo_one.JPG"
	require.NoError(t, bucket.WriteAll(ctx, key, exifJPEG("2018:11:23 10:15:00"), nil))

	// Act
	rsp, err := r.Resolve(ctx, bucket, key, voyage.KindImage)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, voyage.SourceEmbedded, rsp.Source)
	assert.Equal(t, time.Date(2018, 11, 23, 10, 15, 0, 0, time.UTC), rsp.Timestamp)
}

func TestResolver_MvhdFallback(t *testing.T) {

	// Arrange
	ctx := context.Background()
	bucket := testBucket(t)

	r := timestamp.NewResolver(testConfig(t), "IN2018_V06_001", testLogger())

	want := time.Date(2018, 11, 23, 10, 15, 10, 0, time.UTC)

	key := "IN2018_V06_001/tow_footage.MP4"
	require.NoError(t, bucket.WriteAll(ctx, key, minimalMP4(want), nil))

	// Act
	rsp, err := r.Resolve(ctx, bucket, key, voyage.KindVideo)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, voyage.SourceEmbedded, rsp.Source)
	assert.Equal(t, want, rsp.Timestamp)
}

func TestResolver_Unresolved(t *testing.T) {

	// Arrange: a decodable JPEG with no EXIF block and no filename token
	ctx := context.Background()
	bucket := testBucket(t)

	r := timestamp.NewResolver(testConfig(t), "IN2018_V06_001", testLogger())

	key := "IN2018_V06_001/mystery.JPG"
	require.NoError(t, bucket.WriteAll(ctx, key, plainJPEG(t), nil))

	// Act
	_, err := r.Resolve(ctx, bucket, key, voyage.KindImage)

	// Assert: no timestamp is ever fabricated
	require.Error(t, err)
	assert.ErrorIs(t, err, timestamp.ErrUnresolved)
}

func TestResolver_Deterministic(t *testing.T) {

	// Arrange
	ctx := context.Background()
	bucket := testBucket(t)

	r := timestamp.NewResolver(testConfig(t), "IN2018_V06_001", testLogger())

	key := "IN2018_V06_001/photo_two.JPG"
	require.NoError(t, bucket.WriteAll(ctx, key, exifJPEG("2018:11:23 10:15:00"), nil))

	// Act
	first, err := r.Resolve(ctx, bucket, key, voyage.KindImage)
	require.NoError(t, err)

	second, err := r.Resolve(ctx, bucket, key, voyage.KindImage)
	require.NoError(t, err)

	// Assert
	assert.True(t, first.Timestamp.Equal(second.Timestamp))
	assert.Equal(t, first.Source, second.Source)
}
