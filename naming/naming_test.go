package naming_test

import (
	"testing"
	"time"

	"github.com/seafloor-imaging/go-voyage-media/naming"
	"github.com/seafloor-imaging/go-voyage-media/voyage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const test_deployment = "IN2018_V06_001"

func testInstrumentFor(k voyage.Kind) string {

	if k == voyage.KindImage {
		return "MRITC_SCP"
	}

	return "MRITC"
}

func TestAssigner_ImageGrammar(t *testing.T) {

	// Arrange
	a := naming.NewAssigner(test_deployment, testInstrumentFor)
	ts := time.Date(2018, 11, 23, 10, 15, 0, 0, time.UTC)

	// Act
	n, err := a.Assign("SCP_0001.jpg", voyage.KindImage, ts)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "MRITC_SCP_IN2018_V06_001_20181123T101500Z_0001.JPG", n.String())
}

func TestAssigner_VideoGrammar(t *testing.T) {

	// Arrange
	a := naming.NewAssigner(test_deployment, testInstrumentFor)
	ts := time.Date(2018, 11, 23, 10, 15, 10, 0, time.UTC)

	// Act
	n, err := a.Assign("GOPR0001.mp4", voyage.KindVideo, ts)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "MRITC_IN2018_V06_001_20181123T101510Z.MP4", n.String())
}

func TestAssigner_SensorLogGrammar(t *testing.T) {

	// Arrange
	a := naming.NewAssigner(test_deployment, testInstrumentFor)

	// Act
	n, err := a.Assign("SENSORS_IN2018_V06_001.csv", voyage.KindSensorLog, time.Time{})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "MRITC_IN2018_V06_001.CSV", n.String())
}

func TestAssigner_CollisionSequence(t *testing.T) {

	// Arrange: two images share a whole-second timestamp; Assign is called
	// in original-filename lexical order
	a := naming.NewAssigner(test_deployment, testInstrumentFor)
	ts := time.Date(2018, 11, 23, 10, 15, 0, 123456000, time.UTC)

	// Act
	first, err := a.Assign("IMG_A.JPG", voyage.KindImage, ts)
	require.NoError(t, err)

	second, err := a.Assign("IMG_B.JPG", voyage.KindImage, ts)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)
	assert.Contains(t, first.String(), "_0001.JPG")
	assert.Contains(t, second.String(), "_0002.JPG")
	assert.NotEqual(t, first.String(), second.String())
}

func TestAssigner_Conflict(t *testing.T) {

	// Arrange: two videos with the same timestamp have no sequence token
	// to disambiguate them
	a := naming.NewAssigner(test_deployment, testInstrumentFor)
	ts := time.Date(2018, 11, 23, 10, 15, 10, 0, time.UTC)

	// Act
	_, err := a.Assign("VID_A.MP4", voyage.KindVideo, ts)
	require.NoError(t, err)

	_, err = a.Assign("VID_B.MP4", voyage.KindVideo, ts)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, naming.ErrConflict)
}

func TestAssigner_ReserveSeedsSequence(t *testing.T) {

	// Arrange: a resumed run reserves the names issued by a previous run
	a := naming.NewAssigner(test_deployment, testInstrumentFor)

	existing, ok := naming.Parse("MRITC_SCP_IN2018_V06_001_20181123T101500Z_0001.JPG", "MRITC_SCP", test_deployment)
	require.True(t, ok)

	a.Reserve(existing)

	// Act: a pending image shares the reserved whole-second timestamp
	ts := time.Date(2018, 11, 23, 10, 15, 0, 0, time.UTC)
	n, err := a.Assign("IMG_B.JPG", voyage.KindImage, ts)

	// Assert: the taken name is never reissued
	require.NoError(t, err)
	assert.Equal(t, 2, n.Sequence)
	assert.Contains(t, n.String(), "_0002.JPG")
}

func TestAssigner_ReserveConflictsSameVideo(t *testing.T) {

	// Arrange: a video with this timestamp was renamed by a previous run
	a := naming.NewAssigner(test_deployment, testInstrumentFor)

	existing, ok := naming.Parse("MRITC_IN2018_V06_001_20181123T101510Z.MP4", "MRITC", test_deployment)
	require.True(t, ok)

	a.Reserve(existing)

	// Act: videos carry no sequence token to disambiguate with
	ts := time.Date(2018, 11, 23, 10, 15, 10, 0, time.UTC)
	_, err := a.Assign("VID_B.MP4", voyage.KindVideo, ts)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, naming.ErrConflict)
}

func TestParse_RoundTrip(t *testing.T) {

	// Arrange
	a := naming.NewAssigner(test_deployment, testInstrumentFor)
	ts := time.Date(2018, 11, 23, 10, 15, 0, 0, time.UTC)

	n, err := a.Assign("SCP_0001.jpg", voyage.KindImage, ts)
	require.NoError(t, err)

	// Act
	parsed, ok := naming.Parse(n.String(), "MRITC_SCP", test_deployment)

	// Assert
	require.True(t, ok)
	assert.Equal(t, ts, parsed.Timestamp)
	assert.Equal(t, 1, parsed.Sequence)
	assert.Equal(t, n.String(), parsed.String())
}

func TestParse_SensorLogForm(t *testing.T) {

	// Act
	parsed, ok := naming.Parse("data/MRITC_IN2018_V06_001.CSV", "MRITC", test_deployment)

	// Assert
	require.True(t, ok)
	assert.True(t, parsed.Timestamp.IsZero())
	assert.Equal(t, "CSV", parsed.Extension)
}

func TestParse_RejectsForeignNames(t *testing.T) {

	cases := []string{
		"IMG_20181123T101500Z.JPG",
		"MRITC_SCP_IN2018_V06_002_20181123T101500Z_0001.JPG",
		"MRITC_SCP_IN2018_V06_001_garbage_0001.JPG",
	}

	for _, name := range cases {

		_, ok := naming.Parse(name, "MRITC_SCP", test_deployment)
		assert.False(t, ok, "expected %s to be rejected", name)
	}
}

func TestNormalizeExtension_FoldsJpeg(t *testing.T) {

	assert.Equal(t, "JPG", naming.NormalizeExtension("photo.jpeg"))
	assert.Equal(t, "JPG", naming.NormalizeExtension("photo.JPG"))
	assert.Equal(t, "MP4", naming.NormalizeExtension("video.mp4"))
}
