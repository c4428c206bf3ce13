package voyage_test

import (
	"testing"
	"time"

	"github.com/seafloor-imaging/go-voyage-media/voyage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateDefaults(t *testing.T) {

	// Arrange
	cfg := &voyage.Config{
		VoyageID:   "IN2018_V06",
		PlatformID: "MRITC",
	}

	// Act
	err := cfg.Validate()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "MRITC_SCP", cfg.ImageInstrument)
	assert.Equal(t, "MRITC", cfg.VideoInstrument)
	assert.Equal(t, "FinalTime", cfg.TimestampColumn)
	assert.Equal(t, 60*time.Second, cfg.MaxSensorGap)
	assert.Equal(t, 300, cfg.ThumbnailMaxPx)
}

func TestConfig_ValidateMissingVoyage(t *testing.T) {

	cfg := &voyage.Config{
		PlatformID: "MRITC",
	}

	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidDeploymentID(t *testing.T) {

	cfg := &voyage.Config{
		VoyageID:   "IN2018_V06",
		PlatformID: "MRITC",
	}

	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.ValidDeploymentID("IN2018_V06_001"))
	assert.False(t, cfg.ValidDeploymentID("IN2018_V06_1"))
	assert.False(t, cfg.ValidDeploymentID("IN2019_V01_001"))
	assert.False(t, cfg.ValidDeploymentID("IN2018_V06"))
}

func TestDeployment_StageTransitions(t *testing.T) {

	// Arrange
	d := voyage.NewDeployment("IN2018_V06_001", "file:///tmp/raw")

	require.Equal(t, voyage.StageImported, d.Stage())

	// Act + Assert: one-directional, no skipping
	assert.Error(t, d.AdvanceTo(voyage.StagePackaged))

	require.NoError(t, d.AdvanceTo(voyage.StageProcessed))
	assert.Equal(t, voyage.StageProcessed, d.Stage())

	// re-asserting the current stage is a no-op
	require.NoError(t, d.AdvanceTo(voyage.StageProcessed))

	require.NoError(t, d.AdvanceTo(voyage.StagePackaged))

	// no going back
	assert.Error(t, d.AdvanceTo(voyage.StageProcessed))
}

func TestDeployment_AddFileKeepsExisting(t *testing.T) {

	// Arrange
	d := voyage.NewDeployment("IN2018_V06_001", "")

	first := &voyage.MediaFile{
		OriginalKey: "IN2018_V06_001/IMG_A.JPG",
		Status:      voyage.StatusSuccess,
	}

	d.AddFile(first)

	// Act: re-adding the same key returns the tracked record
	dup := &voyage.MediaFile{
		OriginalKey: "IN2018_V06_001/IMG_A.JPG",
		Status:      voyage.StatusPending,
	}

	got := d.AddFile(dup)

	// Assert
	assert.Same(t, first, got)
	assert.Equal(t, voyage.StatusSuccess, got.Status)
}

func TestReport_Counts(t *testing.T) {

	// Arrange
	r := voyage.NewReport()

	r.Append(voyage.Outcome{Path: "a", Status: voyage.StatusSuccess})
	r.Append(voyage.Outcome{Path: "b", Status: voyage.StatusSkipped})
	r.Append(voyage.Outcome{Path: "c", Status: voyage.StatusFailed, Reason: "corrupt"})

	// Assert
	assert.Equal(t, 1, r.Succeeded())
	assert.Equal(t, 1, r.Skipped())
	assert.Equal(t, 1, r.Failed())
	assert.False(t, r.OK())

	other := voyage.NewReport()
	other.Append(voyage.Outcome{Path: "d", Status: voyage.StatusSuccess})

	r.Merge(other)
	assert.Len(t, r.Outcomes(), 4)
}

func TestKindForKey(t *testing.T) {

	assert.Equal(t, voyage.KindImage, voyage.KindForKey("a/b/IMG.JPG"))
	assert.Equal(t, voyage.KindImage, voyage.KindForKey("photo.jpeg"))
	assert.Equal(t, voyage.KindVideo, voyage.KindForKey("clip.MP4"))
	assert.Equal(t, voyage.KindSensorLog, voyage.KindForKey("log.csv"))
	assert.Equal(t, voyage.KindUnknown, voyage.KindForKey("readme.txt"))
}
