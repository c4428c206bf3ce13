package sensor_test

import (
	"context"
	"testing"
	"time"

	"github.com/seafloor-imaging/go-voyage-media/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

const test_log = `FinalTime,UsblLatitude,UsblLongitude,Altitude,Pitch,Roll,Camera,Operation
2018-11-23 10:00:00.123456,-42.5,148.25,2.1,1.5,-0.5,SCP1,tow
2018-11-23 10:05:00.000000,-42.6,148.30,2.4,1.6,-0.4,SCP1,tow
`

func loadTestLog(t *testing.T, body string, opts *sensor.LoadOptions) (*sensor.Correlator, error) {

	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)

	t.Cleanup(func() {
		bucket.Close()
	})

	err = bucket.WriteAll(ctx, "data/test.CSV", []byte(body), nil)
	require.NoError(t, err)

	return sensor.Load(ctx, bucket, "data/test.CSV", opts)
}

func TestCorrelator_NearestLookup(t *testing.T) {

	// Arrange: records at 10:00:00 and 10:05:00, tolerance 3 minutes
	c, err := loadTestLog(t, test_log, &sensor.LoadOptions{
		MaxGap: 3 * time.Minute,
	})

	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	t1 := time.Date(2018, 11, 23, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2018, 11, 23, 10, 5, 0, 0, time.UTC)

	// Act + Assert: 10:02:00 is closer to T1
	rec, ok := c.Find(time.Date(2018, 11, 23, 10, 2, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, t1, rec.Timestamp)

	// 10:04:00 is closer to T2
	rec, ok = c.Find(time.Date(2018, 11, 23, 10, 4, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, t2, rec.Timestamp)

	// 10:20:00 exceeds the maximum gap
	_, ok = c.Find(time.Date(2018, 11, 23, 10, 20, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestCorrelator_TieFavorsEarlier(t *testing.T) {

	// Arrange: 10:02:30 is equidistant from both records
	c, err := loadTestLog(t, test_log, &sensor.LoadOptions{
		MaxGap: 5 * time.Minute,
	})

	require.NoError(t, err)

	// Act
	rec, ok := c.Find(time.Date(2018, 11, 23, 10, 2, 30, 0, time.UTC))

	// Assert
	require.True(t, ok)
	assert.Equal(t, time.Date(2018, 11, 23, 10, 0, 0, 0, time.UTC), rec.Timestamp)
}

func TestCorrelator_TimestampsFlooredToSecond(t *testing.T) {

	// Arrange
	c, err := loadTestLog(t, test_log, nil)
	require.NoError(t, err)

	// Act: an exact whole-second lookup matches the floored record
	rec, ok := c.Find(time.Date(2018, 11, 23, 10, 0, 0, 0, time.UTC))

	// Assert
	require.True(t, ok)

	lat, ok := rec.Float("UsblLatitude")
	require.True(t, ok)
	assert.InDelta(t, -42.5, lat, 0.0001)

	assert.Equal(t, "SCP1", rec.Fields["Camera"])
}

func TestLoad_MissingTimestampColumn(t *testing.T) {

	// Arrange
	body := "Latitude,Longitude\n-42.5,148.25\n"

	// Act
	_, err := loadTestLog(t, body, nil)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, sensor.ErrMalformedLog)
}

func TestLoad_UnparsableTimestamp(t *testing.T) {

	// Arrange
	body := "FinalTime,Depth\nnot-a-timestamp,2.1\n"

	// Act
	_, err := loadTestLog(t, body, nil)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, sensor.ErrMalformedLog)
}

func TestCorrelator_EmptyLog(t *testing.T) {

	// Arrange
	body := "FinalTime,Depth\n"

	c, err := loadTestLog(t, body, nil)
	require.NoError(t, err)

	// Act
	_, ok := c.Find(time.Now())

	// Assert
	assert.False(t, ok)
}
