package ifdo_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/seafloor-imaging/go-voyage-media/ifdo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T) []byte {

	im := image.NewNRGBA(image.Rect(0, 0, 32, 24))

	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			im.Set(x, y, color.NRGBA{uint8(x * 8), uint8(y * 10), 64, 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, im, nil))

	return buf.Bytes()
}

func TestEmbed_RoundTrip(t *testing.T) {

	// Arrange
	body := testJPEG(t)
	entry_json := []byte(`{"image-uuid":"a1b2","image-local-path":"d/images/x.JPG"}`)

	// Act
	embedded, err := ifdo.Embed(body, entry_json)
	require.NoError(t, err)

	extracted, ok := ifdo.Extract(embedded)

	// Assert: the embedded copy survives byte for byte
	require.True(t, ok)
	assert.Equal(t, entry_json, extracted)
}

func TestEmbed_PreservesPixelData(t *testing.T) {

	// Arrange
	body := testJPEG(t)

	before, _, err := image.Decode(bytes.NewReader(body))
	require.NoError(t, err)

	// Act
	embedded, err := ifdo.Embed(body, []byte(`{"image-uuid":"a1b2"}`))
	require.NoError(t, err)

	after, _, err := image.Decode(bytes.NewReader(embedded))
	require.NoError(t, err)

	// Assert: identical dimensions and identical decoded pixels
	require.Equal(t, before.Bounds(), after.Bounds())

	for x := 0; x < before.Bounds().Dx(); x += 4 {

		for y := 0; y < before.Bounds().Dy(); y += 4 {

			br, bg, bb, _ := before.At(x, y).RGBA()
			ar, ag, ab, _ := after.At(x, y).RGBA()

			require.Equal(t, br, ar)
			require.Equal(t, bg, ag)
			require.Equal(t, bb, ab)
		}
	}
}

func TestEmbed_ReplacesStaleEntry(t *testing.T) {

	// Arrange
	body := testJPEG(t)

	first, err := ifdo.Embed(body, []byte(`{"image-uuid":"old","n":1}`))
	require.NoError(t, err)

	// Act: re-packaging embeds a fresh entry
	second, err := ifdo.Embed(first, []byte(`{"image-uuid":"new","n":2}`))
	require.NoError(t, err)

	// Assert: only the fresh entry remains and the output is no longer
	// than a single-embed copy of the same length payload
	extracted, ok := ifdo.Extract(second)
	require.True(t, ok)
	assert.Equal(t, `{"image-uuid":"new","n":2}`, string(extracted))

	direct, err := ifdo.Embed(body, []byte(`{"image-uuid":"new","n":2}`))
	require.NoError(t, err)
	assert.Equal(t, direct, second)
}

func TestEmbed_PreservesOtherComments(t *testing.T) {

	// Arrange: a JPEG carrying an unrelated COM segment
	body := testJPEG(t)

	var with_com bytes.Buffer

	with_com.Write(body[:2])
	with_com.Write([]byte{0xFF, 0xFE, 0x00, 0x07, 'h', 'e', 'l', 'l', 'o'})
	with_com.Write(body[2:])

	// Act
	embedded, err := ifdo.Embed(with_com.Bytes(), []byte(`{"image-uuid":"a1b2"}`))
	require.NoError(t, err)

	// Assert: the unrelated comment is still there
	assert.True(t, bytes.Contains(embedded, []byte("hello")))

	_, ok := ifdo.Extract(embedded)
	assert.True(t, ok)
}

func TestEmbed_RejectsNonJPEG(t *testing.T) {

	_, err := ifdo.Embed([]byte("not a jpeg"), []byte(`{"image-uuid":"a1b2"}`))
	assert.Error(t, err)
}

func TestEmbed_RejectsOversizedEntry(t *testing.T) {

	big := bytes.Repeat([]byte("x"), 70000)

	_, err := ifdo.Embed(testJPEG(t), big)
	assert.Error(t, err)
}

func TestExtract_NoEntry(t *testing.T) {

	_, ok := ifdo.Extract(testJPEG(t))
	assert.False(t, ok)
}
