package decode

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageDecoder_Decode(t *testing.T) {
	d := NewImageDecoder()

	s, err := d.Decode(testPNG(t, 4, 3))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 4, s.Width())
	assert.Equal(t, 3, s.Height())

	out, err := s.Encode()
	require.NoError(t, err)

	again, err := d.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, 4, again.Width())
}

func TestImageDecoder_Garbage(t *testing.T) {
	d := NewImageDecoder()

	_, err := d.Decode([]byte("<html>rate limited</html>"))
	require.Error(t, err)

	_, err = d.Decode(nil)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestImageDecoder_EncodeAfterClose(t *testing.T) {
	s, err := NewImageDecoder().Decode(testPNG(t, 2, 2))
	require.NoError(t, err)

	s.Close()
	_, err = s.Encode()
	require.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, s.Width())

	// closing twice is harmless
	s.Close()
}

func TestNew(t *testing.T) {
	d, err := New("image")
	require.NoError(t, err)
	assert.IsType(t, &ImageDecoder{}, d)

	_, err = New("vips")
	require.Error(t, err)

	_, err = New("bmp")
	require.Error(t, err)
}
