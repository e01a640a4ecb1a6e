package imagefile

import (
	"bytes"
	"image"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, format imaging.Format, w, h int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, imaging.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h)), format))
	return buf.Bytes()
}

func TestTypeByName(t *testing.T) {
	cases := map[string]string{
		"me.jpg":       "image/jpeg",
		"me.JPEG":      "image/jpeg",
		"avatar.png":   "image/png",
		"anim.gif":     "image/gif",
		"pic.webp":     "image/webp",
		"document.pdf": "application/octet-stream",
		"noext":        "application/octet-stream",
	}
	for name, want := range cases {
		assert.Equal(t, want, TypeByName(name), name)
	}
}

func TestNormalize_ConvertsJPEGToCanonical(t *testing.T) {
	img, err := Normalize(encode(t, imaging.JPEG, 600, 400), "image/jpeg")
	require.NoError(t, err)

	assert.True(t, img.Converted)
	assert.False(t, img.Unsupported)
	assert.Equal(t, CanonicalMIME, img.MIME)
	assert.Equal(t, 600, img.Width)
	assert.Equal(t, 400, img.Height)

	// The converted payload really is a PNG.
	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 600, decoded.Bounds().Dx())
}

func TestNormalize_ConvertsGIF(t *testing.T) {
	img, err := Normalize(encode(t, imaging.GIF, 120, 90), "image/gif")
	require.NoError(t, err)
	assert.True(t, img.Converted)
	assert.Equal(t, CanonicalMIME, img.MIME)
	assert.Equal(t, 120, img.Width)
}

func TestNormalize_PNGPassesThroughUnchanged(t *testing.T) {
	data := encode(t, imaging.PNG, 300, 300)
	img, err := Normalize(data, "image/png")
	require.NoError(t, err)

	assert.False(t, img.Converted)
	assert.Equal(t, data, img.Data)
	assert.Equal(t, 300, img.Width)
}

func TestNormalize_UnsupportedTypePassesThroughFlagged(t *testing.T) {
	payload := []byte("RIFF....WEBPVP8 ")
	img, err := Normalize(payload, "image/webp")
	require.NoError(t, err)

	assert.True(t, img.Unsupported)
	assert.False(t, img.Converted)
	assert.Equal(t, payload, img.Data)
	assert.Equal(t, 0, img.Width)
}

func TestNormalize_CorruptImageFails(t *testing.T) {
	_, err := Normalize([]byte("not an image"), "image/jpeg")
	assert.Error(t, err)
}

func TestSniff(t *testing.T) {
	assert.Equal(t, "image/png", Sniff(encode(t, imaging.PNG, 10, 10)))
	assert.Equal(t, "image/jpeg", Sniff(encode(t, imaging.JPEG, 10, 10)))
}
