package qrcode

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decode reads the text back from a PNG produced by PNG.
func decode(t *testing.T, data []byte) string {
	t.Helper()

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)

	result, err := gozxingqr.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)
	return result.GetText()
}

func TestPNG(t *testing.T) {
	t.Run("round trips content", func(t *testing.T) {
		content := "2@3f1c6a0e-7d0b-4a8e-9d55-2b8f8c0e9a11,abc"

		data, err := PNG(content, 0)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
		assert.Equal(t, content, decode(t, data))
	})

	t.Run("honours size", func(t *testing.T) {
		data, err := PNG("hello", 128)
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 128, img.Bounds().Dx())
	})

	t.Run("rejects empty content", func(t *testing.T) {
		_, err := PNG("", 0)
		assert.Error(t, err)
	})
}
