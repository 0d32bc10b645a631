package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompressHalvesDimensions(t *testing.T) {
	c := NewJPEGCompressor(75)

	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{name: "even", w: 40, h: 20, wantW: 20, wantH: 10},
		{name: "odd dimensions round down", w: 41, h: 21, wantW: 20, wantH: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Compress(encodePNG(t, tt.w, tt.h, color.NRGBA{R: 200, G: 10, B: 10, A: 255}))
			require.NoError(t, err)

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, "jpeg", format)
			assert.Equal(t, tt.wantW, cfg.Width)
			assert.Equal(t, tt.wantH, cfg.Height)
		})
	}
}

func TestCompressFlattensTransparency(t *testing.T) {
	out, err := NewJPEGCompressor(90).Compress(encodePNG(t, 8, 8, color.NRGBA{}))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, _ := img.At(2, 2).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestCompressErrors(t *testing.T) {
	c := NewJPEGCompressor(0)
	assert.Equal(t, DefaultQuality, c.Quality)

	_, err := c.Compress([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = c.Compress(encodePNG(t, 1, 1, color.Black))
	assert.ErrorIs(t, err, ErrImageTooSmall)
}
