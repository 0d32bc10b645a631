// Package imaging produces the compressed archive copy of an uploaded image.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultQuality is the JPEG quality of archive copies.
	DefaultQuality = 75

	// MaxPixels bounds decoded image size to keep a single item from
	// exhausting memory.
	MaxPixels = 80_000_000
)

var (
	// ErrUnsupportedImage is returned when the bytes are not a decodable image.
	ErrUnsupportedImage = errors.New("unsupported or corrupted image")

	// ErrImageTooSmall is returned when halving would produce an empty image.
	ErrImageTooSmall = errors.New("image too small to downscale")

	// ErrImageTooLarge is returned when the image exceeds MaxPixels.
	ErrImageTooLarge = errors.New("image exceeds maximum pixel count")
)

// Compressor turns original image bytes into an archive copy.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// JPEGCompressor halves each dimension and re-encodes as JPEG.
type JPEGCompressor struct {
	Quality int
}

// NewJPEGCompressor returns a compressor with the given quality,
// or DefaultQuality when quality is out of range.
func NewJPEGCompressor(quality int) *JPEGCompressor {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &JPEGCompressor{Quality: quality}
}

// Compress decodes data, flattens it onto an opaque white background,
// scales it to floor(w/2) x floor(h/2) and encodes it as JPEG.
func (c *JPEGCompressor) Compress(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	b := src.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooSmall, b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: c.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
