// Package texture holds floating-point RGBA image buffers and writes them
// to disk as OpenEXR or as 8-bit WebP, TGA or BMP images.
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"

	"github.com/Faultbox/assetforge/pkg/formats"
)

// Texture errors.
var (
	ErrInvalidSize   = errors.New("invalid texture size")
	ErrPixelCount    = errors.New("pixel count does not match texture size")
	ErrUnknownFormat = errors.New("unknown image format")
	ErrOutOfBounds   = errors.New("pixel out of bounds")
)

// Format is an on-disk image format.
type Format string

// Supported formats.
const (
	FormatEXR  Format = "exr"
	FormatWebP Format = "webp"
	FormatTGA  Format = "tga"
	FormatBMP  Format = "bmp"
)

// ParseFormat converts a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(s), ".")); f {
	case FormatEXR, FormatWebP, FormatTGA, FormatBMP:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Buffer is a named RGBA float image. Pixels are stored row-major with
// row 0 at the bottom of the image.
type Buffer struct {
	Name   string
	Width  int
	Height int
	Pixels []float32
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(name string, width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return &Buffer{
		Name:   name,
		Width:  width,
		Height: height,
		Pixels: make([]float32, width*height*4),
	}, nil
}

// SetPixels replaces the whole pixel array with a flat RGBA sequence.
func (b *Buffer) SetPixels(values []float32) error {
	if len(values) != len(b.Pixels) {
		return fmt.Errorf("%w: got %d values, want %d", ErrPixelCount, len(values), len(b.Pixels))
	}
	copy(b.Pixels, values)
	return nil
}

// At returns the RGBA value at column x of row (0 = bottom).
func (b *Buffer) At(x, row int) ([4]float32, error) {
	if x < 0 || x >= b.Width || row < 0 || row >= b.Height {
		return [4]float32{}, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfBounds, x, row, b.Width, b.Height)
	}
	i := (row*b.Width + x) * 4
	return [4]float32{b.Pixels[i], b.Pixels[i+1], b.Pixels[i+2], b.Pixels[i+3]}, nil
}

// TopDown returns the pixels with the top row first, the order image
// files store them in.
func (b *Buffer) TopDown() []float32 {
	out := make([]float32, len(b.Pixels))
	stride := b.Width * 4
	for row := 0; row < b.Height; row++ {
		dst := (b.Height - 1 - row) * stride
		copy(out[dst:dst+stride], b.Pixels[row*stride:(row+1)*stride])
	}
	return out
}

// Image quantizes the buffer to 8 bits per channel. Values are clamped to
// [0,1].
func (b *Buffer) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for row := 0; row < b.Height; row++ {
		y := b.Height - 1 - row
		for x := 0; x < b.Width; x++ {
			i := (row*b.Width + x) * 4
			img.SetNRGBA(x, y, color.NRGBA{
				R: quantize(b.Pixels[i]),
				G: quantize(b.Pixels[i+1]),
				B: quantize(b.Pixels[i+2]),
				A: quantize(b.Pixels[i+3]),
			})
		}
	}
	return img
}

func quantize(v float32) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, float64(v))) * 255))
}

// SaveEXR writes the buffer to an OpenEXR file.
func SaveEXR(b *Buffer, path string, pt formats.EXRPixelType) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", b.Name, err)
	}
	return formats.WriteEXRFile(path, b.Width, b.Height, b.TopDown(), pt)
}

// Save writes the buffer in the given format. pt applies to EXR only; the
// other formats store 8 bits per channel. A file that fails to encode is
// removed.
func Save(b *Buffer, path string, format Format, pt formats.EXRPixelType) error {
	if format == FormatEXR {
		return SaveEXR(b, path, pt)
	}
	encode, ok := encoders[format]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", b.Name, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f, b.Image()); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encoding %s as %s: %w", b.Name, format, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

var encoders = map[Format]func(io.Writer, image.Image) error{
	FormatWebP: func(w io.Writer, img image.Image) error { return nativewebp.Encode(w, img, nil) },
	FormatTGA:  tga.Encode,
	FormatBMP:  bmp.Encode,
}

// LoadEXR reads an OpenEXR file into a buffer named after the file.
func LoadEXR(path string) (*Buffer, error) {
	img, err := formats.ParseEXRFile(path)
	if err != nil {
		return nil, err
	}
	b, err := NewBuffer(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), img.Width, img.Height)
	if err != nil {
		return nil, err
	}
	stride := b.Width * 4
	for y := 0; y < b.Height; y++ {
		row := b.Height - 1 - y
		copy(b.Pixels[row*stride:(row+1)*stride], img.Pixels[y*stride:(y+1)*stride])
	}
	return b, nil
}
