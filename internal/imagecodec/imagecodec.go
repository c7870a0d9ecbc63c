// Package imagecodec turns uploaded image bytes into 3-channel pixel arrays.
package imagecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Channels is the number of color channels in a decoded PixelArray.
const Channels = 3

var (
	// ErrEmptyPayload is returned when there are no bytes to decode.
	ErrEmptyPayload = errors.New("empty image payload")
	// ErrTooManyPixels is returned when the declared dimensions exceed the pixel limit.
	ErrTooManyPixels = errors.New("image exceeds pixel limit")
)

// PixelArray is a height × width × 3 RGB image with 8 bits per channel.
// Pix is laid out row-major: the pixel at (y, x) starts at (y*Width+x)*Channels.
type PixelArray struct {
	Height int
	Width  int
	Format string
	Pix    []uint8
}

// At returns the RGB triple at row y, column x.
func (p *PixelArray) At(y, x int) (r, g, b uint8) {
	i := (y*p.Width + x) * Channels
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

// Shape returns the dimensions as [height, width, channels].
func (p *PixelArray) Shape() [3]int {
	return [3]int{p.Height, p.Width, Channels}
}

// Equal reports whether both arrays hold the same pixels.
func (p *PixelArray) Equal(other *PixelArray) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Height == other.Height && p.Width == other.Width && bytes.Equal(p.Pix, other.Pix)
}

// Decode decodes an encoded image (JPEG, PNG, GIF, BMP, TIFF, WebP) into an
// RGB pixel array. Alpha is discarded and grayscale is expanded to 3 channels.
// The header is checked against maxPixels before any pixel data is decoded;
// maxPixels <= 0 disables the check.
func Decode(data []byte, maxPixels int64) (*PixelArray, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d is more than %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	pa := FromImage(img)
	pa.Format = format
	return pa, nil
}

// FromImage converts any image.Image into a PixelArray. Common decoder output
// types are converted in place; anything else goes through an NRGBA copy.
func FromImage(img image.Image) *PixelArray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, w*h*Channels)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):][:w]
			for x, v := range row {
				i := (y*w + x) * Channels
				pix[i], pix[i+1], pix[i+2] = v, v, v
			}
		}
	case *image.YCbCr:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				yi := src.YOffset(b.Min.X+x, b.Min.Y+y)
				ci := src.COffset(b.Min.X+x, b.Min.Y+y)
				i := (y*w + x) * Channels
				pix[i], pix[i+1], pix[i+2] = color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
			}
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):][:w*4]
			for x := 0; x < w; x++ {
				s := row[x*4 : x*4+4]
				i := (y*w + x) * Channels
				pix[i], pix[i+1], pix[i+2] = unpremultiply(s[0], s[3]), unpremultiply(s[1], s[3]), unpremultiply(s[2], s[3])
			}
		}
	case *image.NRGBA:
		copyNRGBA(pix, src, w, h)
	default:
		nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
		copyNRGBA(pix, nrgba, w, h)
	}
	return &PixelArray{Height: h, Width: w, Pix: pix}
}

func copyNRGBA(dst []uint8, src *image.NRGBA, w, h int) {
	b := src.Bounds()
	for y := 0; y < h; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):][:w*4]
		for x := 0; x < w; x++ {
			i := (y*w + x) * Channels
			dst[i], dst[i+1], dst[i+2] = row[x*4], row[x*4+1], row[x*4+2]
		}
	}
}

func unpremultiply(c, a uint8) uint8 {
	switch a {
	case 0xff:
		return c
	case 0:
		return 0
	}
	v := uint32(c) * 0xff / uint32(a)
	if v > 0xff {
		return 0xff
	}
	return uint8(v)
}

// Image returns the pixel array as an opaque image.NRGBA.
func (p *PixelArray) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			r, g, b := p.At(y, x)
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	return img
}

// EncodePNG re-encodes the pixel array losslessly.
func (p *PixelArray) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
