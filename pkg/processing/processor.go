package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// DefaultMaxDimension bounds the longer side of a normalized raster
const DefaultMaxDimension = 384

// Processor normalizes decoded images and serializes rasters
type Processor struct {
	maxDimension int
}

// NewProcessor creates a processor with the default 384px bound
func NewProcessor() *Processor {
	return &Processor{maxDimension: DefaultMaxDimension}
}

// NewProcessorWithMaxDimension creates a processor with a custom bound
func NewProcessorWithMaxDimension(maxDim int) *Processor {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	return &Processor{maxDimension: maxDim}
}

// MaxDimension returns the configured bound
func (p *Processor) MaxDimension() int {
	return p.maxDimension
}

// NormalizedSize computes the raster size for an image of the given natural size.
// Sizes within the bound are returned unchanged; otherwise the longer side is clamped
// and the other scaled proportionally, rounded to the nearest pixel.
func (p *Processor) NormalizedSize(width, height int) (int, int) {
	limit := p.maxDimension
	if width <= limit && height <= limit {
		return width, height
	}

	if width > height {
		height = int(math.Round(float64(height) * float64(limit) / float64(width)))
		width = limit
	} else {
		width = int(math.Round(float64(width) * float64(limit) / float64(height)))
		height = limit
	}

	// Extreme aspect ratios must not collapse a side to zero
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

// Normalize draws img onto a new raster of the normalized size
func (p *Processor) Normalize(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := p.NormalizedSize(b.Dx(), b.Dy())
	if w == b.Dx() && h == b.Dy() {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, quality int) (string, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Encode writes img in the given format (png, jpg or webp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case "png", "":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// EncodeDataURI serializes img into an embeddable data URI
func (p *Processor) EncodeDataURI(img image.Image, format string, quality int, lossless bool) (string, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf, img, format, quality, lossless); err != nil {
		return "", err
	}
	return "data:" + MediaType(format) + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// MediaType maps an output format to its MIME type
func MediaType(format string) string {
	switch strings.ToLower(format) {
	case "webp":
		return "image/webp"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// Extension maps a MIME type to a file extension, defaulting to png
func Extension(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/webp":
		return "webp"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
