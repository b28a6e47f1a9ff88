package annotate

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/dental-analyzer/pkg/processing"
	"github.com/menta2k/dental-analyzer/pkg/types"
)

// ErrSurfaceUnavailable is returned when there is no raster to draw on
var ErrSurfaceUnavailable = errors.New("drawing surface unavailable")

// Base colors keyed by the finding's color tag
var (
	Yellow  = color.NRGBA{0xea, 0xb3, 0x08, 0xff}
	Orange  = color.NRGBA{0xea, 0x58, 0x0c, 0xff}
	Blue    = color.NRGBA{0x3b, 0x82, 0xf6, 0xff}
	Green   = color.NRGBA{0x16, 0xa3, 0x4a, 0xff}
	textInk = color.NRGBA{0xff, 0xff, 0xff, 0xff}
)

// Label and fill geometry
const (
	fillAlphaStart = 0x80
	fillAlphaEnd   = 0x40
	borderWidth    = 2
	labelPadding   = 4
	labelHeight    = 16
	labelOffset    = 20 // label box top, above the region
	baselineOffset = 6  // text baseline, above the region
)

// Config controls the encoding of annotated rasters
type Config struct {
	Format   string
	Quality  int
	Lossless bool
}

// Annotator paints findings onto a raster
type Annotator struct {
	config    Config
	processor *processing.Processor
	face      font.Face
}

// New creates an Annotator that encodes PNG
func New(processor *processing.Processor) *Annotator {
	return NewWithConfig(processor, Config{Format: "png", Quality: 92})
}

// NewWithConfig creates an Annotator with custom encoding settings
func NewWithConfig(processor *processing.Processor, config Config) *Annotator {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &Annotator{
		config:    config,
		processor: processor,
		face:      basicfont.Face7x13,
	}
}

// ColorFor maps a color tag such as "bg-yellow-500" to its base color
func ColorFor(tag string) color.NRGBA {
	switch {
	case strings.Contains(tag, "yellow"):
		return Yellow
	case strings.Contains(tag, "orange"):
		return Orange
	case strings.Contains(tag, "blue"):
		return Blue
	default:
		return Green
	}
}

// Annotate draws every boxed finding onto a copy of raster and returns it as a data URI.
// Findings without a bounding box are skipped.
func (a *Annotator) Annotate(raster *image.NRGBA, issues []types.DetectedIssue) (string, error) {
	if raster == nil || raster.Bounds().Empty() {
		return "", ErrSurfaceUnavailable
	}

	canvas := image.NewNRGBA(raster.Bounds())
	draw.Draw(canvas, canvas.Bounds(), raster, raster.Bounds().Min, draw.Src)
	a.Draw(canvas, issues)

	uri, err := a.processor.EncodeDataURI(canvas, a.config.Format, a.config.Quality, a.config.Lossless)
	if err != nil {
		return "", fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return uri, nil
}

// Draw paints the findings onto canvas in place
func (a *Annotator) Draw(canvas draw.Image, issues []types.DetectedIssue) {
	for _, issue := range issues {
		if issue.BoundingBox == nil {
			continue
		}
		box := *issue.BoundingBox
		base := ColorFor(issue.Color)
		region := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height)

		fillGradient(canvas, region, base)
		strokeRect(canvas, region, base, borderWidth)
		a.drawLabel(canvas, box, base, fmt.Sprintf("%s (%d%%)", issue.Disease, issue.Confidence))
	}
}

// drawLabel paints an opaque tag with white text just above the region
func (a *Annotator) drawLabel(canvas draw.Image, box types.BoundingBox, base color.NRGBA, text string) {
	textWidth := font.MeasureString(a.face, text).Ceil()
	bg := image.Rect(box.X, box.Y-labelOffset, box.X+textWidth+labelPadding*2, box.Y-labelOffset+labelHeight)
	fillRect(canvas, bg, base)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(textInk),
		Face: a.face,
		Dot:  fixed.P(box.X+labelPadding, box.Y-baselineOffset),
	}
	d.DrawString(text)
}

// fillGradient blends base over r with alpha fading along the diagonal
func fillGradient(canvas draw.Image, r image.Rectangle, base color.NRGBA) {
	clip := r.Intersect(canvas.Bounds())
	if clip.Empty() {
		return
	}

	w, h := float64(r.Dx()), float64(r.Dy())
	norm := w*w + h*h
	mask := image.NewAlpha(clip)
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			t := 0.0
			if norm > 0 {
				t = (float64(x-r.Min.X)*w + float64(y-r.Min.Y)*h) / norm
			}
			t = max(0, min(1, t))
			alpha := fillAlphaStart + (fillAlphaEnd-fillAlphaStart)*t
			mask.SetAlpha(x, y, color.Alpha{A: uint8(alpha + 0.5)})
		}
	}

	draw.DrawMask(canvas, clip, image.NewUniform(base), image.Point{}, mask, clip.Min, draw.Over)
}

// strokeRect draws a border of the given width centered on r's edges
func strokeRect(canvas draw.Image, r image.Rectangle, c color.NRGBA, stroke int) {
	outer := r.Inset(-stroke / 2)
	for s := 0; s < stroke; s++ {
		fillRect(canvas, image.Rect(outer.Min.X, outer.Min.Y+s, outer.Max.X, outer.Min.Y+s+1), c)
		fillRect(canvas, image.Rect(outer.Min.X, outer.Max.Y-1-s, outer.Max.X, outer.Max.Y-s), c)
		fillRect(canvas, image.Rect(outer.Min.X+s, outer.Min.Y, outer.Min.X+s+1, outer.Max.Y), c)
		fillRect(canvas, image.Rect(outer.Max.X-1-s, outer.Min.Y, outer.Max.X-s, outer.Max.Y), c)
	}
}

// fillRect paints r with an opaque color, clipped to the canvas
func fillRect(canvas draw.Image, r image.Rectangle, c color.NRGBA) {
	draw.Draw(canvas, r, image.NewUniform(c), image.Point{}, draw.Src)
}
