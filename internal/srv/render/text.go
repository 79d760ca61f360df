package render

import (
	"image"

	"github.com/hajimehoshi/bitmapfont/v2"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// AddLabel draws label with its baseline at y, starting at x, scaled by an
// integer factor (1 draws the bitmap font at its native size).
func AddLabel(dst *Frame, x, y int, label string, c RGB565, scale int) {
	if label == "" {
		return
	}
	if scale < 1 {
		scale = 1
	}

	if scale == 1 {
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(c),
			Face: bitmapfont.Face,
			Dot:  fixed.P(x, y),
		}
		d.DrawString(label)
		return
	}

	// Draw at native size on a transparent canvas, then blow it up
	width, ascent, descent := labelMetrics(label)
	canvas := image.NewRGBA(image.Rect(0, 0, width, ascent+descent))
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(c),
		Face: bitmapfont.Face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(label)

	target := image.Rect(0, 0, width*scale, (ascent+descent)*scale).Add(image.Pt(x, y-ascent*scale))
	draw.NearestNeighbor.Scale(dst, target, canvas, canvas.Bounds(), draw.Over, nil)
}

// AddCenteredLabel draws label horizontally centered with its vertical middle at cy
func AddCenteredLabel(dst *Frame, cy int, label string, c RGB565, scale int) {
	if scale < 1 {
		scale = 1
	}
	width, ascent, descent := labelMetrics(label)
	x := (Width - width*scale) / 2
	y := cy + (ascent*scale - (ascent+descent)*scale/2)
	AddLabel(dst, x, y, label, c, scale)
}

// LabelWidth is the width in pixels of label at native size
func LabelWidth(label string) int {
	width, _, _ := labelMetrics(label)
	return width
}

func labelMetrics(label string) (width, ascent, descent int) {
	metrics := bitmapfont.Face.Metrics()
	width = font.MeasureString(bitmapfont.Face, label).Ceil()
	return width, metrics.Ascent.Ceil(), metrics.Descent.Ceil()
}
