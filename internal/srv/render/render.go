package render

import (
	"image"
	"math"

	"github.com/jypelle/cedarhud/internal/srv/config"
	"github.com/jypelle/cedarhud/internal/srv/guidance"
)

// PixelsPerUnit converts a guidance offset into a marker displacement
const PixelsPerUnit = 2.0

const (
	centerX = Width / 2
	centerY = Height / 2

	crosshairHalfLength = 24
	markerHalfSize      = 3
	edgeBarLength       = 11
	edgeBarThickness    = 3

	spinnerDots   = 8
	spinnerRadius = 20
	spinnerStepMs = 125

	retainedArcRadius = 20
	// the arc turns retainedStepDeg every retainedStepMs
	retainedStepMs  = 50
	retainedStepDeg = 9
)

var (
	Background = NewRGB565(0, 0, 0)
	Foreground = NewRGB565(255, 0, 0)
	Dim        = NewRGB565(128, 0, 0)
)

// Render draws the HUD for a guidance snapshot. It has no side effect and
// returns the same pixels for the same inputs.
func Render(g guidance.State, c config.Settings) *Frame {
	f := NewFrame(Background)

	switch {
	case !g.Connected:
		drawDisconnected(f)
	case g.Status == guidance.Solved:
		drawSolved(f, g, c.Readouts)
	case g.Status == guidance.Solving:
		drawSolving(f, g)
	default:
		drawMessage(f, noSolveMessage(g.Mode))
	}

	if g.Connected && g.Stale {
		ring(f, Width-7, 6, 3, Foreground)
	}

	return rotate(f, c.Rotation)
}

// Splash is the startup screen
func Splash(banner string) *Frame {
	f := NewFrame(Background)
	AddCenteredLabel(f, 52, "CEDAR", Foreground, 3)
	AddCenteredLabel(f, 84, "HUD", Dim, 2)
	AddCenteredLabel(f, 112, banner, Dim, 1)
	return f
}

// Goodbye is shown while the daemon shuts down
func Goodbye() *Frame {
	f := NewFrame(Background)
	AddCenteredLabel(f, centerY, "See you!", Dim, 2)
	return f
}

func noSolveMessage(mode guidance.Mode) string {
	switch mode {
	case guidance.SetupMode:
		return "SETUP"
	case guidance.CalibratingMode:
		return "CALIBRATING"
	default:
		return "NO TARGET"
	}
}

func drawMessage(f *Frame, message string) {
	scale := 2
	if LabelWidth(message)*scale > Width-4 {
		scale = 1
	}
	AddCenteredLabel(f, centerY, message, Foreground, scale)
}

func drawDisconnected(f *Frame) {
	// two chain links with a cut through them
	ring(f, centerX-12, 44, 9, Dim)
	ring(f, centerX+12, 44, 9, Dim)
	line(f, centerX-20, 62, centerX+20, 26, Foreground)
	line(f, centerX-19, 62, centerX+21, 26, Foreground)
	AddCenteredLabel(f, 90, "NO LINK", Foreground, 2)
}

func drawSolving(f *Frame, g guidance.State) {
	phase := spinnerPhase(g)
	for i := 0; i < spinnerDots; i++ {
		angle := 2 * math.Pi * float64(i) / spinnerDots
		x := centerX + int(math.Round(spinnerRadius*math.Sin(angle)))
		y := centerY - int(math.Round(spinnerRadius*math.Cos(angle)))
		if i == phase {
			disc(f, x, y, 3, Foreground)
		} else {
			disc(f, x, y, 2, Dim)
		}
	}
	AddCenteredLabel(f, 108, "SOLVING", Foreground, 1)
}

func spinnerPhase(g guidance.State) int {
	if g.UpdatedAt.IsZero() {
		return 0
	}
	ms := g.UpdatedAt.UnixMilli()
	return int((ms / spinnerStepMs) % spinnerDots)
}

func drawSolved(f *Frame, g guidance.State, readouts bool) {
	hLine(f, centerX-crosshairHalfLength, centerX+crosshairHalfLength, centerY, 1, Dim)
	vLine(f, centerX, centerY-crosshairHalfLength, centerY+crosshairHalfLength, 1, Dim)
	AddCenteredLabel(f, 8, "LOCK", Dim, 1)

	if readouts {
		drawReadouts(f, g)
	}

	// a retained slew keeps an outlined marker and a turning arc
	p, visible := MarkerPosition(g.Offset)
	switch {
	case !visible:
		drawEdgeIndicator(f, p)
	case g.Retained:
		strokeRect(f, MarkerRect(p), Foreground)
	default:
		f.FillRect(MarkerRect(p), Foreground)
	}
	if g.Retained {
		arc(f, centerX, centerY, retainedArcRadius, 3, float64(retainedPhase(g)), 90, Foreground)
	}

	drawConfidence(f, g.Confidence)
}

// MarkerPosition maps an offset to the marker center. Y grows upward in
// guidance units and downward on the panel. The point is clamped to the frame
// and visible reports whether the whole marker fits.
func MarkerPosition(offset guidance.Vector) (p image.Point, visible bool) {
	x := float64(centerX) + math.Round(offset.X*PixelsPerUnit)
	y := float64(centerY) - math.Round(offset.Y*PixelsPerUnit)

	lo := float64(markerHalfSize)
	hiX := float64(Width - 1 - markerHalfSize)
	hiY := float64(Height - 1 - markerHalfSize)
	visible = x >= lo && x <= hiX && y >= lo && y <= hiY

	return image.Pt(int(math.Max(0, math.Min(Width-1, x))), int(math.Max(0, math.Min(Height-1, y)))), visible
}

// MarkerRect is the area covered by a marker centered on p
func MarkerRect(p image.Point) image.Rectangle {
	return image.Rect(p.X-markerHalfSize, p.Y-markerHalfSize, p.X+markerHalfSize+1, p.Y+markerHalfSize+1)
}

// drawEdgeIndicator marks the border(s) the target lies beyond
func drawEdgeIndicator(f *Frame, p image.Point) {
	half := edgeBarLength / 2
	ex := clamp(p.X, half, Width-1-half)
	ey := clamp(p.Y, half, Height-1-half)

	if p.X < markerHalfSize {
		f.FillRect(image.Rect(0, ey-half, edgeBarThickness, ey+half+1), Foreground)
	}
	if p.X > Width-1-markerHalfSize {
		f.FillRect(image.Rect(Width-edgeBarThickness, ey-half, Width, ey+half+1), Foreground)
	}
	if p.Y < markerHalfSize {
		f.FillRect(image.Rect(ex-half, 0, ex+half+1, edgeBarThickness), Foreground)
	}
	if p.Y > Height-1-markerHalfSize {
		f.FillRect(image.Rect(ex-half, Height-edgeBarThickness, ex+half+1, Height), Foreground)
	}
}

func drawConfidence(f *Frame, confidence float64) {
	const x0, x1, y0, y1 = 13, 115, 118, 124
	strokeRect(f, image.Rect(x0, y0, x1, y1), Dim)
	confidence = math.Max(0, math.Min(1, confidence))
	filled := int(math.Round(confidence * float64(x1-x0-2)))
	f.FillRect(image.Rect(x0+1, y0+1, x0+1+filled, y1-1), Foreground)
}

// rotate turns the frame clockwise by r
func rotate(f *Frame, r config.Rotation) *Frame {
	if r == config.Rotation0 || !r.Valid() {
		return f
	}
	out := &Frame{}
	const last = Width - 1
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			c := f.Pix[y*Width+x]
			var rx, ry int
			switch r {
			case config.Rotation90:
				rx, ry = last-y, x
			case config.Rotation180:
				rx, ry = last-x, last-y
			case config.Rotation270:
				rx, ry = y, last-x
			}
			out.Pix[ry*Width+rx] = c
		}
	}
	return out
}
