package render

import (
	"fmt"
	"image"
	"math"

	"github.com/jypelle/cedarhud/internal/srv/guidance"
)

const (
	indicatorSize    = 14
	readoutsBaseline = 115

	arrowHalfLength = 20
	arrowHeadLength = 12
	arrowHeadWidth  = 12
)

// FormatOffset prints the magnitude of an axis offset with fewer decimals as
// it grows
func FormatOffset(offset float64) string {
	n := math.Abs(offset)
	switch {
	case n >= 100:
		return fmt.Sprintf("%.0f", n)
	case n >= 10:
		return fmt.Sprintf("%.1f", n)
	default:
		return fmt.Sprintf("%.2f", n)
	}
}

// drawReadouts adds the axis offsets, which way to move each axis and the
// target angle arrow
func drawReadouts(f *Frame, g guidance.State) {
	tilt, rotation := g.Offset.Y, g.Offset.X

	_, ascent, _ := labelMetrics("0")
	tiltLabel := FormatOffset(tilt)
	AddLabel(f, Width-LabelWidth(tiltLabel), ascent, tiltLabel, Foreground, 1)
	rotationLabel := FormatOffset(rotation)
	AddLabel(f, Width-LabelWidth(rotationLabel), readoutsBaseline, rotationLabel, Foreground, 1)

	switch {
	case g.AltAz:
		drawAltAzIndicators(f, tilt, rotation, !g.Retained)
	case !g.Retained || retainedPhase(g)%72 < 36:
		drawEquatorialIndicators(f, tilt, rotation)
	}

	if !g.Retained {
		drawTargetArrow(f, g.TargetAngle)
	}
}

func drawEquatorialIndicators(f *Frame, tilt, rotation float64) {
	_, ascent, _ := labelMetrics("N")
	northSouth := "S"
	if tilt > 0 {
		northSouth = "N"
	}
	AddLabel(f, 0, 2*ascent, northSouth, Foreground, 2)

	eastWest := "W"
	if rotation > 0 {
		eastWest = "E"
	}
	AddLabel(f, 0, readoutsBaseline, eastWest, Foreground, 2)
}

// drawAltAzIndicators points a triangle along each axis, filled while the
// slew is current
func drawAltAzIndicators(f *Frame, tilt, rotation float64, current bool) {
	const s = indicatorSize
	const bottom = readoutsBaseline
	triangle := strokeTriangle
	if current {
		triangle = fillTriangle
	}

	if tilt > 0 {
		triangle(f, image.Pt(s/2, 0), image.Pt(0, s), image.Pt(s, s), Foreground)
	} else {
		triangle(f, image.Pt(0, 0), image.Pt(s, 0), image.Pt(s/2, s), Foreground)
	}

	if rotation > 0 {
		triangle(f, image.Pt(0, bottom-s), image.Pt(0, bottom), image.Pt(s, bottom-s/2), Foreground)
	} else {
		triangle(f, image.Pt(s, bottom-s), image.Pt(s, bottom), image.Pt(0, bottom-s/2), Foreground)
	}
}

// drawTargetArrow draws an arrow through the center, pointing up for a
// target angle of 0 and turning counterclockwise as the angle grows
func drawTargetArrow(f *Frame, targetAngle float64) {
	angle := (targetAngle + 90) * math.Pi / 180
	cos, sin := math.Cos(angle), math.Sin(angle)
	along := func(d float64) image.Point {
		return image.Pt(centerX+int(math.Round(d*cos)), centerY-int(math.Round(d*sin)))
	}

	tip := along(arrowHalfLength)
	tail := along(-arrowHalfLength)
	base := along(arrowHalfLength - arrowHeadLength)

	half := arrowHeadWidth / 2.0
	px, py := math.Cos(angle+math.Pi/2), math.Sin(angle+math.Pi/2)
	dx, dy := int(math.Round(half*px)), int(math.Round(half*py))
	left := image.Pt(base.X+dx, base.Y-dy)
	right := image.Pt(base.X-dx, base.Y+dy)

	thickLine(f, tail.X, tail.Y, base.X, base.Y, 1, Foreground)
	fillTriangle(f, tip, left, right, Foreground)
}

// retainedPhase is the arc angle in degrees, derived from the poll time so
// that rendering stays deterministic
func retainedPhase(g guidance.State) int {
	if g.UpdatedAt.IsZero() {
		return 0
	}
	return int((g.UpdatedAt.UnixMilli() / retainedStepMs * retainedStepDeg) % 360)
}
