package render

import (
	"image"
	"math"
)

func hLine(f *Frame, x0, x1, y, thickness int, c RGB565) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	f.FillRect(image.Rect(x0, y-thickness/2, x1+1, y-thickness/2+thickness), c)
}

func vLine(f *Frame, x, y0, y1, thickness int, c RGB565) {
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	f.FillRect(image.Rect(x-thickness/2, y0, x-thickness/2+thickness, y1+1), c)
}

// strokeRect draws the 1 pixel outline of r
func strokeRect(f *Frame, r image.Rectangle, c RGB565) {
	if r.Empty() {
		return
	}
	hLine(f, r.Min.X, r.Max.X-1, r.Min.Y, 1, c)
	hLine(f, r.Min.X, r.Max.X-1, r.Max.Y-1, 1, c)
	vLine(f, r.Min.X, r.Min.Y, r.Max.Y-1, 1, c)
	vLine(f, r.Max.X-1, r.Min.Y, r.Max.Y-1, 1, c)
}

// disc fills every pixel whose center lies within radius of (cx, cy)
func disc(f *Frame, cx, cy, radius int, c RGB565) {
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= r2 {
				f.SetRGB565(cx+dx, cy+dy, c)
			}
		}
	}
}

// ring draws the pixels of disc(radius) that are not in disc(radius-1)
func ring(f *Frame, cx, cy, radius int, c RGB565) {
	outer := radius * radius
	inner := (radius - 1) * (radius - 1)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d := dx*dx + dy*dy
			if d <= outer && d > inner {
				f.SetRGB565(cx+dx, cy+dy, c)
			}
		}
	}
}

// line draws a Bresenham segment
func line(f *Frame, x0, y0, x1, y1 int, c RGB565) {
	segment(x0, y0, x1, y1, func(x, y int) {
		f.SetRGB565(x, y, c)
	})
}

// thickLine strokes the segment with a disc brush of the given radius
func thickLine(f *Frame, x0, y0, x1, y1, radius int, c RGB565) {
	segment(x0, y0, x1, y1, func(x, y int) {
		disc(f, x, y, radius, c)
	})
}

func segment(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// fillTriangle fills every pixel on or inside the triangle abc
func fillTriangle(f *Frame, a, b, c image.Point, col RGB565) {
	minX, maxX := min(a.X, b.X, c.X), max(a.X, b.X, c.X)
	minY, maxY := min(a.Y, b.Y, c.Y), max(a.Y, b.Y, c.Y)
	area := edge(a, b, c)
	if area == 0 {
		line(f, a.X, a.Y, b.X, b.Y, col)
		line(f, b.X, b.Y, c.X, c.Y, col)
		return
	}
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			p := image.Pt(x, y)
			w0, w1, w2 := edge(b, c, p), edge(c, a, p), edge(a, b, p)
			if area < 0 {
				w0, w1, w2 = -w0, -w1, -w2
			}
			if w0 >= 0 && w1 >= 0 && w2 >= 0 {
				f.SetRGB565(x, y, col)
			}
		}
	}
}

func strokeTriangle(f *Frame, a, b, c image.Point, col RGB565) {
	line(f, a.X, a.Y, b.X, b.Y, col)
	line(f, b.X, b.Y, c.X, c.Y, col)
	line(f, c.X, c.Y, a.X, a.Y, col)
}

func edge(a, b, p image.Point) int {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

// arc draws a band of the given thickness centered on the circle of radius
// around (cx, cy), from start over sweep degrees. Angles go clockwise from
// the positive X axis.
func arc(f *Frame, cx, cy, radius, thickness int, start, sweep float64, c RGB565) {
	inner := float64(radius) - float64(thickness)/2
	outer := float64(radius) + float64(thickness)/2
	reach := int(math.Ceil(outer))
	start = math.Mod(math.Mod(start, 360)+360, 360)
	for dy := -reach; dy <= reach; dy++ {
		for dx := -reach; dx <= reach; dx++ {
			d := math.Hypot(float64(dx), float64(dy))
			if d < inner || d > outer {
				continue
			}
			angle := math.Atan2(float64(dy), float64(dx)) * 180 / math.Pi
			if math.Mod(angle-start+720, 360) <= sweep {
				f.SetRGB565(cx+dx, cy+dy, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
