package render

import (
	"image"
	"image/color"
)

const (
	Width  = 128
	Height = 128
)

// RGB565 is the native pixel format of the panel: 5 bits red, 6 bits green, 5 bits blue
type RGB565 uint16

func (c RGB565) RGBA() (r, g, b, a uint32) {
	r5 := uint32(c>>11) & 0x1f
	g6 := uint32(c>>5) & 0x3f
	b5 := uint32(c) & 0x1f
	r = (r5<<11 | r5<<6 | r5<<1) | r5>>4
	g = (g6<<10 | g6<<4) | g6>>2
	b = (b5<<11 | b5<<6 | b5<<1) | b5>>4
	return r, g, b, 0xffff
}

func NewRGB565(r, g, b uint8) RGB565 {
	return RGB565(uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3))
}

var RGB565Model = color.ModelFunc(func(c color.Color) color.Color {
	if c, ok := c.(RGB565); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return NewRGB565(uint8(r>>8), uint8(g>>8), uint8(b>>8))
})

// Frame is one full panel image. Frames handed out by Render are never
// modified afterwards.
type Frame struct {
	Pix [Width * Height]RGB565
}

func NewFrame(background RGB565) *Frame {
	f := &Frame{}
	f.Fill(background)
	return f
}

func (f *Frame) ColorModel() color.Model {
	return RGB565Model
}

func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, Width, Height)
}

func (f *Frame) At(x, y int) color.Color {
	return f.RGB565At(x, y)
}

func (f *Frame) RGB565At(x, y int) RGB565 {
	if !(image.Point{X: x, Y: y}.In(f.Bounds())) {
		return 0
	}
	return f.Pix[y*Width+x]
}

// Set ignores points outside the frame
func (f *Frame) Set(x, y int, c color.Color) {
	f.SetRGB565(x, y, RGB565Model.Convert(c).(RGB565))
}

func (f *Frame) SetRGB565(x, y int, c RGB565) {
	if x < 0 || y < 0 || x >= Width || y >= Height {
		return
	}
	f.Pix[y*Width+x] = c
}

func (f *Frame) Fill(c RGB565) {
	for i := range f.Pix {
		f.Pix[i] = c
	}
}

// FillRect paints r clipped to the frame
func (f *Frame) FillRect(r image.Rectangle, c RGB565) {
	r = r.Intersect(f.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := f.Pix[y*Width : (y+1)*Width]
		for x := r.Min.X; x < r.Max.X; x++ {
			row[x] = c
		}
	}
}

// AppendBigEndian appends the pixels of r, row by row, in the byte order the
// panel expects on the wire.
func (f *Frame) AppendBigEndian(dst []byte, r image.Rectangle) []byte {
	r = r.Intersect(f.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := f.Pix[y*Width+x]
			dst = append(dst, byte(c>>8), byte(c))
		}
	}
	return dst
}

// AppendLittleEndian appends the whole frame as rgb565le raw video
func (f *Frame) AppendLittleEndian(dst []byte) []byte {
	for _, c := range f.Pix {
		dst = append(dst, byte(c), byte(c>>8))
	}
	return dst
}

// Clone returns an independent copy
func (f *Frame) Clone() *Frame {
	c := *f
	return &c
}

// RGBA converts the frame for image tooling (simulation window, tests)
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(f.Bounds())
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			img.Set(x, y, f.Pix[y*Width+x])
		}
	}
	return img
}
