package device

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/jypelle/cedarhud/internal/srv/render"
	"github.com/sirupsen/logrus"
)

var (
	ErrInit     = errors.New("display init failed")
	ErrBusWrite = errors.New("display bus write failed")
)

// DriverError carries the failing step; it matches both its kind (ErrInit
// or ErrBusWrite) and the underlying bus error.
type DriverError struct {
	Op   string
	Kind error
	Err  error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *DriverError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Display owns the bus and the copy of what the panel currently shows
type Display struct {
	lock sync.Mutex
	bus  Bus

	initialized bool
	closed      bool
	brightness  uint8

	// nil until a frame has been fully written since the last Init
	last *render.Frame
	buf  []byte
}

func NewDisplay(bus Bus) *Display {
	return &Display{
		bus: bus,
		buf: make([]byte, 0, render.Width*render.Height*2),
	}
}

// Init resets the controller, programs it, blanks the panel memory and turns
// the panel on. It may be called again after a failure.
func (d *Display) Init(brightness uint8) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	logrus.Infof("Init display (brightness %d)", brightness)

	d.initialized = false
	d.last = nil

	if err := d.bus.Reset(); err != nil {
		return &DriverError{Op: "reset", Kind: ErrInit, Err: err}
	}
	for _, c := range initSequence {
		if err := d.bus.Command(c.code, c.params...); err != nil {
			return &DriverError{Op: fmt.Sprintf("command 0x%02X", c.code), Kind: ErrInit, Err: err}
		}
	}
	if err := d.bus.Command(cmdContrastABC, brightness, brightness, brightness); err != nil {
		return &DriverError{Op: "contrast", Kind: ErrInit, Err: err}
	}
	if err := d.writeWindow(render.NewFrame(render.Background), fullRect); err != nil {
		return &DriverError{Op: "clear", Kind: ErrInit, Err: err}
	}
	if err := d.bus.Command(cmdDisplayOn); err != nil {
		return &DriverError{Op: "display on", Kind: ErrInit, Err: err}
	}

	d.brightness = brightness
	d.initialized = true
	return nil
}

// Commit brings the panel up to date with frame, sending only the smallest
// rectangle that covers every changed pixel. An unchanged frame causes no bus
// traffic. After a failed write the next commit is a full frame.
func (d *Display) Commit(frame *render.Frame) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if !d.initialized {
		return &DriverError{Op: "commit", Kind: ErrInit, Err: errors.New("display not initialized")}
	}

	rect := fullRect
	if d.last != nil {
		rect = dirtyRegion(d.last, frame)
		if rect.Empty() {
			return nil
		}
	}

	if err := d.writeWindow(frame, rect); err != nil {
		d.last = nil
		return &DriverError{Op: "commit", Kind: ErrBusWrite, Err: err}
	}
	logrus.Debugf("Committed %v", rect)

	d.last = frame.Clone()
	return nil
}

// SetBrightness changes the panel contrast, doing nothing when level is
// already applied
func (d *Display) SetBrightness(level uint8) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if !d.initialized {
		return &DriverError{Op: "brightness", Kind: ErrInit, Err: errors.New("display not initialized")}
	}
	if level == d.brightness {
		return nil
	}
	if err := d.bus.Command(cmdContrastABC, level, level, level); err != nil {
		return &DriverError{Op: "brightness", Kind: ErrBusWrite, Err: err}
	}
	logrus.Infof("Display brightness set to %d", level)
	d.brightness = level
	return nil
}

func (d *Display) Brightness() uint8 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.brightness
}

// Close turns the panel off and releases the bus. The bus is released even
// when the panel does not answer.
func (d *Display) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.initialized = false
	logrus.Infof("Close display")

	var offErr error
	if err := d.bus.Command(cmdDisplayOff); err != nil {
		offErr = &DriverError{Op: "display off", Kind: ErrBusWrite, Err: err}
	}
	return errors.Join(offErr, d.bus.Close())
}

var fullRect = image.Rect(0, 0, render.Width, render.Height)

func (d *Display) writeWindow(frame *render.Frame, r image.Rectangle) error {
	if err := d.bus.Command(cmdSetColumn, byte(r.Min.X), byte(r.Max.X-1)); err != nil {
		return err
	}
	if err := d.bus.Command(cmdSetRow, byte(r.Min.Y), byte(r.Max.Y-1)); err != nil {
		return err
	}
	if err := d.bus.Command(cmdWriteRAM); err != nil {
		return err
	}
	d.buf = frame.AppendBigEndian(d.buf[:0], r)
	return d.bus.Data(d.buf)
}

// dirtyRegion is the bounding box of the pixels that differ between a and b
func dirtyRegion(a, b *render.Frame) image.Rectangle {
	minX, minY := render.Width, render.Height
	maxX, maxY := -1, -1
	for y := 0; y < render.Height; y++ {
		row := y * render.Width
		for x := 0; x < render.Width; x++ {
			if a.Pix[row+x] == b.Pix[row+x] {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}
	if maxX < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}
