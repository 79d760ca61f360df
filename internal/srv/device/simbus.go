package device

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/jypelle/cedarhud/internal/srv/render"
)

var ErrBusClosed = errors.New("bus closed")

type BusOpKind int

const (
	ResetOp BusOpKind = iota
	CommandOp
	DataOp
	CloseOp
)

// BusOp is one recorded transaction. Bytes holds the command parameters or
// the data payload.
type BusOp struct {
	Kind  BusOpKind
	Code  byte
	Bytes []byte
}

// SimulatedBus stands in for the panel: it records every transaction and
// keeps a mirror of the controller pixel memory.
type SimulatedBus struct {
	lock sync.Mutex

	ops     []BusOp
	failure error
	closed  bool

	mirror   *image.RGBA
	on       bool
	contrast byte

	// write window and cursor, as set by the last column/row commands
	window  image.Rectangle
	cursor  image.Point
	writing bool
	pending []byte

	onChange func()
}

func NewSimulatedBus() *SimulatedBus {
	return &SimulatedBus{
		mirror: image.NewRGBA(image.Rect(0, 0, render.Width, render.Height)),
		window: image.Rect(0, 0, render.Width, render.Height),
	}
}

// OnChange registers a callback run after each transaction that may have
// changed what the panel shows
func (b *SimulatedBus) OnChange(f func()) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.onChange = f
}

// Fail makes every following transaction return err, until Fail(nil)
func (b *SimulatedBus) Fail(err error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.failure = err
}

func (b *SimulatedBus) Reset() error {
	return b.do(BusOp{Kind: ResetOp}, func() {
		b.on = false
		b.writing = false
		b.pending = nil
	})
}

func (b *SimulatedBus) Command(code byte, params ...byte) error {
	op := BusOp{Kind: CommandOp, Code: code, Bytes: append([]byte(nil), params...)}
	return b.do(op, func() {
		b.writing = false
		b.pending = nil
		switch code {
		case cmdSetColumn:
			if len(params) == 2 {
				b.window.Min.X, b.window.Max.X = int(params[0]), int(params[1])+1
			}
		case cmdSetRow:
			if len(params) == 2 {
				b.window.Min.Y, b.window.Max.Y = int(params[0]), int(params[1])+1
			}
		case cmdWriteRAM:
			b.writing = true
			b.cursor = b.window.Min
		case cmdContrastABC:
			if len(params) > 0 {
				b.contrast = params[0]
			}
		case cmdDisplayOn:
			b.on = true
		case cmdDisplayOff:
			b.on = false
		}
	})
}

func (b *SimulatedBus) Data(p []byte) error {
	op := BusOp{Kind: DataOp, Bytes: append([]byte(nil), p...)}
	return b.do(op, func() {
		if !b.writing {
			return
		}
		buf := append(b.pending, p...)
		for len(buf) >= 2 {
			b.plot(render.RGB565(uint16(buf[0])<<8 | uint16(buf[1])))
			buf = buf[2:]
		}
		b.pending = append([]byte(nil), buf...)
	})
}

func (b *SimulatedBus) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.ops = append(b.ops, BusOp{Kind: CloseOp})
	return nil
}

func (b *SimulatedBus) do(op BusOp, apply func()) error {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return ErrBusClosed
	}
	if b.failure != nil {
		err := b.failure
		b.lock.Unlock()
		return err
	}
	b.ops = append(b.ops, op)
	apply()
	onChange := b.onChange
	b.lock.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// plot writes one pixel at the cursor and advances it inside the window,
// wrapping like the controller does
func (b *SimulatedBus) plot(c render.RGB565) {
	if b.window.Empty() {
		return
	}
	b.mirror.Set(b.cursor.X, b.cursor.Y, color.RGBAModel.Convert(c))
	b.cursor.X++
	if b.cursor.X >= b.window.Max.X {
		b.cursor.X = b.window.Min.X
		b.cursor.Y++
		if b.cursor.Y >= b.window.Max.Y {
			b.cursor.Y = b.window.Min.Y
		}
	}
}

// Ops returns a copy of the recorded transactions
func (b *SimulatedBus) Ops() []BusOp {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]BusOp(nil), b.ops...)
}

// ClearOps forgets the recorded transactions, the mirror is kept
func (b *SimulatedBus) ClearOps() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.ops = nil
}

// Image returns a copy of the panel memory
func (b *SimulatedBus) Image() *image.RGBA {
	b.lock.Lock()
	defer b.lock.Unlock()
	img := image.NewRGBA(b.mirror.Bounds())
	copy(img.Pix, b.mirror.Pix)
	return img
}

func (b *SimulatedBus) IsOn() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.on
}

func (b *SimulatedBus) Contrast() byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.contrast
}

func (b *SimulatedBus) IsClosed() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.closed
}
