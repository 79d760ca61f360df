package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/jypelle/cedarhud/internal/srv/config"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Fallback when the port does not report its transfer limit (spidev default)
const defaultMaxTxSize = 4096

// SpiBus drives the panel over a 4-wire SPI port: the DC pin is low while a
// command byte is clocked out and high for parameters and pixel data.
type SpiBus struct {
	lock      sync.Mutex
	port      spi.PortCloser
	conn      spi.Conn
	dc        gpio.PinIO
	reset     gpio.PinIO
	maxTxSize int
}

func NewSpiBus(param config.DisplayParam) (*SpiBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("unable to init host drivers: %w", err)
	}

	port, err := spireg.Open(param.SpiPort)
	if err != nil {
		return nil, fmt.Errorf("unable to open spi port %s: %w", param.SpiPort, err)
	}

	c, err := port.Connect(physic.Frequency(param.SpiHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("unable to configure spi port %s: %w", param.SpiPort, err)
	}

	dc := gpioreg.ByName(param.DcPin)
	if dc == nil {
		port.Close()
		return nil, fmt.Errorf("unknown dc pin %s", param.DcPin)
	}
	reset := gpioreg.ByName(param.ResetPin)
	if reset == nil {
		port.Close()
		return nil, fmt.Errorf("unknown reset pin %s", param.ResetPin)
	}

	maxTxSize := defaultMaxTxSize
	if limits, ok := c.(conn.Limits); ok && limits.MaxTxSize() > 0 {
		maxTxSize = limits.MaxTxSize()
	}

	logrus.Debugf("SPI port %s at %s, max transfer %d bytes", param.SpiPort, physic.Frequency(param.SpiHz)*physic.Hertz, maxTxSize)

	return &SpiBus{
		port:      port,
		conn:      c,
		dc:        dc,
		reset:     reset,
		maxTxSize: maxTxSize,
	}, nil
}

func (b *SpiBus) Reset() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, step := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
		if err := b.reset.Out(step); err != nil {
			return fmt.Errorf("unable to drive reset pin: %w", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (b *SpiBus) Command(code byte, params ...byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if err := b.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("unable to drive dc pin: %w", err)
	}
	if err := b.conn.Tx([]byte{code}, nil); err != nil {
		return fmt.Errorf("command 0x%02X: %w", code, err)
	}
	if len(params) == 0 {
		return nil
	}
	return b.write(params)
}

func (b *SpiBus) Data(p []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.write(p)
}

func (b *SpiBus) write(p []byte) error {
	if err := b.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("unable to drive dc pin: %w", err)
	}
	for len(p) > 0 {
		n := len(p)
		if n > b.maxTxSize {
			n = b.maxTxSize
		}
		if err := b.conn.Tx(p[:n], nil); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (b *SpiBus) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.port.Close()
}
