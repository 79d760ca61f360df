package device

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jypelle/cedarhud/internal/srv/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedWriter blocks every write until the gate is opened
type gatedWriter struct {
	gate   chan struct{}
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	err    error
}

func newGatedWriter() *gatedWriter {
	return &gatedWriter{gate: make(chan struct{})}
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	<-w.gate
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	return w.buf.Write(p)
}

func (w *gatedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestRecorderCloseGivesUpOnStuckEncoder(t *testing.T) {
	w := newGatedWriter()
	defer close(w.gate)

	r := NewRecorder(w, 4)
	r.drainTimeout = 50 * time.Millisecond
	frame := render.NewFrame(render.Foreground)
	for i := 0; i < 10; i++ {
		r.Push(frame)
	}

	closed := make(chan error, 1)
	go func() {
		closed <- r.Close()
	}()

	select {
	case err := <-closed:
		require.ErrorIs(t, err, ErrEncoderStalled)
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return")
	}
	require.True(t, w.isClosed())
	require.False(t, r.Enabled())
	require.False(t, r.Push(frame))
}

func (w *gatedWriter) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func TestRecorderNeverBlocksOnSlowEncoder(t *testing.T) {
	w := newGatedWriter()
	r := NewRecorder(w, 4)

	frame := render.NewFrame(render.Foreground)
	var previous uint64
	start := time.Now()
	pushed := 0
	for i := 0; i < 200; i++ {
		r.Push(frame)
		pushed++
		dropped := r.Dropped()
		require.GreaterOrEqual(t, dropped, previous)
		previous = dropped
	}
	// 200 pushes against a stuck encoder complete right away
	require.Less(t, time.Since(start), time.Second)
	require.GreaterOrEqual(t, r.Dropped(), uint64(pushed-5))

	close(w.gate)
	require.NoError(t, r.Close())

	require.True(t, w.closed)
	require.Equal(t, uint64(pushed), r.Written()+r.Dropped())
	require.Equal(t, int(r.Written())*render.Width*render.Height*2, w.buf.Len())
}

func TestRecorderWritesLittleEndianFrames(t *testing.T) {
	w := newGatedWriter()
	close(w.gate)
	r := NewRecorder(w, 8)

	frame := render.NewFrame(0)
	frame.SetRGB565(0, 0, 0xF800)
	require.True(t, r.Push(frame))
	require.NoError(t, r.Close())

	require.Equal(t, uint64(1), r.Written())
	out := w.buf.Bytes()
	require.Len(t, out, render.Width*render.Height*2)
	assert.Equal(t, []byte{0x00, 0xF8, 0x00, 0x00}, out[:4])
}

func TestRecorderDisablesItselfOnWriteFailure(t *testing.T) {
	w := newGatedWriter()
	w.err = errors.New("broken pipe")
	close(w.gate)
	r := NewRecorder(w, 2)

	require.True(t, r.Push(render.NewFrame(0)))
	require.Eventually(t, func() bool { return !r.Enabled() }, time.Second, 5*time.Millisecond)
	require.False(t, r.Push(render.NewFrame(0)))
	require.Equal(t, uint64(0), r.Written())
	require.NoError(t, r.Close())
}

func TestRecorderPushAfterClose(t *testing.T) {
	w := newGatedWriter()
	close(w.gate)
	r := NewRecorder(w, 2)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	require.False(t, r.Push(render.NewFrame(0)))
}
