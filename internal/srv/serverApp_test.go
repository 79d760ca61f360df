package srv

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jypelle/cedarhud/internal/srv/config"
	"github.com/jypelle/cedarhud/internal/srv/device"
	"github.com/jypelle/cedarhud/internal/srv/guidance"
	"github.com/jypelle/cedarhud/internal/srv/render"
	"github.com/stretchr/testify/require"
)

var errRefused = &guidance.PollError{Kind: guidance.ConnectionError, Err: errors.New("connection refused")}

// fakeSource answers with the queued results, then keeps failing
type fakeSource struct {
	mu      sync.Mutex
	results []guidance.State
	errs    []error
}

func (f *fakeSource) push(state guidance.State, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, state)
	f.errs = append(f.errs, err)
}

func (f *fakeSource) Poll(ctx context.Context) (guidance.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return guidance.State{}, errRefused
	}
	state, err := f.results[0], f.errs[0]
	f.results, f.errs = f.results[1:], f.errs[1:]
	return state, err
}

func solved(x, y float64) guidance.State {
	return guidance.State{
		Status:     guidance.Solved,
		Mode:       guidance.OperatingMode,
		Offset:     guidance.Vector{X: x, Y: y},
		Confidence: 0.9,
		Connected:  true,
	}
}

func newTestServerApp(t *testing.T, bus device.Bus, source guidance.Source) *ServerApp {
	serverConfig, err := config.NewServerConfig(t.TempDir(), false, true)
	require.NoError(t, err)
	app := newServerApp(serverConfig, Options{SimulationMode: true}, bus, source)
	app.splashDelay = 0
	return app
}

func TestLinkLossShowsDisconnected(t *testing.T) {
	ctx := context.Background()
	bus := device.NewSimulatedBus()
	source := &fakeSource{}
	last := solved(1, 1)
	last.UpdatedAt = time.Now().Add(-time.Second)
	source.push(last, nil)

	app := newTestServerApp(t, bus, source)
	require.NoError(t, app.initDisplay())

	app.poller.PollOnce(ctx)
	require.NoError(t, app.tickWithRecovery())
	require.True(t, app.poller.State().Connected)

	// below the threshold the last guidance stays on screen
	for i := 0; i < 4; i++ {
		app.poller.PollOnce(ctx)
	}
	require.NoError(t, app.tickWithRecovery())
	require.True(t, app.poller.State().Connected)
	require.True(t, app.poller.State().Stale)

	app.poller.PollOnce(ctx)
	require.NoError(t, app.tickWithRecovery())
	require.False(t, app.poller.State().Connected)

	expected := render.Render(guidance.Disconnected(), app.Settings())
	require.Equal(t, expected.RGBA().Pix, bus.Image().Pix)
	require.Equal(t, expected.Pix, app.LatestFrame().Pix)

	status := app.Status()
	require.False(t, status.Link.Connected)
	require.Equal(t, int64(5), status.Link.Failures)
	require.NotEmpty(t, status.Link.UpdatedAt)
	require.GreaterOrEqual(t, status.Link.AgeMs, int64(1000))
}

func TestBrightnessChangeReachesPanelBeforeNextFrame(t *testing.T) {
	ctx := context.Background()
	bus := device.NewSimulatedBus()
	source := &fakeSource{}
	source.push(solved(0, 0), nil)

	app := newTestServerApp(t, bus, source)
	require.NotNil(t, app.apiDevice)
	router := app.apiDevice.Router()

	require.NoError(t, app.initDisplay())
	app.poller.PollOnce(ctx)
	require.NoError(t, app.tickWithRecovery())
	bus.ClearOps()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/brightness", strings.NewReader(`{"brightness": 300}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, uint8(config.DefaultBrightness), app.Brightness())

	// nothing changed: no traffic at all
	require.NoError(t, app.tickWithRecovery())
	require.Empty(t, bus.Ops())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/brightness", strings.NewReader(`{"brightness": 200}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	// accepting the value does not touch the panel
	require.Empty(t, bus.Ops())

	source.push(solved(10, -4), nil)
	app.poller.PollOnce(ctx)
	require.NoError(t, app.tickWithRecovery())

	contrastAt, writeAt := -1, -1
	for i, op := range bus.Ops() {
		if op.Kind != device.CommandOp {
			continue
		}
		if op.Code == 0xC1 && contrastAt < 0 {
			require.Equal(t, []byte{200, 200, 200}, op.Bytes)
			contrastAt = i
		}
		if op.Code == 0x5C && writeAt < 0 {
			writeAt = i
		}
	}
	require.GreaterOrEqual(t, contrastAt, 0)
	require.Greater(t, writeAt, contrastAt)
	require.Equal(t, byte(200), bus.Contrast())
}

func TestRunStopsOnCancel(t *testing.T) {
	bus := device.NewSimulatedBus()
	app := newTestServerApp(t, bus, &fakeSource{})
	app.apiDevice = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	require.Eventually(t, func() bool { return app.LatestFrame() != nil }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	require.True(t, bus.IsClosed())
	require.False(t, bus.IsOn())
	require.Equal(t, render.Goodbye().RGBA().Pix, bus.Image().Pix)
}

// stuckWriter never returns from Write
type stuckWriter struct {
	release chan struct{}
}

func (w *stuckWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

func (w *stuckWriter) Close() error {
	return nil
}

func TestStopReleasesDisplayBeforeStuckRecorder(t *testing.T) {
	bus := device.NewSimulatedBus()
	app := newTestServerApp(t, bus, &fakeSource{})
	require.NoError(t, app.initDisplay())

	writer := &stuckWriter{release: make(chan struct{})}
	defer close(writer.release)
	app.recorder = device.NewRecorder(writer, 1)
	frame := render.NewFrame(render.Foreground)
	app.recorder.Push(frame)
	app.recorder.Push(frame)

	stopped := make(chan struct{})
	go func() {
		app.stop()
		close(stopped)
	}()

	// the panel is off while the recorder is still draining
	require.Eventually(t, bus.IsClosed, time.Second, 10*time.Millisecond)
	require.False(t, bus.IsOn())

	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("stop did not return")
	}
	require.False(t, app.Settings().Recording)
}

func TestRunFailsWhenDisplayNeverAnswers(t *testing.T) {
	bus := device.NewSimulatedBus()
	bus.Fail(errors.New("no device"))
	app := newTestServerApp(t, bus, &fakeSource{})
	app.apiDevice = nil

	err := app.Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDisplayFailed))
	require.True(t, errors.Is(err, device.ErrInit))
	require.True(t, bus.IsClosed())
}

// flakyBus fails the next n pixel or command writes
type flakyBus struct {
	*device.SimulatedBus
	mu       sync.Mutex
	failures int
}

func (b *flakyBus) failNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = n
}

func (b *flakyBus) fail() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("spi write timeout")
	}
	return nil
}

func (b *flakyBus) Command(code byte, params ...byte) error {
	if err := b.fail(); err != nil {
		return err
	}
	return b.SimulatedBus.Command(code, params...)
}

func (b *flakyBus) Data(p []byte) error {
	if err := b.fail(); err != nil {
		return err
	}
	return b.SimulatedBus.Data(p)
}

func TestDisplayIsReinitializedOnce(t *testing.T) {
	ctx := context.Background()
	bus := &flakyBus{SimulatedBus: device.NewSimulatedBus()}
	source := &fakeSource{}
	source.push(solved(0, 0), nil)
	source.push(solved(5, 5), nil)

	app := newTestServerApp(t, bus, source)
	require.NoError(t, app.initDisplay())
	app.poller.PollOnce(ctx)

	// one failed write: the display is re-initialized and the loop goes on
	bus.failNext(1)
	bus.ClearOps()
	require.NoError(t, app.tickWithRecovery())
	require.Equal(t, device.ResetOp, bus.Ops()[0].Kind)

	// the next tick repaints the whole frame
	require.NoError(t, app.tickWithRecovery())
	require.Equal(t, render.Render(app.poller.State(), app.Settings()).RGBA().Pix, bus.Image().Pix)

	// a failure after a good commit gets its own re-init
	app.poller.PollOnce(ctx)
	bus.failNext(1)
	require.NoError(t, app.tickWithRecovery())

	// failing again before any commit went through is fatal
	bus.failNext(1)
	err := app.tickWithRecovery()
	require.True(t, errors.Is(err, ErrDisplayFailed))
	require.True(t, errors.Is(err, device.ErrBusWrite))
}

func TestFailedReinitIsFatal(t *testing.T) {
	ctx := context.Background()
	bus := &flakyBus{SimulatedBus: device.NewSimulatedBus()}
	source := &fakeSource{}
	source.push(solved(0, 0), nil)

	app := newTestServerApp(t, bus, source)
	require.NoError(t, app.initDisplay())
	app.poller.PollOnce(ctx)

	// the commit and the whole re-init fail
	bus.failNext(1000)
	err := app.tickWithRecovery()
	require.True(t, errors.Is(err, ErrDisplayFailed))
	require.True(t, errors.Is(err, device.ErrInit))
}
