package srv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/jypelle/cedarhud/apimodel"
	"github.com/jypelle/cedarhud/internal/srv/config"
	"github.com/jypelle/cedarhud/internal/srv/device"
	"github.com/jypelle/cedarhud/internal/srv/device/simwindow"
	"github.com/jypelle/cedarhud/internal/srv/guidance"
	"github.com/jypelle/cedarhud/internal/srv/render"
	"github.com/jypelle/cedarhud/internal/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrDisplayFailed is returned by Run when the panel could not be brought
// back after a re-init
var ErrDisplayFailed = errors.New("display failed")

type Options struct {
	DebugMode      bool
	SimulationMode bool

	// Brightness overrides the persisted brightness for this run when not 0
	Brightness int64

	// RecordPath enables recording of every committed frame
	RecordPath string
}

type ServerApp struct {
	*config.ServerConfig
	options Options

	bus       device.Bus
	display   *device.Display
	poller    *guidance.Poller
	apiDevice *device.Api
	recorder  *device.Recorder
	window    *simwindow.Window

	latestFrame atomic.Pointer[render.Frame]

	// set after a re-init, cleared by the next successful commit
	recovering bool

	splashDelay time.Duration
}

func NewServerApp(configDir string, options Options) (*ServerApp, error) {
	logrus.Debugf("Creation of %s server %s ...", version.AppName, version.AppVersion.String())

	serverConfig, err := config.NewServerConfig(configDir, options.DebugMode, options.SimulationMode)
	if err != nil {
		return nil, err
	}

	if options.Brightness != 0 {
		if err = serverConfig.OverrideBrightness(options.Brightness); err != nil {
			return nil, err
		}
	}

	var bus device.Bus
	var window *simwindow.Window
	if options.SimulationMode {
		simulatedBus := device.NewSimulatedBus()
		window = simwindow.Open("Cedar HUD", func() image.Image { return simulatedBus.Image() })
		simulatedBus.OnChange(window.Invalidate)
		bus = simulatedBus
	} else {
		bus, err = device.NewSpiBus(serverConfig.Display)
		if err != nil {
			return nil, fmt.Errorf("unable to open display bus: %w", err)
		}
	}

	app := newServerApp(serverConfig, options, bus, guidance.NewClient(serverConfig.Guidance.Address))
	app.window = window

	logrus.Debugln("Server created")

	return app, nil
}

func newServerApp(serverConfig *config.ServerConfig, options Options, bus device.Bus, source guidance.Source) *ServerApp {
	app := &ServerApp{
		ServerConfig: serverConfig,
		options:      options,
		bus:          bus,
		display:      device.NewDisplay(bus),
		poller: guidance.NewPoller(source, guidance.PollerOptions{
			Interval:         serverConfig.Guidance.PollInterval(),
			Timeout:          serverConfig.Guidance.Timeout(),
			BackoffMax:       serverConfig.Guidance.BackoffMax(),
			FailureThreshold: serverConfig.Guidance.FailureThreshold,
		}),
		splashDelay: 2 * time.Second,
	}
	if serverConfig.ApiParam.Enabled {
		app.apiDevice = device.NewApi(serverConfig, app)
	}
	return app
}

// Run drives the display until ctx is cancelled or the display fails for
// good. Every resource is released when it returns.
func (s *ServerApp) Run(ctx context.Context) error {
	logrus.Printf("Starting %s server %s ...", version.AppName, version.AppVersion.String())
	defer s.stop()

	if err := s.initDisplay(); err != nil {
		return err
	}

	// Display startup screen
	if err := s.display.Commit(render.Splash(version.AppVersion.Banner())); err != nil {
		logrus.Warnf("Unable to show startup screen: %v", err)
	}
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(s.splashDelay):
	}

	if s.options.RecordPath != "" {
		recorder, err := device.StartRecorder(s.options.RecordPath, s.Recording, s.Display.FrameRate)
		if err != nil {
			logrus.Warnf("Recording disabled: %v", err)
		} else {
			s.recorder = recorder
			s.SetRecording(true)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.poller.Run(gctx)
	})
	if s.apiDevice != nil {
		g.Go(func() error {
			return s.apiDevice.Serve(gctx)
		})
	}
	g.Go(func() error {
		return s.renderLoop(gctx)
	})

	return g.Wait()
}

// initDisplay brings the panel up, retrying once
func (s *ServerApp) initDisplay() error {
	brightness := s.Brightness()
	err := s.display.Init(brightness)
	if err == nil {
		return nil
	}
	logrus.Warnf("Display init failed, retrying: %v", err)
	if err = s.display.Init(brightness); err != nil {
		return fmt.Errorf("%w: %w", ErrDisplayFailed, err)
	}
	return nil
}

func (s *ServerApp) stop() {
	logrus.Printf("Stopping %s server ...", version.AppName)

	// Display end screen, best effort
	if err := s.display.Commit(render.Goodbye()); err != nil {
		logrus.Debugf("No end screen: %v", err)
	}
	if err := s.display.Close(); err != nil {
		logrus.Warnf("Display close: %v", err)
	}
	if s.window != nil {
		s.window.Close()
	}

	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			logrus.Warnf("Recording did not end cleanly: %v", err)
		}
		s.SetRecording(false)
	}

	// Flush config backup
	s.FlushSave()

	logrus.Printf("Server stopped")
}

// LatestFrame is the last frame committed to the panel, nil before the first one
func (s *ServerApp) LatestFrame() *render.Frame {
	return s.latestFrame.Load()
}

func (s *ServerApp) Status() apimodel.StatusData {
	g := s.poller.State()
	settings := s.Settings()

	status := apimodel.StatusData{
		Version:    version.AppVersion.String(),
		Brightness: int64(settings.Brightness),
		Rotation:   int64(settings.Rotation),
		Link: apimodel.LinkStatus{
			Connected: g.Connected,
			Stale:     g.Stale,
			Retained:  g.Retained,
			Status:    g.Status.String(),
			Mode:      g.Mode.String(),
			Failures:  g.Failures,
		},
	}
	if g.Status == guidance.Solved {
		status.Link.OffsetX = g.Offset.X
		status.Link.OffsetY = g.Offset.Y
	}
	if !g.UpdatedAt.IsZero() {
		status.Link.UpdatedAt = g.UpdatedAt.Format(time.RFC3339Nano)
		status.Link.AgeMs = g.Age(time.Now()).Milliseconds()
	}
	if s.recorder != nil {
		status.Recorder = apimodel.RecorderStatus{
			Enabled: s.recorder.Enabled(),
			Written: s.recorder.Written(),
			Dropped: s.recorder.Dropped(),
		}
	}
	return status
}
