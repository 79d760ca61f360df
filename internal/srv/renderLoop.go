package srv

import (
	"context"
	"fmt"
	"time"

	"github.com/jypelle/cedarhud/internal/srv/render"
	"github.com/sirupsen/logrus"
)

func (s *ServerApp) renderLoop(ctx context.Context) error {
	logrus.Infof("Start render loop at %d fps", s.Display.FrameRate)
	defer logrus.Infof("Stop render loop")

	ticker := time.NewTicker(s.Display.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.tickWithRecovery(); err != nil {
				logrus.Errorf("Display lost: %v", err)
				return err
			}
		}
	}
}

// tickWithRecovery runs one tick. A failing tick re-initializes the display
// once; a failure of that re-init, or another failure before a commit went
// through, is fatal.
func (s *ServerApp) tickWithRecovery() error {
	err := s.tick()
	if err == nil {
		s.recovering = false
		return nil
	}
	if s.recovering {
		return fmt.Errorf("%w: %w", ErrDisplayFailed, err)
	}

	logrus.Warnf("Display error, re-initializing: %v", err)
	s.recovering = true
	if err = s.display.Init(s.Brightness()); err != nil {
		return fmt.Errorf("%w: %w", ErrDisplayFailed, err)
	}
	return nil
}

// tick applies a pending brightness change, then renders and commits the
// current guidance
func (s *ServerApp) tick() error {
	settings := s.Settings()

	if err := s.display.SetBrightness(settings.Brightness); err != nil {
		return err
	}

	frame := render.Render(s.poller.State(), settings)
	if err := s.display.Commit(frame); err != nil {
		return err
	}

	if s.recorder != nil {
		s.recorder.Push(frame)
	}
	s.latestFrame.Store(frame)
	return nil
}
