//go:build !amd64

package simwindow

import (
	"image"

	"github.com/sirupsen/logrus"
)

// Window is a no-op on boards: the simulated panel is still reachable
// through the frame endpoints of the api.
type Window struct{}

func Open(title string, source func() image.Image) *Window {
	logrus.Infof("No simulation window on this platform, use /api/frame to watch %s", title)
	return &Window{}
}

func (w *Window) Invalidate() {
}

func (w *Window) Close() {
}
