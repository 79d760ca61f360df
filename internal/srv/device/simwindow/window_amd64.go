package simwindow

import (
	"image"
	"sync"

	"gioui.org/app"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"github.com/sirupsen/logrus"
)

// Window shows the simulated panel on the desktop
type Window struct {
	lock    sync.RWMutex
	lastImg image.Image
	source  func() image.Image

	window *app.Window
}

// Open starts a window painting whatever source returns. Call Invalidate
// when the source changed.
func Open(title string, source func() image.Image) *Window {
	w := &Window{
		source:  source,
		lastImg: source(),
		window: app.NewWindow(
			app.Title(title),
			app.Size(unit.Px(384), unit.Px(384)),
			app.MinSize(unit.Px(128), unit.Px(128)),
		),
	}
	go func() {
		if err := w.gioloop(); err != nil {
			logrus.Warnf("Simulation window closed: %v", err)
		}
	}()
	go app.Main()
	return w
}

func (w *Window) Invalidate() {
	img := w.source()
	w.lock.Lock()
	w.lastImg = img
	w.lock.Unlock()
	w.window.Invalidate()
}

func (w *Window) Close() {
	w.window.Close()
}

func (w *Window) gioloop() error {
	var ops op.Ops
	for {
		e := <-w.window.Events()
		switch e := e.(type) {
		case system.DestroyEvent:
			return e.Err
		case system.FrameEvent:
			gtx := layout.NewContext(&ops, e)

			w.lock.RLock()
			lastImg := w.lastImg
			w.lock.RUnlock()

			img := widget.Image{Src: paint.NewImageOp(lastImg), Fit: widget.Contain}
			img.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}
