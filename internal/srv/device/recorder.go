package device

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jypelle/cedarhud/internal/srv/config"
	"github.com/jypelle/cedarhud/internal/srv/render"
	"github.com/sirupsen/logrus"
)

// Drop counts are logged on the first drop, then every dropLogEvery drops
const dropLogEvery = 100

const defaultDrainTimeout = 3 * time.Second

// ErrEncoderStalled is returned by Close when the queued frames could not be
// handed over in time
var ErrEncoderStalled = errors.New("encoder stopped reading")

// Recorder hands committed frames to a video encoder without ever making
// the caller wait: when the queue is full the newest frame is dropped.
type Recorder struct {
	log *logrus.Entry

	lock   sync.RWMutex
	closed bool
	frames chan *render.Frame
	done   chan struct{}

	out          io.WriteCloser
	wait         func() error
	kill         func() error
	drainTimeout time.Duration

	enabled atomic.Bool
	written atomic.Uint64
	dropped atomic.Uint64
}

// StartRecorder spawns the encoder writing to path. The encoder reads raw
// rgb565le frames on its standard input.
func StartRecorder(path string, param config.RecordingParam, fps int64) (*Recorder, error) {
	session := uuid.NewString()
	cmd := exec.Command(param.Ffmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pixel_format", "rgb565le",
		"-video_size", fmt.Sprintf("%dx%d", render.Width, render.Height),
		"-framerate", strconv.FormatInt(fps, 10),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		path,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to open encoder input: %w", err)
	}
	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("unable to start %s: %w", param.Ffmpeg, err)
	}

	r := newRecorder(stdin, int(param.QueueSize), logrus.WithField("session", session))
	r.wait = cmd.Wait
	r.kill = cmd.Process.Kill
	r.log.Infof("Recording to %s", path)
	return r, nil
}

// NewRecorder streams frames to w through a queue of queueSize frames
func NewRecorder(w io.WriteCloser, queueSize int) *Recorder {
	return newRecorder(w, queueSize, logrus.WithField("session", uuid.NewString()))
}

func newRecorder(w io.WriteCloser, queueSize int, log *logrus.Entry) *Recorder {
	if queueSize < 1 {
		queueSize = 1
	}
	r := &Recorder{
		log:          log,
		frames:       make(chan *render.Frame, queueSize),
		done:         make(chan struct{}),
		out:          w,
		drainTimeout: defaultDrainTimeout,
	}
	r.enabled.Store(true)
	go r.writeLoop()
	return r
}

// Push queues frame and reports whether it was accepted. It never blocks.
// The frame must not be modified afterwards.
func (r *Recorder) Push(frame *render.Frame) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.closed || !r.enabled.Load() {
		return false
	}

	select {
	case r.frames <- frame:
		return true
	default:
		dropped := r.dropped.Add(1)
		if dropped == 1 || dropped%dropLogEvery == 0 {
			r.log.Warnf("Encoder too slow, %d frames dropped so far", dropped)
		}
		return false
	}
}

func (r *Recorder) writeLoop() {
	defer close(r.done)

	buf := make([]byte, 0, render.Width*render.Height*2)
	for frame := range r.frames {
		if !r.enabled.Load() {
			continue
		}
		buf = frame.AppendLittleEndian(buf[:0])
		if _, err := r.out.Write(buf); err != nil {
			r.log.Warnf("Recording stopped, unable to write frame: %v", err)
			r.enabled.Store(false)
			continue
		}
		r.written.Add(1)
	}
}

// Close flushes the queued frames, ends the stream and waits for the
// encoder to finish the file. An encoder that stops reading gets
// drainTimeout to recover, then its input is closed and the process killed.
func (r *Recorder) Close() error {
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return nil
	}
	r.closed = true
	close(r.frames)
	r.lock.Unlock()

	var err error
	timer := time.NewTimer(r.drainTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
		r.enabled.Store(false)
		err = fmt.Errorf("%w after %v", ErrEncoderStalled, r.drainTimeout)
		r.log.Warnf("Recording aborted: %v", err)
		if r.kill != nil {
			if killErr := r.kill(); killErr != nil {
				r.log.Debugf("Unable to kill encoder: %v", killErr)
			}
		}
	}

	err = errors.Join(err, r.out.Close())
	if r.wait != nil {
		err = errors.Join(err, r.wait())
	}
	r.log.Infof("Recording closed: %d frames written, %d dropped", r.written.Load(), r.dropped.Load())
	return err
}

func (r *Recorder) Enabled() bool {
	return r.enabled.Load()
}

func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}
