package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	MinBrightness     = 1
	MaxBrightness     = 255
	DefaultBrightness = 0x80
)

const defaultSaveDelay = 2 * time.Second

var (
	ErrInvalidBrightness = errors.New("brightness must be between 1 and 255")
	ErrInvalidRotation   = errors.New("rotation must be 0, 90, 180 or 270")
)

// Rotation is the clockwise software rotation of the panel, in degrees
type Rotation int64

const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 90
	Rotation180 Rotation = 180
	Rotation270 Rotation = 270
)

func (r Rotation) Valid() bool {
	switch r {
	case Rotation0, Rotation90, Rotation180, Rotation270:
		return true
	}
	return false
}

// Settings is the snapshot read by the render tick. It is never modified in
// place: every update stores a new value.
type Settings struct {
	Brightness uint8
	Rotation   Rotation
	Recording  bool
	Readouts   bool
}

type ServerState struct {
	current atomic.Pointer[Settings]

	// last brightness accepted for persistence, the command line override excluded
	savedBrightness uint8

	// writers and file backup
	lock                  sync.Mutex
	backupTimer           *time.Timer
	saveDelay             time.Duration
	completeStateFilename string
}

func NewServerState(completeStateFilename string) *ServerState {
	serverState := &ServerState{
		completeStateFilename: completeStateFilename,
		saveDelay:             defaultSaveDelay,
	}

	settings := Settings{Brightness: DefaultBrightness, Rotation: Rotation0}

	rawConfig, err := os.ReadFile(completeStateFilename)
	if err == nil {
		// Interpret state file
		var stateConfig ServerStateConfig
		if err = yaml.Unmarshal(rawConfig, &stateConfig); err != nil {
			logrus.Warnf("Unable to interpret state file, using defaults: %v", err)
		} else {
			if b := stateConfig.Brightness; b >= MinBrightness && b <= MaxBrightness {
				settings.Brightness = uint8(b)
			} else if b != 0 {
				logrus.Warnf("Ignoring persisted brightness %d: %v", b, ErrInvalidBrightness)
			}
			if r := Rotation(stateConfig.Rotation); r.Valid() {
				settings.Rotation = r
			} else {
				logrus.Warnf("Ignoring persisted rotation %d: %v", stateConfig.Rotation, ErrInvalidRotation)
			}
		}
	} else if os.IsNotExist(err) {
		logrus.Infof("No state file yet, using default brightness %d", settings.Brightness)
	} else {
		logrus.Warnf("Unable to read state file, using defaults: %v", err)
	}

	serverState.savedBrightness = settings.Brightness
	serverState.current.Store(&settings)
	return serverState
}

// Settings returns the latest published snapshot without blocking
func (ss *ServerState) Settings() Settings {
	return *ss.current.Load()
}

func (ss *ServerState) Brightness() uint8 {
	return ss.current.Load().Brightness
}

// SetBrightness publishes a new brightness and schedules its persistence.
// Out of range values are rejected and leave the state untouched.
func (ss *ServerState) SetBrightness(brightness int64) error {
	if brightness < MinBrightness || brightness > MaxBrightness {
		return fmt.Errorf("%w: %d", ErrInvalidBrightness, brightness)
	}
	ss.update(func(s *Settings) {
		s.Brightness = uint8(brightness)
		ss.savedBrightness = uint8(brightness)
	}, true)
	return nil
}

// OverrideBrightness publishes a brightness for this run only (command line value)
func (ss *ServerState) OverrideBrightness(brightness int64) error {
	if brightness < MinBrightness || brightness > MaxBrightness {
		return fmt.Errorf("%w: %d", ErrInvalidBrightness, brightness)
	}
	ss.update(func(s *Settings) { s.Brightness = uint8(brightness) }, false)
	return nil
}

func (ss *ServerState) Rotation() Rotation {
	return ss.current.Load().Rotation
}

func (ss *ServerState) SetRotation(rotation int64) error {
	r := Rotation(rotation)
	if !r.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidRotation, rotation)
	}
	ss.update(func(s *Settings) { s.Rotation = r }, true)
	return nil
}

func (ss *ServerState) SetRecording(recording bool) {
	ss.update(func(s *Settings) { s.Recording = recording }, false)
}

func (ss *ServerState) SetReadouts(readouts bool) {
	ss.update(func(s *Settings) { s.Readouts = readouts }, false)
}

func (ss *ServerState) update(change func(s *Settings), persist bool) {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	next := *ss.current.Load()
	change(&next)
	ss.current.Store(&next)
	if persist {
		ss.scheduleSave()
	}
}

func (ss *ServerState) scheduleSave() {
	if ss.backupTimer == nil {
		ss.backupTimer = time.AfterFunc(ss.saveDelay, func() {
			ss.lock.Lock()
			defer ss.lock.Unlock()
			ss.save()
		})
	} else {
		ss.backupTimer.Reset(ss.saveDelay)
	}
}

func (ss *ServerState) save() {
	settings := ss.current.Load()
	logrus.Infof("Save state file: %s", ss.completeStateFilename)
	rawConfig, err := yaml.Marshal(&ServerStateConfig{
		Brightness: int64(ss.savedBrightness),
		Rotation:   int64(settings.Rotation),
	})
	if err != nil {
		logrus.Errorf("Unable to serialize state file: %v", err)
		return
	}
	err = os.WriteFile(ss.completeStateFilename, rawConfig, 0660)
	if err != nil {
		logrus.Errorf("Unable to save state file: %v", err)
	}
}

// FlushSave writes a pending backup right away
func (ss *ServerState) FlushSave() {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	if ss.backupTimer != nil {
		if ss.backupTimer.Stop() {
			ss.save()
		}
	}
}

type ServerStateConfig struct {
	Brightness int64 `yaml:"brightness"`
	Rotation   int64 `yaml:"rotation"`
}
