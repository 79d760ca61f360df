package config

import (
	_ "embed"
	"fmt"
	"time"
)

//go:embed param_default.yaml
var ParamDefaultFile []byte

type ServerParam struct {
	Guidance  GuidanceParam  `yaml:"guidance"`
	Display   DisplayParam   `yaml:"display"`
	ApiParam  ApiParam       `yaml:"api"`
	Recording RecordingParam `yaml:"recording"`
}

type GuidanceParam struct {
	Address          string `yaml:"address"`
	PollIntervalMs   int64  `yaml:"poll_interval_ms"`
	TimeoutMs        int64  `yaml:"timeout_ms"`
	BackoffMaxMs     int64  `yaml:"backoff_max_ms"`
	FailureThreshold int64  `yaml:"failure_threshold"`
}

func (p GuidanceParam) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

func (p GuidanceParam) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

func (p GuidanceParam) BackoffMax() time.Duration {
	return time.Duration(p.BackoffMaxMs) * time.Millisecond
}

type DisplayParam struct {
	SpiPort   string `yaml:"spi_port"`
	SpiHz     int64  `yaml:"spi_hz"`
	DcPin     string `yaml:"dc_pin"`
	ResetPin  string `yaml:"reset_pin"`
	FrameRate int64  `yaml:"frame_rate"`

	// Readouts adds the numeric offsets, direction indicators and target
	// angle arrow to the locked view
	Readouts bool `yaml:"readouts"`
}

func (p DisplayParam) TickInterval() time.Duration {
	return time.Second / time.Duration(p.FrameRate)
}

type ApiParam struct {
	Enabled   bool     `yaml:"enabled"`
	Host      string   `yaml:"host"`
	SslPort   int64    `yaml:"ssl_port"`
	ApiKey    string   `yaml:"api_key"`
	WebDir    string   `yaml:"web_dir"`
	Hostnames []string `yaml:"hostnames"`
}

type RecordingParam struct {
	Ffmpeg    string `yaml:"ffmpeg"`
	QueueSize int64  `yaml:"queue_size"`
}

// Validate rejects values the daemon cannot run with
func (p *ServerParam) Validate() error {
	g := p.Guidance
	if g.Address == "" {
		return fmt.Errorf("guidance.address is empty")
	}
	if g.PollIntervalMs <= 0 {
		return fmt.Errorf("guidance.poll_interval_ms must be positive, got %d", g.PollIntervalMs)
	}
	if g.TimeoutMs <= 0 {
		return fmt.Errorf("guidance.timeout_ms must be positive, got %d", g.TimeoutMs)
	}
	if g.BackoffMaxMs < g.PollIntervalMs {
		return fmt.Errorf("guidance.backoff_max_ms (%d) is lower than guidance.poll_interval_ms (%d)", g.BackoffMaxMs, g.PollIntervalMs)
	}
	if g.FailureThreshold < 1 {
		return fmt.Errorf("guidance.failure_threshold must be at least 1, got %d", g.FailureThreshold)
	}
	if p.Display.FrameRate < 1 || p.Display.FrameRate > 60 {
		return fmt.Errorf("display.frame_rate must be between 1 and 60, got %d", p.Display.FrameRate)
	}
	if p.Display.SpiHz <= 0 {
		return fmt.Errorf("display.spi_hz must be positive, got %d", p.Display.SpiHz)
	}
	if p.ApiParam.Enabled && (p.ApiParam.SslPort <= 0 || p.ApiParam.SslPort > 65535) {
		return fmt.Errorf("api.ssl_port is out of range: %d", p.ApiParam.SslPort)
	}
	if p.Recording.QueueSize < 1 {
		return fmt.Errorf("recording.queue_size must be at least 1, got %d", p.Recording.QueueSize)
	}
	return nil
}
