package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const framePath = "/api/frame?non_blocking=true"

// maxResponseSize bounds the decoded body, a guidance frame is a few hundred bytes
const maxResponseSize = 64 * 1024

type PollErrorKind int64

const (
	TimeoutError PollErrorKind = iota
	ConnectionError
	DecodeError
)

func (k PollErrorKind) String() string {
	switch k {
	case TimeoutError:
		return "timeout"
	case ConnectionError:
		return "connection refused"
	default:
		return "decode error"
	}
}

type PollError struct {
	Kind PollErrorKind
	Err  error
}

func (e *PollError) Error() string {
	return "guidance poll failed (" + e.Kind.String() + "): " + e.Err.Error()
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// Source produces guidance states, Client is the production implementation
type Source interface {
	Poll(ctx context.Context) (State, error)
}

type Client struct {
	address    string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(address string) *Client {
	return &Client{
		address: strings.TrimRight(address, "/"),
		// Deadlines come from the poll context
		httpClient: &http.Client{},
		now:        time.Now,
	}
}

// Poll queries the guidance service once. The call is abandoned when ctx expires.
func (c *Client) Poll(ctx context.Context) (State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.address+framePath, nil)
	if err != nil {
		return State{}, &PollError{Kind: ConnectionError, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return State{}, &PollError{Kind: TimeoutError, Err: err}
		}
		return State{}, &PollError{Kind: ConnectionError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return State{}, &PollError{Kind: DecodeError, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var frame frameResponse
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	if err = decoder.Decode(&frame); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return State{}, &PollError{Kind: TimeoutError, Err: err}
		}
		return State{}, &PollError{Kind: DecodeError, Err: err}
	}

	state, err := frame.toState()
	if err != nil {
		return State{}, &PollError{Kind: DecodeError, Err: err}
	}
	state.UpdatedAt = c.now()
	state.Connected = true
	logrus.Debugf("Guidance frame: status=%s mode=%s offset=%+v", state.Status, state.Mode, state.Offset)
	return state, nil
}

type frameResponse struct {
	HasResult     *bool          `json:"has_result"`
	Calibrating   bool           `json:"calibrating"`
	OperatingMode string         `json:"operating_mode"`
	MountType     string         `json:"mount_type"`
	SlewRequest   *slewRequest   `json:"slew_request"`
	PlateSolution *plateSolution `json:"plate_solution"`
}

type slewRequest struct {
	OffsetRotationAxis *float64 `json:"offset_rotation_axis"`
	OffsetTiltAxis     *float64 `json:"offset_tilt_axis"`
	TargetAngle        float64  `json:"target_angle"`
}

type plateSolution struct {
	Confidence *float64 `json:"confidence"`
}

func (f *frameResponse) toState() (State, error) {
	if f.HasResult == nil {
		return State{}, errors.New("missing has_result")
	}

	state := State{Status: NoSolve}

	switch f.MountType {
	case "", "equatorial":
	case "alt_az":
		state.AltAz = true
	default:
		return State{}, fmt.Errorf("unknown mount_type %q", f.MountType)
	}

	switch {
	case f.Calibrating:
		state.Mode = CalibratingMode
	case f.OperatingMode == "setup":
		state.Mode = SetupMode
	case f.OperatingMode == "operate":
		state.Mode = OperatingMode
	case f.OperatingMode == "":
		state.Mode = UnknownMode
	default:
		return State{}, fmt.Errorf("unknown operating_mode %q", f.OperatingMode)
	}

	if state.Mode != OperatingMode {
		return state, nil
	}

	if !*f.HasResult {
		state.Status = Solving
		return state, nil
	}

	if f.SlewRequest == nil {
		state.SlewLost = f.PlateSolution == nil
		return state, nil
	}
	if f.SlewRequest.OffsetRotationAxis == nil || f.SlewRequest.OffsetTiltAxis == nil {
		return State{}, errors.New("slew_request without offsets")
	}
	state.TargetAngle = f.SlewRequest.TargetAngle

	if f.PlateSolution == nil {
		state.Status = Solving
		return state, nil
	}

	state.Status = Solved
	state.Offset = Vector{X: *f.SlewRequest.OffsetRotationAxis, Y: *f.SlewRequest.OffsetTiltAxis}
	state.Confidence = 1
	if c := f.PlateSolution.Confidence; c != nil {
		if *c < 0 || *c > 1 {
			return State{}, fmt.Errorf("confidence %v out of [0,1]", *c)
		}
		state.Confidence = *c
	}
	return state, nil
}
