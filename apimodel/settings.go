package apimodel

// BrightnessData is the body of GET and POST /api/brightness.
// Brightness is a pointer so that a POST without the field is a bad request
// rather than a request for brightness 0.
type BrightnessData struct {
	Brightness *int64 `json:"brightness"`
}

type RotationData struct {
	Rotation *int64 `json:"rotation"`
}

type LinkStatus struct {
	Connected bool    `json:"connected"`
	Stale     bool    `json:"stale"`
	Retained  bool    `json:"retained"`
	Status    string  `json:"status"`
	Mode      string  `json:"mode"`
	Failures  int64   `json:"failures"`
	OffsetX   float64 `json:"offset_x"`
	OffsetY   float64 `json:"offset_y"`
	UpdatedAt string  `json:"updated_at,omitempty"`
	AgeMs     int64   `json:"age_ms"`
}

type RecorderStatus struct {
	Enabled bool   `json:"enabled"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

type StatusData struct {
	Version    string         `json:"version"`
	Brightness int64          `json:"brightness"`
	Rotation   int64          `json:"rotation"`
	Link       LinkStatus     `json:"link"`
	Recorder   RecorderStatus `json:"recorder"`
}
