package process

import "time"

// Status is a point-in-time copy of one tracked instance.
type Status struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitErr   string    `json:"exit_error,omitempty"`
	LogPath   string    `json:"log_path"`
}
