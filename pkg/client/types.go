package client

import "time"

// Usage is a resource sample of one running instance.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
}

// Instance is one tracked invocation of a module.
type Instance struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitError string    `json:"exit_error,omitempty"`
	LogPath   string    `json:"log_path"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// Module is the daemon's view of one configured module.
type Module struct {
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	Path         string     `json:"path"`
	Enabled      bool       `json:"enabled"`
	RunOnStartup bool       `json:"run_on_startup"`
	RunHotkey    bool       `json:"run_hotkey"`
	Hotkey       string     `json:"hotkey,omitempty"`
	Action       string     `json:"hotkey_action,omitempty"`
	NeedsGUI     bool       `json:"needs_gui"`
	Running      bool       `json:"running"`
	Instances    []Instance `json:"instances"`
}

// Outcome is the result of a run or toggle request.
type Outcome struct {
	Module string `json:"module"`
	Action string `json:"action"`
	Result string `json:"result"`
	PID    int    `json:"pid,omitempty"`
	Stop   string `json:"stop_outcome,omitempty"`
}

// StopResult is the result of a stop request.
type StopResult struct {
	Module  string `json:"module"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
