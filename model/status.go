package model

import "time"

// JobCounters is a point-in-time copy of one scheduler queue's job counters
type JobCounters struct {
	Queue     string    `json:"queue"`
	StartedAt time.Time `json:"startedAt"`
	Queued    int       `json:"queued"`
	Running   int       `json:"running"`
	Done      int       `json:"done"`
	Failed    int       `json:"failed"`
}

// ProcessStatus describes the supervised service process
type ProcessStatus struct {
	State       string     `json:"state"`
	PID         int        `json:"pid,omitempty"`
	StableSince *time.Time `json:"stableSince,omitempty"`
	Stable      bool       `json:"stable"`
	Restarts    int        `json:"restarts"`
	Failures    int        `json:"failures"`
}

// RuntimeStatus summarises the orchestrator
type RuntimeStatus struct {
	Process       ProcessStatus `json:"process"`
	PendingOpen   int           `json:"pendingOpen"`
	OverflowDepth int           `json:"overflowDepth"`
	DeadLetters   int           `json:"deadLetters"`
	Records       int           `json:"records"`
	Jobs          []JobCounters `json:"jobs"`
}
