// Package jobs persists render requests in SQLite and runs them on a
// bounded worker pool, one render per project at a time.
package jobs

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrProjectBusy rejects a submission while the project already has a
// queued or running job.
var ErrProjectBusy = errors.New("project already has an active job")

// Job is one render request and its outcome.
type Job struct {
	ID           string
	ProjectID    string
	ManifestPath string
	Status       Status
	Stage        string
	Progress     int
	Error        string
	VideoPath    string
	CaptionsPath string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
