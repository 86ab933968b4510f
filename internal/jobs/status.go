// Package jobs models the backend job status payload and polls running jobs
// until they reach a terminal state.
package jobs

import (
	"encoding/json"
	"errors"
	"strings"
)

// Backend status values.
const (
	StatusQueued   = "queued"
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"

	StageCompleted = "completed"
	StageFailed    = "failed"
)

// ErrJobNotFound is returned by status sources when the job record no longer
// exists (HTTP 404). It marks the job as expired, not failed.
var ErrJobNotFound = errors.New("job not found")

// Meta carries the optional stage information reported by the backend.
type Meta struct {
	Stage    string   `json:"stage,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
}

// Status is the payload of the job status endpoint.
type Status struct {
	Status string          `json:"status"`
	Meta   *Meta           `json:"meta,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Stage returns meta.stage, or "" when no meta was sent.
func (s Status) Stage() string {
	if s.Meta == nil {
		return ""
	}
	return s.Meta.Stage
}

// Phase is the client-side interpretation of a Status.
type Phase string

const (
	PhasePending  Phase = "pending"
	PhaseFinished Phase = "finished"
	PhaseFailed   Phase = "failed"
)

// Classify maps a payload to a phase. The backend signals completion either
// through status or through meta.stage, so both are checked.
func Classify(s Status) Phase {
	status := strings.ToLower(strings.TrimSpace(s.Status))
	stage := strings.ToLower(strings.TrimSpace(s.Stage()))
	switch {
	case status == StatusFinished || stage == StageCompleted:
		return PhaseFinished
	case status == StatusFailed || stage == StageFailed:
		return PhaseFailed
	default:
		return PhasePending
	}
}
