package core

import (
	"fmt"
	"time"
)

// RunState is a stage of the per-request ingestion state machine.
type RunState int

const (
	RunPending RunState = iota
	RunFetching
	RunBuilding
	RunSplitting
	RunEmbedding
	RunUpserting
	RunDone
	RunFailed
)

func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunFetching:
		return "fetching"
	case RunBuilding:
		return "building"
	case RunSplitting:
		return "splitting"
	case RunEmbedding:
		return "embedding"
	case RunUpserting:
		return "upserting"
	case RunDone:
		return "done"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RunState) UnmarshalText(text []byte) error {
	for candidate := RunPending; candidate <= RunFailed; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// Terminal reports whether no further transition can happen.
func (s RunState) Terminal() bool {
	return s == RunDone || s == RunFailed
}

// CanTransition reports whether moving from s to next is a legal step.
// Stages advance strictly in order; Failed is reachable from any non-terminal state.
func (s RunState) CanTransition(next RunState) bool {
	if s.Terminal() {
		return false
	}
	if next == RunFailed {
		return true
	}
	return next == s+1
}

// IngestionRun records the progress of one ingestion request.
type IngestionRun struct {
	Id             string    `json:"id"`
	SourceURL      string    `json:"sourceUrl"`
	Namespace      string    `json:"namespace"`
	State          RunState  `json:"state"`
	FailedStage    RunState  `json:"failedStage,omitempty"`
	Records        int       `json:"records"`
	Documents      int       `json:"documents"`
	Chunks         int       `json:"chunks"`
	BatchesTotal   int       `json:"batchesTotal"`
	BatchesWritten int       `json:"batchesWritten"`
	FailedBatch    int       `json:"failedBatch"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
