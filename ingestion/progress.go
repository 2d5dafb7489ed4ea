package ingestion

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/sheetvec/core"
)

// ProgressFunc receives progress of the fan-out stages. For RunEmbedding done
// counts embedded chunks, for RunUpserting it counts written batches.
type ProgressFunc func(stage core.RunState, done, total int)

// StageReporter renders ProgressFunc calls as one status line per stage,
// redrawn in place with a carriage return.
type StageReporter struct {
	w     io.Writer
	every int

	mu      sync.Mutex
	stage   core.RunState
	last    int
	started time.Time
	open    bool
}

// NewStageReporter returns a reporter that redraws its line every `every` items
// and always at the end of a stage.
func NewStageReporter(w io.Writer, every int) *StageReporter {
	if every < 1 {
		every = 1
	}
	return &StageReporter{w: w, every: every, stage: core.RunPending}
}

// Report implements ProgressFunc.
func (r *StageReporter) Report(stage core.RunState, done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stage != r.stage || r.started.IsZero() {
		r.endLine()
		r.stage = stage
		r.last = 0
		r.started = time.Now()
	}
	done = min(done, total)
	if done < total && done-r.last < r.every {
		return
	}
	r.last = done

	rate := float64(done) / max(time.Since(r.started).Seconds(), 1e-3)
	fmt.Fprintf(r.w, "\r%s: %d/%d %s (%.1f%%) - %.1f/s",
		stage, done, total, stageUnit(stage), percent(done, total), rate)
	r.open = true
	if done == total {
		r.endLine()
		r.started = time.Time{}
	}
}

// Close terminates a line left open by an interrupted stage.
func (r *StageReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
}

func (r *StageReporter) endLine() {
	if r.open {
		fmt.Fprintln(r.w)
		r.open = false
	}
}

func stageUnit(stage core.RunState) string {
	switch stage {
	case core.RunEmbedding:
		return "chunks"
	case core.RunUpserting:
		return "batches"
	default:
		return "items"
	}
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}
