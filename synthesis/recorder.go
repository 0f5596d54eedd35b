package synthesis

import (
	"context"
	"time"
)

// Workflow names a pipeline kind in run records.
type Workflow string

const (
	WorkflowRephrase   Workflow = "rephrase"
	WorkflowGeneration Workflow = "generation"
)

// UnitRecord is one accepted (or failed) chunk or section.
type UnitRecord struct {
	RunID    string
	Workflow Workflow
	Index    int
	Title    string
	Status   string
	Attempts int
	Score    float64
	Issues   []string
	Output   string
}

// RunRecord summarizes a finished run.
type RunRecord struct {
	RunID      string
	Workflow   Workflow
	Status     RunStatus
	Source     string
	Units      int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        string
	Report     *QualityReport
}

// Recorder persists run progress. Failures are logged and never fail the run.
type Recorder interface {
	RecordUnit(ctx context.Context, u UnitRecord) error
	RecordRun(ctx context.Context, r RunRecord) error
}

type nopRecorder struct{}

func (nopRecorder) RecordUnit(context.Context, UnitRecord) error { return nil }
func (nopRecorder) RecordRun(context.Context, RunRecord) error   { return nil }
