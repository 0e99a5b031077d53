package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued        RunStatus = "queued"
	RunStatusLoading       RunStatus = "loading"
	RunStatusStandardizing RunStatus = "standardizing"
	RunStatusAnalyzing     RunStatus = "analyzing"
	RunStatusWriting       RunStatus = "writing"
	RunStatusComplete      RunStatus = "complete"
	RunStatusFailed        RunStatus = "failed"
)

// RunInput records which sources a run was started against.
type RunInput struct {
	RawPath          string `json:"raw_path"`
	StandardizedPath string `json:"standardized_path,omitempty"`
	OutputDir        string `json:"output_dir"`
}

// Run is one batch recomputation of all output tables.
type Run struct {
	ID        string      `json:"id"`
	Input     RunInput    `json:"input"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary holds the headline counts of a completed run.
type RunSummary struct {
	RawRows          int           `json:"raw_rows"`
	ValidRows        int           `json:"valid_rows"`
	DroppedRows      int           `json:"dropped_rows"`
	CleanRows        int           `json:"clean_rows"`
	CanonicalItems   int           `json:"canonical_items"`
	ReductionPercent float64       `json:"reduction_percent"`
	Aggregates       int           `json:"aggregates"`
	Anomalies        int           `json:"anomalies"`
	Flagged          int           `json:"flagged"`
	Phases           []PhaseResult `json:"phases"`
}

// PhaseStatus represents the outcome of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Rows     int            `json:"rows"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
