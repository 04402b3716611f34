package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is how a harvest's crawl loop ended.
type Outcome string

const (
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFailed    Outcome = "failed"
	OutcomePageLimit Outcome = "page_limit"
	OutcomeCancelled Outcome = "cancelled"
)

// HarvestRun summarizes one harvest from the connectivity check to the
// persisted artifact.
type HarvestRun struct {
	ID           uuid.UUID  `json:"id"`
	Profile      string     `json:"profile"`
	Outcome      Outcome    `json:"outcome"`
	PagesVisited int        `json:"pages_visited"`
	PageErrors   int        `json:"page_errors"`
	RecordCount  int        `json:"record_count"`
	Artifact     string     `json:"artifact,omitempty"`
	Columns      []string   `json:"columns"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func NewHarvestRun(profile string, columns []string) *HarvestRun {
	return &HarvestRun{
		ID:        uuid.New(),
		Profile:   profile,
		Columns:   columns,
		StartedAt: time.Now(),
	}
}

func (r *HarvestRun) Finish(outcome Outcome) {
	now := time.Now()
	r.Outcome = outcome
	r.FinishedAt = &now
}

// Duration is zero until the run has finished.
func (r *HarvestRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
