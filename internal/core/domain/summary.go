package domain

import (
	"fmt"
	"time"
)

// RunSummary aggregates one pipeline execution.
type RunSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	State      RunState  `json:"state"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	Outcomes []LoadOutcome `json:"outcomes,omitempty"`

	InitializationRan bool  `json:"initialization_ran"`
	InitErr           error `json:"-"`
	Err               error `json:"-"`

	Transitions []Transition `json:"transitions,omitempty"`
}

// NewRunSummary creates an empty summary in the initial state.
func NewRunSummary(id string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		ID:        id,
		StartedAt: startedAt,
		State:     RunStateLoadingManifest,
	}
}

// Transition moves the summary to the next state and records it.
func (s *RunSummary) Transition(to RunState, reason string) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.Transitions = append(s.Transitions, Transition{
		From:      s.State,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	s.State = to
	return nil
}

// Tally recomputes the counters from the outcome slots.
func (s *RunSummary) Tally() {
	s.Total = len(s.Outcomes)
	s.Succeeded, s.Failed = 0, 0
	for _, o := range s.Outcomes {
		if o.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
}

// FailedResources returns the ids of failed outcomes in manifest order.
func (s *RunSummary) FailedResources() []ResourceID {
	var ids []ResourceID
	for _, o := range s.Outcomes {
		if !o.Succeeded() {
			ids = append(ids, o.ResourceID)
		}
	}
	return ids
}

// Finished reports whether the run reached a terminal state.
func (s *RunSummary) Finished() bool {
	return s.State.IsTerminal()
}

// Duration returns the wall time of a finished run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Record is the storable form of a finished summary. Per-attempt detail is dropped.
type Record struct {
	ID                string    `json:"id"                 db:"id"`
	StartedAt         time.Time `json:"started_at"         db:"started_at"`
	FinishedAt        time.Time `json:"finished_at"        db:"finished_at"`
	State             RunState  `json:"state"              db:"state"`
	Total             int       `json:"total"              db:"total"`
	Succeeded         int       `json:"succeeded"          db:"succeeded"`
	Failed            int       `json:"failed"             db:"failed"`
	InitializationRan bool      `json:"initialization_ran" db:"initialization_ran"`
	InitError         string    `json:"init_error"         db:"init_error"`
	Error             string    `json:"error"              db:"error"`
	FailedResources   []string  `json:"failed_resources"   db:"-"`
}

// Record converts the summary for persistence.
func (s *RunSummary) Record() Record {
	r := Record{
		ID:                s.ID,
		StartedAt:         s.StartedAt,
		FinishedAt:        s.FinishedAt,
		State:             s.State,
		Total:             s.Total,
		Succeeded:         s.Succeeded,
		Failed:            s.Failed,
		InitializationRan: s.InitializationRan,
		FailedResources:   s.FailedResources(),
	}
	if s.InitErr != nil {
		r.InitError = s.InitErr.Error()
	}
	if s.Err != nil {
		r.Error = s.Err.Error()
	}
	return r
}
