package domain

import "time"

type AttemptResult string

const (
	AttemptSuccess AttemptResult = "success"
	AttemptTimeout AttemptResult = "timeout"
	AttemptError   AttemptResult = "error"
)

// LoadAttempt records one try of a resource load. It only lives as long as the run.
type LoadAttempt struct {
	ResourceID ResourceID    `json:"resource_id"`
	Number     int           `json:"number"` // 0-based
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Result     AttemptResult `json:"result"`
	Error      string        `json:"error,omitempty"`
}

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// LoadOutcome is the terminal result for one manifest entry.
type LoadOutcome struct {
	Index      int           `json:"index"`
	ResourceID ResourceID    `json:"resource_id"`
	Status     OutcomeStatus `json:"status"`
	Err        error         `json:"-"`
	Attempts   []LoadAttempt `json:"attempts,omitempty"`
}

// Succeeded reports whether the resource loaded.
func (o LoadOutcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}

// AttemptCount returns how many times the resource was tried.
func (o LoadOutcome) AttemptCount() int {
	return len(o.Attempts)
}

// ErrorMessage returns the final error text, or "" for a successful outcome.
func (o LoadOutcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
