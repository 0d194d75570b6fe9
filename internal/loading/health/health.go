// Package health reports the state of the warmup service and exposes the
// run trigger and history endpoints.
package health

import (
	"time"

	"github.com/vietddude/warmup/internal/core/domain"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the result of one dependency check.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus      `json:"system_status"`
	RunsInFlight int64             `json:"runs_in_flight"`
	RunsTotal    int64             `json:"runs_total"`
	LastRun      *domain.Record    `json:"last_run,omitempty"`
	Components   []ComponentHealth `json:"components,omitempty"`
	CheckedAt    time.Time         `json:"checked_at"`
}

// StatusOf maps a finished run to a health status.
func StatusOf(rec *domain.Record) SystemStatus {
	switch {
	case rec == nil:
		return StatusHealthy
	case rec.State != domain.RunStateCompleted:
		return StatusCritical
	case rec.Failed > 0 || !rec.InitializationRan:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
