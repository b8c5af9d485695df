package entity

import (
	"time"
)

// HealthStatus is the overall pipeline condition.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

// Operational reports whether the pipeline can keep running unattended.
// Healthy and warning are operational; degraded and critical need a human.
func (s HealthStatus) Operational() bool {
	return s == HealthHealthy || s == HealthWarning
}

// HealthReport is derived on demand and never persisted.
type HealthReport struct {
	Status         HealthStatus      `json:"status"`
	CheckedAt      time.Time         `json:"checked_at"`
	WindowStart    time.Time         `json:"window_start"`
	BySeverity     map[Severity]int  `json:"by_severity"`
	ByModule       map[string]int    `json:"by_module"`
	TotalErrors24h int               `json:"total_errors_24h"`
	CriticalErrors int               `json:"critical_errors"`
	OpenCircuits   []string          `json:"open_circuits"`
	DLQ            map[DLQStatus]int `json:"dlq"`
}
