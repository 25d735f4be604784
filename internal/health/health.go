// Package health provides system health monitoring and status
// reporting for the block stream.
package health

// SystemStatus represents the health state of the stream.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the stream health report.
type Report struct {
	Status         SystemStatus   `json:"status"`
	ActiveProvider string         `json:"active_provider"`
	LastBlock      uint64         `json:"last_block"`
	SecondsSince   float64        `json:"seconds_since_last_block"`
	Initialized    bool           `json:"initialized"`
	FailureCounts  map[string]int `json:"provider_failures"`
}
