// Package types - Statistics and monitoring data structures
package types

import "time"

// OutputStats summarizes what an output has done since Start.
//
// Counters are maintained with sync/atomic by the output; a snapshot is a
// plain value and safe to serialize.
type OutputStats struct {
	Dispatched int64 `json:"dispatched"` // events that produced a remote write
	Rejected   int64 `json:"rejected"`   // events dropped by validation
	Skipped    int64 `json:"skipped"`    // shutdown sentinels
	Succeeded  int64 `json:"succeeded"`  // completed writes
	Failed     int64 `json:"failed"`     // writes reported as failed

	LastError     string    `json:"last_error,omitempty"`
	LastErrorTime time.Time `json:"last_error_time,omitempty"`
}

// HealthStatus representa o status de saúde do sistema
type HealthStatus struct {
	Status     string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Components map[string]interface{} `json:"components"`
	Issues     []string               `json:"issues"`
	CheckTime  time.Time              `json:"check_time"`
}
