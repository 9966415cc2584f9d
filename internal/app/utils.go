// Package app utility functions and helpers
package app

import "time"

// parseDurationSafe parses durationStr, falling back when it is empty or
// malformed.
func parseDurationSafe(durationStr string, fallback time.Duration) time.Duration {
	if durationStr == "" {
		return fallback
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getStatusString(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// redact hides a credential while still showing whether one is set.
func redact(value string) string {
	if value == "" {
		return ""
	}
	return "[REDACTED]"
}
