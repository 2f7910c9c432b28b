package models

import "time"

// SystemSnapshot summarises process health for readiness probes.
type SystemSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	TransitionsTotal         uint64    `json:"transitions_total"`
	SlotWriteFailures        uint64    `json:"slot_write_failures"`
	Goroutines               int       `json:"goroutines"`
	UptimeSeconds            float64   `json:"uptime_seconds"`
	GeneratedAt              time.Time `json:"generated_at"`
}
