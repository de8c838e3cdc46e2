package database

import (
	"context"
	"database/sql"
	"time"
)

// HealthStatus describes database connectivity and pool usage.
type HealthStatus struct {
	Connected       bool          `json:"connected"`
	LatencyMS       int64         `json:"latency_ms"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	Error           string        `json:"error,omitempty"`
	CheckedAt       time.Time     `json:"checked_at"`
}

// Health pings the database and reports pool statistics.
func Health(ctx context.Context, db *sql.DB) (HealthStatus, error) {
	status := HealthStatus{CheckedAt: time.Now()}

	start := time.Now()
	err := db.PingContext(ctx)
	status.LatencyMS = time.Since(start).Milliseconds()

	stats := db.Stats()
	status.OpenConnections = stats.OpenConnections
	status.InUse = stats.InUse
	status.Idle = stats.Idle

	if err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.Connected = true
	return status, nil
}
