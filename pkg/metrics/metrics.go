// Package metrics keeps the rolling per-request metrics history and
// derives the latency percentiles and health status exposed by the API.
// History is bounded; appends take a mutex, reads work on a snapshot copy.
package metrics

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
)

// HealthState is the coarse service health bucket.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

const (
	healthySuccessRate  = 0.95
	degradedSuccessRate = 0.80
	healthyAvgTotalMS   = 10_000
)

// Percentiles is one latency distribution snapshot in milliseconds.
type Percentiles struct {
	P50 int64 `json:"p50_ms"`
	P90 int64 `json:"p90_ms"`
	P95 int64 `json:"p95_ms"`
	P99 int64 `json:"p99_ms"`
}

// Snapshot is the rolling metrics view.
type Snapshot struct {
	Count        uint64                 `json:"count"`
	SuccessCount uint64                 `json:"success_count"`
	ErrorCount   uint64                 `json:"error_count"`
	SuccessRate  float64                `json:"success_rate"`
	AvgTotalMS   int64                  `json:"avg_total_ms"`
	Total        Percentiles            `json:"total"`
	PerStage     map[string]Percentiles `json:"per_stage"`
	MemoryMB     float64                `json:"memory_mb"`
	GeneratedAt  time.Time              `json:"generated_at"`
}

// HealthSnapshot is the derived health view.
type HealthSnapshot struct {
	State       HealthState                 `json:"state"`
	SuccessRate float64                     `json:"success_rate"`
	AvgTotalMS  int64                       `json:"avg_total_ms"`
	// StageLiveness maps each stage to its last successful run.
	StageLiveness map[models.StageName]time.Time `json:"stage_liveness"`
	CheckedAt     time.Time                      `json:"checked_at"`
}

// Collector accumulates per-request metrics. Counters are cumulative for
// the process lifetime; percentile inputs come from the bounded history.
type Collector struct {
	mu       sync.Mutex
	capacity int
	history  []models.RequestMetrics

	totalCount   uint64
	successCount uint64
	errorCount   uint64

	stageLiveness map[models.StageName]time.Time
}

// NewCollector creates a collector with the given history bound.
func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Collector{
		capacity:      capacity,
		history:       make([]models.RequestMetrics, 0, capacity),
		stageLiveness: make(map[models.StageName]time.Time),
	}
}

// Record appends one request's metrics, evicting the oldest entry at
// capacity.
func (c *Collector) Record(m models.RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalCount++
	if m.Success {
		c.successCount++
	} else {
		c.errorCount++
	}

	if len(c.history) == c.capacity {
		copy(c.history, c.history[1:])
		c.history = c.history[:c.capacity-1]
	}
	c.history = append(c.history, m)
}

// MarkStageSuccess records a stage's last successful run for liveness.
func (c *Collector) MarkStageSuccess(stage models.StageName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stageLiveness[stage] = time.Now()
}

// Snapshot returns the rolling metrics view. Percentiles are computed on
// a sorted copy of the bounded history.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	history := make([]models.RequestMetrics, len(c.history))
	copy(history, c.history)
	snap := Snapshot{
		Count:        c.totalCount,
		SuccessCount: c.successCount,
		ErrorCount:   c.errorCount,
		GeneratedAt:  time.Now(),
	}
	c.mu.Unlock()

	if snap.Count > 0 {
		snap.SuccessRate = float64(snap.SuccessCount) / float64(snap.Count)
	}

	totals := make([]int64, 0, len(history))
	perStage := make(map[string][]int64)
	var sum int64
	for _, m := range history {
		totals = append(totals, m.TotalMS)
		sum += m.TotalMS
		for stage, ms := range m.StageMS {
			perStage[stage] = append(perStage[stage], ms)
		}
	}
	if len(totals) > 0 {
		snap.AvgTotalMS = sum / int64(len(totals))
	}
	snap.Total = percentiles(totals)
	snap.PerStage = make(map[string]Percentiles, len(perStage))
	for stage, values := range perStage {
		snap.PerStage[stage] = percentiles(values)
	}
	snap.MemoryMB = MemorySampleMB()
	return snap
}

// Health derives the health state from the rolling snapshot. An empty
// history reports healthy: nothing has failed yet.
func (c *Collector) Health() HealthSnapshot {
	snap := c.Snapshot()

	c.mu.Lock()
	liveness := make(map[models.StageName]time.Time, len(c.stageLiveness))
	for stage, ts := range c.stageLiveness {
		liveness[stage] = ts
	}
	c.mu.Unlock()

	state := HealthStateHealthy
	if snap.Count > 0 {
		switch {
		case snap.SuccessRate >= healthySuccessRate && snap.AvgTotalMS <= healthyAvgTotalMS:
			state = HealthStateHealthy
		case snap.SuccessRate >= degradedSuccessRate:
			state = HealthStateDegraded
		default:
			state = HealthStateUnhealthy
		}
	}

	return HealthSnapshot{
		State:         state,
		SuccessRate:   snap.SuccessRate,
		AvgTotalMS:    snap.AvgTotalMS,
		StageLiveness: liveness,
		CheckedAt:     time.Now(),
	}
}

// percentiles computes p50/p90/p95/p99 by nearest-rank on a sorted copy.
func percentiles(values []int64) Percentiles {
	if len(values) == 0 {
		return Percentiles{}
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(p float64) int64 {
		rank := int(p*float64(len(sorted))+0.5) - 1
		if rank < 0 {
			rank = 0
		}
		if rank >= len(sorted) {
			rank = len(sorted) - 1
		}
		return sorted[rank]
	}
	return Percentiles{P50: at(0.50), P90: at(0.90), P95: at(0.95), P99: at(0.99)}
}

// MemorySampleMB samples the current heap allocation in megabytes.
func MemorySampleMB() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.HeapAlloc) / (1024 * 1024)
}
