package monitoring

import (
	"sync"
	"time"
)

// Counters tracks prediction traffic served by the API.
type Counters struct {
	mu              sync.Mutex
	predictions     int64
	rejected        int64
	failed          int64
	byClass         map[string]int64
	totalLatency    time.Duration
	lastPredictedAt time.Time
}

// CountersSnapshot is a point-in-time copy of Counters.
type CountersSnapshot struct {
	Predictions      int64            `json:"predictions"`
	Rejected         int64            `json:"rejected"`
	Failed           int64            `json:"failed"`
	ByClass          map[string]int64 `json:"by_class"`
	AverageLatencyMs float64          `json:"average_latency_ms"`
	LastPredictedAt  *time.Time       `json:"last_predicted_at,omitempty"`
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{byClass: make(map[string]int64)}
}

// RecordPrediction counts a served prediction of class and its latency.
func (c *Counters) RecordPrediction(class string, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.predictions++
	c.byClass[class]++
	c.totalLatency += latency
	c.lastPredictedAt = time.Now().UTC()
}

// RecordRejected counts a request turned away for missing features.
func (c *Counters) RecordRejected() {
	c.mu.Lock()
	c.rejected++
	c.mu.Unlock()
}

// RecordFailed counts a prediction the model could not produce.
func (c *Counters) RecordFailed() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

// Snapshot copies the counters under the lock.
func (c *Counters) Snapshot() CountersSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := CountersSnapshot{
		Predictions: c.predictions,
		Rejected:    c.rejected,
		Failed:      c.failed,
		ByClass:     make(map[string]int64, len(c.byClass)),
	}
	for k, v := range c.byClass {
		snap.ByClass[k] = v
	}
	if c.predictions > 0 {
		snap.AverageLatencyMs = float64(c.totalLatency.Microseconds()) / 1000 / float64(c.predictions)
		last := c.lastPredictedAt
		snap.LastPredictedAt = &last
	}
	return snap
}
