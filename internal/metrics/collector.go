// Package metrics provides in-memory runtime statistics for the kaiwa server.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpLLMStream = "llm_stream"
	OpDBQuery   = "db_query"
)

// Counter names for the collector.
const (
	CountTurnsCompleted = "turns_completed"
	CountTurnsFailed    = "turns_failed"
	CountDeltasRelayed  = "deltas_relayed"
)

// operationMetrics holds aggregated metrics for a single operation type.
type operationMetrics struct {
	count     int64
	errors    int64
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration

	inputTokens  int64
	outputTokens int64
}

// OperationSnapshot provides computed stats for one operation.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`

	// Token totals, only for LLM operations that reported usage.
	InputTokens  *int64 `json:"inputTokens,omitempty"`
	OutputTokens *int64 `json:"outputTokens,omitempty"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptimeSeconds"`
	LLMStream     *OperationSnapshot `json:"llmStream,omitempty"`
	DBQuery       *OperationSnapshot `json:"dbQuery,omitempty"`
	Counters      map[string]int64   `json:"counters"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe to call on a nil *Collector.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*operationMetrics
	counters  map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*operationMetrics),
		counters:  make(map[string]int64),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *operationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &operationMetrics{minTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *operationMetrics) observe(duration time.Duration, err error) {
	m.count++
	m.totalTime += duration
	if err != nil {
		m.errors++
	}
	if duration < m.minTime {
		m.minTime = duration
	}
	if duration > m.maxTime {
		m.maxTime = duration
	}
}

// RecordTiming records timing and outcome for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).observe(duration, err)
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.observe(duration, err)
	m.inputTokens += inputTokens
	m.outputTokens += outputTokens
}

// Incr adds one to a named counter.
func (c *Collector) Incr(name string) {
	c.Add(name, 1)
}

// Add adds n to a named counter.
func (c *Collector) Add(name string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += n
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *operationMetrics) *OperationSnapshot {
	if m == nil || m.count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.count,
		Errors:      m.errors,
		TotalTimeMs: m.totalTime.Milliseconds(),
		AvgTimeMs:   float64(m.totalTime.Milliseconds()) / float64(m.count),
		MinTimeMs:   m.minTime.Milliseconds(),
		MaxTimeMs:   m.maxTime.Milliseconds(),
	}

	if m.inputTokens > 0 || m.outputTokens > 0 {
		in, out := m.inputTokens, m.outputTokens
		snap.InputTokens = &in
		snap.OutputTokens = &out
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counters := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		LLMStream:     snapshotOp(c.ops[OpLLMStream]),
		DBQuery:       snapshotOp(c.ops[OpDBQuery]),
		Counters:      counters,
	}
}
