package multivec

import (
	"runtime"
	"strings"
	"sync"
	"time"
)

type AppMetrics interface {
	RecordRequest(method, path string, status int, latencyMS int64)
	RecordQuery(modelID, kind string, latencyMS int64, err error)
	RecordTrainProgress(modelID string, wordsProcessed, targetWords int64, alpha float32)
	Snapshot() MetricsSnapshot
}

type RouteStats struct {
	Count        int64 `json:"count"`
	ErrorCount   int64 `json:"error_count"`
	LatencySumMS int64 `json:"latency_sum_ms"`
	LatencyMinMS int64 `json:"latency_min_ms"`
	LatencyMaxMS int64 `json:"latency_max_ms"`
}

type QueryStats struct {
	Count        int64 `json:"count"`
	ErrorCount   int64 `json:"error_count"`
	LatencySumMS int64 `json:"latency_sum_ms"`
	LatencyMaxMS int64 `json:"latency_max_ms"`
}

// TrainStats keeps the latest progress snapshot per model, not an
// accumulation.
type TrainStats struct {
	WordsProcessed int64     `json:"words_processed"`
	TargetWords    int64     `json:"target_words"`
	Alpha          float32   `json:"alpha"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type RecentRequest struct {
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

type RuntimeStats struct {
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	Goroutines     int    `json:"goroutines"`
	NumGC          uint32 `json:"num_gc"`
	GCPauseNS      uint64 `json:"gc_pause_ns"`
}

type MetricsSnapshot struct {
	RouteStats     map[string]RouteStats `json:"route_stats"`
	QueryStats     map[string]QueryStats `json:"query_stats"`
	TrainStats     map[string]TrainStats `json:"train_stats"`
	RecentRequests []RecentRequest       `json:"recent_requests"`
	Runtime        RuntimeStats          `json:"runtime"`
	UptimeSeconds  int64                 `json:"uptime_seconds"`
	StartTime      time.Time             `json:"start_time"`
}

// noop implementation: used when metrics are disabled.
type NoopAppMetrics struct{}

func (NoopAppMetrics) RecordRequest(method, path string, status int, latencyMS int64) {}

func (NoopAppMetrics) RecordQuery(modelID, kind string, latencyMS int64, err error) {}

func (NoopAppMetrics) RecordTrainProgress(modelID string, wordsProcessed, targetWords int64, alpha float32) {
}

func (NoopAppMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{}
}

const appMetricsRecentCapacity = 200

// in-memory implementation: records metrics into local maps and a ring buffer of recent requests.
type InMemAppMetrics struct {
	mu sync.Mutex

	routeStats map[string]RouteStats
	queryStats map[string]QueryStats
	trainStats map[string]TrainStats

	recent      []RecentRequest
	recentNext  int
	recentCount int

	startTime time.Time
}

func NewInMemAppMetrics() *InMemAppMetrics {
	return &InMemAppMetrics{
		routeStats: make(map[string]RouteStats),
		queryStats: make(map[string]QueryStats),
		trainStats: make(map[string]TrainStats),
		recent:     make([]RecentRequest, appMetricsRecentCapacity),
		startTime:  time.Now().UTC(),
	}
}

func (m *InMemAppMetrics) RecordRequest(method, path string, status int, latencyMS int64) {
	if m == nil {
		return
	}

	method = strings.TrimSpace(strings.ToUpper(method))
	path = strings.TrimSpace(path)
	if method == "" {
		method = "UNKNOWN"
	}
	if path == "" {
		path = "/"
	}
	if latencyMS < 0 {
		latencyMS = 0
	}

	key := method + " " + path

	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.routeStats[key]
	v.Count++
	if status >= 400 {
		v.ErrorCount++
	}
	v.LatencySumMS += latencyMS
	if v.Count == 1 || latencyMS < v.LatencyMinMS {
		v.LatencyMinMS = latencyMS
	}
	if latencyMS > v.LatencyMaxMS {
		v.LatencyMaxMS = latencyMS
	}
	m.routeStats[key] = v

	m.appendRecentLocked(RecentRequest{
		Method:    method,
		Path:      path,
		Status:    status,
		LatencyMS: latencyMS,
		Timestamp: time.Now().UTC(),
	})
}

func (m *InMemAppMetrics) RecordQuery(modelID, kind string, latencyMS int64, err error) {
	if m == nil {
		return
	}
	key := normalizeMetricsModelID(modelID) + " " + strings.TrimSpace(kind)
	if latencyMS < 0 {
		latencyMS = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.queryStats[key]
	v.Count++
	if err != nil {
		v.ErrorCount++
	}
	v.LatencySumMS += latencyMS
	if latencyMS > v.LatencyMaxMS {
		v.LatencyMaxMS = latencyMS
	}
	m.queryStats[key] = v
}

func (m *InMemAppMetrics) RecordTrainProgress(modelID string, wordsProcessed, targetWords int64, alpha float32) {
	if m == nil {
		return
	}
	modelID = normalizeMetricsModelID(modelID)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainStats[modelID] = TrainStats{
		WordsProcessed: wordsProcessed,
		TargetWords:    targetWords,
		Alpha:          alpha,
		UpdatedAt:      time.Now().UTC(),
	}
}

func (m *InMemAppMetrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}

	m.mu.Lock()
	out := MetricsSnapshot{
		RouteStats:     copyMap(m.routeStats),
		QueryStats:     copyMap(m.queryStats),
		TrainStats:     copyMap(m.trainStats),
		RecentRequests: m.recentSnapshotLocked(),
		StartTime:      m.startTime,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
	}
	m.mu.Unlock()

	// read mem stats outside the lock: runtime.ReadMemStats stops the world
	// and holding m.mu during that pause would block all record calls.
	var rt runtime.MemStats
	runtime.ReadMemStats(&rt)
	out.Runtime = RuntimeStats{
		HeapAllocBytes: rt.HeapAlloc,
		Goroutines:     runtime.NumGoroutine(),
		NumGC:          rt.NumGC,
		GCPauseNS:      rt.PauseTotalNs,
	}

	return out
}

func (m *InMemAppMetrics) appendRecentLocked(entry RecentRequest) {
	m.recent[m.recentNext] = entry
	m.recentNext = (m.recentNext + 1) % len(m.recent)
	if m.recentCount < len(m.recent) {
		m.recentCount++
	}
}

func (m *InMemAppMetrics) recentSnapshotLocked() []RecentRequest {
	if m.recentCount == 0 {
		return []RecentRequest{}
	}
	out := make([]RecentRequest, 0, m.recentCount)
	start := (m.recentNext - m.recentCount + len(m.recent)) % len(m.recent)
	for i := 0; i < m.recentCount; i++ {
		idx := (start + i) % len(m.recent)
		out = append(out, m.recent[idx])
	}
	return out
}

func normalizeMetricsModelID(modelID string) string {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return "default"
	}
	return modelID
}

// copyMap returns a shallow copy of a map with string keys.
func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MetricsTrainObserver forwards training progress snapshots for one model
// into an AppMetrics sink.
type MetricsTrainObserver struct {
	Metrics AppMetrics
	ModelID string
}

func (o MetricsTrainObserver) ObserveTrainProgress(p TrainProgress) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.RecordTrainProgress(o.ModelID, p.WordsProcessed, p.TargetWords, p.Alpha)
}
