package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // P99計算用に保持するサンプル数
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		MaxLatencySamples: 1000,
	}
}

// Metrics はジョブ実行のメトリクスを収集する
type Metrics struct {
	submitted      atomic.Uint64
	completed      atomic.Uint64
	succeeded      atomic.Uint64
	failed         atomic.Uint64
	panicked       atomic.Uint64
	totalLatencyNs atomic.Uint64

	mu                sync.RWMutex
	startTime         time.Time
	lastResetTime     time.Time
	windowJobs        uint64
	latencies         []time.Duration
	maxLatencySamples int
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	samples := config.MaxLatencySamples
	if samples <= 0 {
		samples = DefaultConfig().MaxLatencySamples
	}
	now := time.Now()
	return &Metrics{
		startTime:         now,
		lastResetTime:     now,
		latencies:         make([]time.Duration, 0, samples),
		maxLatencySamples: samples,
	}
}

// RecordSubmit はキューへの投入を記録する
func (m *Metrics) RecordSubmit() {
	m.submitted.Add(1)
}

// RecordSuccess は成功したジョブを記録する
func (m *Metrics) RecordSuccess(latency time.Duration) {
	m.succeeded.Add(1)
	m.recordCompletion(latency)
}

// RecordFailure は失敗したジョブを記録する
func (m *Metrics) RecordFailure(latency time.Duration) {
	m.failed.Add(1)
	m.recordCompletion(latency)
}

// RecordPanic はパニックしたジョブを記録する（失敗としても数える）
func (m *Metrics) RecordPanic(latency time.Duration) {
	m.panicked.Add(1)
	m.RecordFailure(latency)
}

func (m *Metrics) recordCompletion(latency time.Duration) {
	m.completed.Add(1)
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	m.windowJobs++
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	}
	m.mu.Unlock()
}

// Submitted は投入されたジョブ数を返す
func (m *Metrics) Submitted() uint64 {
	return m.submitted.Load()
}

// Completed は完了したジョブ数を返す（成功・失敗の合計）
func (m *Metrics) Completed() uint64 {
	return m.completed.Load()
}

// Succeeded は成功ジョブ数を返す
func (m *Metrics) Succeeded() uint64 {
	return m.succeeded.Load()
}

// Failed は失敗ジョブ数を返す
func (m *Metrics) Failed() uint64 {
	return m.failed.Load()
}

// Panicked はパニックしたジョブ数を返す
func (m *Metrics) Panicked() uint64 {
	return m.panicked.Load()
}

// Pending は投入済みで未完了のジョブ数を返す
func (m *Metrics) Pending() uint64 {
	submitted := m.submitted.Load()
	completed := m.completed.Load()
	if completed > submitted {
		return 0
	}
	return submitted - completed
}

// JobsPerSecond は直近ウィンドウの完了ジョブ/秒を返す
func (m *Metrics) JobsPerSecond() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.lastResetTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.windowJobs) / elapsed
}

// OverallJobsPerSecond は開始からの平均完了ジョブ/秒を返す
func (m *Metrics) OverallJobsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.completed.Load()) / elapsed
}

// AverageLatency は平均実行時間を返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.completed.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// P99Latency はP99実行時間を返す（サンプルベース）
func (m *Metrics) P99Latency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ErrorRate はエラー率を返す（0.0〜1.0）
func (m *Metrics) ErrorRate() float64 {
	total := m.completed.Load()
	if total == 0 {
		return 0
	}
	return float64(m.failed.Load()) / float64(total)
}

// Reset はウィンドウメトリクスをリセットする
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windowJobs = 0
	m.lastResetTime = time.Now()
	m.latencies = m.latencies[:0]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Submitted            uint64        `json:"submitted"`
	Completed            uint64        `json:"completed"`
	Succeeded            uint64        `json:"succeeded"`
	Failed               uint64        `json:"failed"`
	Panicked             uint64        `json:"panicked"`
	Pending              uint64        `json:"pending"`
	JobsPerSecond        float64       `json:"jobs_per_second"`
	OverallJobsPerSecond float64       `json:"overall_jobs_per_second"`
	AverageLatency       time.Duration `json:"average_latency_ns"`
	P99Latency           time.Duration `json:"p99_latency_ns"`
	ErrorRate            float64       `json:"error_rate"`
	Elapsed              time.Duration `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Submitted:            m.Submitted(),
		Completed:            m.Completed(),
		Succeeded:            m.Succeeded(),
		Failed:               m.Failed(),
		Panicked:             m.Panicked(),
		Pending:              m.Pending(),
		JobsPerSecond:        m.JobsPerSecond(),
		OverallJobsPerSecond: m.OverallJobsPerSecond(),
		AverageLatency:       m.AverageLatency(),
		P99Latency:           m.P99Latency(),
		ErrorRate:            m.ErrorRate(),
		Elapsed:              time.Since(m.startTime),
	}
}
