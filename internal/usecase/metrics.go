package usecase

import (
	"context"
	"sync"
	"time"
)

// MetricsSummary represents aggregated recognition insights since start-up.
type MetricsSummary struct {
	TotalRequests            int64   `json:"total_requests"`
	CacheHits                int64   `json:"cache_hits"`
	CacheHitRate             float64 `json:"cache_hit_rate"`
	ValidationRejections     int64   `json:"validation_rejections"`
	UpstreamFailures         int64   `json:"upstream_failures"`
	AverageUpstreamLatencyMs float64 `json:"average_upstream_latency_ms"`
}

type recognitionMetrics struct {
	mu              sync.Mutex
	total           int64
	cacheHits       int64
	rejections      int64
	failures        int64
	upstreamCalls   int64
	upstreamLatency time.Duration
}

func (m *recognitionMetrics) request() {
	m.mu.Lock()
	m.total++
	m.mu.Unlock()
}

func (m *recognitionMetrics) cacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *recognitionMetrics) rejected() {
	m.mu.Lock()
	m.rejections++
	m.mu.Unlock()
}

func (m *recognitionMetrics) upstream(latency time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upstreamCalls++
	m.upstreamLatency += latency
	if failed {
		m.failures++
	}
}

// GetMetricsSummary aggregates the recognition counters.
func (uc *RecognitionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	m := uc.metrics
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := &MetricsSummary{
		TotalRequests:        m.total,
		CacheHits:            m.cacheHits,
		ValidationRejections: m.rejections,
		UpstreamFailures:     m.failures,
	}
	if m.total > 0 {
		summary.CacheHitRate = float64(m.cacheHits) / float64(m.total)
	}
	if m.upstreamCalls > 0 {
		summary.AverageUpstreamLatencyMs = float64(m.upstreamLatency) / float64(time.Millisecond) / float64(m.upstreamCalls)
	}
	return summary, nil
}
