package collector

import (
	"sync/atomic"
	"time"
)

// metricsCollector tracks collection performance and statistics.
type metricsCollector struct {
	barsCollected int64
	barsStored    int64
	errorCount    int64
	successCount  int64
	rateLimitHits int64
	gapsDetected  int64

	totalResponseTime int64 // nanoseconds
	responseCount     int64
}

// newMetricsCollector creates a new metrics collector.
func newMetricsCollector() *metricsCollector {
	return &metricsCollector{}
}

// recordSuccess records a successful collection operation.
func (m *metricsCollector) recordSuccess(duration time.Duration) {
	atomic.AddInt64(&m.successCount, 1)
	atomic.AddInt64(&m.totalResponseTime, duration.Nanoseconds())
	atomic.AddInt64(&m.responseCount, 1)
}

// recordError records an error occurrence.
func (m *metricsCollector) recordError() {
	atomic.AddInt64(&m.errorCount, 1)
}

// recordBarsCollected records the number of bars fetched from the exchange.
func (m *metricsCollector) recordBarsCollected(count int) {
	atomic.AddInt64(&m.barsCollected, int64(count))
}

// recordBarsStored records the number of bars written to storage.
func (m *metricsCollector) recordBarsStored(count int) {
	atomic.AddInt64(&m.barsStored, int64(count))
}

// recordResponseTime records API response time.
func (m *metricsCollector) recordResponseTime(duration time.Duration) {
	atomic.AddInt64(&m.totalResponseTime, duration.Nanoseconds())
	atomic.AddInt64(&m.responseCount, 1)
}

// recordRateLimitHit records when rate limiting is encountered.
func (m *metricsCollector) recordRateLimitHit() {
	atomic.AddInt64(&m.rateLimitHits, 1)
}

// recordGapsDetected records detected gaps.
func (m *metricsCollector) recordGapsDetected(count int) {
	atomic.AddInt64(&m.gapsDetected, int64(count))
}

// getMetrics returns a snapshot of the current metrics.
func (m *metricsCollector) getMetrics() *CollectionMetrics {
	barsCollected := atomic.LoadInt64(&m.barsCollected)
	barsStored := atomic.LoadInt64(&m.barsStored)
	errorCount := atomic.LoadInt64(&m.errorCount)
	successCount := atomic.LoadInt64(&m.successCount)
	rateLimitHits := atomic.LoadInt64(&m.rateLimitHits)
	gapsDetected := atomic.LoadInt64(&m.gapsDetected)
	totalResponseTime := atomic.LoadInt64(&m.totalResponseTime)
	responseCount := atomic.LoadInt64(&m.responseCount)

	totalOperations := successCount + errorCount
	var successRate float64
	if totalOperations > 0 {
		successRate = float64(successCount) / float64(totalOperations)
	}

	var avgResponseTime time.Duration
	if responseCount > 0 {
		avgResponseTime = time.Duration(totalResponseTime / responseCount)
	}

	return &CollectionMetrics{
		BarsCollected:   barsCollected,
		BarsStored:      barsStored,
		ErrorCount:      errorCount,
		SuccessRate:     successRate,
		AvgResponseTime: avgResponseTime,
		RateLimitHits:   rateLimitHits,
		GapsDetected:    gapsDetected,
	}
}

// reset clears all metrics. Used by tests.
func (m *metricsCollector) reset() {
	atomic.StoreInt64(&m.barsCollected, 0)
	atomic.StoreInt64(&m.barsStored, 0)
	atomic.StoreInt64(&m.errorCount, 0)
	atomic.StoreInt64(&m.successCount, 0)
	atomic.StoreInt64(&m.rateLimitHits, 0)
	atomic.StoreInt64(&m.gapsDetected, 0)
	atomic.StoreInt64(&m.totalResponseTime, 0)
	atomic.StoreInt64(&m.responseCount, 0)
}
