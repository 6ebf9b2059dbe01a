package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTick(t *testing.T) {
	m := NewEngineMetrics("ADAUSDT", "BNBUSDT")

	m.RecordTick(1042.5, 980.0, -1.8, 1, 250*time.Millisecond)
	m.RecordTick(1050.0, 980.0, -1.2, 1, 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TicksTotal))
	assert.Equal(t, 1050.0, testutil.ToFloat64(m.PortfolioValue))
	assert.Equal(t, 980.0, testutil.ToFloat64(m.PortfolioCash))
	assert.Equal(t, -1.2, testutil.ToFloat64(m.ZScore))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CurrentSignal))
}

func TestRecordSkippedTickByReason(t *testing.T) {
	m := NewEngineMetrics("ADAUSDT", "BNBUSDT")

	m.RecordSkippedTick("timeout")
	m.RecordSkippedTick("timeout")
	m.RecordSkippedTick("data_gap")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SkippedTicksTotal.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedTicksTotal.WithLabelValues("data_gap")))
}

func TestRecordTrade(t *testing.T) {
	m := NewEngineMetrics("ADAUSDT", "BNBUSDT")

	m.RecordTrade("LONG_SPREAD")
	m.RecordTrade("FLAT")
	m.RecordTrade("LONG_SPREAD")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("LONG_SPREAD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("FLAT")))
}

func TestSeparateInstancesDoNotCollide(t *testing.T) {
	// Each engine run builds its own registry, so two instances with the
	// same pair can coexist in one process.
	a := NewEngineMetrics("ADAUSDT", "BNBUSDT")
	b := NewEngineMetrics("ADAUSDT", "BNBUSDT")

	a.TicksTotal.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.TicksTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TicksTotal))
}
