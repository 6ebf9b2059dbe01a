package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var klineStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// klinesJSON renders count hourly klines in the Binance wire format starting
// at klineStart.
func klinesJSON(count int) string {
	out := "["
	for i := 0; i < count; i++ {
		if i > 0 {
			out += ","
		}
		openTime := klineStart.Add(time.Duration(i) * time.Hour).UnixMilli()
		closeTime := openTime + time.Hour.Milliseconds() - 1
		out += fmt.Sprintf(
			`[%d,"0.4500","0.4600","0.4400","0.4550","12500.0",%d,"5625.0",100,"6000.0","2700.0","0"]`,
			openTime, closeTime,
		)
	}
	return out + "]"
}

func newTestAdapter(t *testing.T, handler http.Handler) *BinanceAdapter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter := NewBinanceAdapter()
	adapter.SetBaseURL(server.URL)
	adapter.SetRateLimit(1000)

	return adapter
}

func TestParseKlines(t *testing.T) {
	klines, err := parseKlines([]byte(klinesJSON(3)))
	require.NoError(t, err)
	require.Len(t, klines, 3)

	assert.Equal(t, klineStart, klines[0].OpenTime)
	assert.Equal(t, "0.4500", klines[0].Open)
	assert.Equal(t, "0.4600", klines[0].High)
	assert.Equal(t, "0.4400", klines[0].Low)
	assert.Equal(t, "0.4550", klines[0].Close)
	assert.Equal(t, "12500.0", klines[0].Volume)
	assert.Equal(t, klineStart.Add(2*time.Hour), klines[2].OpenTime)
}

func TestParseKlinesRejectsShortRows(t *testing.T) {
	_, err := parseKlines([]byte(`[[1704067200000,"0.45"]]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected at least 6")
}

func TestFetchBars(t *testing.T) {
	var gotInterval, gotSymbol string
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, klinesEndpoint, r.URL.Path)
		gotSymbol = r.URL.Query().Get("symbol")
		gotInterval = r.URL.Query().Get("interval")
		fmt.Fprint(w, klinesJSON(4))
	}))

	resp, err := adapter.FetchBars(context.Background(), FetchRequest{
		Symbol:    "ADAUSDT",
		Timeframe: "1h",
		Start:     klineStart,
		End:       klineStart.Add(4 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, "ADAUSDT", gotSymbol)
	assert.Equal(t, "1h", gotInterval)
	require.Len(t, resp.Bars, 4)
	assert.Equal(t, "ADAUSDT", resp.Bars[0].Symbol)
	assert.Equal(t, "1h", resp.Bars[0].Timeframe)
	assert.Equal(t, "0.4550", resp.Bars[0].Close)
	assert.Equal(t, klineStart, resp.Bars[0].Timestamp)
}

func TestFetchBarsHonorsLimit(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, klinesJSON(10))
	}))

	resp, err := adapter.FetchBars(context.Background(), FetchRequest{
		Symbol:    "ADAUSDT",
		Timeframe: "1h",
		Start:     klineStart,
		End:       klineStart.Add(24 * time.Hour),
		Limit:     3,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Bars, 3)
}

func TestFetchBarsValidatesRequest(t *testing.T) {
	adapter := NewBinanceAdapter()

	tests := []struct {
		name string
		req  FetchRequest
	}{
		{
			name: "missing symbol",
			req:  FetchRequest{Timeframe: "1h", Start: klineStart, End: klineStart.Add(time.Hour)},
		},
		{
			name: "bad timeframe",
			req:  FetchRequest{Symbol: "ADAUSDT", Timeframe: "2h", Start: klineStart, End: klineStart.Add(time.Hour)},
		},
		{
			name: "end before start",
			req:  FetchRequest{Symbol: "ADAUSDT", Timeframe: "1h", Start: klineStart.Add(time.Hour), End: klineStart},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.FetchBars(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestGetTicker(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, tickerEndpoint, r.URL.Path)
		require.Equal(t, "BNBUSDT", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"symbol":"BNBUSDT","price":"312.45000000"}`)
	}))

	ticker, err := adapter.GetTicker(context.Background(), "BNBUSDT")
	require.NoError(t, err)

	assert.Equal(t, "BNBUSDT", ticker.Symbol)
	assert.Equal(t, "312.45000000", ticker.Price)
	assert.False(t, ticker.Timestamp.IsZero())
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"symbol":"ADAUSDT","price":"0.45"}`)
	}))

	ticker, err := adapter.GetTicker(context.Background(), "ADAUSDT")
	require.NoError(t, err)
	assert.Equal(t, "0.45", ticker.Price)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))

	_, err := adapter.GetTicker(context.Background(), "NOSUCH")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client error 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCalculateChunks(t *testing.T) {
	hour := time.Hour

	// Small range fits in one chunk.
	chunks := calculateChunks(klineStart, klineStart.Add(10*hour), hour, 0)
	require.Len(t, chunks, 1)
	assert.Equal(t, klineStart, chunks[0].start)
	assert.Equal(t, klineStart.Add(10*hour), chunks[0].end)

	// 2500 hourly bars need three chunks of at most 1000.
	chunks = calculateChunks(klineStart, klineStart.Add(2500*hour), hour, 0)
	require.Len(t, chunks, 3)
	assert.Equal(t, klineStart.Add(1000*hour), chunks[0].end)
	assert.Equal(t, chunks[0].end, chunks[1].start)
	assert.Equal(t, klineStart.Add(2500*hour), chunks[2].end)

	// A limit truncates the range.
	chunks = calculateChunks(klineStart, klineStart.Add(2500*hour), hour, 500)
	require.Len(t, chunks, 1)
	assert.Equal(t, klineStart.Add(500*hour), chunks[0].end)
}

func TestEndTimeIsExclusive(t *testing.T) {
	var gotEnd string
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEnd = r.URL.Query().Get("endTime")
		fmt.Fprint(w, "[]")
	}))

	end := klineStart.Add(2 * time.Hour)
	_, err := adapter.FetchBars(context.Background(), FetchRequest{
		Symbol:    "ADAUSDT",
		Timeframe: "1h",
		Start:     klineStart,
		End:       end,
	})
	require.NoError(t, err)

	wantEnd := strconv.FormatInt(end.UnixMilli()-1, 10)
	assert.Equal(t, wantEnd, gotEnd)
}
