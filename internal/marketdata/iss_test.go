package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"moexbot/pkg/retry"
)

// testRetryCfg - быстрые ретраи, чтобы тесты не спали секундами
func testRetryCfg() retry.Config {
	return retry.Config{
		MaxRetries:   3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// candlesBody собирает конверт ISS из строк данных
func candlesBody(rows []string) string {
	return fmt.Sprintf(`{
		"candles": {
			"columns": ["open", "close", "high", "low", "value", "volume", "begin", "end"],
			"data": [%s]
		}
	}`, strings.Join(rows, ","))
}

func candleRow(open, close, high, low float64, volume float64, begin string) string {
	return fmt.Sprintf(`[%g, %g, %g, %g, 0.0, %g, %q, %q]`, open, close, high, low, volume, begin, begin)
}

func newTestClient(baseURL string) *ISSClient {
	client := NewISSClient(baseURL)
	client.retryCfg = testRetryCfg()
	return client
}

func TestISSClient_GetHistory(t *testing.T) {
	var gotPath, gotQuery string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery

		body := candlesBody([]string{
			candleRow(280.0, 282.5, 283.1, 279.4, 1200, "2025-06-02 00:00:00"),
			candleRow(282.5, 281.0, 284.0, 280.9, 900, "2025-06-03 00:00:00"),
		})
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	series, err := client.GetHistory(context.Background(), "SBER", 30)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}

	if series.Ticker != "SBER" {
		t.Errorf("Ticker = %q, want SBER", series.Ticker)
	}
	if series.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", series.Len())
	}

	if series.Bars[0].Open != 280.0 || series.Bars[0].Close != 282.5 {
		t.Errorf("first bar = %+v", series.Bars[0])
	}
	if series.Bars[1].High != 284.0 || series.Bars[1].Low != 280.9 {
		t.Errorf("second bar = %+v", series.Bars[1])
	}
	if series.Bars[1].Volume != 900 {
		t.Errorf("second bar volume = %v, want 900", series.Bars[1].Volume)
	}

	wantPath := "/iss/engines/stock/markets/shares/securities/SBER/candles.json"
	if gotPath != wantPath {
		t.Errorf("path = %q, want %q", gotPath, wantPath)
	}
	if !strings.Contains(gotQuery, "interval=24") {
		t.Errorf("query %q missing interval=24", gotQuery)
	}
	if !strings.Contains(gotQuery, "from=") || !strings.Contains(gotQuery, "till=") {
		t.Errorf("query %q missing date range", gotQuery)
	}
}

func TestISSClient_ColumnsResolvedByName(t *testing.T) {
	// Колонки в нестандартном порядке: разбор не должен зависеть от позиций
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"candles": {
				"columns": ["begin", "volume", "low", "high", "close", "open"],
				"data": [["2025-06-02 00:00:00", 500.0, 99.0, 105.0, 104.0, 100.0]]
			}
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	series, err := client.GetHistory(context.Background(), "GAZP", 10)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}
	if series.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", series.Len())
	}

	bar := series.Bars[0]
	if bar.Open != 100.0 || bar.High != 105.0 || bar.Low != 99.0 || bar.Close != 104.0 {
		t.Errorf("bar = %+v, columns resolved incorrectly", bar)
	}
	if bar.Volume != 500 {
		t.Errorf("volume = %v, want 500", bar.Volume)
	}
}

func TestISSClient_MissingColumn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"candles": {
				"columns": ["open", "close", "high", "low"],
				"data": [[1.0, 2.0, 3.0, 0.5]]
			}
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetHistory(context.Background(), "LKOH", 10)
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
	if !strings.Contains(err.Error(), "missing column") {
		t.Errorf("error = %v, want missing column", err)
	}
}

func TestISSClient_BadRowsSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"candles": {
				"columns": ["open", "close", "high", "low", "volume", "begin"],
				"data": [
					[100.0, 101.0, 102.0, 99.0, 10.0, "2025-06-02 00:00:00"],
					[null, null, null, null, null, "2025-06-03 00:00:00"],
					[100.5, 0.0, 102.0, 99.0, 5.0, "2025-06-04 00:00:00"],
					[101.0, 103.0, 103.5, 100.5, 20.0, "2025-06-05 00:00:00"]
				]
			}
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	series, err := client.GetHistory(context.Background(), "VTBR", 10)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (null and zero-close rows skipped)", series.Len())
	}
	if series.Bars[1].Close != 103.0 {
		t.Errorf("second bar close = %v, want 103.0", series.Bars[1].Close)
	}
}

func TestISSClient_Pagination(t *testing.T) {
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))

		var rows []string
		if start == 0 {
			// Полная страница: клиент должен прийти за следующей
			rows = make([]string, 0, issPageSize)
			day := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < issPageSize; i++ {
				price := 100.0 + float64(i)*0.1
				rows = append(rows, candleRow(price, price, price, price, 1,
					day.AddDate(0, 0, i).Format("2006-01-02 15:04:05")))
			}
		} else if start == issPageSize {
			rows = []string{
				candleRow(200.0, 201.0, 202.0, 199.0, 1, "2024-06-03 00:00:00"),
			}
		} else {
			t.Errorf("unexpected start offset %d", start)
		}

		fmt.Fprint(w, candlesBody(rows))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	series, err := client.GetHistory(context.Background(), "SBER", 720)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}

	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if series.Len() != issPageSize+1 {
		t.Errorf("Len() = %d, want %d", series.Len(), issPageSize+1)
	}
	if series.LastClose() != 201.0 {
		t.Errorf("LastClose() = %v, want 201.0", series.LastClose())
	}
}

func TestISSClient_GetRecentBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := make([]string, 0, 10)
		day := time.Date(2025, 5, 19, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 10; i++ {
			price := 50.0 + float64(i)
			rows = append(rows, candleRow(price, price, price, price, 1,
				day.AddDate(0, 0, i).Format("2006-01-02 15:04:05")))
		}
		fmt.Fprint(w, candlesBody(rows))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	series, err := client.GetRecentBars(context.Background(), "SBER", 3)
	if err != nil {
		t.Fatalf("GetRecentBars() error: %v", err)
	}

	if series.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (trimmed)", series.Len())
	}
	// Остаются именно последние бары
	if series.Bars[0].Close != 57.0 || series.LastClose() != 59.0 {
		t.Errorf("trimmed bars = %v..%v, want 57..59", series.Bars[0].Close, series.LastClose())
	}
}

func TestISSClient_ClientErrorNotRetried(t *testing.T) {
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetHistory(context.Background(), "NOSUCH", 10)
	if err == nil {
		t.Fatal("expected error for 404")
	}

	var issErr *ISSError
	if !errors.As(err, &issErr) {
		t.Fatalf("error = %T, want *ISSError in chain", err)
	}
	if issErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", issErr.StatusCode)
	}

	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Errorf("requests = %d, want 1 (4xx must not be retried)", got)
	}
}

func TestISSClient_ServerErrorRetried(t *testing.T) {
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, candlesBody([]string{
			candleRow(10.0, 11.0, 12.0, 9.0, 1, "2025-06-02 00:00:00"),
		}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	series, err := client.GetHistory(context.Background(), "SBER", 10)
	if err != nil {
		t.Fatalf("GetHistory() error after retries: %v", err)
	}
	if series.Len() != 1 {
		t.Errorf("Len() = %d, want 1", series.Len())
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("requests = %d, want 3 (two retries)", got)
	}
}

func TestISSClient_ServesLastKnownOnFailure(t *testing.T) {
	var failing atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, candlesBody([]string{
			candleRow(100.0, 101.0, 102.0, 99.0, 1, "2025-06-02 00:00:00"),
		}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Первый запрос наполняет кеш
	first, err := client.GetHistory(context.Background(), "SBER", 10)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}
	if first.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", first.Len())
	}

	// ISS падает - клиент отдаёт устаревшую серию без ошибки
	failing.Store(true)

	stale, err := client.GetHistory(context.Background(), "SBER", 10)
	if err != nil {
		t.Fatalf("GetHistory() should serve cache, got error: %v", err)
	}
	if stale.Len() != 1 || stale.LastClose() != 101.0 {
		t.Errorf("stale series = %d bars, last %v; want cached bar", stale.Len(), stale.LastClose())
	}

	// Для тикера без кеша ошибка уходит наружу
	_, err = client.GetHistory(context.Background(), "GAZP", 10)
	if err == nil {
		t.Fatal("expected error for uncached ticker")
	}
}

func TestISSClient_LastKnownIsCopy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, candlesBody([]string{
			candleRow(100.0, 101.0, 102.0, 99.0, 1, "2025-06-02 00:00:00"),
		}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	series, err := client.GetHistory(context.Background(), "SBER", 10)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}

	// Мутация серии вызывающим не должна трогать кеш
	series.Bars[0].Close = -1

	cached, ok := client.LastKnown("SBER")
	if !ok {
		t.Fatal("LastKnown(SBER) not found")
	}
	if cached.Bars[0].Close != 101.0 {
		t.Errorf("cache mutated through returned series: close = %v", cached.Bars[0].Close)
	}
}
