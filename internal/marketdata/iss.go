package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"moexbot/internal/models"
	"moexbot/pkg/ratelimit"
	"moexbot/pkg/retry"
	"moexbot/pkg/utils"
)

// issJSON - jsoniter в режиме совместимости со стандартной библиотекой.
// Ответ ISS с годовой историей - это сотни строк массивов, jsoniter
// разбирает их заметно быстрее encoding/json.
var issJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// issIntervalDaily - дневные свечи в нотации ISS
	issIntervalDaily = 24

	// issPageSize - ISS отдаёт не больше 500 свечей за запрос,
	// дальше нужна пагинация через start
	issPageSize = 500

	issDateFormat = "2006-01-02"
	issTimeFormat = "2006-01-02 15:04:05"

	// Лимиты публичного ISS: агрессивнее ходить невежливо,
	// ISS начинает отдавать 403
	issRequestsPerSec = 5
	issBurst          = 10
)

// ISSError - ошибка запроса к MOEX ISS
type ISSError struct {
	StatusCode int
	Ticker     string
	Message    string
}

func (e *ISSError) Error() string {
	return fmt.Sprintf("iss: %s: status %d: %s", e.Ticker, e.StatusCode, e.Message)
}

// ISSClient загружает дневные свечи фондового рынка MOEX.
//
// Эндпоинт:
//
//	GET /iss/engines/stock/markets/shares/securities/{ticker}/candles.json
//	    ?interval=24&from=YYYY-MM-DD&till=YYYY-MM-DD&start=N
//
// Ответ - конверт {"candles": {"columns": [...], "data": [[...], ...]}}.
// Позиции значений разрешаются по именам колонок, а не по индексам:
// ISS не гарантирует порядок колонок между версиями.
//
// Клиент держит кеш последней удачной серии на тикер: при ошибке сети
// отдаётся устаревшая серия с warn в логе, чтобы движок не останавливал
// торговлю из-за разового сбоя ISS.
type ISSClient struct {
	baseURL    string
	httpClient *HTTPClient
	limiter    *ratelimit.RateLimiter
	loc        *time.Location
	retryCfg   retry.Config

	mu    sync.RWMutex
	cache map[string]*models.PriceSeries

	// подменяется в тестах
	now func() time.Time
}

var _ Source = (*ISSClient)(nil)

// NewISSClient создает клиента ISS.
// baseURL - обычно https://iss.moex.com, в тестах адрес httptest сервера.
func NewISSClient(baseURL string) *ISSClient {
	loc, err := time.LoadLocation(utils.DefaultExchangeTimezone)
	if err != nil {
		utils.Warn("failed to load exchange timezone, falling back to UTC",
			utils.Err(err))
		loc = time.UTC
	}

	return &ISSClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: GetGlobalHTTPClient(),
		limiter:    ratelimit.NewRateLimiter(issRequestsPerSec, issBurst),
		loc:        loc,
		retryCfg:   retry.NetworkConfig(),
		cache:      make(map[string]*models.PriceSeries),
		now:        time.Now,
	}
}

// GetHistory возвращает дневные свечи за последние days календарных дней
func (c *ISSClient) GetHistory(ctx context.Context, ticker string, days int) (*models.PriceSeries, error) {
	till := c.now()
	from := till.AddDate(0, 0, -days)

	series, err := c.fetchRange(ctx, ticker, from, till)
	if err != nil {
		return c.serveLastKnown(ticker, err)
	}

	c.storeLastKnown(series)
	return series, nil
}

// GetRecentBars возвращает не более count последних дневных свечей
func (c *ISSClient) GetRecentBars(ctx context.Context, ticker string, count int) (*models.PriceSeries, error) {
	till := c.now()
	// Запас на выходные и праздники: календарных дней берём
	// вдвое больше плюс неделя
	from := till.AddDate(0, 0, -(count*2 + 7))

	series, err := c.fetchRange(ctx, ticker, from, till)
	if err != nil {
		return c.serveLastKnown(ticker, err)
	}

	series.TrimTo(count)
	c.storeLastKnown(series)
	return series, nil
}

// LastKnown возвращает копию закешированной серии тикера
func (c *ISSClient) LastKnown(ticker string) (*models.PriceSeries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	series, ok := c.cache[ticker]
	if !ok {
		return nil, false
	}
	return series.Clone(), true
}

// serveLastKnown подставляет кеш вместо упавшего запроса.
// Без кеша ошибка уходит вызывающему как есть.
func (c *ISSClient) serveLastKnown(ticker string, fetchErr error) (*models.PriceSeries, error) {
	cached, ok := c.LastKnown(ticker)
	if !ok {
		return nil, fetchErr
	}

	utils.Warn("iss fetch failed, serving last known bars",
		utils.Ticker(ticker),
		utils.Int("bars", cached.Len()),
		utils.Err(fetchErr))
	return cached, nil
}

func (c *ISSClient) storeLastKnown(series *models.PriceSeries) {
	c.mu.Lock()
	c.cache[series.Ticker] = series.Clone()
	c.mu.Unlock()
}

// fetchRange загружает все свечи диапазона, следуя пагинации ISS
func (c *ISSClient) fetchRange(ctx context.Context, ticker string, from, till time.Time) (*models.PriceSeries, error) {
	series := models.NewPriceSeries(ticker)

	start := 0
	for {
		bars, rawRows, err := c.fetchPage(ctx, ticker, from, till, start)
		if err != nil {
			return nil, err
		}

		for _, bar := range bars {
			series.Append(bar)
		}

		// Неполная страница - диапазон исчерпан
		if rawRows < issPageSize {
			return series, nil
		}
		start += rawRows
	}
}

// fetchPage загружает одну страницу свечей.
// Возвращает разобранные бары и сырое количество строк в ответе:
// строки с null-ценами (дни без сделок) пропускаются, но для
// пагинации важен именно сырой счётчик.
func (c *ISSClient) fetchPage(ctx context.Context, ticker string, from, till time.Time, start int) ([]models.Bar, int, error) {
	type page struct {
		bars []models.Bar
		raw  int
	}

	cfg := c.retryCfg
	cfg.RetryIf = func(err error) bool {
		return retry.IsRetryable(err) && retry.RetryIfNotContext(err)
	}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		utils.Warn("iss request retry",
			utils.Ticker(ticker),
			utils.Int("attempt", attempt),
			utils.Err(err))
	}

	result, err := retry.DoWithResult(ctx, func() (page, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return page{}, err
		}

		body, err := c.doRequest(ctx, ticker, from, till, start)
		if err != nil {
			return page{}, err
		}

		bars, raw, err := c.parseCandles(ticker, body)
		if err != nil {
			// Сломанный конверт не чинится повтором
			return page{}, retry.Permanent(err)
		}
		return page{bars: bars, raw: raw}, nil
	}, cfg)
	if err != nil {
		return nil, 0, err
	}

	return result.bars, result.raw, nil
}

// doRequest выполняет один HTTP запрос к ISS и возвращает тело ответа
func (c *ISSClient) doRequest(ctx context.Context, ticker string, from, till time.Time, start int) ([]byte, error) {
	params := url.Values{}
	params.Set("interval", strconv.Itoa(issIntervalDaily))
	params.Set("from", from.Format(issDateFormat))
	params.Set("till", till.Format(issDateFormat))
	params.Set("start", strconv.Itoa(start))

	reqURL := fmt.Sprintf("%s/iss/engines/stock/markets/shares/securities/%s/candles.json?%s",
		c.baseURL, url.PathEscape(ticker), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("iss: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("iss: request %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("iss: read response %s: %w", ticker, err)
	}

	if resp.StatusCode != http.StatusOK {
		issErr := &ISSError{
			StatusCode: resp.StatusCode,
			Ticker:     ticker,
			Message:    http.StatusText(resp.StatusCode),
		}
		// 4xx - проблема запроса (несуществующий тикер, кривые даты),
		// повторять бессмысленно
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.Permanent(issErr)
		}
		return nil, issErr
	}

	return body, nil
}

// candleColumns - разрешённые индексы колонок ответа ISS
type candleColumns struct {
	open, close, high, low, volume, begin int
}

// resolveColumns находит индексы нужных колонок по именам
func resolveColumns(names []string) (candleColumns, error) {
	cols := candleColumns{open: -1, close: -1, high: -1, low: -1, volume: -1, begin: -1}
	for i, name := range names {
		switch name {
		case "open":
			cols.open = i
		case "close":
			cols.close = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "volume":
			cols.volume = i
		case "begin":
			cols.begin = i
		}
	}

	for name, idx := range map[string]int{
		"open": cols.open, "close": cols.close, "high": cols.high,
		"low": cols.low, "volume": cols.volume, "begin": cols.begin,
	} {
		if idx < 0 {
			return cols, fmt.Errorf("candles response missing column %q", name)
		}
	}
	return cols, nil
}

// parseCandles разбирает конверт ISS в список баров.
// Возвращает также сырое количество строк для пагинации.
func (c *ISSClient) parseCandles(ticker string, body []byte) ([]models.Bar, int, error) {
	var envelope struct {
		Candles struct {
			Columns []string        `json:"columns"`
			Data    [][]interface{} `json:"data"`
		} `json:"candles"`
	}

	if err := issJSON.Unmarshal(body, &envelope); err != nil {
		return nil, 0, fmt.Errorf("iss: decode candles %s: %w", ticker, err)
	}

	if len(envelope.Candles.Data) == 0 {
		return nil, 0, nil
	}

	cols, err := resolveColumns(envelope.Candles.Columns)
	if err != nil {
		return nil, 0, fmt.Errorf("iss: %s: %w", ticker, err)
	}

	bars := make([]models.Bar, 0, len(envelope.Candles.Data))
	for _, row := range envelope.Candles.Data {
		bar, ok := c.rowToBar(cols, row)
		if !ok {
			// День без сделок: ISS отдаёт null вместо цен
			continue
		}
		bars = append(bars, bar)
	}

	return bars, len(envelope.Candles.Data), nil
}

// rowToBar собирает бар из строки данных ISS
func (c *ISSClient) rowToBar(cols candleColumns, row []interface{}) (models.Bar, bool) {
	open, ok := floatAt(row, cols.open)
	if !ok {
		return models.Bar{}, false
	}
	closePrice, ok := floatAt(row, cols.close)
	if !ok {
		return models.Bar{}, false
	}
	if utils.ValidatePrice(closePrice) != nil {
		// Нулевая или битая цена закрытия делает бар бесполезным
		return models.Bar{}, false
	}
	high, ok := floatAt(row, cols.high)
	if !ok {
		return models.Bar{}, false
	}
	low, ok := floatAt(row, cols.low)
	if !ok {
		return models.Bar{}, false
	}
	volume, ok := floatAt(row, cols.volume)
	if !ok {
		volume = 0 // объём бывает null у неликвидов, бар всё равно годен
	}

	beginRaw, ok := stringAt(row, cols.begin)
	if !ok {
		return models.Bar{}, false
	}
	begin, err := time.ParseInLocation(issTimeFormat, beginRaw, c.loc)
	if err != nil {
		return models.Bar{}, false
	}

	return models.Bar{
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Timestamp: begin,
	}, true
}

func floatAt(row []interface{}, idx int) (float64, bool) {
	if idx < 0 || idx >= len(row) {
		return 0, false
	}
	v, ok := row[idx].(float64)
	return v, ok
}

func stringAt(row []interface{}, idx int) (string, bool) {
	if idx < 0 || idx >= len(row) {
		return "", false
	}
	v, ok := row[idx].(string)
	return v, ok
}
