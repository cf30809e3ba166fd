// Package broker отправляет рыночные заявки в брокерский шлюз.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"moexbot/internal/models"
	"moexbot/pkg/ratelimit"
	"moexbot/pkg/retry"
	"moexbot/pkg/utils"
)

// Квота шлюза на поток заявок. Burst 5 покрывает обе ноги парной
// сделки и принудительное закрытие в одном цикле.
const (
	venueOrdersPerSec = 2
	venueOrderBurst   = 5
)

// Order - заявка в терминах шлюза: рыночная, объём в лотах
type Order struct {
	Ticker string
	Side   string // BUY / SELL
	Lots   int
}

// OrderTransport - транспорт отправки заявок.
// Движок работает только через этот интерфейс, в тестах подставляется фейк.
type OrderTransport interface {
	Submit(ctx context.Context, order Order) error
}

// VenueError - ошибка брокерского шлюза
type VenueError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *VenueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("venue: status %d: %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("venue: status %d: %s", e.StatusCode, e.Message)
}

func (e *VenueError) Unwrap() error {
	return e.Err
}

// VenueClient отправляет заявки по HTTP.
//
// Протокол шлюза:
//
//	POST {base}/api/orders
//	Authorization: Bearer <token>
//	{"bot": "...", "ticker": "SBER", "side": "BUY", "lots": 10}
//
// Ответ 4xx означает отклонённую заявку (неверный тикер, нет денег,
// битый токен) - повторять её бессмысленно, ошибка помечается как
// permanent. 5xx и сетевые сбои ретраятся вызывающим.
//
// Поток заявок ограничен token bucket'ом: шлюз отклоняет заявки
// сверх квоты со штрафной задержкой, дешевле придержать их на клиенте.
type VenueClient struct {
	baseURL string
	botID   string
	token   string
	client  *http.Client
	limiter *ratelimit.RateLimiter
}

var _ OrderTransport = (*VenueClient)(nil)

// NewVenueClient создает клиента шлюза.
// httpClient == nil - используется клиент с дефолтным таймаутом;
// в проде сюда передаётся общий клиент с connection pooling.
func NewVenueClient(baseURL, botID, token string, httpClient *http.Client) *VenueClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &VenueClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		botID:   botID,
		token:   token,
		client:  httpClient,
		limiter: ratelimit.NewRateLimiter(venueOrdersPerSec, venueOrderBurst),
	}
}

// venueOrderRequest - тело запроса POST /api/orders
type venueOrderRequest struct {
	Bot    string `json:"bot"`
	Ticker string `json:"ticker"`
	Side   string `json:"side"`
	Lots   int    `json:"lots"`
}

// Submit отправляет заявку. Блокируется до ответа шлюза или отмены контекста.
func (c *VenueClient) Submit(ctx context.Context, order Order) error {
	if err := validateOrder(order); err != nil {
		return retry.Permanent(err)
	}

	payload, err := json.Marshal(venueOrderRequest{
		Bot:    c.botID,
		Ticker: order.Ticker,
		Side:   order.Side,
		Lots:   order.Lots,
	})
	if err != nil {
		return retry.Permanent(fmt.Errorf("venue: encode order: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders", bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("venue: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	// Квота шлюза: ждём токен, а не ловим отклонение по лимиту
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("venue: throttle %s: %w", order.Ticker, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("venue: submit %s: %w", order.Ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	venueErr := &VenueError{
		StatusCode: resp.StatusCode,
		Message:    readErrorMessage(resp),
	}

	// 4xx - заявка отклонена по существу, повтор даст тот же ответ
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return retry.Permanent(venueErr)
	}
	return venueErr
}

// validateOrder отсекает заведомо битые заявки до похода в сеть
func validateOrder(order Order) error {
	if err := utils.ValidateTicker(order.Ticker); err != nil {
		return fmt.Errorf("venue: %w", err)
	}
	if order.Side != models.OrderSideBuy && order.Side != models.OrderSideSell {
		return fmt.Errorf("venue: invalid order side %q", order.Side)
	}
	if err := utils.ValidateQuantity(order.Lots); err != nil {
		return fmt.Errorf("venue: %w", err)
	}
	return nil
}

// readErrorMessage достаёт описание ошибки из тела ответа.
// Шлюз обычно отвечает {"error": "..."}, но на прокси-ошибках
// может прийти что угодно.
func readErrorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return http.StatusText(resp.StatusCode)
	}

	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}

	return strings.TrimSpace(string(body))
}
