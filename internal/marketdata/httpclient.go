package marketdata

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPClientConfig - таймауты и пул соединений для внешних API:
// MOEX ISS и брокерского шлюза.
type HTTPClientConfig struct {
	ConnectTimeout time.Duration // установка TCP-соединения
	ReadTimeout    time.Duration // ожидание заголовков ответа
	TotalTimeout   time.Duration // весь запрос, включая чтение тела

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	TLSHandshakeTimeout time.Duration

	DisableKeepAlives bool
	KeepAliveInterval time.Duration
}

// DefaultHTTPClientConfig возвращает настройки по умолчанию.
// ISS отдает историю пачками до нескольких сотен килобайт, поэтому
// таймаут чтения заметно больше таймаута соединения. Пул рассчитан
// на два постоянных хоста: биржу и шлюз.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout:      5 * time.Second,
		ReadTimeout:         10 * time.Second,
		TotalTimeout:        30 * time.Second,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		MaxConnsPerHost:     16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// HTTPClient - клиент для внешних API поверх общего пула соединений.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient собирает клиент с настроенным транспортом.
// Дедлайн контекста запроса действует поверх таймаутов конфигурации:
// при дозвоне берется более ранний из них.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.KeepAliveInterval,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		DisableKeepAlives:     cfg.DisableKeepAlives,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: cfg.ReadTimeout,
	}
	return &HTTPClient{
		client: &http.Client{Transport: transport, Timeout: cfg.TotalTimeout},
	}
}

// Do выполняет запрос. Более короткие дедлайны задаются контекстом запроса.
func (hc *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return hc.client.Do(req)
}

// GetClient отдает базовый http.Client компонентам, которые принимают
// стандартный клиент (брокерский шлюз).
func (hc *HTTPClient) GetClient() *http.Client {
	return hc.client
}

// Close сбрасывает idle-соединения пула.
func (hc *HTTPClient) Close() {
	if t, ok := hc.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

var (
	globalClient     *HTTPClient
	globalClientOnce sync.Once
)

// GetGlobalHTTPClient возвращает общий клиент процесса: один пул
// соединений на все источники данных.
func GetGlobalHTTPClient() *HTTPClient {
	globalClientOnce.Do(func() {
		globalClient = NewHTTPClient(DefaultHTTPClientConfig())
	})
	return globalClient
}

// CloseGlobalClient сбрасывает пул общего клиента при остановке бота.
func CloseGlobalClient() {
	if globalClient != nil {
		globalClient.Close()
	}
}
