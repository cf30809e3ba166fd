// Package retry - повторы сетевых операций с экспоненциальным backoff.
//
// Бот ходит в два внешних сервиса: MOEX ISS за котировками и
// брокерский шлюз с заявками. Оба временами отвечают 5xx или рвут
// соединение, и почти всегда повтор через короткую паузу проходит.
// Ошибки, по которым повтор бессмысленен (4xx шлюза, битый тикер),
// помечаются Permanent и прерывают цикл сразу.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config управляет циклом повторов.
//
// Пауза растёт экспоненциально:
//
//	delay = min(InitialDelay * Multiplier^attempt, MaxDelay) ± jitter
//
// Jitter разносит повторы по времени, чтобы при массовом сбое
// клиенты не долбили сервис синхронно.
type Config struct {
	// MaxRetries - общее число попыток, включая первую.
	// <= 0 - повторять до отмены контекста.
	MaxRetries int

	// InitialDelay - пауза после первой неудачи. Дефолт 100ms.
	InitialDelay time.Duration

	// MaxDelay - потолок паузы. Дефолт 30s.
	MaxDelay time.Duration

	// Multiplier - во сколько раз растёт пауза. Дефолт 2.0.
	Multiplier float64

	// JitterFactor - доля случайного разброса паузы, 0..1.
	JitterFactor float64

	// RetryIf решает, имеет ли смысл повторять после этой ошибки.
	// nil - повторяются все ошибки.
	RetryIf func(error) bool

	// OnRetry вызывается перед каждой паузой. Для логирования.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig - повторы для служебных запросов.
// 4 попытки с паузами 100ms, 200ms, 400ms.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// CloseoutConfig - повторы для принудительного закрытия позиций.
// Когда надо избавиться от непокрытой ноги парной сделки или
// ликвидировать портфель при останове, ждать секундами нельзя:
// 6 попыток с паузами от 50ms.
func CloseoutConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 6
	cfg.InitialDelay = 50 * time.Millisecond
	cfg.MaxDelay = 10 * time.Second
	return cfg
}

// NetworkConfig - повторы штатных походов в сеть: свечи из ISS,
// заявки в цикле стратегий. ISS после 5xx обычно оживает в пределах
// пары секунд: 4 попытки с паузами 1s, 2s, 4s.
func NetworkConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Second
	cfg.JitterFactor = 0.2
	return cfg
}

// applyDefaults подставляет дефолты вместо нулевых полей.
// MaxRetries не трогается: ноль там означает бесконечные повторы.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = def.Multiplier
	}
	c.JitterFactor = math.Min(math.Max(c.JitterFactor, 0), 1)
}

// backoffDelay возвращает паузу после попытки attempt (с нуля)
func (c *Config) backoffDelay(attempt int) time.Duration {
	base := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	base = math.Min(base, float64(c.MaxDelay))
	if c.JitterFactor > 0 {
		base *= 1 + c.JitterFactor*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(base, 0))
}

// Do выполняет operation с повторами до успеха, исчерпания попыток
// или отмены контекста. После неудачи всех попыток возвращается
// последняя ошибка.
//
//	err := retry.Do(ctx, func() error {
//	    return transport.Submit(ctx, order)
//	}, cfg)
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// DoWithResult - вариант Do для операций, возвращающих значение:
//
//	series, err := retry.DoWithResult(ctx, func() (*models.PriceSeries, error) {
//	    return source.GetHistory(ctx, ticker, days)
//	}, retry.NetworkConfig())
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.applyDefaults()

	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries {
			return zero, lastErr
		}

		// Контекст проверяется до вызова: после отмены не выполняется
		// даже первая попытка
		if ctxErr := ctx.Err(); ctxErr != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctxErr
		}

		result, opErr := operation()
		if opErr == nil {
			return result, nil
		}
		lastErr = opErr

		if cfg.RetryIf != nil && !cfg.RetryIf(opErr) {
			return zero, opErr
		}

		// После последней попытки пауза не нужна
		if cfg.MaxRetries > 0 && attempt == cfg.MaxRetries-1 {
			return zero, lastErr
		}

		if pauseErr := cfg.pause(ctx, attempt, opErr); pauseErr != nil {
			return zero, lastErr
		}
	}
}

// pause ждет backoff-паузу перед следующей попыткой, отдавая ошибку
// при отмене контекста во время ожидания.
func (c *Config) pause(ctx context.Context, attempt int, cause error) error {
	delay := c.backoffDelay(attempt)
	if c.OnRetry != nil {
		c.OnRetry(attempt+1, cause, delay)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================
// Классификация: повторять или нет
// ============================================================

// RetryableError - ошибка, которая сама знает, можно ли её повторять
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable классифицирует ошибку для Config.RetryIf.
//
// Не повторяются ошибки с Retryable() == false - например, заявки,
// отклонённые шлюзом по существу. Временные ошибки (Temporary() или
// без классификации вовсе - сетевые сбои, 5xx) повторяются.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var classified RetryableError
	if errors.As(err, &classified) {
		return classified.Retryable()
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return true
}

// RetryIfNotContext отсекает повторы после отмены контекста
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// PermanentError помечает ошибку как не подлежащую повтору
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string   { return e.Err.Error() }
func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// Permanent помечает ошибку как окончательную:
//
//	// 4xx от шлюза: заявка отклонена по существу, повтор даст то же
//	return retry.Permanent(venueErr)
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError помечает ошибку как заведомо временную
type TemporaryError struct{ Err error }

func (e *TemporaryError) Error() string   { return e.Err.Error() }
func (e *TemporaryError) Unwrap() error   { return e.Err }
func (e *TemporaryError) Retryable() bool { return true }
func (e *TemporaryError) Temporary() bool { return true }

// Temporary помечает ошибку как временную, даже если её тип выглядит
// окончательным
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}
