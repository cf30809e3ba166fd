// Package ratelimit ограничивает частоту исходящих HTTP-запросов.
//
// У MOEX ISS нет официального лимита для анонимного доступа, но при
// устойчивом потоке выше ~10 запросов в секунду сервер начинает
// отвечать 403. Брокерский шлюз жёстче: превышение потока заявок
// приводит к отклонению с штрафной задержкой. Обе квоты выражаются
// token bucket'ом: ведро ёмкостью burst пополняется со скоростью
// rate токенов в секунду, каждый запрос забирает один токен.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultRate - консервативная частота для анонимного доступа к ISS
const DefaultRate = 5

// RateLimiter - token bucket с блокирующим Wait и неблокирующим Allow.
//
// Квоты бота:
//   - MOEX ISS (котировки, свечи): 5 req/sec, burst 10 - скринер на
//     старте опрашивает всю вселенную и выбирает burst целиком
//   - брокерский шлюз (заявки): 2 req/sec, burst 5 - хватает на обе
//     ноги парной сделки плюс принудительное закрытие
//
// Использование:
//
//	limiter := ratelimit.NewRateLimiter(5, 10)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // контекст отменён раньше, чем освободился токен
//	}
type RateLimiter struct {
	mu        sync.Mutex
	perSec    float64   // скорость пополнения, токенов в секунду
	capacity  float64   // ёмкость ведра
	available float64   // текущий остаток, может быть дробным
	refilled  time.Time // момент последнего пополнения
}

// NewRateLimiter создаёт ведро с полным запасом токенов.
// rate <= 0 трактуется как DefaultRate, burst < rate - как 2*rate.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = DefaultRate
	}
	if burst < rate {
		burst = rate * 2
	}
	return &RateLimiter{
		perSec:    rate,
		capacity:  burst,
		available: burst,
		refilled:  time.Now(),
	}
}

// advance пополняет ведро пропорционально прошедшему времени.
// Вызывается под mu.
func (rl *RateLimiter) advance(now time.Time) {
	elapsed := now.Sub(rl.refilled).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.available += elapsed * rl.perSec
	if rl.available > rl.capacity {
		rl.available = rl.capacity
	}
	rl.refilled = now
}

// take пытается забрать токен. Возвращает 0 при успехе, иначе время,
// через которое токен появится.
func (rl *RateLimiter) take() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.advance(time.Now())
	if rl.available >= 1 {
		rl.available--
		return 0
	}
	return time.Duration((1 - rl.available) / rl.perSec * float64(time.Second))
}

// Wait блокируется, пока не получит токен или контекст не отменится.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		delay := rl.take()
		if delay == 0 {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			// Токен мог забрать конкурент - пробуем ещё раз
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Allow забирает токен без ожидания.
// false = квота исчерпана, запрос нужно отложить.
func (rl *RateLimiter) Allow() bool {
	return rl.take() == 0
}

// Tokens возвращает текущий остаток токенов. Для метрик и отладки.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.advance(time.Now())
	return rl.available
}

// Rate возвращает скорость пополнения (токенов в секунду).
func (rl *RateLimiter) Rate() float64 {
	return rl.perSec
}

// Burst возвращает ёмкость ведра.
func (rl *RateLimiter) Burst() float64 {
	return rl.capacity
}
