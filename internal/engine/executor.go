package engine

import (
	"context"
	"time"

	"moexbot/internal/broker"
	"moexbot/internal/models"
	"moexbot/pkg/retry"
	"moexbot/pkg/utils"
)

// OrderExecutor - исполнитель заявок поверх транспорта брокера
//
// Одиночные заявки отправляются с повторами и таймаутом. Парные
// отправляются ПАРАЛЛЕЛЬНО: общее время = max(нога_A, нога_B),
// а не сумма. При частичном входе исполненная нога закрывается
// корректирующей заявкой, чтобы не держать непокрытую позицию.
type OrderExecutor struct {
	transport broker.OrderTransport
	timeout   time.Duration
	retryCfg  retry.Config

	// Корректирующие заявки закрывают непокрытую ногу - повторы
	// чаще и плотнее, чем у обычных отправок
	correctiveCfg retry.Config
}

// PairOutcome - итог исполнения парного намерения
type PairOutcome struct {
	MainErr error // nil = заявка главной ноги принята
	PairErr error // nil = заявка парной ноги принята

	// Финальное состояние ног после возможной корректировки
	MainFilled bool
	PairFilled bool

	// Corrected = исполненная нога частичного входа закрыта обратно
	Corrected     bool
	CorrectiveErr error
}

// Partial сообщает, что исполнилась ровно одна нога из двух.
func (o PairOutcome) Partial() bool {
	return (o.MainErr == nil) != (o.PairErr == nil)
}

// NewOrderExecutor создаёт исполнитель
func NewOrderExecutor(transport broker.OrderTransport, timeout time.Duration, maxRetries int) *OrderExecutor {
	cfg := retry.NetworkConfig()
	if maxRetries > 0 {
		cfg.MaxRetries = maxRetries
	}
	cfg.RetryIf = retry.IsRetryable // 4xx шлюза помечены как permanent
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		utils.Warn("order submission retry",
			utils.Int("attempt", attempt),
			utils.Err(err),
			utils.String("delay", delay.String()),
		)
	}

	corrective := retry.CloseoutConfig()
	corrective.RetryIf = cfg.RetryIf
	corrective.OnRetry = cfg.OnRetry

	return &OrderExecutor{
		transport:     transport,
		timeout:       timeout,
		retryCfg:      cfg,
		correctiveCfg: corrective,
	}
}

// Submit отправляет одиночную заявку с повторами и таймаутом.
func (oe *OrderExecutor) Submit(ctx context.Context, ticker, side string, lots int) error {
	ctx, cancel := context.WithTimeout(ctx, oe.timeout)
	defer cancel()

	order := broker.Order{Ticker: ticker, Side: side, Lots: lots}
	return retry.Do(ctx, func() error {
		return oe.transport.Submit(ctx, order)
	}, oe.retryCfg)
}

// ExecutePair исполняет парное намерение ПАРАЛЛЕЛЬНО на обеих ногах
//
// Тайминги:
// - Отправка заявок: ~0ms (мгновенный запуск goroutines)
// - Ожидание ответа: max(latency_A, latency_B), а не сумма
func (oe *OrderExecutor) ExecutePair(ctx context.Context, intent *models.Intent) PairOutcome {
	ctx, cancel := context.WithTimeout(ctx, oe.timeout)
	defer cancel()

	// Каналы для результатов
	mainCh := make(chan error, 1)
	pairCh := make(chan error, 1)

	// ПАРАЛЛЕЛЬНАЯ отправка ног
	go func() {
		order := broker.Order{Ticker: intent.Instrument, Side: intent.Side, Lots: intent.Quantity}
		mainCh <- retry.Do(ctx, func() error {
			return oe.transport.Submit(ctx, order)
		}, oe.retryCfg)
	}()

	go func() {
		order := broker.Order{Ticker: intent.PairInstrument, Side: intent.PairSide, Lots: intent.PairQuantity}
		pairCh <- retry.Do(ctx, func() error {
			return oe.transport.Submit(ctx, order)
		}, oe.retryCfg)
	}()

	// Параллельное ожидание обоих результатов
	var mainErr, pairErr error
	var mainReceived, pairReceived bool

	for !mainReceived || !pairReceived {
		select {
		case mainErr = <-mainCh:
			mainReceived = true
		case pairErr = <-pairCh:
			pairReceived = true
		case <-ctx.Done():
			// Дедлайн: забираем уже доставленные результаты без
			// ожидания, иначе исполненная нога останется незамеченной.
			if !mainReceived {
				select {
				case mainErr = <-mainCh:
				default:
					mainErr = ctx.Err()
				}
				mainReceived = true
			}
			if !pairReceived {
				select {
				case pairErr = <-pairCh:
				default:
					pairErr = ctx.Err()
				}
				pairReceived = true
			}
		}
	}

	return oe.resolvePair(intent, mainErr, pairErr)
}

// resolvePair обрабатывает результаты параллельного исполнения
func (oe *OrderExecutor) resolvePair(intent *models.Intent, mainErr, pairErr error) PairOutcome {
	outcome := PairOutcome{
		MainErr:    mainErr,
		PairErr:    pairErr,
		MainFilled: mainErr == nil,
		PairFilled: pairErr == nil,
	}

	// Обе ноги в одном состоянии - корректировать нечего
	if outcome.MainFilled == outcome.PairFilled {
		return outcome
	}

	// Частичное закрытие не корректируем: повторное открытие уже
	// закрытой ноги добавило бы риска, а не убрало его
	if intent.Closing {
		return outcome
	}

	// Частичный вход - закрываем исполненную ногу
	ticker, side, lots := intent.Instrument, intent.Side, intent.Quantity
	if outcome.PairFilled {
		ticker, side, lots = intent.PairInstrument, intent.PairSide, intent.PairQuantity
	}

	if err := oe.correctiveClose(ticker, opposite(side), lots); err != nil {
		outcome.CorrectiveErr = err
		return outcome
	}

	outcome.Corrected = true
	if outcome.MainFilled {
		outcome.MainFilled = false
	} else {
		outcome.PairFilled = false
	}
	return outcome
}

// correctiveClose закрывает исполненную ногу частичного входа.
// Исходный контекст к этому моменту может быть отменен, поэтому
// корректировка идет со свежим дедлайном.
func (oe *OrderExecutor) correctiveClose(ticker, side string, lots int) error {
	ctx, cancel := context.WithTimeout(context.Background(), oe.timeout)
	defer cancel()

	order := broker.Order{Ticker: ticker, Side: side, Lots: lots}
	return retry.Do(ctx, func() error {
		return oe.transport.Submit(ctx, order)
	}, oe.correctiveCfg)
}

// opposite возвращает противоположную сторону заявки
func opposite(side string) string {
	if side == models.OrderSideBuy {
		return models.OrderSideSell
	}
	return models.OrderSideBuy
}
