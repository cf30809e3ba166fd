package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"moexbot/internal/models"
	"moexbot/internal/portfolio"
	"moexbot/internal/strategy"
	"moexbot/pkg/utils"
)

const (
	// refreshWorkers ограничивает параллелизм запросов к ISS
	refreshWorkers = 4

	// recentBarsCount - сколько последних свечей догружать за цикл.
	// Хватает для обновления развивающегося дневного бара и догрузки
	// пропусков после коротких сбоев источника.
	recentBarsCount = 5
)

// ============================================================
// Торговый цикл
// ============================================================

// cycle выполняет один торговый цикл: обновление котировок → прогон
// стратегий → исполнение намерений → проверка стопов.
// execMu сериализует цикл с ручным закрытием, ликвидацией и снимками.
func (e *Engine) cycle(ctx context.Context) {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	start := time.Now()
	ok := true
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("cycle panic", "panic", r, "stack", string(debug.Stack()))
			e.cycleFailed(start, fmt.Errorf("panic: %v", r))
			return
		}
		if ok {
			e.cycleDone(start)
		}
	}()

	now := e.now().In(e.session.Location)
	if !e.session.Contains(now) || e.Paused() {
		ok = false
		RecordCycle("skipped", time.Since(start))
		return
	}

	updated, failed := e.refreshSeries(ctx)
	if updated == 0 && failed > 0 {
		ok = false
		e.cycleFailed(start, fmt.Errorf("market data refresh failed for all %d instruments", failed))
		return
	}

	e.feedStrategies()
	e.processIntents(ctx)
	e.scanStopLosses(ctx)
}

// cycleDone фиксирует успешный цикл и сбрасывает счетчик сбоев
func (e *Engine) cycleDone(start time.Time) {
	elapsed := time.Since(start)
	RecordCycle("ok", elapsed)
	UpdatePortfolio(e.ledger.OpenCount(), e.gate.DailyCount())

	e.mu.Lock()
	e.cycleCount++
	e.lastCycleAt = e.now()
	e.consecutiveFailures = 0
	count := e.cycleCount
	e.mu.Unlock()

	e.log.Debugw("cycle complete", "cycle", count, "elapsed", elapsed.String())
}

// cycleFailed фиксирует проваленный цикл. Серия подряд идущих сбоев
// переводит движок в ERROR: торговать на заведомо битых данных нельзя.
func (e *Engine) cycleFailed(start time.Time, err error) {
	RecordCycle("failed", time.Since(start))

	e.mu.Lock()
	e.cycleCount++
	e.lastCycleAt = e.now()
	e.consecutiveFailures++
	failures := e.consecutiveFailures
	e.mu.Unlock()

	e.log.Errorw("cycle failed", "failures", failures, "error", err)

	if e.cfg.MaxConsecutiveFailures > 0 && failures >= e.cfg.MaxConsecutiveFailures {
		e.trySetState(models.EngineError)
		e.notifyError("🛑 Engine stopped: %d consecutive cycle failures, last error: %v", failures, err)
		return
	}

	e.notifyError("Trading cycle failed (%d/%d): %v", failures, e.cfg.MaxConsecutiveFailures, err)

	// Передышка, чтобы не молотить сбоящий источник без пауз
	select {
	case <-time.After(e.cfg.CycleCooldown):
	case <-e.stopCh:
	}
}

// refreshSeries догружает свежие свечи по всем инструментам параллельно.
// Сбой одного инструмента не фатален: стратегия работает по последним
// известным данным, пропуск догоняется следующим циклом.
func (e *Engine) refreshSeries(ctx context.Context) (updated, failed int) {
	start := time.Now()

	e.seriesMu.Lock()
	defer e.seriesMu.Unlock()

	var okCount, failCount int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshWorkers)

	for _, ticker := range e.instruments {
		ticker := ticker
		series := e.series[ticker]
		g.Go(func() error {
			fresh, err := e.source.GetRecentBars(gctx, ticker, recentBarsCount)
			if err != nil {
				atomic.AddInt64(&failCount, 1)
				RecordFetchError(ticker)
				e.log.Warnw("bars refresh failed, keeping previous series", "ticker", ticker, "error", err)
				return nil
			}
			for _, bar := range fresh.Bars {
				series.Append(bar)
			}
			series.TrimTo(e.cfg.LookbackBars)
			atomic.AddInt64(&okCount, 1)
			return nil
		})
	}
	_ = g.Wait()

	RecordFetch(time.Since(start))
	return int(okCount), int(failCount)
}

// ============================================================
// Обработка намерений
// ============================================================

// processIntents прогоняет стратегии по свежим данным и исполняет
// возникшие намерения. Ровно одна проверка сигнала на стратегию за
// цикл. Отказ риск-гейта не потребляет сигнал: фронт повторится,
// пока условие держится.
func (e *Engine) processIntents(ctx context.Context) {
	for _, s := range e.strategies {
		if !s.HasOrderSignal() {
			continue
		}
		intent := s.BuildIntent()
		if intent == nil {
			continue
		}

		RecordSignal(intent.StrategyID, string(intent.Action))
		e.log.Infow("strategy signal",
			"strategy", intent.StrategyID,
			"action", string(intent.Action),
			"ticker", intent.Instrument,
			"quantity", intent.Quantity,
			"price", intent.ReferencePrice,
		)
		if e.hub != nil {
			e.hub.BroadcastSignal(intent)
		}
		e.notify(models.NewNotification(models.NotificationSignal, models.SeverityInfo,
			fmt.Sprintf("%s: %s %s %d lots @ %.2f",
				intent.StrategyID, intent.Action, intent.Instrument, intent.Quantity, intent.ReferencePrice)).
			WithStrategy(intent.StrategyID).WithTicker(intent.Instrument))

		e.submitIntent(ctx, s, intent)
	}
}

// submitIntent проводит намерение через риск-гейт и исполняет его
func (e *Engine) submitIntent(ctx context.Context, s strategy.Strategy, intent *models.Intent) {
	verdict := e.gate.Evaluate(intent)
	RecordVerdict(verdict.Approved, verdict.Reason)
	if !verdict.Approved {
		e.log.Infow("intent rejected",
			"strategy", intent.StrategyID,
			"ticker", intent.Instrument,
			"reason", verdict.Reason,
		)
		return
	}

	if intent.IsPair() {
		e.executePair(ctx, s, intent)
		return
	}
	e.executeSingle(ctx, s, intent)
}

// executeSingle исполняет одноногое намерение.
// Возвращает true, если заявка принята площадкой.
func (e *Engine) executeSingle(ctx context.Context, s strategy.Strategy, intent *models.Intent) bool {
	err := e.executor.Submit(ctx, intent.Instrument, intent.Side, intent.Quantity)
	RecordOrder(intent.Instrument, intent.Side, err)
	e.journalOrder(intent.StrategyID, intent.Instrument, intent.Side, intent.Quantity,
		intent.ReferencePrice, string(intent.Reason), err)

	if err != nil {
		e.log.Errorw("order submission failed",
			"strategy", intent.StrategyID,
			"ticker", intent.Instrument,
			"error", err,
		)
		s.Confirm(intent, false, false)
		return false
	}

	s.Confirm(intent, true, false)
	e.applyFill(intent.StrategyID, intent.Instrument, intent.Side, intent.Quantity,
		intent.ReferencePrice, intent.Reason)
	return true
}

// executePair исполняет парное намерение и разбирает итог по ногам.
// Стратегия подтверждается ФИНАЛЬНЫМ состоянием ног: скорректированная
// нога считается неисполненной и в журнал позиций не попадает.
func (e *Engine) executePair(ctx context.Context, s strategy.Strategy, intent *models.Intent) PairOutcome {
	outcome := e.executor.ExecutePair(ctx, intent)

	RecordOrder(intent.Instrument, intent.Side, outcome.MainErr)
	RecordOrder(intent.PairInstrument, intent.PairSide, outcome.PairErr)
	e.journalOrder(intent.StrategyID, intent.Instrument, intent.Side, intent.Quantity,
		intent.ReferencePrice, string(intent.Reason), outcome.MainErr)
	e.journalOrder(intent.StrategyID, intent.PairInstrument, intent.PairSide, intent.PairQuantity,
		intent.PairReferencePrice, string(intent.Reason), outcome.PairErr)

	if outcome.Partial() {
		e.handlePartialPair(intent, outcome)
	}

	s.Confirm(intent, outcome.MainFilled, outcome.PairFilled)

	if outcome.MainFilled {
		e.applyFill(intent.StrategyID, intent.Instrument, intent.Side, intent.Quantity,
			intent.ReferencePrice, intent.Reason)
	}
	if outcome.PairFilled {
		e.applyFill(intent.StrategyID, intent.PairInstrument, intent.PairSide, intent.PairQuantity,
			intent.PairReferencePrice, intent.Reason)
	}
	return outcome
}

// handlePartialPair журналирует корректировку и уведомляет о частичном
// исполнении парного намерения
func (e *Engine) handlePartialPair(intent *models.Intent, outcome PairOutcome) {
	filledTicker, filledSide, filledLots := intent.Instrument, intent.Side, intent.Quantity
	failedTicker, legErr := intent.PairInstrument, outcome.PairErr
	if outcome.MainErr != nil {
		filledTicker, filledSide, filledLots = intent.PairInstrument, intent.PairSide, intent.PairQuantity
		failedTicker, legErr = intent.Instrument, outcome.MainErr
	}

	var msg string
	severity := models.SeverityWarn
	switch {
	case intent.Closing:
		// Закрытие не корректируем: повторный вход в закрытую ногу
		// добавил бы экспозиции
		msg = fmt.Sprintf("⚠️ Pair close partial: %s closed, %s still open (%v)",
			filledTicker, failedTicker, legErr)
	case outcome.Corrected:
		e.journalOrder(intent.StrategyID, filledTicker, opposite(filledSide), filledLots,
			e.lastPrice(filledTicker), models.OrderReasonCorrective, nil)
		msg = fmt.Sprintf("⚠️ Pair entry partial: %s leg failed (%v), %s corrective close succeeded",
			failedTicker, legErr, filledTicker)
	default:
		e.journalOrder(intent.StrategyID, filledTicker, opposite(filledSide), filledLots,
			e.lastPrice(filledTicker), models.OrderReasonCorrective, outcome.CorrectiveErr)
		severity = models.SeverityError
		msg = fmt.Sprintf("🚨 Pair entry partial: %s leg failed (%v), corrective close of %s failed too: %v - manual intervention required",
			failedTicker, legErr, filledTicker, outcome.CorrectiveErr)
	}

	e.log.Warnw("partial pair execution",
		"strategy", intent.StrategyID,
		"filled", filledTicker,
		"failed", failedTicker,
		"corrected", outcome.Corrected,
	)
	e.notify(models.NewNotification(models.NotificationLegFail, severity, msg).
		WithStrategy(intent.StrategyID).WithTicker(intent.Instrument))
}

// ============================================================
// Журналирование исполнений
// ============================================================

// applyFill проводит подтвержденное исполнение через журнал позиций,
// рассылает обновление и при закрытии пишет сделку в статистику
func (e *Engine) applyFill(strategyID, ticker, side string, lots int, price float64, reason models.IntentReason) {
	delta := lots
	if side == models.OrderSideSell {
		delta = -lots
	}

	prev, _ := e.ledger.Position(ticker)
	res := e.ledger.ApplyFill(ticker, delta, price)

	if e.hub != nil {
		if pos, ok := e.ledger.Position(ticker); ok {
			e.hub.BroadcastPositionUpdate(pos)
		} else {
			e.hub.BroadcastPositionUpdate(models.Position{Ticker: ticker})
		}
	}

	// OPEN/CLOSE уведомления только для обычных сигналов: для стопов
	// и ликвидаций событие уже создано в точке срабатывания
	if reason == models.ReasonSignal {
		if res.Opened {
			e.notify(models.NewNotification(models.NotificationOpen, models.SeverityInfo,
				fmt.Sprintf("Opened %s: %+d lots @ %.2f", ticker, res.Quantity, price)).
				WithStrategy(strategyID).WithTicker(ticker))
		}
		if res.ClosedQuantity > 0 {
			e.notify(models.NewNotification(models.NotificationClose, models.SeverityInfo,
				fmt.Sprintf("Closed %s: %d lots, PnL %.2f", ticker, res.ClosedQuantity, res.RealizedPnl)).
				WithStrategy(strategyID).WithTicker(ticker))
		}
	}

	if res.ClosedQuantity > 0 {
		e.journalTrade(strategyID, ticker, prev, res, price, reason == models.ReasonStopLoss)
	}
}

// journalTrade пишет закрытый раунд-трип в статистику.
// Знак количества берется от закрытой позиции: закрытие лонга дает
// положительное количество, шорта - отрицательное.
func (e *Engine) journalTrade(strategyID, ticker string, prev models.Position, res portfolio.FillResult, exitPrice float64, wasStop bool) {
	qty := res.ClosedQuantity
	if prev.Quantity < 0 {
		qty = -qty
	}
	e.journalTradeRow(&models.Trade{
		StrategyID:  strategyID,
		Ticker:      ticker,
		Quantity:    qty,
		EntryPrice:  prev.AvgEntryPrice,
		ExitPrice:   exitPrice,
		Pnl:         res.RealizedPnl,
		EntryTime:   res.OpenedAt,
		ExitTime:    e.now(),
		WasStopLoss: wasStop,
	})
}

func (e *Engine) journalTradeRow(trade *models.Trade) {
	if e.stats == nil {
		return
	}
	if err := e.stats.RecordTrade(trade); err != nil {
		e.log.Warnw("trade journaling failed", "ticker", trade.Ticker, "error", err)
	}
	e.broadcastStats()
}

// broadcastStats рассылает клиентам дневную статистику после сделки
func (e *Engine) broadcastStats() {
	if e.hub == nil || e.stats == nil {
		return
	}
	stats, err := e.stats.GetStats(utils.PeriodDay)
	if err != nil {
		e.log.Warnw("stats query failed", "error", err)
		return
	}
	e.hub.BroadcastStatsUpdate(stats)
}

// journalOrder пишет запись журнала ордеров и рассылает ее клиентам
func (e *Engine) journalOrder(strategyID, ticker, side string, lots int, price float64, reason string, submitErr error) {
	record := &models.OrderRecord{
		StrategyID: strategyID,
		Ticker:     ticker,
		Side:       side,
		Lots:       lots,
		Price:      price,
		Status:     models.OrderStatusSubmitted,
		Reason:     reason,
		CreatedAt:  e.now(),
	}
	if submitErr != nil {
		record.Status = models.OrderStatusRejected
		record.ErrorMessage = submitErr.Error()
	}

	if e.orders != nil {
		if err := e.orders.RecordOrder(record); err != nil {
			e.log.Warnw("order journaling failed", "ticker", ticker, "error", err)
		}
	}
	if e.hub != nil {
		e.hub.BroadcastOrderResult(record)
	}
}

// ============================================================
// Стоп-лоссы и ликвидация
// ============================================================

// scanStopLosses проверяет стоп-уровни и принудительно закрывает
// пробитые позиции. Стоп обходит дневной лимит и торговое окно.
func (e *Engine) scanStopLosses(ctx context.Context) {
	for _, s := range e.strategies {
		if !s.CheckStopLoss() {
			continue
		}
		intent := s.BuildStopIntent()
		if intent == nil {
			continue
		}

		RecordStopLoss(intent.Instrument)
		e.log.Warnw("stop loss triggered",
			"strategy", intent.StrategyID,
			"ticker", intent.Instrument,
			"price", intent.ReferencePrice,
		)
		e.notify(models.NewNotification(models.NotificationStopLoss, models.SeverityWarn,
			fmt.Sprintf("🛑 Stop loss: closing %s @ %.2f", intent.Instrument, intent.ReferencePrice)).
			WithStrategy(intent.StrategyID).WithTicker(intent.Instrument))

		verdict := e.gate.Evaluate(intent)
		RecordVerdict(verdict.Approved, verdict.Reason)
		if !verdict.Approved {
			continue
		}

		if intent.IsPair() {
			e.executePair(ctx, s, intent)
		} else {
			e.executeSingle(ctx, s, intent)
		}
	}
}

// shutdown ликвидирует позиции и переводит движок в STOPPED.
// Вызывается из Run при отмене контекста, запросе Stop или
// наступлении терминального окна перед закрытием сессии.
func (e *Engine) shutdown() {
	if !e.trySetState(models.EngineClosing) {
		return // уже остановлен или в ошибке
	}

	e.execMu.Lock()
	defer e.execMu.Unlock()

	e.log.Infow("closing session", "open_positions", e.ledger.OpenCount())

	e.liquidateAll()

	e.gate.ResetDailyCounters()
	for _, s := range e.strategies {
		s.Reset()
	}

	e.trySetState(models.EngineStopped)
	UpdatePortfolio(e.ledger.OpenCount(), e.gate.DailyCount())

	e.mu.RLock()
	cycles := e.cycleCount
	e.mu.RUnlock()
	e.log.Infow("engine stopped", "cycles", cycles)
}

// liquidateAll закрывает позиции всех стратегий рыночными заявками.
// Контекст свежий: исходный к этому моменту может быть уже отменен,
// дедлайн каждой отправки ставит исполнитель.
func (e *Engine) liquidateAll() {
	ctx := context.Background()

	for _, s := range e.strategies {
		intent := s.BuildStopIntent()
		if intent == nil {
			continue // позиции нет
		}
		intent.Reason = models.ReasonLiquidation

		verdict := e.gate.Evaluate(intent)
		RecordVerdict(verdict.Approved, verdict.Reason)
		if !verdict.Approved {
			continue
		}

		var failed bool
		if intent.IsPair() {
			outcome := e.executePair(ctx, s, intent)
			failed = outcome.MainErr != nil || outcome.PairErr != nil
		} else {
			failed = !e.executeSingle(ctx, s, intent)
		}

		if failed {
			e.notify(models.NewNotification(models.NotificationLiquidation, models.SeverityError,
				fmt.Sprintf("🚨 Liquidation failed for %s: position may remain open", intent.StrategyID)).
				WithStrategy(intent.StrategyID).WithTicker(intent.Instrument))
			continue
		}
		e.notify(models.NewNotification(models.NotificationLiquidation, models.SeverityInfo,
			fmt.Sprintf("Session close: %s positions liquidated", intent.StrategyID)).
			WithStrategy(intent.StrategyID).WithTicker(intent.Instrument))
	}
}
