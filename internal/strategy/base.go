package strategy

import (
	"time"

	"moexbot/internal/indicators"
	"moexbot/internal/models"
	"moexbot/pkg/utils"
)

// tradeState хранит общее торговое состояние стратегии: позицию,
// цену входа, стоп-уровень и дедупликацию сигналов по фронту.
// Встраивается во все стратегии.
type tradeState struct {
	id         string
	kind       models.StrategyKind
	instrument string
	quantity   int

	series *models.PriceSeries

	position    int
	entryPrice  float64
	stopPrice   float64
	lastSignal  models.Signal
	pending     models.Signal
	tradesCount int
	lastTradeAt time.Time

	stopMultiple float64
	atrPeriod    int

	log *utils.Logger
}

func newTradeState(kind models.StrategyKind, id, instrument string, quantity int, opts Options) tradeState {
	return tradeState{
		id:           id,
		kind:         kind,
		instrument:   instrument,
		quantity:     quantity,
		stopMultiple: opts.StopATRMultiple,
		atrPeriod:    opts.atrPeriod(),
		log:          utils.L().WithStrategy(id).WithTicker(instrument),
	}
}

func (s *tradeState) ID() string                { return s.id }
func (s *tradeState) Kind() models.StrategyKind { return s.kind }
func (s *tradeState) Instrument() string        { return s.instrument }
func (s *tradeState) PairInstrument() string    { return "" }
func (s *tradeState) Quantity() int             { return s.quantity }
func (s *tradeState) Position() int             { return s.position }

func (s *tradeState) OnData(series *models.PriceSeries) {
	s.series = series
}

// SetPairData нейтрален для одиночных стратегий.
func (s *tradeState) SetPairData(series *models.PriceSeries) {}

// edgeTrigger фиксирует сигнал как ожидающий, если он действенный
// и отличается от последнего зафиксированного.
func (s *tradeState) edgeTrigger(current models.Signal) bool {
	if !current.IsActionable() || current == s.lastSignal {
		s.pending = ""
		return false
	}
	s.pending = current
	return true
}

// buildSingleIntent строит намерение одиночной стратегии по ожидающему
// сигналу. Количество всегда равно настроенному лоту: продажа в лонге
// закрывает позицию, продажа во флэте открывает шорт.
func (s *tradeState) buildSingleIntent() *models.Intent {
	if !s.pending.IsActionable() || s.series.Len() == 0 {
		return nil
	}

	side := models.OrderSideBuy
	if s.pending == models.SignalSell {
		side = models.OrderSideSell
	}
	closing := (s.pending == models.SignalSell && s.position > 0) ||
		(s.pending == models.SignalBuy && s.position < 0)

	return &models.Intent{
		StrategyID:     s.id,
		Instrument:     s.instrument,
		Action:         s.pending,
		Side:           side,
		Quantity:       s.quantity,
		ReferencePrice: s.series.LastClose(),
		Closing:        closing,
		Reason:         models.ReasonSignal,
		Timestamp:      time.Now(),
	}
}

// confirmSingle фиксирует исполнение намерения одиночной стратегии.
// Принудительное закрытие (стоп-лосс, ликвидация) обнуляет позицию и
// сбрасывает эпизод сигналов, чтобы следующее условие сработало заново.
func (s *tradeState) confirmSingle(intent *models.Intent, filled bool) {
	s.pending = ""
	if !filled {
		return
	}

	if intent.Forced() {
		s.position = 0
		s.entryPrice = 0
		s.stopPrice = 0
		s.lastSignal = ""
	} else {
		s.lastSignal = intent.Action
		switch intent.Action {
		case models.SignalBuy:
			s.position += intent.Quantity
		case models.SignalSell:
			s.position -= intent.Quantity
		}
		if s.position == 0 {
			s.entryPrice = 0
			s.stopPrice = 0
		} else {
			s.entryPrice = intent.ReferencePrice
			s.armStop()
		}
	}

	s.tradesCount++
	s.lastTradeAt = time.Now()
}

// armStop рассчитывает стоп-уровень от цены входа. Уровень фиксируется
// при открытии позиции и не пересчитывается, пока она открыта.
func (s *tradeState) armStop() {
	s.stopPrice = 0
	if s.stopMultiple <= 0 || s.position == 0 || s.entryPrice == 0 {
		return
	}

	atr := indicators.ATR(s.series.Highs(), s.series.Lows(), s.series.Closes(), s.atrPeriod)
	if atr <= 0 {
		return
	}

	if s.position > 0 {
		s.stopPrice = s.entryPrice - atr*s.stopMultiple
	} else {
		s.stopPrice = s.entryPrice + atr*s.stopMultiple
	}
	s.log.Debugw("stop level armed",
		"entry_price", s.entryPrice,
		"stop_price", s.stopPrice,
		"atr", atr,
	)
}

// CheckStopLoss проверяет пробой стоп-уровня последней ценой закрытия.
func (s *tradeState) CheckStopLoss() bool {
	if s.position == 0 || s.stopPrice == 0 || s.series.Len() == 0 {
		return false
	}

	price := s.series.LastClose()
	if s.position > 0 {
		return price <= s.stopPrice
	}
	return price >= s.stopPrice
}

// BuildStopIntent строит принудительное закрывающее намерение
// одиночной стратегии после пробоя стопа.
func (s *tradeState) BuildStopIntent() *models.Intent {
	if s.position == 0 || s.series.Len() == 0 {
		return nil
	}

	side := models.OrderSideSell
	if s.position < 0 {
		side = models.OrderSideBuy
	}
	action := models.SignalSell
	if s.position < 0 {
		action = models.SignalBuy
	}

	return &models.Intent{
		StrategyID:     s.id,
		Instrument:     s.instrument,
		Action:         action,
		Side:           side,
		Quantity:       abs(s.position),
		ReferencePrice: s.series.LastClose(),
		Closing:        true,
		Reason:         models.ReasonStopLoss,
		Timestamp:      time.Now(),
	}
}

func (s *tradeState) Reset() {
	s.position = 0
	s.entryPrice = 0
	s.stopPrice = 0
	s.lastSignal = ""
	s.pending = ""
}

func (s *tradeState) snapshotBase() Snapshot {
	return Snapshot{
		ID:            s.id,
		Kind:          s.kind,
		Instrument:    s.instrument,
		Quantity:      s.quantity,
		Position:      s.position,
		EntryPrice:    s.entryPrice,
		StopLossPrice: s.stopPrice,
		LastSignal:    s.lastSignal,
		TradesCount:   s.tradesCount,
		LastTradeTime: s.lastTradeAt,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
