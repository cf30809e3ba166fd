// Package strategy реализует торговые стратегии бота: машины состояний,
// которые поглощают свечные серии и выдают торговые намерения.
// Сигналы срабатывают по фронту: повторная оценка неизменного условия
// не порождает повторного намерения.
package strategy

import (
	"time"

	"moexbot/internal/models"
)

// Strategy определяет контракт торговой стратегии для движка.
//
// Порядок вызовов в одном цикле: OnData (и SetPairData для парных),
// затем ровно один HasOrderSignal. При true движок строит намерение
// через BuildIntent, прогоняет его через риск-контроль и исполнение,
// и фиксирует фактический результат через Confirm. Отклоненное или
// неисполненное намерение не фиксируется, и стратегия предложит его
// снова, пока условие сохраняется.
type Strategy interface {
	ID() string
	Kind() models.StrategyKind
	Instrument() string
	// PairInstrument возвращает тикер второй ноги или пустую строку
	// для одиночных стратегий.
	PairInstrument() string
	Quantity() int

	// OnData передает стратегии актуальную серию основного инструмента.
	OnData(series *models.PriceSeries)
	// SetPairData передает серию парного инструмента (no-op для одиночных).
	SetPairData(series *models.PriceSeries)

	// Evaluate вычисляет текущий сигнал по имеющимся данным.
	Evaluate() models.Signal
	// HasOrderSignal сообщает, появился ли новый сигнал, отличный от
	// последнего зафиксированного (триггер по фронту).
	HasOrderSignal() bool
	// BuildIntent строит намерение по ожидающему сигналу. Состояние
	// стратегии не меняется до подтверждения через Confirm.
	BuildIntent() *models.Intent

	// Confirm фиксирует итог исполнения намерения. mainFilled и
	// pairFilled отражают фактическое финальное состояние ног после
	// возможного корректирующего закрытия. Полный провал не потребляет
	// сигнал.
	Confirm(intent *models.Intent, mainFilled, pairFilled bool)

	// Position возвращает текущую позицию стратегии в лотах
	// (положительная для лонга).
	Position() int
	// CheckStopLoss проверяет пробой стоп-уровня по последней цене.
	CheckStopLoss() bool
	// BuildStopIntent строит принудительное закрывающее намерение
	// после пробоя стопа.
	BuildStopIntent() *models.Intent

	// Reset сбрасывает торговое состояние стратегии.
	Reset()
	// Snapshot возвращает копию состояния для API и трансляции.
	Snapshot() Snapshot
}

// Options содержит общие настройки исполнения, одинаковые для всех
// стратегий сессии.
type Options struct {
	// StopATRMultiple задает множитель ATR для стоп-лосса.
	// Ноль отключает стоп-уровни.
	StopATRMultiple float64
	// ATRPeriod задает период ATR для расчета стопа (по умолчанию 14).
	ATRPeriod int
}

const defaultATRPeriod = 14

func (o Options) atrPeriod() int {
	if o.ATRPeriod > 0 {
		return o.ATRPeriod
	}
	return defaultATRPeriod
}

// Snapshot содержит копию состояния стратегии на момент среза.
type Snapshot struct {
	ID             string              `json:"id"`
	Kind           models.StrategyKind `json:"kind"`
	Instrument     string              `json:"instrument"`
	PairInstrument string              `json:"pair_instrument,omitempty"`
	Quantity       int                 `json:"quantity"`
	Position       int                 `json:"position"`
	PairPosition   int                 `json:"pair_position,omitempty"`
	EntryPrice     float64             `json:"entry_price,omitempty"`
	StopLossPrice  float64             `json:"stop_loss_price,omitempty"`
	LastSignal     models.Signal       `json:"last_signal,omitempty"`
	TradesCount    int                 `json:"trades_count"`
	LastTradeTime  time.Time           `json:"last_trade_time"`
	HedgeRatio     float64             `json:"hedge_ratio,omitempty"`
	ZScore         float64             `json:"z_score,omitempty"`
	SpreadMean     float64             `json:"spread_mean,omitempty"`
	SpreadStd      float64             `json:"spread_std,omitempty"`
}
