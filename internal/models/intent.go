package models

import "time"

// IntentReason объясняет происхождение торгового намерения.
type IntentReason string

// Причины намерений
const (
	ReasonSignal      IntentReason = "signal"      // обычный сигнал стратегии
	ReasonStopLoss    IntentReason = "stop_loss"   // срабатывание ATR стоп-лосса
	ReasonLiquidation IntentReason = "liquidation" // принудительное закрытие при остановке
)

// Intent представляет торговое намерение, прошедшее дедупликацию
// и готовое к проверке риск-контролем. Для парных стратегий заполнены
// Pair* поля, и исполнение требует двух ног. Side и PairSide уже
// разрешены стратегией в формат площадки (BUY/SELL), чтобы исполнитель
// не зависел от знаков позиций.
type Intent struct {
	StrategyID         string       `json:"strategy_id"`
	Instrument         string       `json:"instrument"`
	Action             Signal       `json:"action"`
	Side               string       `json:"side"`
	Quantity           int          `json:"quantity"`
	ReferencePrice     float64      `json:"reference_price"`
	PairInstrument     string       `json:"pair_instrument,omitempty"`
	PairSide           string       `json:"pair_side,omitempty"`
	PairQuantity       int          `json:"pair_quantity,omitempty"`
	PairReferencePrice float64      `json:"pair_reference_price,omitempty"`
	Closing            bool         `json:"closing"` // чистое закрытие позиции без новой экспозиции
	Reason             IntentReason `json:"reason"`
	Timestamp          time.Time    `json:"timestamp"`
}

// IsPair сообщает, требует ли намерение исполнения двух ног.
func (i *Intent) IsPair() bool {
	return i.PairInstrument != ""
}

// Forced сообщает, является ли намерение принудительным
// (стоп-лосс или ликвидация обходят дневной лимит и торговое окно).
func (i *Intent) Forced() bool {
	return i.Reason == ReasonStopLoss || i.Reason == ReasonLiquidation
}

// Legs возвращает количество ног намерения.
func (i *Intent) Legs() int {
	if i.IsPair() {
		return 2
	}
	return 1
}
