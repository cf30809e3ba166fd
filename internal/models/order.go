package models

import "time"

// OrderRecord - запись журнала заявок.
// Одна запись на одну ногу: парное намерение порождает две записи.
type OrderRecord struct {
	ID           int       `json:"id" db:"id"`
	StrategyID   string    `json:"strategy_id" db:"strategy_id"`
	Ticker       string    `json:"ticker" db:"ticker"`
	Side         string    `json:"side" db:"side"` // BUY, SELL
	Lots         int       `json:"lots" db:"lots"`
	Price        float64   `json:"price" db:"price"` // референсная цена на момент отправки
	Status       string    `json:"status" db:"status"`
	Reason       string    `json:"reason" db:"reason"` // signal, stop_loss, liquidation, corrective
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Итоговые статусы заявки
const (
	OrderStatusSubmitted = "submitted" // принят площадкой
	OrderStatusRejected  = "rejected"  // отклонен площадкой или транспортом
)

// Стороны ордера в формате площадки
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

// Причина корректирующего ордера при частичном исполнении пары
const OrderReasonCorrective = "corrective"
