package models

import "time"

// Position представляет позицию портфеля по одному инструменту.
// Quantity подписанное: положительное для лонга, отрицательное для шорта.
type Position struct {
	Ticker        string    `json:"ticker"`
	Quantity      int       `json:"quantity"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	OpenedAt      time.Time `json:"opened_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsLong сообщает, является ли позиция длинной.
func (p Position) IsLong() bool {
	return p.Quantity > 0
}

// IsShort сообщает, является ли позиция короткой.
func (p Position) IsShort() bool {
	return p.Quantity < 0
}

// IsFlat сообщает, закрыта ли позиция.
func (p Position) IsFlat() bool {
	return p.Quantity == 0
}

// MarketValue возвращает текущую стоимость позиции по модулю.
func (p Position) MarketValue(price float64) float64 {
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	return float64(qty) * price
}

// UnrealizedPnl возвращает нереализованную прибыль по текущей цене.
// Для лонга: (цена - вход) x объем, для шорта знак количества
// обращает формулу.
func (p Position) UnrealizedPnl(price float64) float64 {
	return (price - p.AvgEntryPrice) * float64(p.Quantity)
}
