package models

import "time"

// Trade - завершенный раунд-трип для журнала и статистики.
// Quantity со знаком: положительное для длинной позиции, отрицательное для короткой.
type Trade struct {
	ID          int       `json:"id" db:"id"`
	StrategyID  string    `json:"strategy_id" db:"strategy_id"`
	Ticker      string    `json:"ticker" db:"ticker"`
	Quantity    int       `json:"quantity" db:"quantity"`
	EntryPrice  float64   `json:"entry_price" db:"entry_price"`
	ExitPrice   float64   `json:"exit_price" db:"exit_price"`
	Pnl         float64   `json:"pnl" db:"pnl"`
	EntryTime   time.Time `json:"entry_time" db:"entry_time"`
	ExitTime    time.Time `json:"exit_time" db:"exit_time"`
	WasStopLoss bool      `json:"was_stop_loss" db:"was_stop_loss"`
}

// Stats содержит агрегированную статистику торговли.
type Stats struct {
	TotalTrades   int          `json:"total_trades"`
	WinningTrades int          `json:"winning_trades"`
	LosingTrades  int          `json:"losing_trades"`
	WinRate       float64      `json:"win_rate"`
	TotalPnl      float64      `json:"total_pnl"`
	AveragePnl    float64      `json:"average_pnl"`
	BestTrade     float64      `json:"best_trade"`
	WorstTrade    float64      `json:"worst_trade"`
	StopLossCount int          `json:"stop_loss_count"`
	ByTicker      []TickerStat `json:"by_ticker,omitempty"`
}

// TickerStat содержит статистику по одному инструменту.
type TickerStat struct {
	Ticker   string  `json:"ticker"`
	Trades   int     `json:"trades"`
	TotalPnl float64 `json:"total_pnl"`
	WinRate  float64 `json:"win_rate"`
}
