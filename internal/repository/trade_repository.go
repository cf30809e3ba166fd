package repository

import (
	"database/sql"
	"time"

	"moexbot/internal/models"
)

// tradeColumns - порядок колонок, общий для всех SELECT и для scanTrade.
const tradeColumns = "id, strategy_id, ticker, quantity, entry_price, exit_price, pnl, entry_time, exit_time, was_stop_loss"

// TradeRepository - журнал завершенных сделок. Одна строка на
// раунд-трип: вход и выход по позиции вместе с итоговым PnL.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает репозиторий сделок.
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

func scanTrade(s scanner) (*models.Trade, error) {
	var tr models.Trade
	err := s.Scan(
		&tr.ID,
		&tr.StrategyID,
		&tr.Ticker,
		&tr.Quantity,
		&tr.EntryPrice,
		&tr.ExitPrice,
		&tr.Pnl,
		&tr.EntryTime,
		&tr.ExitTime,
		&tr.WasStopLoss,
	)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]*models.Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

// Create записывает завершенную сделку и проставляет ID.
func (r *TradeRepository) Create(trade *models.Trade) error {
	return r.db.QueryRow(
		"INSERT INTO trades (strategy_id, ticker, quantity, entry_price, exit_price, pnl, entry_time, exit_time, was_stop_loss) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id",
		trade.StrategyID, trade.Ticker, trade.Quantity, trade.EntryPrice, trade.ExitPrice,
		trade.Pnl, trade.EntryTime, trade.ExitTime, trade.WasStopLoss,
	).Scan(&trade.ID)
}

// GetRecent возвращает последние сделки, новые первыми.
func (r *TradeRepository) GetRecent(limit int) ([]*models.Trade, error) {
	return r.queryTrades(
		"SELECT "+tradeColumns+" FROM trades ORDER BY exit_time DESC LIMIT $1", limit,
	)
}

// GetByStrategy возвращает сделки одной стратегии.
func (r *TradeRepository) GetByStrategy(strategyID string, limit int) ([]*models.Trade, error) {
	return r.queryTrades(
		"SELECT "+tradeColumns+" FROM trades WHERE strategy_id = $1 ORDER BY exit_time DESC LIMIT $2",
		strategyID, limit,
	)
}

// GetByTicker возвращает сделки по инструменту.
func (r *TradeRepository) GetByTicker(ticker string, limit int) ([]*models.Trade, error) {
	return r.queryTrades(
		"SELECT "+tradeColumns+" FROM trades WHERE ticker = $1 ORDER BY exit_time DESC LIMIT $2",
		ticker, limit,
	)
}

// GetStats считает агрегированную статистику по сделкам.
// Нулевое значение since означает статистику за все время.
func (r *TradeRepository) GetStats(since time.Time) (*models.Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE pnl > 0),
			COUNT(*) FILTER (WHERE pnl < 0),
			COALESCE(SUM(pnl), 0),
			COALESCE(AVG(pnl), 0),
			COALESCE(MAX(pnl), 0),
			COALESCE(MIN(pnl), 0),
			COUNT(*) FILTER (WHERE was_stop_loss)
		FROM trades`

	var args []interface{}
	if !since.IsZero() {
		query += ` WHERE exit_time >= $1`
		args = append(args, since)
	}

	stats := &models.Stats{}
	err := r.db.QueryRow(query, args...).Scan(
		&stats.TotalTrades,
		&stats.WinningTrades,
		&stats.LosingTrades,
		&stats.TotalPnl,
		&stats.AveragePnl,
		&stats.BestTrade,
		&stats.WorstTrade,
		&stats.StopLossCount,
	)
	if err != nil {
		return nil, err
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	}
	return stats, nil
}

// TopTickers возвращает инструменты, отсортированные по суммарному PnL.
// Нулевое значение since означает статистику за все время.
func (r *TradeRepository) TopTickers(since time.Time, limit int) ([]models.TickerStat, error) {
	base := `
		SELECT ticker, COUNT(*), COALESCE(SUM(pnl), 0), COUNT(*) FILTER (WHERE pnl > 0)
		FROM trades`
	tail := `
		GROUP BY ticker
		ORDER BY SUM(pnl) DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if since.IsZero() {
		rows, err = r.db.Query(base+tail+` LIMIT $1`, limit)
	} else {
		rows, err = r.db.Query(base+` WHERE exit_time >= $1`+tail+` LIMIT $2`, since, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.TickerStat
	for rows.Next() {
		var stat models.TickerStat
		var wins int
		if err := rows.Scan(&stat.Ticker, &stat.Trades, &stat.TotalPnl, &wins); err != nil {
			return nil, err
		}
		if stat.Trades > 0 {
			stat.WinRate = float64(wins) / float64(stat.Trades) * 100
		}
		result = append(result, stat)
	}
	return result, rows.Err()
}

// DeleteOlderThan удаляет сделки, закрытые раньше отметки, и возвращает их число.
func (r *TradeRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM trades WHERE exit_time < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count возвращает общее число сделок в журнале.
func (r *TradeRepository) Count() (int, error) {
	return queryCount(r.db, "SELECT COUNT(*) FROM trades")
}
