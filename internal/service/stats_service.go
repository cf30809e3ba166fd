package service

import (
	"strings"
	"time"

	"moexbot/internal/models"
	"moexbot/pkg/utils"
)

// Лимит топа инструментов по умолчанию
const defaultTopTickers = 5

// StatsBroadcaster рассылает пересчитанную статистику подписчикам WebSocket
type StatsBroadcaster interface {
	BroadcastStatsUpdate(stats *models.Stats)
}

// StatsService считает статистику торговли поверх журнала сделок:
// агрегаты за период, топ инструментов по PnL, история с фильтрами.
// Запись раунд-трипа (RecordTrade) дополнительно рассылает свежий
// statsUpdate, чтобы фронтенд не опрашивал API.
type StatsService struct {
	tradeRepo TradeRepositoryInterface
	hub       StatsBroadcaster
	now       func() time.Time
}

// NewStatsService собирает сервис поверх репозитория сделок.
func NewStatsService(tradeRepo TradeRepositoryInterface) *StatsService {
	return &StatsService{
		tradeRepo: tradeRepo,
		now:       time.Now,
	}
}

// SetWebSocketHub подключает live-рассылку статистики. Без hub запись
// сделок работает, но statsUpdate никуда не уходит.
func (s *StatsService) SetWebSocketHub(hub StatsBroadcaster) {
	s.hub = hub
}

// GetStats возвращает агрегированную статистику за период.
//
// Периоды: day, week, month, all.
// Включает win rate, суммарный и средний PnL, лучшую и худшую сделку,
// количество стоп-лоссов и топ инструментов по PnL.
func (s *StatsService) GetStats(period utils.PeriodType) (*models.Stats, error) {
	since := utils.GetPeriodStartFrom(period, s.now())

	stats, err := s.tradeRepo.GetStats(since)
	if err != nil {
		return nil, err
	}

	top, err := s.tradeRepo.TopTickers(since, defaultTopTickers)
	if err != nil {
		return nil, err
	}
	stats.ByTicker = top

	return stats, nil
}

// GetTopTickers возвращает топ инструментов по суммарному PnL за период.
func (s *StatsService) GetTopTickers(period utils.PeriodType, limit int) ([]models.TickerStat, error) {
	switch {
	case limit <= 0:
		limit = defaultTopTickers
	case limit > 50:
		limit = 50
	}

	since := utils.GetPeriodStartFrom(period, s.now())

	top, err := s.tradeRepo.TopTickers(since, limit)
	if err != nil {
		return nil, err
	}
	if top == nil {
		top = []models.TickerStat{}
	}

	return top, nil
}

// GetTrades возвращает историю сделок с фильтрацией.
//
// Фильтр по стратегии имеет приоритет над фильтром по инструменту.
func (s *StatsService) GetTrades(strategyID, ticker string, limit int) ([]*models.Trade, error) {
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}

	var (
		trades []*models.Trade
		err    error
	)

	switch {
	case strategyID != "":
		trades, err = s.tradeRepo.GetByStrategy(strategyID, limit)
	case ticker != "":
		trades, err = s.tradeRepo.GetByTicker(strings.ToUpper(strings.TrimSpace(ticker)), limit)
	default:
		trades, err = s.tradeRepo.GetRecent(limit)
	}

	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []*models.Trade{}
	}

	return trades, nil
}

// RecordTrade записывает завершенный раунд-трип. Вызывается движком
// после закрытия позиции.
func (s *StatsService) RecordTrade(trade *models.Trade) error {
	if err := s.tradeRepo.Create(trade); err != nil {
		return err
	}
	s.broadcastStats()
	return nil
}

// broadcastStats пересчитывает статистику за всю историю и рассылает
// ее клиентам. Отказ пересчета не мешает записи сделки.
func (s *StatsService) broadcastStats() {
	if s.hub == nil {
		return
	}
	if stats, err := s.GetStats(utils.PeriodAll); err == nil && stats != nil {
		s.hub.BroadcastStatsUpdate(stats)
	}
}

// GetTotalTradesCount отдает размер журнала сделок.
func (s *StatsService) GetTotalTradesCount() (int, error) {
	return s.tradeRepo.Count()
}

// CleanupOldTrades удаляет сделки старше отметки и возвращает число
// удаленных. Вызывается фоновым обслуживанием журнала.
func (s *StatsService) CleanupOldTrades(olderThan time.Time) (int64, error) {
	return s.tradeRepo.DeleteOlderThan(olderThan)
}
