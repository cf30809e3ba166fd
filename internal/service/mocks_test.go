package service

// In-memory моки репозиториев для unit-тестов сервисного слоя.
// Поля fail* ломают одну из операций, поля last* фиксируют аргументы
// последнего вызова для проверки нормализации в сервисах.

import (
	"sort"
	"time"

	"moexbot/internal/models"
)

// ============ Общие помощники ============

// newestFirst отдает до limit последних элементов, новые сверху.
func newestFirst[T any](src []T, limit int) []T {
	var result []T
	for i := len(src) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, src[i])
	}
	return result
}

// where оставляет элементы, прошедшие фильтр; nil-фильтр пропускает все.
func where[T any](src []T, keep func(T) bool) []T {
	if keep == nil {
		return src
	}
	var out []T
	for _, v := range src {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// purge выкидывает элементы, для которых gone вернул true.
func purge[T any](src []T, gone func(T) bool) ([]T, int64) {
	var kept []T
	var deleted int64
	for _, v := range src {
		if gone(v) {
			deleted++
			continue
		}
		kept = append(kept, v)
	}
	return kept, deleted
}

// ============ Журнал ордеров ============

type MockOrderRepository struct {
	orders     []*models.OrderRecord
	failCreate error
	failGet    error
	failCount  error
	failDelete error
	lastID     int
	lastLimit  int
	lastTicker string
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{}
}

func (m *MockOrderRepository) Create(order *models.OrderRecord) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.lastID++
	order.ID = m.lastID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *MockOrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	return m.query(limit, nil)
}

func (m *MockOrderRepository) GetByStrategy(strategyID string, limit int) ([]*models.OrderRecord, error) {
	return m.query(limit, func(o *models.OrderRecord) bool { return o.StrategyID == strategyID })
}

func (m *MockOrderRepository) GetByTicker(ticker string, limit int) ([]*models.OrderRecord, error) {
	m.lastTicker = ticker
	return m.query(limit, func(o *models.OrderRecord) bool { return o.Ticker == ticker })
}

func (m *MockOrderRepository) query(limit int, keep func(*models.OrderRecord) bool) ([]*models.OrderRecord, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	m.lastLimit = limit
	return newestFirst(where(m.orders, keep), limit), nil
}

func (m *MockOrderRepository) Count() (int, error) {
	if m.failCount != nil {
		return 0, m.failCount
	}
	return len(m.orders), nil
}

func (m *MockOrderRepository) CountByStatus(status string) (int, error) {
	if m.failCount != nil {
		return 0, m.failCount
	}
	return len(where(m.orders, func(o *models.OrderRecord) bool { return o.Status == status })), nil
}

func (m *MockOrderRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	if m.failDelete != nil {
		return 0, m.failDelete
	}
	var deleted int64
	m.orders, deleted = purge(m.orders, func(o *models.OrderRecord) bool { return o.CreatedAt.Before(timestamp) })
	return deleted, nil
}

// ============ Журнал сделок ============

type MockTradeRepository struct {
	trades     []*models.Trade
	failCreate error
	failGet    error
	failStats  error
	failDelete error
	lastID     int
	lastLimit  int
}

func NewMockTradeRepository() *MockTradeRepository {
	return &MockTradeRepository{}
}

func (m *MockTradeRepository) Create(trade *models.Trade) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.lastID++
	trade.ID = m.lastID
	m.trades = append(m.trades, trade)
	return nil
}

func (m *MockTradeRepository) GetRecent(limit int) ([]*models.Trade, error) {
	return m.query(limit, nil)
}

func (m *MockTradeRepository) GetByStrategy(strategyID string, limit int) ([]*models.Trade, error) {
	return m.query(limit, func(tr *models.Trade) bool { return tr.StrategyID == strategyID })
}

func (m *MockTradeRepository) GetByTicker(ticker string, limit int) ([]*models.Trade, error) {
	return m.query(limit, func(tr *models.Trade) bool { return tr.Ticker == ticker })
}

func (m *MockTradeRepository) query(limit int, keep func(*models.Trade) bool) ([]*models.Trade, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	m.lastLimit = limit
	return newestFirst(where(m.trades, keep), limit), nil
}

// closedSince отбирает сделки, закрытые не раньше since; нулевое since
// означает всю историю.
func closedSince(since time.Time) func(*models.Trade) bool {
	return func(tr *models.Trade) bool {
		return since.IsZero() || !tr.ExitTime.Before(since)
	}
}

func (m *MockTradeRepository) GetStats(since time.Time) (*models.Stats, error) {
	if m.failStats != nil {
		return nil, m.failStats
	}

	closed := where(m.trades, closedSince(since))
	stats := &models.Stats{TotalTrades: len(closed)}
	for i, tr := range closed {
		stats.TotalPnl += tr.Pnl
		switch {
		case tr.Pnl > 0:
			stats.WinningTrades++
		case tr.Pnl < 0:
			stats.LosingTrades++
		}
		if tr.WasStopLoss {
			stats.StopLossCount++
		}
		if i == 0 || tr.Pnl > stats.BestTrade {
			stats.BestTrade = tr.Pnl
		}
		if i == 0 || tr.Pnl < stats.WorstTrade {
			stats.WorstTrade = tr.Pnl
		}
	}
	if stats.TotalTrades > 0 {
		stats.AveragePnl = stats.TotalPnl / float64(stats.TotalTrades)
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	}
	return stats, nil
}

func (m *MockTradeRepository) TopTickers(since time.Time, limit int) ([]models.TickerStat, error) {
	if m.failStats != nil {
		return nil, m.failStats
	}
	m.lastLimit = limit

	type agg struct {
		trades int
		wins   int
		pnl    float64
	}
	byTicker := make(map[string]*agg)
	for _, tr := range where(m.trades, closedSince(since)) {
		a := byTicker[tr.Ticker]
		if a == nil {
			a = &agg{}
			byTicker[tr.Ticker] = a
		}
		a.trades++
		a.pnl += tr.Pnl
		if tr.Pnl > 0 {
			a.wins++
		}
	}

	result := make([]models.TickerStat, 0, len(byTicker))
	for ticker, a := range byTicker {
		st := models.TickerStat{Ticker: ticker, Trades: a.trades, TotalPnl: a.pnl}
		if a.trades > 0 {
			st.WinRate = float64(a.wins) / float64(a.trades) * 100
		}
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TotalPnl > result[j].TotalPnl })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockTradeRepository) Count() (int, error) {
	if m.failGet != nil {
		return 0, m.failGet
	}
	return len(m.trades), nil
}

func (m *MockTradeRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	if m.failDelete != nil {
		return 0, m.failDelete
	}
	var deleted int64
	m.trades, deleted = purge(m.trades, func(tr *models.Trade) bool { return tr.ExitTime.Before(timestamp) })
	return deleted, nil
}

// ============ Уведомления ============

type MockNotificationRepository struct {
	notifications []*models.Notification
	failCreate    error
	failGet       error
	failDelete    error
	lastID        int
	lastLimit     int
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{}
}

func (m *MockNotificationRepository) Create(notif *models.Notification) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.lastID++
	notif.ID = m.lastID
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}
	m.notifications = append(m.notifications, notif)
	return nil
}

func (m *MockNotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	return m.query(limit, nil)
}

func (m *MockNotificationRepository) GetByTypes(types []string, limit int) ([]*models.Notification, error) {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	return m.query(limit, func(n *models.Notification) bool { return want[string(n.Type)] })
}

func (m *MockNotificationRepository) query(limit int, keep func(*models.Notification) bool) ([]*models.Notification, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	m.lastLimit = limit
	return newestFirst(where(m.notifications, keep), limit), nil
}

func (m *MockNotificationRepository) DeleteAll() error {
	if m.failDelete != nil {
		return m.failDelete
	}
	m.notifications = nil
	return nil
}

func (m *MockNotificationRepository) KeepRecent(keep int) (int64, error) {
	if m.failDelete != nil {
		return 0, m.failDelete
	}
	m.lastLimit = keep
	if len(m.notifications) <= keep {
		return 0, nil
	}
	deleted := int64(len(m.notifications) - keep)
	m.notifications = m.notifications[len(m.notifications)-keep:]
	return deleted, nil
}

func (m *MockNotificationRepository) Count() (int, error) {
	if m.failGet != nil {
		return 0, m.failGet
	}
	return len(m.notifications), nil
}

func (m *MockNotificationRepository) CountByType(notifType string) (int, error) {
	if m.failGet != nil {
		return 0, m.failGet
	}
	return len(where(m.notifications, func(n *models.Notification) bool { return string(n.Type) == notifType })), nil
}

// ============ WebSocket hub ============

// MockWebSocketHub собирает broadcast-вызовы всех сервисных интерфейсов.
type MockWebSocketHub struct {
	notifications []*models.Notification
	orders        []*models.OrderRecord
	stats         []*models.Stats
}

func (m *MockWebSocketHub) BroadcastNotification(notif *models.Notification) {
	m.notifications = append(m.notifications, notif)
}

func (m *MockWebSocketHub) BroadcastOrderResult(order *models.OrderRecord) {
	m.orders = append(m.orders, order)
}

func (m *MockWebSocketHub) BroadcastStatsUpdate(stats *models.Stats) {
	m.stats = append(m.stats, stats)
}
