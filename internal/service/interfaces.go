package service

import (
	"time"

	"moexbot/internal/models"
	"moexbot/internal/repository"
	"moexbot/pkg/utils"
)

// Сервисы зависят от хранилища через интерфейсы, чтобы в тестах
// вместо Postgres подставлялись in-memory моки.

// OrderRepositoryInterface - журнал заявок.
type OrderRepositoryInterface interface {
	Create(order *models.OrderRecord) error
	GetRecent(limit int) ([]*models.OrderRecord, error)
	GetByStrategy(strategyID string, limit int) ([]*models.OrderRecord, error)
	GetByTicker(ticker string, limit int) ([]*models.OrderRecord, error)
	Count() (int, error)
	CountByStatus(status string) (int, error)
	DeleteOlderThan(timestamp time.Time) (int64, error)
}

// TradeRepositoryInterface - журнал завершенных раунд-трипов.
type TradeRepositoryInterface interface {
	Create(trade *models.Trade) error
	GetRecent(limit int) ([]*models.Trade, error)
	GetByStrategy(strategyID string, limit int) ([]*models.Trade, error)
	GetByTicker(ticker string, limit int) ([]*models.Trade, error)
	GetStats(since time.Time) (*models.Stats, error)
	TopTickers(since time.Time, limit int) ([]models.TickerStat, error)
	Count() (int, error)
	DeleteOlderThan(timestamp time.Time) (int64, error)
}

// NotificationRepositoryInterface - лента уведомлений.
type NotificationRepositoryInterface interface {
	Create(notif *models.Notification) error
	GetRecent(limit int) ([]*models.Notification, error)
	GetByTypes(types []string, limit int) ([]*models.Notification, error)
	DeleteAll() error
	KeepRecent(keep int) (int64, error)
	Count() (int, error)
	CountByType(notifType string) (int, error)
}

// Компилятор следит, чтобы Postgres-реализации не разъехались.
var (
	_ OrderRepositoryInterface        = (*repository.OrderRepository)(nil)
	_ TradeRepositoryInterface        = (*repository.TradeRepository)(nil)
	_ NotificationRepositoryInterface = (*repository.NotificationRepository)(nil)
)

// Интерфейсы самих сервисов видят HTTP-обработчики через
// api.Dependencies и engine при журналировании.

// OrderServiceInterface - запись заявок и выборки для панели.
type OrderServiceInterface interface {
	RecordOrder(order *models.OrderRecord) error
	GetOrders(strategyID, ticker string, limit int) ([]*models.OrderRecord, error)
	GetOrderCount() (int, error)
	GetRejectedCount() (int, error)
}

// StatsServiceInterface - агрегаты PnL по периодам.
type StatsServiceInterface interface {
	GetStats(period utils.PeriodType) (*models.Stats, error)
	GetTopTickers(period utils.PeriodType, limit int) ([]models.TickerStat, error)
	GetTrades(strategyID, ticker string, limit int) ([]*models.Trade, error)
	RecordTrade(trade *models.Trade) error
}

// NotificationServiceInterface - лента событий с рассылкой в hub.
type NotificationServiceInterface interface {
	GetNotifications(types []string, limit int) ([]*models.Notification, error)
	ClearNotifications() error
	CreateNotification(notif *models.Notification) error
	GetNotificationCount() (int, error)
}

var (
	_ OrderServiceInterface        = (*OrderService)(nil)
	_ StatsServiceInterface        = (*StatsService)(nil)
	_ NotificationServiceInterface = (*NotificationService)(nil)
)
