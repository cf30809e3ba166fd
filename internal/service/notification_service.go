package service

import (
	"strings"

	"moexbot/internal/models"
)

// NotificationBroadcaster рассылает уведомления подключенным клиентам.
//
// Интерфейс разрывает цикл пакетов service <-> websocket и дает
// подставить заглушку в тестах.
type NotificationBroadcaster interface {
	BroadcastNotification(notif *models.Notification)
}

// NotificationService ведет журнал событий бота: сигналы стратегий,
// открытия и закрытия позиций, стоп-лоссы, ликвидации, ошибки,
// паузы движка и непокрытые ноги парных сделок.
//
// Каждое созданное уведомление пишется в базу и, если hub подключен,
// сразу уходит broadcast'ом в панель оператора.
type NotificationService struct {
	notificationRepo NotificationRepositoryInterface
	hub              NotificationBroadcaster
}

// NewNotificationService создает сервис без hub'а.
// Hub подключается отдельно через SetWebSocketHub после старта.
func NewNotificationService(notificationRepo NotificationRepositoryInterface) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
	}
}

// SetWebSocketHub подключает hub для live-рассылки уведомлений.
func (s *NotificationService) SetWebSocketHub(hub NotificationBroadcaster) {
	s.hub = hub
}

// CreateNotification сохраняет уведомление и рассылает его по WebSocket.
// При ошибке записи broadcast не выполняется.
func (s *NotificationService) CreateNotification(notif *models.Notification) error {
	if err := s.notificationRepo.Create(notif); err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastNotification(notif)
	}

	return nil
}

// knownNotificationType сообщает, входит ли тип в набор событий бота.
func knownNotificationType(t string) bool {
	switch models.NotificationType(t) {
	case models.NotificationSignal, models.NotificationOpen, models.NotificationClose,
		models.NotificationStopLoss, models.NotificationLiquidation,
		models.NotificationError, models.NotificationPause, models.NotificationLegFail:
		return true
	}
	return false
}

// normalizeTypes чистит фильтр: пробелы убираются, регистр поднимается,
// неизвестные типы молча отбрасываются.
func normalizeTypes(types []string) []string {
	var filter []string
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" && knownNotificationType(t) {
			filter = append(filter, t)
		}
	}
	return filter
}

func (s *NotificationService) fetch(filter []string, limit int) ([]*models.Notification, error) {
	if len(filter) > 0 {
		return s.notificationRepo.GetByTypes(filter, limit)
	}
	return s.notificationRepo.GetRecent(limit)
}

// GetNotifications возвращает ленту уведомлений, новые сверху.
//
// В types перечисляются коды событий (регистр не важен); пустой
// фильтр или фильтр только из неизвестных типов значит "все".
// Лимит по умолчанию 100, потолок 500.
func (s *NotificationService) GetNotifications(types []string, limit int) ([]*models.Notification, error) {
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}

	notifications, err := s.fetch(normalizeTypes(types), limit)
	if err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	return notifications, nil
}

// ClearNotifications удаляет весь журнал.
func (s *NotificationService) ClearNotifications() error {
	return s.notificationRepo.DeleteAll()
}

// GetNotificationCount возвращает размер журнала.
func (s *NotificationService) GetNotificationCount() (int, error) {
	return s.notificationRepo.Count()
}

// GetNotificationCountByType считает уведомления одного типа.
func (s *NotificationService) GetNotificationCountByType(notifType string) (int, error) {
	return s.notificationRepo.CountByType(strings.ToUpper(notifType))
}

// CleanupOld обрезает журнал до последних keepCount записей
// и возвращает число удаленных. Ноль и меньше - оставить 1000.
func (s *NotificationService) CleanupOld(keepCount int) (int64, error) {
	if keepCount <= 0 {
		keepCount = 1000
	}
	return s.notificationRepo.KeepRecent(keepCount)
}

// notifyStrategy собирает уведомление, привязанное к стратегии и тикеру.
func (s *NotificationService) notifyStrategy(t models.NotificationType, severity, strategyID, ticker, message string) error {
	return s.CreateNotification(models.NewNotification(t, severity, message).
		WithStrategy(strategyID).
		WithTicker(ticker))
}

// CreateSignalNotification пишет событие торгового сигнала.
func (s *NotificationService) CreateSignalNotification(strategyID, ticker, message string) error {
	return s.notifyStrategy(models.NotificationSignal, models.SeverityInfo, strategyID, ticker, message)
}

// CreateOpenNotification пишет событие открытия позиции.
func (s *NotificationService) CreateOpenNotification(strategyID, ticker, message string) error {
	return s.notifyStrategy(models.NotificationOpen, models.SeverityInfo, strategyID, ticker, message)
}

// CreateCloseNotification пишет событие закрытия позиции.
func (s *NotificationService) CreateCloseNotification(strategyID, ticker, message string) error {
	return s.notifyStrategy(models.NotificationClose, models.SeverityInfo, strategyID, ticker, message)
}

// CreateStopLossNotification пишет событие срабатывания стоп-лосса.
func (s *NotificationService) CreateStopLossNotification(strategyID, ticker, message string) error {
	return s.notifyStrategy(models.NotificationStopLoss, models.SeverityWarn, strategyID, ticker, message)
}

// CreateLiquidationNotification пишет событие принудительного закрытия.
func (s *NotificationService) CreateLiquidationNotification(strategyID, ticker, message string) error {
	return s.notifyStrategy(models.NotificationLiquidation, models.SeverityInfo, strategyID, ticker, message)
}

// CreateLegFailNotification пишет событие непокрытой ноги парной сделки.
func (s *NotificationService) CreateLegFailNotification(strategyID, ticker, message string) error {
	return s.notifyStrategy(models.NotificationLegFail, models.SeverityError, strategyID, ticker, message)
}

// CreateErrorNotification пишет ошибку движка или транспорта.
func (s *NotificationService) CreateErrorNotification(message string) error {
	return s.CreateNotification(models.NewNotification(models.NotificationError, models.SeverityError, message))
}

// CreatePauseNotification пишет событие приостановки движка.
func (s *NotificationService) CreatePauseNotification(message string) error {
	return s.CreateNotification(models.NewNotification(models.NotificationPause, models.SeverityInfo, message))
}
