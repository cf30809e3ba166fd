package service

import (
	"strings"
	"time"

	"moexbot/internal/models"
)

// OrderBroadcaster рассылает результаты заявок подписчикам WebSocket
type OrderBroadcaster interface {
	BroadcastOrderResult(order *models.OrderRecord)
}

// OrderService ведет журнал заявок: движок пишет сюда каждую
// отправленную и отклоненную заявку, панель оператора читает историю
// с фильтрацией по стратегии и инструменту.
type OrderService struct {
	orderRepo OrderRepositoryInterface
	hub       OrderBroadcaster
}

// NewOrderService создает сервис без hub'а.
func NewOrderService(orderRepo OrderRepositoryInterface) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
	}
}

// SetWebSocketHub подключает live-рассылку результатов заявок.
func (s *OrderService) SetWebSocketHub(hub OrderBroadcaster) {
	s.hub = hub
}

// RecordOrder журналирует заявку с итоговым статусом.
//
// Вызывается движком после похода на площадку: одна запись на каждую
// ногу со статусом submitted или rejected. Записанная заявка сразу
// уходит broadcast'ом, если hub подключен.
func (s *OrderService) RecordOrder(order *models.OrderRecord) error {
	if err := s.orderRepo.Create(order); err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastOrderResult(order)
	}

	return nil
}

// GetOrders возвращает журнал, новые записи сверху. Пустой strategyID
// и ticker значат "без фильтра"; стратегия имеет приоритет над
// инструментом. Лимит по умолчанию 100, потолок 500.
func (s *OrderService) GetOrders(strategyID, ticker string, limit int) ([]*models.OrderRecord, error) {
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}

	var (
		orders []*models.OrderRecord
		err    error
	)

	switch {
	case strategyID != "":
		orders, err = s.orderRepo.GetByStrategy(strategyID, limit)
	case ticker != "":
		orders, err = s.orderRepo.GetByTicker(strings.ToUpper(strings.TrimSpace(ticker)), limit)
	default:
		orders, err = s.orderRepo.GetRecent(limit)
	}

	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*models.OrderRecord{}
	}

	return orders, nil
}

// GetOrderCount возвращает размер журнала.
func (s *OrderService) GetOrderCount() (int, error) {
	return s.orderRepo.Count()
}

// GetRejectedCount считает заявки, отклоненные площадкой.
func (s *OrderService) GetRejectedCount() (int, error) {
	return s.orderRepo.CountByStatus(models.OrderStatusRejected)
}

// CleanupOld удаляет записи старше cutoff и возвращает их число.
func (s *OrderService) CleanupOld(cutoff time.Time) (int64, error) {
	return s.orderRepo.DeleteOlderThan(cutoff)
}
