package websocket

import (
	"time"

	"moexbot/internal/models"
)

// MessageType различает виды сообщений, уходящих в браузер.
type MessageType string

const (
	// MessageTypeSignal - стратегия выдала торговое намерение
	// Отправляется до риск-контроля, отражает сырой сигнал
	MessageTypeSignal MessageType = "signal"

	// MessageTypeOrderResult - итог отправки заявки на площадку
	// Отправляется после исполнения (submitted или rejected)
	MessageTypeOrderResult MessageType = "orderResult"

	// MessageTypePositionUpdate - изменение позиции в портфеле
	// Отправляется после применения исполненной заявки к леджеру
	MessageTypePositionUpdate MessageType = "positionUpdate"

	// MessageTypeEngineState - смена состояния движка
	// Отправляется при переходах IDLE/INITIALIZING/RUNNING/CLOSING/...
	MessageTypeEngineState MessageType = "engineState"

	// MessageTypeNotification - запись из ленты уведомлений
	// Уходит сразу после сохранения уведомления в БД
	MessageTypeNotification MessageType = "notification"

	// MessageTypeStatsUpdate - пересчитанная статистика торговли
	// Уходит после записи каждой завершенной сделки
	MessageTypeStatsUpdate MessageType = "statsUpdate"

	// MessageTypeScreenerUpdate - свежие результаты скринера
	// Отправляется по завершении периодического сканирования
	MessageTypeScreenerUpdate MessageType = "screenerUpdate"
)

// BaseMessage - общий конверт: вид сообщения плюс момент отправки.
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now()}
}

// SignalMessage - сообщение о торговом намерении стратегии
type SignalMessage struct {
	BaseMessage
	Data *SignalData `json:"data"`
}

// SignalData - данные торгового намерения
type SignalData struct {
	StrategyID string `json:"strategy_id"`
	Ticker     string `json:"ticker"`

	// Действие стратегии (buy, sell, buy_pair, sell_pair, close_pair)
	Action string `json:"action"`

	// Сторона и объем главной ноги в формате площадки
	Side     string `json:"side"`
	Quantity int    `json:"quantity"`

	// Референсная цена на момент сигнала
	Price float64 `json:"price"`

	// Происхождение: signal, stop_loss, liquidation
	Reason string `json:"reason"`
}

// OrderResultMessage - сообщение об итоге отправки заявки
type OrderResultMessage struct {
	BaseMessage
	Data *OrderResultData `json:"data"`
}

// OrderResultData - данные результата заявки
type OrderResultData struct {
	ID         int     `json:"id"`
	StrategyID string  `json:"strategy_id"`
	Ticker     string  `json:"ticker"`
	Side       string  `json:"side"`
	Lots       int     `json:"lots"`
	Price      float64 `json:"price"`

	// submitted или rejected
	Status string `json:"status"`

	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// PositionUpdateMessage - сообщение об изменении позиции
type PositionUpdateMessage struct {
	BaseMessage
	Data *PositionData `json:"data"`
}

// PositionData - данные позиции портфеля
type PositionData struct {
	Ticker string `json:"ticker"`

	// Подписанный объем: положительный лонг, отрицательный шорт
	Quantity int `json:"quantity"`

	AvgEntryPrice float64 `json:"avg_entry_price"`
}

// EngineStateMessage - сообщение о состоянии движка
type EngineStateMessage struct {
	BaseMessage
	Data *EngineStateData `json:"data"`
}

// EngineStateData - данные состояния движка
type EngineStateData struct {
	// Состояние (IDLE, INITIALIZING, RUNNING, CLOSING, STOPPED, ERROR)
	State string `json:"state"`

	// Пауза: движок работает, но новые входы приостановлены
	Paused bool `json:"paused"`
}

// NotificationMessage несет одну запись ленты уведомлений.
type NotificationMessage struct {
	BaseMessage
	Data *NotificationData `json:"data"`
}

// NotificationData повторяет модель уведомления в формате фронтенда.
type NotificationData struct {
	ID int `json:"id"`

	// SIGNAL, OPEN, CLOSE, SL, LIQUIDATION, ERROR, PAUSE, LEG_FAIL
	Type string `json:"type"`

	// info, warn или error
	Severity string `json:"severity"`

	Ticker     string `json:"ticker,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"`

	Message string `json:"message"`

	// Дополнительные детали события (цены, объемы и т.д.)
	Meta map[string]string `json:"meta,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// StatsUpdateMessage - сообщение с агрегированной статистикой торговли
type StatsUpdateMessage struct {
	BaseMessage
	Data *models.Stats `json:"data"`
}

// ScreenerUpdateMessage - сообщение с результатами сканирования рынка
type ScreenerUpdateMessage struct {
	BaseMessage
	Data *ScreenerData `json:"data"`
}

// ScreenerData - данные сканирования
type ScreenerData struct {
	// Оценки инструментов, отсортированные по убыванию итогового балла
	Scores []models.StockScore `json:"scores"`
	Count  int                 `json:"count"`
}

// ============ Фабрики сообщений ============

// NewSignalMessage создает сообщение о торговом намерении
func NewSignalMessage(intent *models.Intent) *SignalMessage {
	return &SignalMessage{
		BaseMessage: newBase(MessageTypeSignal),
		Data: &SignalData{
			StrategyID: intent.StrategyID,
			Ticker:     intent.Instrument,
			Action:     string(intent.Action),
			Side:       intent.Side,
			Quantity:   intent.Quantity,
			Price:      intent.ReferencePrice,
			Reason:     string(intent.Reason),
		},
	}
}

// NewOrderResultMessage создает сообщение об итоге заявки
func NewOrderResultMessage(order *models.OrderRecord) *OrderResultMessage {
	return &OrderResultMessage{
		BaseMessage: newBase(MessageTypeOrderResult),
		Data: &OrderResultData{
			ID:         order.ID,
			StrategyID: order.StrategyID,
			Ticker:     order.Ticker,
			Side:       order.Side,
			Lots:       order.Lots,
			Price:      order.Price,
			Status:     order.Status,
			Reason:     order.Reason,
			Error:      order.ErrorMessage,
		},
	}
}

// NewPositionUpdateMessage создает сообщение об изменении позиции
func NewPositionUpdateMessage(pos models.Position) *PositionUpdateMessage {
	return &PositionUpdateMessage{
		BaseMessage: newBase(MessageTypePositionUpdate),
		Data: &PositionData{
			Ticker:        pos.Ticker,
			Quantity:      pos.Quantity,
			AvgEntryPrice: pos.AvgEntryPrice,
		},
	}
}

// NewEngineStateMessage создает сообщение о состоянии движка
func NewEngineStateMessage(state string, paused bool) *EngineStateMessage {
	return &EngineStateMessage{
		BaseMessage: newBase(MessageTypeEngineState),
		Data: &EngineStateData{
			State:  state,
			Paused: paused,
		},
	}
}

// NewNotificationMessage упаковывает уведомление для рассылки.
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: newBase(MessageTypeNotification),
		Data: &NotificationData{
			ID:         notif.ID,
			Type:       string(notif.Type),
			Severity:   notif.Severity,
			Ticker:     notif.Ticker,
			StrategyID: notif.StrategyID,
			Message:    notif.Message,
			Meta:       notif.Meta,
			Timestamp:  notif.Timestamp,
		},
	}
}

// NewStatsUpdateMessage упаковывает пересчитанную статистику.
func NewStatsUpdateMessage(stats *models.Stats) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: newBase(MessageTypeStatsUpdate),
		Data:        stats,
	}
}

// NewScreenerUpdateMessage создает сообщение с результатами скринера
func NewScreenerUpdateMessage(scores []models.StockScore) *ScreenerUpdateMessage {
	return &ScreenerUpdateMessage{
		BaseMessage: newBase(MessageTypeScreenerUpdate),
		Data: &ScreenerData{
			Scores: scores,
			Count:  len(scores),
		},
	}
}
