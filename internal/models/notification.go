package models

import "time"

// NotificationType определяет тип уведомления.
type NotificationType string

// Типы уведомлений
const (
	NotificationSignal      NotificationType = "SIGNAL"      // стратегия выдала сигнал
	NotificationOpen        NotificationType = "OPEN"        // позиция открыта
	NotificationClose       NotificationType = "CLOSE"       // позиция закрыта
	NotificationStopLoss    NotificationType = "SL"          // сработал стоп-лосс
	NotificationLiquidation NotificationType = "LIQUIDATION" // принудительная ликвидация
	NotificationError       NotificationType = "ERROR"       // ошибка движка или транспорта
	NotificationPause       NotificationType = "PAUSE"       // движок приостановлен
	NotificationLegFail     NotificationType = "LEG_FAIL"    // частичное исполнение парной сделки
)

// Уровни серьезности уведомлений
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Notification представляет событие для журнала и push-рассылки.
type Notification struct {
	ID         int               `json:"id" db:"id"`
	Timestamp  time.Time         `json:"timestamp" db:"created_at"`
	Type       NotificationType  `json:"type" db:"type"`
	Severity   string            `json:"severity" db:"severity"`
	Ticker     string            `json:"ticker,omitempty" db:"ticker"`
	StrategyID string            `json:"strategy_id,omitempty" db:"strategy_id"`
	Message    string            `json:"message" db:"message"`
	Meta       map[string]string `json:"meta,omitempty" db:"-"`
}

// NewNotification создает уведомление с текущим временем.
func NewNotification(t NotificationType, severity, message string) *Notification {
	return &Notification{
		Timestamp: time.Now(),
		Type:      t,
		Severity:  severity,
		Message:   message,
	}
}

// WithTicker привязывает уведомление к инструменту.
func (n *Notification) WithTicker(ticker string) *Notification {
	n.Ticker = ticker
	return n
}

// WithStrategy привязывает уведомление к стратегии.
func (n *Notification) WithStrategy(strategyID string) *Notification {
	n.StrategyID = strategyID
	return n
}

// WithMeta добавляет произвольное поле метаданных.
func (n *Notification) WithMeta(key, value string) *Notification {
	if n.Meta == nil {
		n.Meta = make(map[string]string)
	}
	n.Meta[key] = value
	return n
}
