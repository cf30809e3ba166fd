// Package risk - проверки торговых намерений перед исполнением.
//
// Gate стоит в торговом цикле между стратегией и исполнителем и
// отвечает синхронно, без походов в базу: дневной лимит сделок,
// стоимость позиции на ногу, торговое и терминальное окна сессии.
// Принудительные намерения (стоп-лосс, ликвидация при останове)
// обходят часть проверок - закрыть позицию важнее любого лимита.
// Сами стопы считает не Gate, а in-memory леджер позиций
// (portfolio.Ledger.CheckStop).
package risk

import (
	"fmt"
	"sync"
	"time"

	"moexbot/internal/models"
	"moexbot/pkg/utils"
)

// Причины отказа риск-контроля
const (
	ReasonDailyLimit     = "daily_limit"      // исчерпан дневной лимит сделок
	ReasonPositionSize   = "position_size"    // превышен лимит стоимости позиции
	ReasonOutsideWindow  = "outside_window"   // вне торговой сессии
	ReasonCloseOutWindow = "close_out_window" // новый вход в терминальном окне перед закрытием
)

// Verdict - результат проверки намерения риск-контролем.
// Отказ является нормальным управляющим решением, а не ошибкой.
type Verdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

func approve() Verdict {
	return Verdict{Approved: true}
}

func reject(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Config - конфигурация риск-контроля
type Config struct {
	// Максимальное количество сделок в день (нога пары считается отдельно).
	// Ноль или отрицательное значение отключает лимит.
	MaxDailyTrades int

	// Максимальная стоимость одной ноги (quantity * reference price) в рублях.
	// Ноль или отрицательное значение отключает лимит.
	MaxPositionValue float64

	// Торговая сессия площадки
	Session utils.Session

	// Терминальное окно перед закрытием сессии, в котором
	// запрещены новые входы
	CloseOutOffset time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
// для основной сессии Московской биржи.
func DefaultConfig() Config {
	session, _ := utils.NewSession("10:00", "18:45", utils.DefaultExchangeTimezone)
	return Config{
		MaxDailyTrades:   200,
		MaxPositionValue: 200_000,
		Session:          session,
		CloseOutOffset:   5 * time.Minute,
	}
}

// Gate - централизованный риск-контроль торговых намерений
//
// Функции:
// - Дневной лимит количества сделок со сбросом при смене даты
// - Лимит стоимости позиции на каждую ногу намерения
// - Контроль торгового окна сессии и терминального окна перед закрытием
// - Пропуск принудительных закрытий (стоп-лосс, ликвидация) мимо
//   лимита и окна: закрытие риска никогда не блокируется
// - Генерация уведомлений о достижении дневного лимита
//
// Проверки выполняются по порядку с остановкой на первом отказе.
// Счетчик увеличивается только при одобрении, по числу активных ног.
type Gate struct {
	mu sync.Mutex

	config Config

	// Счетчик одобренных ног за текущую торговую дату
	dailyCount  int
	counterDate time.Time

	// Защита от повторных уведомлений о лимите в рамках одного дня
	limitNotified bool

	// Канал для уведомлений
	notificationChan chan<- *models.Notification

	// Источник времени, подменяется в тестах
	now func() time.Time
}

// NewGate собирает риск-контроль с системными часами.
func NewGate(config Config, notifChan chan<- *models.Notification) *Gate {
	return &Gate{
		config:           config,
		notificationChan: notifChan,
		now:              time.Now,
	}
}

// ============================================================
// Проверка намерений
// ============================================================

// Evaluate проверяет торговое намерение и выносит вердикт.
//
// Порядок проверок:
//  1. Смена торговой даты сбрасывает дневной счетчик.
//  2. Дневной лимит сделок.
//  3. Лимит стоимости позиции по каждой ноге. Закрывающие намерения
//     освобождены: они снижают риск, и отказ по стоимости мог бы
//     заблокировать стоп при неблагоприятной цене.
//  4. Торговое окно: вне сессии отказ всем, в терминальном окне
//     перед закрытием отказ только новым входам.
//
// Принудительные намерения (стоп-лосс, ликвидация) пропускают
// проверки 2 и 4, но учитываются в счетчике.
func (g *Gate) Evaluate(intent *models.Intent) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollover(now)

	forced := intent.Forced()

	if !forced && g.limited() {
		g.notifyDailyLimit(intent)
		return reject(ReasonDailyLimit)
	}

	if verdict := g.checkPositionValue(intent); !verdict.Approved {
		return verdict
	}

	if !forced {
		if !g.config.Session.Contains(now) {
			return reject(ReasonOutsideWindow)
		}
		if !intent.Closing && g.config.Session.InCloseOut(now, g.config.CloseOutOffset) {
			return reject(ReasonCloseOutWindow)
		}
	}

	g.dailyCount += activeLegs(intent)
	return approve()
}

// limited сообщает, исчерпан ли дневной лимит сделок.
func (g *Gate) limited() bool {
	return g.config.MaxDailyTrades > 0 && g.dailyCount >= g.config.MaxDailyTrades
}

// checkPositionValue проверяет лимит стоимости по каждой ноге намерения.
// Закрывающие намерения не проверяются.
func (g *Gate) checkPositionValue(intent *models.Intent) Verdict {
	if intent.Closing || g.config.MaxPositionValue <= 0 {
		return approve()
	}

	if utils.PositionValue(intent.Quantity, intent.ReferencePrice) > g.config.MaxPositionValue {
		return reject(ReasonPositionSize)
	}
	if intent.IsPair() {
		if utils.PositionValue(intent.PairQuantity, intent.PairReferencePrice) > g.config.MaxPositionValue {
			return reject(ReasonPositionSize)
		}
	}
	return approve()
}

// rollover сбрасывает счетчик при смене торговой даты.
func (g *Gate) rollover(now time.Time) {
	if utils.SameTradingDay(g.counterDate, now, g.config.Session.Location) {
		return
	}
	g.dailyCount = 0
	g.counterDate = now
	g.limitNotified = false
}

// activeLegs возвращает число ног намерения с ненулевым объемом.
// Частичное закрытие пары с одной живой ногой считается одной сделкой.
func activeLegs(intent *models.Intent) int {
	legs := 0
	if intent.Quantity > 0 {
		legs++
	}
	if intent.IsPair() && intent.PairQuantity > 0 {
		legs++
	}
	return legs
}

// ============================================================
// Счетчики
// ============================================================

// DailyCount возвращает количество одобренных ног за текущую дату.
func (g *Gate) DailyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyCount
}

// ResetDailyCounters принудительно сбрасывает дневной счетчик.
// Вызывается движком при завершении сессии.
func (g *Gate) ResetDailyCounters() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyCount = 0
	g.limitNotified = false
}

// Limits возвращает текущую конфигурацию лимитов.
func (g *Gate) Limits() Config {
	return g.config
}

// ============================================================
// Уведомления
// ============================================================

// notifyDailyLimit отправляет уведомление о достижении дневного лимита,
// не чаще одного раза за торговую дату.
func (g *Gate) notifyDailyLimit(intent *models.Intent) {
	if g.notificationChan == nil || g.limitNotified {
		return
	}
	g.limitNotified = true

	notif := models.NewNotification(
		models.NotificationError,
		models.SeverityWarn,
		fmt.Sprintf("🚫 Daily trade limit %d reached, rejecting new intents until rollover",
			g.config.MaxDailyTrades),
	).WithStrategy(intent.StrategyID).WithTicker(intent.Instrument)

	select {
	case g.notificationChan <- notif:
	default:
		// Канал заполнен
	}
}
