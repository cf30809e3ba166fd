package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового движка
// ============================================================
//
// Что отслеживаем:
// - Длительность и исход торговых циклов
// - Поток сигналов и вердикты риск-гейта
// - Отправку заявок и срабатывания стоп-лоссов
// - Загрузку рыночных данных из ISS
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ============ Метрики цикла ============

// CyclesTotal - количество торговых циклов по результату
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moexbot",
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Total number of trading cycles",
	},
	[]string{"result"}, // ok, failed, skipped
)

// CycleDuration - длительность полного торгового цикла
// Bucket'ы под минутный темп: цикл включает сетевые запросы к ISS
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "moexbot",
		Subsystem: "engine",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full trading cycle in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
)

// EngineState - текущее состояние движка (1 у активного, 0 у остальных)
var EngineState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "moexbot",
		Subsystem: "engine",
		Name:      "state",
		Help:      "Current engine state (1=active state, 0=inactive)",
	},
	[]string{"state"}, // IDLE, INITIALIZING, RUNNING, CLOSING, STOPPED, ERROR
)

// SignalsTotal - сигналы стратегий, породившие торговое намерение
var SignalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moexbot",
		Subsystem: "engine",
		Name:      "signals_total",
		Help:      "Total number of actionable strategy signals",
	},
	[]string{"strategy", "action"},
)

// OpenPositions - открытые позиции в журнале
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "moexbot",
		Subsystem: "engine",
		Name:      "open_positions",
		Help:      "Current number of open positions in the ledger",
	},
)

// ============ Метрики риска ============

// IntentsApproved - намерения, одобренные риск-гейтом
var IntentsApproved = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "moexbot",
		Subsystem: "risk",
		Name:      "intents_approved_total",
		Help:      "Number of intents approved by the risk gate",
	},
)

// IntentsRejected - отклоненные намерения по причинам
var IntentsRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moexbot",
		Subsystem: "risk",
		Name:      "intents_rejected_total",
		Help:      "Number of intents rejected by the risk gate",
	},
	[]string{"reason"}, // daily_limit, position_size, outside_window, close_out_window
)

// StopLossTriggered - срабатывания стоп-лосса
var StopLossTriggered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moexbot",
		Subsystem: "risk",
		Name:      "stop_loss_triggered_total",
		Help:      "Number of stop loss triggers",
	},
	[]string{"ticker"},
)

// DailyTrades - сделки за торговый день
var DailyTrades = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "moexbot",
		Subsystem: "risk",
		Name:      "daily_trades",
		Help:      "Number of trades counted against the daily limit",
	},
)

// ============ Метрики заявок ============

// OrdersSubmitted - заявки, принятые шлюзом брокера
var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moexbot",
		Subsystem: "orders",
		Name:      "submitted_total",
		Help:      "Number of orders accepted by the broker gateway",
	},
	[]string{"ticker", "side"},
)

// OrdersFailed - заявки, отклоненные после всех повторов
var OrdersFailed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moexbot",
		Subsystem: "orders",
		Name:      "failed_total",
		Help:      "Number of orders that failed after retries",
	},
	[]string{"ticker"},
)

// ============ Метрики рыночных данных ============

// FetchDuration - длительность обновления котировок по всем инструментам
var FetchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "moexbot",
		Subsystem: "data",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of a market data refresh across all instruments",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
)

// FetchErrors - ошибки загрузки котировок по инструментам
var FetchErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moexbot",
		Subsystem: "data",
		Name:      "fetch_errors_total",
		Help:      "Number of market data fetch failures",
	},
	[]string{"ticker"},
)

// ============ Вспомогательные функции ============

// RecordCycle записывает исход и длительность торгового цикла
func RecordCycle(result string, elapsed time.Duration) {
	CyclesTotal.WithLabelValues(result).Inc()
	CycleDuration.Observe(elapsed.Seconds())
}

// RecordSignal записывает сигнал стратегии
func RecordSignal(strategy, action string) {
	SignalsTotal.WithLabelValues(strategy, action).Inc()
}

// RecordVerdict записывает решение риск-гейта
func RecordVerdict(approved bool, reason string) {
	if approved {
		IntentsApproved.Inc()
		return
	}
	IntentsRejected.WithLabelValues(reason).Inc()
}

// RecordOrder записывает результат отправки заявки
func RecordOrder(ticker, side string, err error) {
	if err != nil {
		OrdersFailed.WithLabelValues(ticker).Inc()
		return
	}
	OrdersSubmitted.WithLabelValues(ticker, side).Inc()
}

// RecordStopLoss записывает срабатывание стоп-лосса
func RecordStopLoss(ticker string) {
	StopLossTriggered.WithLabelValues(ticker).Inc()
}

// RecordFetch записывает длительность обновления рыночных данных
func RecordFetch(elapsed time.Duration) {
	FetchDuration.Observe(elapsed.Seconds())
}

// RecordFetchError записывает ошибку загрузки котировок
func RecordFetchError(ticker string) {
	FetchErrors.WithLabelValues(ticker).Inc()
}

// SetEngineState выставляет gauge состояния: 1 у текущего, 0 у остальных
func SetEngineState(state string) {
	for s := range ValidTransitions {
		if s == state {
			EngineState.WithLabelValues(s).Set(1)
		} else {
			EngineState.WithLabelValues(s).Set(0)
		}
	}
}

// UpdatePortfolio обновляет gauge'и портфеля и дневного счетчика
func UpdatePortfolio(openPositions, dailyTrades int) {
	OpenPositions.Set(float64(openPositions))
	DailyTrades.Set(float64(dailyTrades))
}
