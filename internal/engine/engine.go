// Package engine содержит торговый движок бота: оркестрацию цикла
// опроса рыночных данных, стратегий, риск-контроля и исполнения заявок.
//
// Движок работает по расписанию торговой сессии MOEX. Каждый цикл:
// обновление котировок → прогон стратегий → риск-гейт → отправка
// заявок → журналирование. Перед закрытием сессии все позиции
// принудительно ликвидируются, бот не переносит риск через ночь.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"moexbot/internal/broker"
	"moexbot/internal/config"
	"moexbot/internal/marketdata"
	"moexbot/internal/models"
	"moexbot/internal/portfolio"
	"moexbot/internal/risk"
	"moexbot/internal/screener"
	"moexbot/internal/service"
	"moexbot/internal/strategy"
	"moexbot/pkg/utils"
)

// ErrNoPosition возвращается ForceClose, когда по тикеру нет открытой позиции.
var ErrNoPosition = errors.New("no open position")

// WebSocketHub - интерфейс для отправки данных клиентам
//
// Реализуется пакетом internal/websocket/Hub
// Используется для real-time обновления UI:
// - signal: сигналы стратегий в момент появления
// - orderResult: итог каждой отправленной заявки
// - positionUpdate: изменения позиций в журнале
// - engineState: переходы состояний движка и паузы
// - statsUpdate: статистика после закрытия сделки
// - screenerUpdate: свежие оценки скринера
type WebSocketHub interface {
	BroadcastSignal(intent *models.Intent)
	BroadcastOrderResult(order *models.OrderRecord)
	BroadcastPositionUpdate(pos models.Position)
	BroadcastEngineState(state string, paused bool)
	BroadcastStatsUpdate(stats *models.Stats)
	BroadcastScreenerUpdate(scores []models.StockScore)
}

// Deps - зависимости движка. Source, Transport и Params обязательны,
// остальное подключается по мере надобности (в тестах удобно оставлять nil).
type Deps struct {
	Config config.BotConfig
	Params *config.StrategyParams

	Source    marketdata.Source
	Transport broker.OrderTransport

	Orders        service.OrderServiceInterface
	Stats         service.StatsServiceInterface
	Notifications service.NotificationServiceInterface

	Hub      WebSocketHub
	Screener *screener.Screener
}

// Engine - торговый движок (цикл по расписанию сессии MOEX)
//
// Архитектура:
// - Один торговый цикл за тик FetchInterval, циклы не перекрываются
// - Обновление котировок параллельно по инструментам (errgroup)
// - Стратегии прогоняются последовательно в порядке регистрации
// - Каждое намерение проходит риск-гейт перед отправкой
// - Перед закрытием сессии позиции ликвидируются, счетчики сбрасываются
//
// Поток данных:
// ISS → PriceSeries → Strategy.OnData → Evaluate → Intent → Gate → Executor → Ledger
type Engine struct {
	cfg     config.BotConfig
	params  *config.StrategyParams
	session utils.Session

	source   marketdata.Source
	executor *OrderExecutor
	gate     *risk.Gate
	ledger   *portfolio.Ledger

	// Стратегии в порядке регистрации (детерминированный прогон)
	strategies []strategy.Strategy

	// Серии котировок по тикерам
	seriesMu    sync.RWMutex
	series      map[string]*models.PriceSeries
	instruments []string

	// Журналирование и уведомления
	orders   service.OrderServiceInterface
	stats    service.StatsServiceInterface
	notifier service.NotificationServiceInterface

	hub      WebSocketHub
	screener *screener.Screener

	// Канал уведомлений риск-гейта
	notifChan chan *models.Notification

	// execMu сериализует торговый цикл с ForceClose, ликвидацией
	// и снятием снимков стратегий: состояние стратегий не защищено
	// собственными блокировками
	execMu sync.Mutex

	// Состояние движка
	mu                  sync.RWMutex
	state               string
	paused              bool
	cycleCount          int64
	lastCycleAt         time.Time
	consecutiveFailures int

	stopOnce sync.Once
	stopCh   chan struct{}

	log *utils.Logger
	now func() time.Time
}

// Status - снимок состояния движка для API
type Status struct {
	State               string    `json:"state"`
	StateInfo           string    `json:"state_info"`
	Paused              bool      `json:"paused"`
	CycleCount          int64     `json:"cycle_count"`
	LastCycleAt         time.Time `json:"last_cycle_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	DailyTrades         int       `json:"daily_trades"`
	OpenPositions       int       `json:"open_positions"`
	TrackedInstruments  []string  `json:"tracked_instruments"`
	StrategyCount       int       `json:"strategy_count"`
}

// NewEngine создает движок из зависимостей
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("market data source is required")
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("order transport is required")
	}
	if deps.Params == nil {
		return nil, fmt.Errorf("strategy params are required")
	}

	session, err := utils.NewSession(deps.Config.SessionStart, deps.Config.SessionEnd, deps.Config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid trading session: %w", err)
	}

	notifChan := make(chan *models.Notification, 100)

	e := &Engine{
		cfg:     deps.Config,
		params:  deps.Params,
		session: session,

		source:   deps.Source,
		executor: NewOrderExecutor(deps.Transport, deps.Config.OrderTimeout, deps.Config.MaxRetries),
		ledger:   portfolio.NewLedger(),

		series: make(map[string]*models.PriceSeries),

		orders:   deps.Orders,
		stats:    deps.Stats,
		notifier: deps.Notifications,

		hub:      deps.Hub,
		screener: deps.Screener,

		notifChan: notifChan,
		state:     models.EngineIdle,
		stopCh:    make(chan struct{}),

		log: utils.L().WithComponent("engine"),
		now: time.Now,
	}

	e.gate = risk.NewGate(risk.Config{
		MaxDailyTrades:   deps.Config.MaxDailyTrades,
		MaxPositionValue: deps.Config.MaxPositionValue,
		Session:          session,
		CloseOutOffset:   deps.Config.ClosingOffset,
	}, notifChan)

	SetEngineState(e.state)
	return e, nil
}

// Run запускает движок и блокируется до остановки.
//
// Жизненный цикл: INITIALIZING (загрузка истории, прогрев стратегий) →
// RUNNING (торговые циклы по тикеру) → CLOSING (ликвидация) → STOPPED.
// Возвращает ошибку при провале инициализации, отмене контекста или
// серии подряд проваленных циклов.
func (e *Engine) Run(ctx context.Context) error {
	defer e.Stop() // любой выход завершает фоновые горутины

	if err := e.transition(models.EngineInitializing); err != nil {
		return err
	}

	if err := e.initialize(ctx); err != nil {
		e.trySetState(models.EngineError)
		e.notifyError("🛑 Engine initialization failed: %v", err)
		return fmt.Errorf("engine initialization: %w", err)
	}

	if err := e.transition(models.EngineRunning); err != nil {
		return err
	}
	e.log.Infow("engine started",
		"instruments", len(e.instruments),
		"strategies", len(e.strategies),
		"fetch_interval", e.cfg.FetchInterval.String(),
	)

	go e.consumeNotifications(ctx)
	go e.periodicTasks(ctx)

	ticker := time.NewTicker(e.cfg.FetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case <-e.stopCh:
			e.shutdown()
			return nil
		case <-ticker.C:
			if e.closeOutDue() {
				e.shutdown()
				return nil
			}
			e.cycle(ctx)
			if e.State() == models.EngineError {
				return fmt.Errorf("engine stopped after %d consecutive cycle failures", e.cfg.MaxConsecutiveFailures)
			}
		}
	}
}

// Stop просит движок остановиться. Ликвидация и переход в STOPPED
// выполняются синхронно внутри Run. Повторные вызовы безопасны.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

// closeOutDue сообщает, что до закрытия сессии осталось не больше
// терминального окна и пора ликвидироваться.
func (e *Engine) closeOutDue() bool {
	return e.session.UntilClose(e.now()) <= e.cfg.ClosingOffset
}

// ============================================================
// Инициализация
// ============================================================

// initialize загружает историю по всем инструментам и строит стратегии.
// Ошибка любого инструмента фатальна: торговать без части данных нельзя.
func (e *Engine) initialize(ctx context.Context) error {
	instruments := e.params.Instruments()
	if len(instruments) == 0 {
		return fmt.Errorf("no instruments configured")
	}

	loaded := make(map[string]*models.PriceSeries, len(instruments))
	var loadedMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshWorkers)

	for _, ticker := range instruments {
		ticker := ticker
		g.Go(func() error {
			series, err := e.source.GetHistory(gctx, ticker, e.cfg.HistoryDays)
			if err != nil {
				return fmt.Errorf("history for %s: %w", ticker, err)
			}
			if series.Len() == 0 {
				return fmt.Errorf("history for %s: empty series", ticker)
			}
			series.TrimTo(e.cfg.LookbackBars)

			loadedMu.Lock()
			loaded[ticker] = series
			loadedMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	strategies, err := buildStrategies(e.params, e.cfg)
	if err != nil {
		return err
	}
	if len(strategies) == 0 {
		return fmt.Errorf("no strategies configured")
	}

	e.seriesMu.Lock()
	e.series = loaded
	e.instruments = instruments
	e.seriesMu.Unlock()

	e.mu.Lock()
	e.strategies = strategies
	e.mu.Unlock()

	// Прогрев: стратегии читают историю до первого торгового цикла
	e.feedStrategies()

	e.log.Infow("initialization complete",
		"instruments", len(instruments),
		"strategies", len(strategies),
	)
	return nil
}

// buildStrategies строит стратегии из файла параметров: одиночные по
// секции [active] в алфавитном порядке тикеров, затем пары в порядке
// файла. Порядок фиксирует очередность прогона в цикле.
func buildStrategies(params *config.StrategyParams, cfg config.BotConfig) ([]strategy.Strategy, error) {
	opts := strategy.Options{StopATRMultiple: cfg.StopATRMultiple}

	tickers := make([]string, 0, len(params.Active))
	for ticker := range params.Active {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var strategies []strategy.Strategy
	for _, ticker := range tickers {
		for _, kind := range params.Active[ticker] {
			switch models.StrategyKind(kind) {
			case models.KindSMACrossover:
				p, ok := params.SMAFor(ticker)
				if !ok {
					return nil, fmt.Errorf("no sma_crossover params for %s", ticker)
				}
				s, err := strategy.NewSMACrossover(ticker, p, params.QuantityFor(ticker), opts)
				if err != nil {
					return nil, fmt.Errorf("sma_crossover %s: %w", ticker, err)
				}
				strategies = append(strategies, s)

			case models.KindRSIMeanReversion:
				p, ok := params.RSIFor(ticker)
				if !ok {
					return nil, fmt.Errorf("no rsi_mean_reversion params for %s", ticker)
				}
				s, err := strategy.NewRSIMeanReversion(ticker, p, params.QuantityFor(ticker), opts)
				if err != nil {
					return nil, fmt.Errorf("rsi_mean_reversion %s: %w", ticker, err)
				}
				strategies = append(strategies, s)

			default:
				return nil, fmt.Errorf("unknown strategy kind %q for %s", kind, ticker)
			}
		}
	}

	for _, pe := range params.PairTrading.Pairs {
		s, err := strategy.NewPairTrading(pe.Instrument, pe.PairParams, params.QuantityFor(pe.Instrument), opts)
		if err != nil {
			return nil, fmt.Errorf("pair_trading %s: %w", pe.Instrument, err)
		}
		strategies = append(strategies, s)
	}

	return strategies, nil
}

// feedStrategies раздает стратегиям актуальные серии котировок
func (e *Engine) feedStrategies() {
	e.seriesMu.RLock()
	defer e.seriesMu.RUnlock()

	for _, s := range e.strategies {
		if series, ok := e.series[s.Instrument()]; ok {
			s.OnData(series)
		}
		if pi := s.PairInstrument(); pi != "" {
			if series, ok := e.series[pi]; ok {
				s.SetPairData(series)
			}
		}
	}
}

// ============================================================
// Состояние движка
// ============================================================

// State возвращает текущее состояние движка
func (e *Engine) State() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Paused сообщает, приостановлена ли торговля оператором
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// transition переводит движок в состояние to с проверкой допустимости
func (e *Engine) transition(to string) error {
	e.mu.Lock()
	from := e.state
	if !CanTransition(from, to) {
		e.mu.Unlock()
		return fmt.Errorf("invalid state transition %s → %s", from, to)
	}
	e.state = to
	paused := e.paused
	e.mu.Unlock()

	SetEngineState(to)
	e.log.Infow("state changed", "from", from, "to", to)

	if e.hub != nil {
		e.hub.BroadcastEngineState(to, paused)
	}
	return nil
}

// trySetState - transition без ошибки для путей, где переход может
// быть уже выполнен (например, двойной shutdown)
func (e *Engine) trySetState(to string) bool {
	return e.transition(to) == nil
}

// Pause приостанавливает торговлю: циклы продолжают обновлять данные,
// но сигналы не исполняются. Открытые позиции не трогаем.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return
	}
	e.paused = true
	state := e.state
	e.mu.Unlock()

	e.log.Infow("trading paused")
	e.notify(models.NewNotification(models.NotificationPause, models.SeverityWarn, "⏸ Trading paused by operator"))
	if e.hub != nil {
		e.hub.BroadcastEngineState(state, true)
	}
}

// Resume возобновляет торговлю после паузы
func (e *Engine) Resume() {
	e.mu.Lock()
	if !e.paused {
		e.mu.Unlock()
		return
	}
	e.paused = false
	state := e.state
	e.mu.Unlock()

	e.log.Infow("trading resumed")
	e.notify(models.NewNotification(models.NotificationPause, models.SeverityInfo, "▶️ Trading resumed by operator"))
	if e.hub != nil {
		e.hub.BroadcastEngineState(state, false)
	}
}

// Status возвращает снимок состояния движка для API
func (e *Engine) Status() Status {
	e.mu.RLock()
	st := Status{
		State:               e.state,
		StateInfo:           StateInfo(e.state),
		Paused:              e.paused,
		CycleCount:          e.cycleCount,
		LastCycleAt:         e.lastCycleAt,
		ConsecutiveFailures: e.consecutiveFailures,
		StrategyCount:       len(e.strategies),
	}
	e.mu.RUnlock()

	st.DailyTrades = e.gate.DailyCount()
	st.OpenPositions = e.ledger.OpenCount()

	e.seriesMu.RLock()
	st.TrackedInstruments = append([]string(nil), e.instruments...)
	e.seriesMu.RUnlock()

	return st
}

// StrategySnapshots возвращает снимки всех стратегий.
// Сериализуется с торговым циклом: состояние стратегий без блокировок.
func (e *Engine) StrategySnapshots() []strategy.Snapshot {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	snaps := make([]strategy.Snapshot, 0, len(e.strategies))
	for _, s := range e.strategies {
		snaps = append(snaps, s.Snapshot())
	}
	return snaps
}

// Positions возвращает открытые позиции журнала
func (e *Engine) Positions() []models.Position {
	return e.ledger.All()
}

// ============================================================
// Ручное управление позициями
// ============================================================

// ForceClose принудительно закрывает позицию по тикеру рыночной
// заявкой. Стратегии этого инструмента сбрасываются, чтобы их
// состояние не разошлось с журналом.
func (e *Engine) ForceClose(ticker string) error {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	pos, ok := e.ledger.Position(ticker)
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoPosition, ticker)
	}

	side := models.OrderSideSell
	if pos.Quantity < 0 {
		side = models.OrderSideBuy
	}
	lots := absInt(pos.Quantity)
	price := e.lastPrice(ticker)

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.OrderTimeout)
	defer cancel()

	err := e.executor.Submit(ctx, ticker, side, lots)
	RecordOrder(ticker, side, err)
	e.journalOrder("manual", ticker, side, lots, price, string(models.ReasonLiquidation), err)
	if err != nil {
		return fmt.Errorf("force close %s: %w", ticker, err)
	}

	closed, _ := e.ledger.ClosePosition(ticker)
	pnl := (price - closed.AvgEntryPrice) * float64(closed.Quantity)

	e.journalTradeRow(&models.Trade{
		StrategyID: "manual",
		Ticker:     ticker,
		Quantity:   closed.Quantity,
		EntryPrice: closed.AvgEntryPrice,
		ExitPrice:  price,
		Pnl:        pnl,
		EntryTime:  closed.OpenedAt,
		ExitTime:   e.now(),
	})

	// Стратегии на этом инструменте начинают с чистого листа
	for _, s := range e.strategies {
		if s.Instrument() == ticker || s.PairInstrument() == ticker {
			s.Reset()
		}
	}

	e.log.Infow("position force closed", "ticker", ticker, "lots", lots, "pnl", pnl)
	e.notify(models.NewNotification(models.NotificationLiquidation, models.SeverityWarn,
		fmt.Sprintf("Position %s force closed: %d lots, PnL %.2f", ticker, lots, pnl)).
		WithTicker(ticker).WithStrategy("manual"))

	if e.hub != nil {
		e.hub.BroadcastPositionUpdate(models.Position{Ticker: ticker})
	}
	UpdatePortfolio(e.ledger.OpenCount(), e.gate.DailyCount())
	return nil
}

// ============================================================
// Фоновые горутины
// ============================================================

// consumeNotifications пересылает уведомления риск-гейта в сервис
// уведомлений (журнал + push клиентам)
func (e *Engine) consumeNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case n := <-e.notifChan:
			e.notify(n)
		}
	}
}

// periodicTasks - периодические задачи (НЕ влияют на торговлю)
func (e *Engine) periodicTasks(ctx context.Context) {
	if e.screener == nil {
		return
	}

	interval := e.cfg.ScreenerInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.runScreener(ctx)
		}
	}
}

// runScreener пересчитывает оценки скринера и рассылает их клиентам
func (e *Engine) runScreener(ctx context.Context) {
	res, err := e.screener.ScanAll(ctx)
	if err != nil {
		e.log.Warnw("screener scan failed", "error", err)
		return
	}
	if e.hub != nil {
		e.hub.BroadcastScreenerUpdate(res.Scores)
	}
}

// ============================================================
// Вспомогательные методы
// ============================================================

// notify пишет уведомление через сервис: сервис сам журналирует его
// и рассылает WebSocket клиентам
func (e *Engine) notify(n *models.Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.CreateNotification(n); err != nil {
		e.log.Warnw("notification write failed", "type", string(n.Type), "error", err)
	}
}

// notifyError создает ERROR уведомление
func (e *Engine) notifyError(format string, args ...interface{}) {
	e.notify(models.NewNotification(models.NotificationError, models.SeverityError, fmt.Sprintf(format, args...)))
}

// lastPrice возвращает последнее закрытие по тикеру (0, если серии нет)
func (e *Engine) lastPrice(ticker string) float64 {
	e.seriesMu.RLock()
	defer e.seriesMu.RUnlock()
	return e.series[ticker].LastClose()
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
