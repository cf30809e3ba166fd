package handlers

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"moexbot/internal/engine"
	"moexbot/internal/models"
	"moexbot/internal/screener"
	"moexbot/internal/service"
	"moexbot/internal/strategy"
	"moexbot/pkg/utils"
)

// ============ Mock Engine ============

// MockEngine - управляемая замена EngineController
type MockEngine struct {
	status      engine.Status
	snapshots   []strategy.Snapshot
	positions   []models.Position
	pauseCalls  int
	resumeCalls int
	closed      []string
	failClose   error
	mu          sync.Mutex
}

// NewMockEngine возвращает мок движка в состоянии RUNNING
func NewMockEngine() *MockEngine {
	return &MockEngine{
		status: engine.Status{
			State:     models.EngineRunning,
			StateInfo: "Торговый цикл активен",
		},
	}
}

func (m *MockEngine) Status() engine.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MockEngine) StrategySnapshots() []strategy.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots
}

func (m *MockEngine) Positions() []models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions
}

func (m *MockEngine) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	m.status.Paused = true
}

func (m *MockEngine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCalls++
	m.status.Paused = false
}

func (m *MockEngine) ForceClose(ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failClose != nil {
		return m.failClose
	}
	m.closed = append(m.closed, ticker)
	return nil
}

// SetStatus подменяет состояние движка целиком
func (m *MockEngine) SetStatus(status engine.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// SetPositions подменяет открытые позиции
func (m *MockEngine) SetPositions(positions []models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = positions
}

// SetSnapshots подменяет снимки стратегий
func (m *MockEngine) SetSnapshots(snapshots []strategy.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = snapshots
}

// SetCloseError заставляет ForceClose падать с err
func (m *MockEngine) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failClose = err
}

// ClosedTickers перечисляет тикеры, закрытые через ForceClose
func (m *MockEngine) ClosedTickers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.closed...)
}

// PauseCalls считает вызовы Pause
func (m *MockEngine) PauseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseCalls
}

// ResumeCalls считает вызовы Resume
func (m *MockEngine) ResumeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumeCalls
}

// ============ Mock Order Service ============

// MockOrderService - in-memory замена OrderServiceInterface
type MockOrderService struct {
	orders   []*models.OrderRecord
	failRead error
	nextID   int
	mu       sync.RWMutex
}

// NewMockOrderService возвращает пустой журнал заявок
func NewMockOrderService() *MockOrderService {
	return &MockOrderService{nextID: 1}
}

func (m *MockOrderService) RecordOrder(order *models.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order.ID = m.nextID
	m.nextID++
	m.orders = append(m.orders, order)
	return nil
}

func (m *MockOrderService) GetOrders(strategyID, ticker string, limit int) ([]*models.OrderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failRead != nil {
		return nil, m.failRead
	}

	out := make([]*models.OrderRecord, 0, len(m.orders))
	for _, o := range m.orders {
		if strategyID != "" && o.StrategyID != strategyID {
			continue
		}
		if ticker != "" && o.Ticker != ticker {
			continue
		}
		out = append(out, o)
	}
	return capList(out, limit), nil
}

func (m *MockOrderService) GetOrderCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failRead != nil {
		return 0, m.failRead
	}
	return len(m.orders), nil
}

func (m *MockOrderService) GetRejectedCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failRead != nil {
		return 0, m.failRead
	}

	rejected := 0
	for _, o := range m.orders {
		if o.Status == models.OrderStatusRejected {
			rejected++
		}
	}
	return rejected, nil
}

// SetError заставляет все операции чтения падать с err
func (m *MockOrderService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead = err
}

// AddOrder кладет заявку в журнал в обход RecordOrder
func (m *MockOrderService) AddOrder(strategyID, ticker, side string, lots int, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders = append(m.orders, &models.OrderRecord{
		ID:         m.nextID,
		StrategyID: strategyID,
		Ticker:     ticker,
		Side:       side,
		Lots:       lots,
		Status:     status,
		CreatedAt:  time.Now(),
	})
	m.nextID++
}

// ============ Mock Stats Service ============

// MockStatsService - in-memory замена StatsServiceInterface
type MockStatsService struct {
	stats      *models.Stats
	topTickers []models.TickerStat
	trades     []*models.Trade
	failGet    error
	failTop    error
	failTrades error
	mu         sync.RWMutex
}

// NewMockStatsService возвращает мок с нулевой статистикой
func NewMockStatsService() *MockStatsService {
	return &MockStatsService{stats: &models.Stats{}}
}

func (m *MockStatsService) GetStats(period utils.PeriodType) (*models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failGet != nil {
		return nil, m.failGet
	}
	return m.stats, nil
}

func (m *MockStatsService) GetTopTickers(period utils.PeriodType, limit int) ([]models.TickerStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failTop != nil {
		return nil, m.failTop
	}
	return capList(m.topTickers, limit), nil
}

func (m *MockStatsService) GetTrades(strategyID, ticker string, limit int) ([]*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failTrades != nil {
		return nil, m.failTrades
	}

	out := make([]*models.Trade, 0, len(m.trades))
	for _, t := range m.trades {
		if strategyID != "" && t.StrategyID != strategyID {
			continue
		}
		if ticker != "" && t.Ticker != ticker {
			continue
		}
		out = append(out, t)
	}
	return capList(out, limit), nil
}

func (m *MockStatsService) RecordTrade(trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

// SetError ломает одну из операций: "get", "top" или "trades"
func (m *MockStatsService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "get":
		m.failGet = err
	case "top":
		m.failTop = err
	case "trades":
		m.failTrades = err
	}
}

// SetStats подменяет агрегированную статистику
func (m *MockStatsService) SetStats(stats *models.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = stats
}

// SetTopTickers подменяет топ инструментов
func (m *MockStatsService) SetTopTickers(top []models.TickerStat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topTickers = top
}

// ============ Mock Notification Service ============

// MockNotificationService - in-memory замена NotificationServiceInterface.
// Уведомления хранятся в порядке добавления, старые первыми.
type MockNotificationService struct {
	notifications []*models.Notification
	failCreate    error
	failGet       error
	failClear     error
	nextID        int
	mu            sync.RWMutex
}

// NewMockNotificationService возвращает пустую ленту уведомлений
func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{nextID: 1}
}

func (m *MockNotificationService) GetNotifications(types []string, limit int) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failGet != nil {
		return nil, m.failGet
	}

	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	out := make([]*models.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		if len(want) == 0 || want[string(n.Type)] {
			out = append(out, n)
		}
	}
	return capList(out, limit), nil
}

func (m *MockNotificationService) ClearNotifications() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failClear != nil {
		return m.failClear
	}
	m.notifications = nil
	return nil
}

func (m *MockNotificationService) CreateNotification(notif *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreate != nil {
		return m.failCreate
	}

	notif.ID = m.nextID
	m.nextID++
	notif.Timestamp = time.Now()
	m.notifications = append(m.notifications, notif)
	return nil
}

func (m *MockNotificationService) GetNotificationCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failGet != nil {
		return 0, m.failGet
	}
	return len(m.notifications), nil
}

// SetError ломает одну из операций: "create", "get" или "clear"
func (m *MockNotificationService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "create":
		m.failCreate = err
	case "get":
		m.failGet = err
	case "clear":
		m.failClear = err
	}
}

// AddNotification кладет уведомление в ленту в обход CreateNotification
func (m *MockNotificationService) AddNotification(notifType models.NotificationType, severity, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications = append(m.notifications, &models.Notification{
		ID:        m.nextID,
		Type:      notifType,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	})
	m.nextID++
}

// ============ Mock Screener ============

// MockScreener - управляемая замена ScreenerService
type MockScreener struct {
	result      *screener.Result
	scores      map[string]*models.StockScore
	universe    []string
	failScan    error
	failAnalyze error
	scanCalls   int
	mu          sync.Mutex
}

// NewMockScreener возвращает скринер с маленькой тестовой вселенной
func NewMockScreener() *MockScreener {
	return &MockScreener{
		scores:   make(map[string]*models.StockScore),
		universe: []string{"SBER", "GAZP", "LKOH"},
	}
}

func (m *MockScreener) ScanAll(ctx context.Context) (*screener.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scanCalls++
	if m.failScan != nil {
		return nil, m.failScan
	}

	if m.result == nil {
		m.result = &screener.Result{
			Scores:    []models.StockScore{},
			ScannedAt: time.Now(),
		}
	}
	return m.result, nil
}

func (m *MockScreener) LastResult() *screener.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

func (m *MockScreener) AnalyzeTicker(ctx context.Context, ticker string) (*models.StockScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAnalyze != nil {
		return nil, m.failAnalyze
	}

	score, ok := m.scores[ticker]
	if !ok {
		return nil, errors.New("insufficient history for " + ticker)
	}
	return score, nil
}

func (m *MockScreener) Universe() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.universe...)
}

// SetResult подменяет последний результат сканирования
func (m *MockScreener) SetResult(result *screener.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
}

// SetScore подменяет оценку одного тикера
func (m *MockScreener) SetScore(ticker string, score *models.StockScore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[ticker] = score
}

// SetError ломает одну из операций: "scan" или "analyze"
func (m *MockScreener) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "scan":
		m.failScan = err
	case "analyze":
		m.failAnalyze = err
	}
}

// ScanCalls считает вызовы ScanAll
func (m *MockScreener) ScanCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanCalls
}

// ============ Общее для тестов пакета ============

// callJSON прогоняет запрос через handler напрямую, без роутера,
// проверяет статус и декодирует JSON тело в out (если out != nil).
func callJSON(t *testing.T, h http.HandlerFunc, method, target string, wantCode int, out interface{}) {
	t.Helper()

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(method, target, nil))

	if w.Code != wantCode {
		t.Fatalf("%s %s: expected status %d, got %d", method, target, wantCode, w.Code)
	}
	if out != nil {
		if err := stdjson.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
}

// capList обрезает список до limit; ноль и меньше - без ограничения
func capList[T any](list []T, limit int) []T {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

var (
	ErrMockDatabase = errors.New("mock database error")
	ErrMockService  = errors.New("mock service error")
)

var _ EngineController = (*MockEngine)(nil)
var _ service.OrderServiceInterface = (*MockOrderService)(nil)
var _ service.StatsServiceInterface = (*MockStatsService)(nil)
var _ service.NotificationServiceInterface = (*MockNotificationService)(nil)
var _ ScreenerService = (*MockScreener)(nil)
