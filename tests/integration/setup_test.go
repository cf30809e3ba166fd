// Интеграционные тесты: полные цепочки handler -> service -> repository
// поверх живого Postgres и httptest сервера. Подключение берется из
// переменных TEST_DB_*; если база недоступна, тесты снимаются через
// Skip, поэтому go test ./tests/integration/... безопасен и без нее.
package integration

import (
	"database/sql"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"moexbot/internal/api"
	"moexbot/internal/repository"
	"moexbot/internal/service"
	"moexbot/internal/websocket"

	_ "github.com/lib/pq"
)

// env - интеграционный стенд: база, репозитории, сервисы, hub и
// httptest сервер поверх собранного роутера. Остановку каждый
// компонент вешает на t.Cleanup, отдельного teardown у стенда нет.
type env struct {
	db     *sql.DB
	server *httptest.Server
	hub    *websocket.Hub

	orders        *repository.OrderRepository
	trades        *repository.TradeRepository
	notifications *repository.NotificationRepository

	orderSvc *service.OrderService
	statsSvc *service.StatsService
	notifSvc *service.NotificationService
}

// testDSN собирает строку подключения из TEST_DB_* с откатом на
// локальную базу moexbot_test.
func testDSN() string {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	params := []string{
		"host=" + get("TEST_DB_HOST", "localhost"),
		"port=" + get("TEST_DB_PORT", "5432"),
		"user=" + get("TEST_DB_USER", "postgres"),
		"password=" + get("TEST_DB_PASSWORD", "postgres"),
		"dbname=" + get("TEST_DB_NAME", "moexbot_test"),
		"sslmode=" + get("TEST_DB_SSLMODE", "disable"),
	}
	return strings.Join(params, " ")
}

// openTestDB подключается к тестовой базе или снимает тест.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", testDSN())
	if err == nil {
		err = db.Ping()
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		t.Skipf("integration tests need Postgres, set TEST_DB_*: %v", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("closing test database: %v", closeErr)
		}
	})
	return db
}

// newEnv поднимает стенд целиком. Движок и скринер остаются nil: им
// нужны живые котировки, их покрывают тесты пакета engine с фейковым
// источником.
func newEnv(t *testing.T) *env {
	t.Helper()

	db := openTestDB(t)
	mustCreateSchema(t, db)
	truncateAll(db)

	hub := websocket.NewHub()
	go hub.Run()

	e := &env{
		db:            db,
		hub:           hub,
		orders:        repository.NewOrderRepository(db),
		trades:        repository.NewTradeRepository(db),
		notifications: repository.NewNotificationRepository(db),
	}
	e.orderSvc = service.NewOrderService(e.orders)
	e.statsSvc = service.NewStatsService(e.trades)
	e.notifSvc = service.NewNotificationService(e.notifications)
	e.orderSvc.SetWebSocketHub(hub)
	e.statsSvc.SetWebSocketHub(hub)
	e.notifSvc.SetWebSocketHub(hub)

	e.server = httptest.NewServer(api.NewRouter(&api.Dependencies{
		OrderService:        e.orderSvc,
		StatsService:        e.statsSvc,
		NotificationService: e.notifSvc,
		Hub:                 hub,
	}))

	t.Cleanup(func() {
		e.server.Close()
		hub.Stop()
		truncateAll(db)
	})
	return e
}

// schemaDDL повторяет боевой DDL в объеме, который нужен тестам.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		strategy_id VARCHAR(50) NOT NULL,
		ticker VARCHAR(12) NOT NULL,
		side VARCHAR(4) NOT NULL,
		lots INT NOT NULL,
		price DECIMAL(20, 6) NOT NULL,
		status VARCHAR(20) NOT NULL,
		reason VARCHAR(20) NOT NULL DEFAULT 'signal',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id SERIAL PRIMARY KEY,
		strategy_id VARCHAR(50) NOT NULL,
		ticker VARCHAR(12) NOT NULL,
		quantity INT NOT NULL,
		entry_price DECIMAL(20, 6) NOT NULL,
		exit_price DECIMAL(20, 6) NOT NULL,
		pnl DECIMAL(14, 2) NOT NULL DEFAULT 0,
		entry_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		exit_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		was_stop_loss BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id SERIAL PRIMARY KEY,
		type VARCHAR(20) NOT NULL,
		severity VARCHAR(10) NOT NULL DEFAULT 'info',
		ticker VARCHAR(12) NOT NULL DEFAULT '',
		strategy_id VARCHAR(50) NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// mustCreateSchema накатывает таблицы; отказ DDL означает, что база
// есть, но не наша - снимаем тест, а не валим его.
func mustCreateSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			t.Skipf("schema init failed: %v", err)
		}
	}
}

func truncateAll(db *sql.DB) {
	for _, table := range []string{"trades", "orders", "notifications"} {
		truncate(db, table)
	}
}

// truncate очищает одну таблицу между тестами.
func truncate(db *sql.DB, table string) error {
	_, err := db.Exec("TRUNCATE TABLE " + table + " CASCADE")
	return err
}
