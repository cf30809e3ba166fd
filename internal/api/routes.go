package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moexbot/internal/api/handlers"
	"moexbot/internal/api/middleware"
	"moexbot/internal/service"
	"moexbot/internal/websocket"
)

// Dependencies - все, что нужно HTTP слою. Nil поле означает, что
// соответствующая группа маршрутов не регистрируется (так тесты
// поднимают урезанный сервер без движка или без базы).
type Dependencies struct {
	Engine              handlers.EngineController
	OrderService        service.OrderServiceInterface
	StatsService        service.StatsServiceInterface
	NotificationService service.NotificationServiceInterface
	Screener            handlers.ScreenerService
	Hub                 *websocket.Hub
}

// NewRouter собирает весь роутер бота.
//
// Карта маршрутов:
//
// /api/v1/
//
//	├── GET  /status - состояние движка
//	├── GET  /strategies - снимки стратегий
//	├── GET  /positions - открытые позиции
//	├── POST /positions/{ticker}/close - принудительно закрыть позицию
//	├── /engine/
//	│   ├── POST /pause - приостановить торговлю
//	│   └── POST /resume - возобновить торговлю
//	├── /orders/
//	│   ├── GET / - журнал заявок
//	│   └── GET /summary - счетчики заявок
//	├── /notifications/
//	│   ├── GET / - получить уведомления
//	│   └── DELETE / - очистить журнал
//	├── /stats/
//	│   ├── GET / - агрегированная статистика
//	│   └── GET /top-tickers - лучшие тикеры по PnL
//	├── GET  /trades - журнал закрытых сделок
//	└── /screener/
//	    ├── GET  / - последний результат сканирования
//	    ├── POST /scan - запустить сканирование
//	    ├── GET  /universe - сканируемые тикеры
//	    └── GET  /{ticker} - оценка одного тикера
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics - Prometheus метрики
// /debug/pprof/* - профилировщик (за DebugAuth)
// /health - проверка живости
//
// Порядок глобальных middleware: Recovery -> Logging -> CORS;
// DebugAuth вешается только на /debug.
func NewRouter(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	api := router.PathPrefix("/api/v1").Subrouter()

	if deps.Engine != nil {
		h := handlers.NewEngineHandler(deps.Engine)
		api.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
		api.HandleFunc("/strategies", h.GetStrategies).Methods(http.MethodGet)
		api.HandleFunc("/positions", h.GetPositions).Methods(http.MethodGet)
		api.HandleFunc("/positions/{ticker}/close", h.ForceClose).Methods(http.MethodPost)
		api.HandleFunc("/engine/pause", h.PauseEngine).Methods(http.MethodPost)
		api.HandleFunc("/engine/resume", h.ResumeEngine).Methods(http.MethodPost)
	}

	if deps.OrderService != nil {
		h := handlers.NewOrderHandler(deps.OrderService)
		api.HandleFunc("/orders", h.GetOrders).Methods(http.MethodGet)
		api.HandleFunc("/orders/summary", h.GetSummary).Methods(http.MethodGet)
	}

	if deps.NotificationService != nil {
		h := handlers.NewNotificationHandler(deps.NotificationService)
		api.HandleFunc("/notifications", h.GetNotifications).Methods(http.MethodGet)
		api.HandleFunc("/notifications", h.ClearNotifications).Methods(http.MethodDelete)
	}

	if deps.StatsService != nil {
		h := handlers.NewStatsHandler(deps.StatsService)
		api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
		api.HandleFunc("/stats/top-tickers", h.GetTopTickers).Methods(http.MethodGet)
		api.HandleFunc("/trades", h.GetTrades).Methods(http.MethodGet)
	}

	// Фиксированный /screener/universe регистрируем раньше /screener/{ticker},
	// иначе он перехватится шаблоном с переменной
	if deps.Screener != nil {
		h := handlers.NewScreenerHandler(deps.Screener)
		api.HandleFunc("/screener", h.GetResult).Methods(http.MethodGet)
		api.HandleFunc("/screener/scan", h.RunScan).Methods(http.MethodPost)
		api.HandleFunc("/screener/universe", h.GetUniverse).Methods(http.MethodGet)
		api.HandleFunc("/screener/{ticker}", h.GetTicker).Methods(http.MethodGet)
	}

	if hub := deps.Hub; hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Профилировщик за basic auth
	debug := router.PathPrefix("/debug").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/pprof/", pprof.Index)
	debug.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	debug.HandleFunc("/pprof/profile", pprof.Profile)
	debug.HandleFunc("/pprof/symbol", pprof.Symbol)
	debug.HandleFunc("/pprof/trace", pprof.Trace)
	debug.PathPrefix("/pprof/").HandlerFunc(pprof.Index)

	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)

	return router
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
