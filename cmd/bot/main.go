package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"moexbot/internal/api"
	"moexbot/internal/broker"
	"moexbot/internal/config"
	"moexbot/internal/engine"
	"moexbot/internal/marketdata"
	"moexbot/internal/repository"
	"moexbot/internal/screener"
	"moexbot/internal/service"
	"moexbot/internal/websocket"
	"moexbot/pkg/crypto"
	"moexbot/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Логгер поднимается первым: дальше все компоненты пишут через него
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	// Параметры стратегий из TOML-файла
	params, err := config.LoadParams(cfg.Bot.ParamsFile)
	if err != nil {
		log.Fatalf("load strategy params: %v", err)
	}

	// Токен брокерского шлюза в проде хранится зашифрованным
	venueToken := cfg.Bot.VenueToken
	if cfg.Bot.VenueTokenEncrypted {
		venueToken, err = crypto.DecryptWithKeyString(cfg.Bot.VenueToken, cfg.Security.EncryptionKey)
		if err != nil {
			log.Fatalf("decrypt venue token: %v", err)
		}
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer db.Close()

	utils.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	orderRepo := repository.NewOrderRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	orderService := service.NewOrderService(orderRepo)
	statsService := service.NewStatsService(tradeRepo)
	notificationService := service.NewNotificationService(notificationRepo)

	// WebSocket hub для real-time обновлений панели
	hub := websocket.NewHub()
	go hub.Run()

	orderService.SetWebSocketHub(hub)
	statsService.SetWebSocketHub(hub)
	notificationService.SetWebSocketHub(hub)

	// Клиент MOEX ISS и транспорт заявок. Шлюз переиспользует
	// глобальный HTTP-пул вместо собственного клиента.
	issClient := marketdata.NewISSClient(cfg.Bot.ISSBaseURL)
	venueClient := broker.NewVenueClient(
		cfg.Bot.VenueURL,
		cfg.Bot.VenueBotID,
		venueToken,
		marketdata.GetGlobalHTTPClient().GetClient(),
	)
	defer marketdata.CloseGlobalClient()

	// Скринер: явный список тикеров из env или встроенная вселенная
	universe := cfg.Bot.ScreenerTickers
	if len(universe) == 0 {
		universe = screener.DefaultUniverse
	}
	scr := screener.New(issClient, universe)

	eng, err := engine.NewEngine(engine.Deps{
		Config:        cfg.Bot,
		Params:        params,
		Source:        issClient,
		Transport:     venueClient,
		Orders:        orderService,
		Stats:         statsService,
		Notifications: notificationService,
		Hub:           hub,
		Screener:      scr,
	})
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	router := api.NewRouter(&api.Dependencies{
		Engine:              eng,
		OrderService:        orderService,
		StatsService:        statsService,
		NotificationService: notificationService,
		Screener:            scr,
		Hub:                 hub,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serve := server.ListenAndServe
	if cfg.Server.UseHTTPS {
		serve = func() error {
			return server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		}
	}
	go func() {
		utils.Info("starting control server",
			utils.String("addr", server.Addr),
			utils.Bool("tls", cfg.Server.UseHTTPS),
		)
		if err := serve(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("control server: %v", err)
		}
	}()

	// Ждем сигнал ОС или самостоятельную остановку движка
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		utils.Info("shutdown signal received", utils.String("signal", sig.String()))
		// Сначала останавливается торговля: Run ликвидирует позиции
		// и вернется только после перехода в STOPPED
		eng.Stop()
		if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
			utils.Error("engine stopped with error", utils.Err(err))
		}
	case err := <-engineDone:
		if err != nil {
			utils.Error("engine exited, shutting down", utils.Err(err))
		} else {
			utils.Info("engine exited, shutting down")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.Error("server forced to shutdown", utils.Err(err))
	}

	hub.Stop()

	utils.Info("bot exited")
}

// openDB подключается к Postgres и проверяет соединение пингом.
func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}
