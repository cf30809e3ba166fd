package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"moexbot/pkg/utils"
)

// Config - полная конфигурация бота, собранная из окружения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Bot      BotConfig
	Logging  LoggingConfig
}

// ServerConfig - HTTP сервер панели управления
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - подключение к Postgres
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - секреты, не относящиеся к конкретному транспорту
type SecurityConfig struct {
	// Ключ AES-256 для расшифровки токена брокера (когда токен хранится
	// в зашифрованном виде). Обязателен при VENUE_TOKEN_ENCRYPTED=true.
	EncryptionKey string
}

// BotConfig - настройки торгового движка
type BotConfig struct {
	// Рыночные данные
	FetchInterval time.Duration // период опроса ISS за новыми свечами
	HistoryDays   int           // глубина начальной загрузки истории (календарных дней)
	LookbackBars  int           // сколько баров держим в памяти на инструмент
	ISSBaseURL    string        // база MOEX ISS (переопределяется в тестах)

	// Торговая сессия (биржевое время)
	SessionStart  string // HH:MM:SS
	SessionEnd    string // HH:MM:SS
	Timezone      string
	ClosingOffset time.Duration // за сколько до закрытия начинаем ликвидацию

	// Риск-лимиты
	MaxDailyTrades   int
	MaxPositionValue float64
	StopATRMultiple  float64

	// Исполнение ордеров
	VenueURL            string // база брокерского шлюза
	VenueBotID          string // идентификатор бота в шлюзе
	VenueToken          string // bearer токен (возможно зашифрованный)
	VenueTokenEncrypted bool
	OrderTimeout        time.Duration
	MaxRetries          int

	// Управление циклом
	CycleCooldown          time.Duration // пауза после упавшего цикла
	MaxConsecutiveFailures int           // после скольких подряд падений останавливаемся

	// Скринер
	ScreenerInterval time.Duration
	ScreenerTickers  []string // вселенная тикеров (через запятую в env)

	// Файл с параметрами стратегий (TOML)
	ParamsFile string
}

// LoggingConfig - уровень и формат логов
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения.
// Файл .env (если есть) подхватывается до чтения переменных.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("TLS_CERT_FILE", ""),
			KeyFile:  getEnv("TLS_KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "moexbot"),
			User:     getEnv("DB_USER", "moexbot"),
			Password: getEnv("DB_PASSWORD", "moexbot"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Bot: BotConfig{
			// Рыночные данные: дневные свечи, опрос раз в минуту
			FetchInterval: getEnvAsDuration("FETCH_INTERVAL", 1*time.Minute),
			HistoryDays:   getEnvAsInt("HISTORY_DAYS", 365),
			LookbackBars:  getEnvAsInt("LOOKBACK_BARS", 300),
			ISSBaseURL:    getEnv("ISS_BASE_URL", "https://iss.moex.com"),

			// Основная сессия фондового рынка MOEX
			SessionStart:  getEnv("SESSION_START", "10:00:00"),
			SessionEnd:    getEnv("SESSION_END", "18:45:00"),
			Timezone:      getEnv("EXCHANGE_TIMEZONE", utils.DefaultExchangeTimezone),
			ClosingOffset: getEnvAsDuration("CLOSING_OFFSET", 5*time.Minute),

			// Риск-лимиты
			MaxDailyTrades:   getEnvAsInt("MAX_DAILY_TRADES", 200),
			MaxPositionValue: getEnvAsFloat("MAX_POSITION_VALUE", 200_000),
			StopATRMultiple:  getEnvAsFloat("STOP_ATR_MULTIPLE", 2.0),

			// Исполнение
			VenueURL:            getEnv("VENUE_URL", ""),
			VenueBotID:          getEnv("VENUE_BOT_ID", "moexbot"),
			VenueToken:          getEnv("VENUE_TOKEN", ""),
			VenueTokenEncrypted: getEnvAsBool("VENUE_TOKEN_ENCRYPTED", false),
			OrderTimeout:        getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
			MaxRetries:          getEnvAsInt("MAX_RETRIES", 4),

			// Цикл
			CycleCooldown:          getEnvAsDuration("CYCLE_COOLDOWN", 5*time.Second),
			MaxConsecutiveFailures: getEnvAsInt("MAX_CONSECUTIVE_FAILURES", 5),

			// Скринер
			ScreenerInterval: getEnvAsDuration("SCREENER_INTERVAL", 30*time.Minute),
			ScreenerTickers:  getEnvAsSlice("SCREENER_TICKERS", nil),

			ParamsFile: getEnv("STRATEGY_PARAMS_FILE", "strategies.toml"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateSecurity следит, чтобы движок не стартовал без доступа к шлюзу
func (c *Config) validateSecurity() error {
	// VENUE_TOKEN обязателен: без него шлюз отклонит любой ордер
	if c.Bot.VenueToken == "" {
		return fmt.Errorf("VENUE_TOKEN is required for order submission")
	}

	if c.Bot.VenueURL == "" {
		return fmt.Errorf("VENUE_URL is required for order submission")
	}

	// Ключ шифрования нужен только когда токен хранится зашифрованным
	if c.Bot.VenueTokenEncrypted {
		if c.Security.EncryptionKey == "" {
			return fmt.Errorf("ENCRYPTION_KEY is required when VENUE_TOKEN_ENCRYPTED=true")
		}
		if n := len(c.Security.EncryptionKey); n != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes for AES-256, got %d", n)
		}
	}

	return nil
}

// validateRanges отсеивает значения, с которыми движок не сможет работать
func (c *Config) validateRanges() error {
	if err := portInRange("SERVER_PORT", c.Server.Port); err != nil {
		return err
	}
	if err := portInRange("DB_PORT", c.Database.Port); err != nil {
		return err
	}

	// Торговая сессия: NewSession проверяет формат HH:MM:SS, таймзону
	// и порядок start < end
	if _, err := utils.NewSession(c.Bot.SessionStart, c.Bot.SessionEnd, c.Bot.Timezone); err != nil {
		return fmt.Errorf("invalid trading session: %w", err)
	}

	if c.Bot.ClosingOffset < 0 {
		return fmt.Errorf("CLOSING_OFFSET cannot be negative, got %v", c.Bot.ClosingOffset)
	}

	// Рыночные данные
	if c.Bot.FetchInterval <= 0 {
		return fmt.Errorf("FETCH_INTERVAL must be positive, got %v", c.Bot.FetchInterval)
	}

	if c.Bot.HistoryDays < 1 {
		return fmt.Errorf("HISTORY_DAYS must be at least 1, got %d", c.Bot.HistoryDays)
	}

	if c.Bot.LookbackBars < 50 {
		return fmt.Errorf("LOOKBACK_BARS must be at least 50 to cover indicator windows, got %d", c.Bot.LookbackBars)
	}

	// Риск-лимиты
	if c.Bot.MaxDailyTrades < 1 {
		return fmt.Errorf("MAX_DAILY_TRADES must be at least 1, got %d", c.Bot.MaxDailyTrades)
	}

	if c.Bot.MaxPositionValue <= 0 {
		return fmt.Errorf("MAX_POSITION_VALUE must be positive, got %v", c.Bot.MaxPositionValue)
	}

	if c.Bot.StopATRMultiple <= 0 {
		return fmt.Errorf("STOP_ATR_MULTIPLE must be positive, got %v", c.Bot.StopATRMultiple)
	}

	// Исполнение
	if c.Bot.MaxRetries < 0 || c.Bot.MaxRetries > 10 {
		return fmt.Errorf("MAX_RETRIES must be in range 0..10, got %d", c.Bot.MaxRetries)
	}

	if c.Bot.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be a positive duration, got %v", c.Bot.OrderTimeout)
	}

	if c.Bot.CycleCooldown < 0 {
		return fmt.Errorf("CYCLE_COOLDOWN cannot be negative, got %v", c.Bot.CycleCooldown)
	}

	if c.Bot.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_FAILURES must be at least 1, got %d", c.Bot.MaxConsecutiveFailures)
	}

	if c.Bot.ScreenerInterval <= 0 {
		return fmt.Errorf("SCREENER_INTERVAL must be positive, got %v", c.Bot.ScreenerInterval)
	}

	return nil
}

// Session собирает торговую сессию из настроек.
// Вызывать после успешного Load: параметры уже проверены.
func (c *Config) Session() utils.Session {
	s, _ := utils.NewSession(c.Bot.SessionStart, c.Bot.SessionEnd, c.Bot.Timezone)
	return s
}

// DSN собирает строку подключения для lib/pq
func (d DatabaseConfig) DSN() string {
	return d.dsn(true)
}

// DSNWithoutPassword - вариант DSN, пригодный для логов
func (d DatabaseConfig) DSNWithoutPassword() string {
	return d.dsn(false)
}

func (d DatabaseConfig) dsn(withPassword bool) string {
	parts := []string{"host=" + d.Host, "port=" + strconv.Itoa(d.Port), "user=" + d.User}
	if withPassword {
		parts = append(parts, "password="+d.Password)
	}
	parts = append(parts, "dbname="+d.Name, "sslmode="+d.SSLMode)
	return strings.Join(parts, " ")
}

func portInRange(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be in range 1..65535, got %d", name, port)
	}
	return nil
}

// Чтение окружения: пустая переменная или мусор в значении
// означает откат к значению по умолчанию.

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsSlice(key string, fallback []string) []string {
	var parts []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if parts == nil {
		return fallback
	}
	return parts
}
