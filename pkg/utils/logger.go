package utils

// Структурированное логирование: zap с выбором формата (JSON, text),
// уровня и ротацией лог-файлов через lumberjack. Глобальный логгер
// доступен через L() и лениво создается с настройками по умолчанию,
// поэтому компоненты могут логировать до явной инициализации.

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig - конфигурация логирования
type LogConfig struct {
	// Уровень: debug, info, warn, error, fatal. По умолчанию info.
	Level string

	// Формат: json или text. По умолчанию json.
	Format string

	// Путь к лог-файлу. Пустая строка означает stderr.
	Output string

	// Режим разработки включает DPanic и более подробные стектрейсы
	Development bool

	// Параметры ротации файла, используются только при заданном Output
	MaxSizeMB  int // максимальный размер файла до ротации (default: 100)
	MaxBackups int // количество хранимых архивов (default: 3)
	MaxAgeDays int // максимальный возраст архивов в днях (default: 28)
	Compress   bool
}

// Logger оборачивает zap.Logger вместе с sugar-вариантом
// для логирования парами ключ-значение.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger создает логгер из конфигурации.
// Никогда не возвращает nil: при недоступном файле вывода
// происходит откат на stderr.
func InitLogger(config LogConfig) *Logger {
	level := parseLevel(config.Level)

	var encoder zapcore.Encoder
	switch strings.ToLower(config.Format) {
	case "text", "console":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if config.Output != "" {
		if f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			f.Close()
			sink = zapcore.AddSync(&lumberjack.Logger{
				Filename:   config.Output,
				MaxSize:    defaultInt(config.MaxSizeMB, 100),
				MaxBackups: defaultInt(config.MaxBackups, 3),
				MaxAge:     defaultInt(config.MaxAgeDays, 28),
				Compress:   config.Compress,
			})
		}
		// Недоступный путь: остаемся на stderr
	}

	opts := []zap.Option{zap.AddCaller()}
	if config.Development {
		opts = append(opts, zap.Development())
	}

	z := zap.New(zapcore.NewCore(encoder, sink, level), opts...)
	return &Logger{Logger: z, sugar: z.Sugar()}
}

// parseLevel преобразует строку в уровень zap.
// Неизвестное значение трактуется как info.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с дополнительными полями.
func (l *Logger) With(fields ...zap.Field) *Logger {
	z := l.Logger.With(fields...)
	return &Logger{Logger: z, sugar: z.Sugar()}
}

// WithStrategy возвращает логгер с привязкой к стратегии.
func (l *Logger) WithStrategy(strategyID string) *Logger {
	return l.With(Strategy(strategyID))
}

// WithTicker возвращает логгер с привязкой к инструменту.
func (l *Logger) WithTicker(ticker string) *Logger {
	return l.With(Ticker(ticker))
}

// WithComponent возвращает логгер с привязкой к компоненту.
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(Component(component))
}

// Sugar возвращает sugar-вариант логгера.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// Debugw логирует сообщение с парами ключ-значение.
func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Infow логирует сообщение с парами ключ-значение.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warnw логирует сообщение с парами ключ-значение.
func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Errorw логирует сообщение с парами ключ-значение.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// GetGlobalLogger возвращает глобальный логгер, лениво создавая
// логгер по умолчанию при первом обращении.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - сокращение для GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

// InitGlobalLogger создает логгер из конфигурации и делает его глобальным.
func InitGlobalLogger(config LogConfig) *Logger {
	l := InitLogger(config)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger устанавливает глобальный логгер.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// ============================================================
// Глобальные функции логирования
// ============================================================

// Debug логирует через глобальный логгер.
func Debug(msg string, fields ...zap.Field) { L().Logger.Debug(msg, fields...) }

// Info логирует через глобальный логгер.
func Info(msg string, fields ...zap.Field) { L().Logger.Info(msg, fields...) }

// Warn логирует через глобальный логгер.
func Warn(msg string, fields ...zap.Field) { L().Logger.Warn(msg, fields...) }

// Error логирует через глобальный логгер.
func Error(msg string, fields ...zap.Field) { L().Logger.Error(msg, fields...) }

// Debugf логирует форматированное сообщение через глобальный логгер.
func Debugf(format string, args ...interface{}) { L().sugar.Debugf(format, args...) }

// Infof логирует форматированное сообщение через глобальный логгер.
func Infof(format string, args ...interface{}) { L().sugar.Infof(format, args...) }

// Warnf логирует форматированное сообщение через глобальный логгер.
func Warnf(format string, args ...interface{}) { L().sugar.Warnf(format, args...) }

// Errorf логирует форматированное сообщение через глобальный логгер.
func Errorf(format string, args ...interface{}) { L().sugar.Errorf(format, args...) }

// ============================================================
// Конструкторы доменных полей
// ============================================================

// Ticker - поле инструмента.
func Ticker(ticker string) zap.Field { return zap.String("ticker", ticker) }

// Strategy - поле идентификатора стратегии.
func Strategy(strategyID string) zap.Field { return zap.String("strategy", strategyID) }

// OrderID - поле идентификатора заявки.
func OrderID(id string) zap.Field { return zap.String("order_id", id) }

// Price - поле цены.
func Price(price float64) zap.Field { return zap.Float64("price", price) }

// Quantity - поле количества лотов.
func Quantity(qty int) zap.Field { return zap.Int("quantity", qty) }

// PNL - поле прибыли/убытка.
func PNL(pnl float64) zap.Field { return zap.Float64("pnl", pnl) }

// Side - поле направления сделки.
func Side(side string) zap.Field { return zap.String("side", side) }

// State - поле состояния движка или стратегии.
func State(state string) zap.Field { return zap.String("state", state) }

// Latency - поле задержки в миллисекундах.
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - поле идентификатора HTTP запроса.
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Component - поле имени компонента.
func Component(component string) zap.Field { return zap.String("component", component) }

// Переэкспорт базовых конструкторов, чтобы вызывающему коду
// не требовался прямой импорт zap.
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
)
