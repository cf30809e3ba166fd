package models

// Состояния движка бота
const (
	EngineIdle         = "IDLE"         // создан, не запущен
	EngineInitializing = "INITIALIZING" // загрузка истории и прогрев стратегий
	EngineRunning      = "RUNNING"      // основной цикл активен
	EngineClosing      = "CLOSING"      // ликвидация позиций перед остановкой
	EngineStopped      = "STOPPED"      // штатно остановлен
	EngineError        = "ERROR"        // остановлен по неустранимой ошибке
)
