package engine

import "moexbot/internal/models"

// ValidTransitions описывает допустимые переходы состояний движка.
// Любой переход вне этой карты считается ошибкой программирования.
var ValidTransitions = map[string][]string{
	models.EngineIdle:         {models.EngineInitializing},
	models.EngineInitializing: {models.EngineRunning, models.EngineError},
	models.EngineRunning:      {models.EngineClosing, models.EngineError},
	models.EngineClosing:      {models.EngineStopped, models.EngineError},
	models.EngineStopped:      {models.EngineInitializing}, // повторный запуск
	models.EngineError:        {models.EngineInitializing}, // только ручной перезапуск
}

// CanTransition проверяет, допустим ли переход из состояния from в to.
func CanTransition(from, to string) bool {
	for _, next := range ValidTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает человекочитаемое описание состояния движка.
func StateInfo(state string) string {
	switch state {
	case models.EngineIdle:
		return "Движок создан и ожидает запуска"
	case models.EngineInitializing:
		return "Загрузка истории и прогрев стратегий..."
	case models.EngineRunning:
		return "Торговый цикл активен"
	case models.EngineClosing:
		return "Ликвидация позиций перед остановкой..."
	case models.EngineStopped:
		return "Движок остановлен"
	case models.EngineError:
		return "Авария, нужен ручной перезапуск"
	default:
		return "Неизвестное состояние движка"
	}
}

// IsTerminal сообщает, что движок больше не обрабатывает рыночные данные.
func IsTerminal(state string) bool {
	return state == models.EngineStopped || state == models.EngineError
}

// IsActive сообщает, что движок находится в рабочей фазе.
func IsActive(state string) bool {
	return state == models.EngineRunning || state == models.EngineClosing
}
