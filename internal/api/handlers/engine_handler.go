package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"moexbot/internal/engine"
	"moexbot/internal/models"
	"moexbot/internal/strategy"
)

// EngineController - узкий интерфейс движка для управляющего API.
// Handlers не зависят от конкретного *engine.Engine, в тестах
// подставляется мок.
type EngineController interface {
	Status() engine.Status
	StrategySnapshots() []strategy.Snapshot
	Positions() []models.Position
	Pause()
	Resume()
	ForceClose(ticker string) error
}

// EngineHandler дает оператору наблюдение за движком (состояние,
// стратегии, позиции) и ограниченное управление: пауза/возобновление
// торговли и ручное закрытие позиции. Запуск и остановка процесса в
// API не выносятся.
type EngineHandler struct {
	engine EngineController
}

// NewEngineHandler собирает handler поверх движка
func NewEngineHandler(engine EngineController) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// GetStatus возвращает текущее состояние движка: фазу и ее описание,
// счетчики циклов и сбоев подряд, сделки за день, открытые позиции,
// отслеживаемые инструменты.
//
// GET /api/v1/status
func (h *EngineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondWithError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}
	respondWithJSON(w, http.StatusOK, h.engine.Status())
}

// GetStrategies возвращает снимки всех стратегий: id, вид,
// инструмент, сторона позиции, цена входа, стоп, последний сигнал,
// число сделок.
//
// GET /api/v1/strategies
func (h *EngineHandler) GetStrategies(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondWithError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}

	snaps := h.engine.StrategySnapshots()
	// Пустой список отдаем как [], а не null
	if snaps == nil {
		snaps = []strategy.Snapshot{}
	}
	respondWithJSON(w, http.StatusOK, snaps)
}

// GetPositions возвращает открытые позиции леджера. Отрицательный
// quantity означает шорт.
//
// GET /api/v1/positions
func (h *EngineHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondWithError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}

	positions := h.engine.Positions()
	if positions == nil {
		positions = []models.Position{}
	}
	respondWithJSON(w, http.StatusOK, positions)
}

// PauseEngine приостанавливает торговлю без остановки процесса.
// Циклы пропускаются до возобновления, открытые позиции не трогаются.
//
// POST /api/v1/engine/pause
func (h *EngineHandler) PauseEngine(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondWithError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}

	h.engine.Pause()
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "trading paused"})
}

// ResumeEngine возобновляет торговлю после паузы.
//
// POST /api/v1/engine/resume
func (h *EngineHandler) ResumeEngine(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondWithError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}

	h.engine.Resume()
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "trading resumed"})
}

// ForceClose принудительно закрывает позицию по тикеру: рыночная
// заявка противоположной стороны на весь объем плюс сброс стратегий
// этого инструмента. Без открытой позиции отвечает 404, отказ
// транспорта - 502.
//
// POST /api/v1/positions/{ticker}/close
func (h *EngineHandler) ForceClose(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondWithError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"]))
	if ticker == "" {
		respondWithError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	if err := h.engine.ForceClose(ticker); err != nil {
		if errors.Is(err, engine.ErrNoPosition) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		respondWithDetails(w, http.StatusBadGateway, "force close failed", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "position closed: " + ticker})
}
