package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"moexbot/internal/models"
	"moexbot/internal/screener"
)

// ScreenerService - интерфейс скринера для handlers
type ScreenerService interface {
	ScanAll(ctx context.Context) (*screener.Result, error)
	LastResult() *screener.Result
	AnalyzeTicker(ctx context.Context, ticker string) (*models.StockScore, error)
	Universe() []string
}

var _ ScreenerService = (*screener.Screener)(nil)

// ScreenerHandler отдает оператору оценки бумаг универсума (0-100,
// рекомендации, подходящие стратегии) и позволяет запустить
// внеплановый скан. Периодические сканы выполняет движок.
type ScreenerHandler struct {
	screener ScreenerService
}

// NewScreenerHandler собирает handler поверх скринера
func NewScreenerHandler(screener ScreenerService) *ScreenerHandler {
	return &ScreenerHandler{screener: screener}
}

// UniverseResponse - тело ответа GET /api/v1/screener/universe
type UniverseResponse struct {
	Tickers []string `json:"tickers"`
	Total   int      `json:"total"`
}

// GetResult возвращает последний результат сканирования, 404 - если
// сканирование еще не выполнялось.
//
// GET /api/v1/screener
func (h *ScreenerHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	if h.screener == nil {
		respondWithError(w, http.StatusInternalServerError, "screener not initialized")
		return
	}

	result := h.screener.LastResult()
	if result == nil {
		respondWithError(w, http.StatusNotFound, "no scan results yet")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// RunScan запускает сканирование универсума немедленно. Выполняется
// синхронно, на большом универсуме запрос может занять несколько
// секунд. Недоступный источник данных превращается в 502.
//
// POST /api/v1/screener/scan
func (h *ScreenerHandler) RunScan(w http.ResponseWriter, r *http.Request) {
	if h.screener == nil {
		respondWithError(w, http.StatusInternalServerError, "screener not initialized")
		return
	}

	result, err := h.screener.ScanAll(r.Context())
	if err != nil {
		respondWithDetails(w, http.StatusBadGateway, "scan failed", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetUniverse возвращает список сканируемых тикеров:
// {"tickers": ["SBER", "GAZP", "LKOH"], "total": 3}
//
// GET /api/v1/screener/universe
func (h *ScreenerHandler) GetUniverse(w http.ResponseWriter, r *http.Request) {
	if h.screener == nil {
		respondWithError(w, http.StatusInternalServerError, "screener not initialized")
		return
	}

	tickers := h.screener.Universe()
	if tickers == nil {
		tickers = []string{}
	}

	respondWithJSON(w, http.StatusOK, UniverseResponse{
		Tickers: tickers,
		Total:   len(tickers),
	})
}

// GetTicker возвращает свежую оценку одного тикера. Тикер не обязан
// входить в универсум: история запрашивается напрямую у источника
// данных, недоступная или слишком короткая история дает 404.
//
// GET /api/v1/screener/{ticker}
func (h *ScreenerHandler) GetTicker(w http.ResponseWriter, r *http.Request) {
	if h.screener == nil {
		respondWithError(w, http.StatusInternalServerError, "screener not initialized")
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"]))
	if ticker == "" {
		respondWithError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	score, err := h.screener.AnalyzeTicker(r.Context(), ticker)
	if err != nil {
		respondWithDetails(w, http.StatusNotFound, "analysis failed", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, score)
}
