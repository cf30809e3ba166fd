package handlers

import (
	"net/http"
	"strings"

	"moexbot/internal/models"
	"moexbot/internal/service"
	"moexbot/pkg/utils"
)

// StatsHandler отдает статистику торговли: агрегаты за период,
// топ инструментов по PnL и журнал закрытых сделок.
type StatsHandler struct {
	statsService service.StatsServiceInterface
}

// NewStatsHandler связывает обработчик со статистическим сервисом.
func NewStatsHandler(statsService service.StatsServiceInterface) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// GetTradesResponse - тело ответа GET /api/v1/trades
type GetTradesResponse struct {
	Trades []*models.Trade `json:"trades"`
	Total  int             `json:"total"`
}

// ready отвечает 500, если сервис статистики не внедрен.
func (h *StatsHandler) ready(w http.ResponseWriter) bool {
	if h.statsService == nil {
		respondWithError(w, http.StatusInternalServerError, "stats service not initialized")
		return false
	}
	return true
}

// GetStats возвращает агрегированную статистику торговли за период.
//
// GET /api/v1/stats?period=day|week|month|all
//
// Период по умолчанию - all, неизвестное значение дает 400 с деталями.
// Тело ответа - models.Stats: количество сделок и win rate, суммарный
// и средний PnL, лучшая и худшая сделка, счетчик стоп-лоссов.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	period, err := parsePeriodParam(r)
	if err != nil {
		respondWithDetails(w, http.StatusBadRequest, "invalid period", err.Error())
		return
	}

	stats, err := h.statsService.GetStats(period)
	if err != nil {
		respondWithDetails(w, http.StatusInternalServerError, "failed to get stats", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// GetTopTickers возвращает топ инструментов по суммарному PnL.
//
// GET /api/v1/stats/top-tickers?period=month&limit=5
//
// limit по умолчанию 5, максимум 20. Ответ - массив объектов вида
//
//	{"ticker": "SBER", "trades": 18, "total_pnl": 640.20, "win_rate": 66.7}
//
// отсортированный по убыванию PnL. Пустая история дает пустой массив,
// не null.
func (h *StatsHandler) GetTopTickers(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	period, err := parsePeriodParam(r)
	if err != nil {
		respondWithDetails(w, http.StatusBadRequest, "invalid period", err.Error())
		return
	}

	limit := parseLimit(r, 5, 20)

	top, err := h.statsService.GetTopTickers(period, limit)
	if err != nil {
		respondWithDetails(w, http.StatusInternalServerError, "failed to get top tickers", err.Error())
		return
	}

	if top == nil {
		top = []models.TickerStat{}
	}

	respondWithJSON(w, http.StatusOK, top)
}

// GetTrades возвращает журнал закрытых сделок с фильтрацией.
//
// GET /api/v1/trades?strategy=...&ticker=...&limit=100
//
// Фильтры по стратегии и инструменту комбинируются, тикер приводится
// к верхнему регистру. limit по умолчанию 100, максимум 500.
func (h *StatsHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	strategyID := strings.TrimSpace(r.URL.Query().Get("strategy"))
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	limit := parseLimit(r, 100, 500)

	trades, err := h.statsService.GetTrades(strategyID, ticker, limit)
	if err != nil {
		respondWithDetails(w, http.StatusInternalServerError, "failed to get trades", err.Error())
		return
	}

	if trades == nil {
		trades = []*models.Trade{}
	}

	respondWithJSON(w, http.StatusOK, GetTradesResponse{
		Trades: trades,
		Total:  len(trades),
	})
}

// parsePeriodParam читает период из query, по умолчанию "all"
func parsePeriodParam(r *http.Request) (utils.PeriodType, error) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return utils.PeriodAll, nil
	}
	return utils.ParsePeriod(raw)
}
