package handlers

import (
	"net/http"
	"strings"

	"moexbot/internal/models"
	"moexbot/internal/service"
)

// OrderHandler дает оператору историю всех заявок, отправленных
// движком: по какой стратегии, с какой референсной ценой, принята
// или отклонена площадкой.
type OrderHandler struct {
	orderService service.OrderServiceInterface
}

// NewOrderHandler собирает handler поверх сервиса заявок
func NewOrderHandler(orderService service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// GetOrdersResponse - тело ответа GET /api/v1/orders
type GetOrdersResponse struct {
	Orders []*models.OrderRecord `json:"orders"`
	Total  int                   `json:"total"`
}

// OrdersSummary - счетчики журнала заявок
type OrdersSummary struct {
	Total    int `json:"total"`
	Rejected int `json:"rejected"`
}

// GetOrders возвращает журнал заявок, новые сверху.
//
// GET /api/v1/orders?strategy=pair_trading_LKOH_ROSN&ticker=SBER&limit=20
//
// strategy и ticker сужают выборку, limit ограничивает ее
// (по умолчанию 100, потолок 500). Регистр тикера не важен.
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	if h.orderService == nil {
		respondWithError(w, http.StatusInternalServerError, "order service not initialized")
		return
	}

	strategyID := strings.TrimSpace(r.URL.Query().Get("strategy"))
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	limit := parseLimit(r, 100, 500)

	orders, err := h.orderService.GetOrders(strategyID, ticker, limit)
	if err != nil {
		respondWithDetails(w, http.StatusInternalServerError, "failed to get orders", err.Error())
		return
	}

	// Пустой список отдаем как [], а не null
	if orders == nil {
		orders = []*models.OrderRecord{}
	}

	respondWithJSON(w, http.StatusOK, GetOrdersResponse{
		Orders: orders,
		Total:  len(orders),
	})
}

// GetSummary возвращает счетчики журнала: {"total": 152, "rejected": 3}.
//
// GET /api/v1/orders/summary
func (h *OrderHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	if h.orderService == nil {
		respondWithError(w, http.StatusInternalServerError, "order service not initialized")
		return
	}

	total, err := h.orderService.GetOrderCount()
	if err != nil {
		respondWithDetails(w, http.StatusInternalServerError, "failed to count orders", err.Error())
		return
	}

	rejected, err := h.orderService.GetRejectedCount()
	if err != nil {
		respondWithDetails(w, http.StatusInternalServerError, "failed to count rejected orders", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, OrdersSummary{Total: total, Rejected: rejected})
}
