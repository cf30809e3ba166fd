package handlers

import (
	"net/http"
	"strings"
	"time"

	"moexbot/internal/models"
	"moexbot/internal/service"
)

// NotificationHandler отдает панели оператора ленту событий бота:
// сигналы стратегий, открытия и закрытия позиций, стоп-лоссы,
// ликвидации, ошибки транспорта, паузы движка и непокрытые ноги
// парных сделок (SIGNAL, OPEN, CLOSE, SL, LIQUIDATION, ERROR,
// PAUSE, LEG_FAIL).
type NotificationHandler struct {
	notificationService service.NotificationServiceInterface
}

// NewNotificationHandler собирает handler поверх сервиса уведомлений
func NewNotificationHandler(notificationService service.NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// NotificationFeedResponse - тело ответа GET /api/v1/notifications
type NotificationFeedResponse struct {
	Notifications []NotificationView `json:"notifications"`
	Total         int                `json:"total"`
}

// NotificationView - уведомление в том виде, в котором его видит фронтенд
type NotificationView struct {
	ID         int               `json:"id"`
	Timestamp  string            `json:"timestamp"`
	Type       string            `json:"type"`
	Severity   string            `json:"severity"`
	Ticker     string            `json:"ticker,omitempty"`
	StrategyID string            `json:"strategy_id,omitempty"`
	Message    string            `json:"message"`
	Meta       map[string]string `json:"meta,omitempty"`
}

func newNotificationView(n *models.Notification) NotificationView {
	return NotificationView{
		ID:         n.ID,
		Timestamp:  n.Timestamp.Format(time.RFC3339),
		Type:       string(n.Type),
		Severity:   n.Severity,
		Ticker:     n.Ticker,
		StrategyID: n.StrategyID,
		Message:    n.Message,
		Meta:       n.Meta,
	}
}

// parseTypesFilter разбирает ?types=sl,error в нормализованный список.
// Регистр в query не важен, база хранит типы в верхнем.
func parseTypesFilter(r *http.Request) []string {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return nil
	}
	var types []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, strings.ToUpper(part))
		}
	}
	return types
}

// GetNotifications отдает хвост ленты, новые записи сверху.
//
// GET /api/v1/notifications?types=sl,error&limit=20
//
// types фильтрует по типам через запятую, limit ограничивает выборку
// (по умолчанию 100, потолок 500). Без параметров - последние 100
// событий всех типов. Отказ базы превращается в 500 с текстом причины.
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	if h.notificationService == nil {
		respondWithError(w, http.StatusInternalServerError, "notification service not initialized")
		return
	}

	types := parseTypesFilter(r)
	limit := parseLimit(r, 100, 500)

	notifications, err := h.notificationService.GetNotifications(types, limit)
	if err != nil {
		respondWithDetails(w, http.StatusInternalServerError, "failed to get notifications", err.Error())
		return
	}

	views := make([]NotificationView, 0, len(notifications))
	for _, n := range notifications {
		views = append(views, newNotificationView(n))
	}

	respondWithJSON(w, http.StatusOK, NotificationFeedResponse{
		Notifications: views,
		Total:         len(views),
	})
}

// ClearNotifications очищает журнал без возможности восстановления.
//
// DELETE /api/v1/notifications
func (h *NotificationHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if h.notificationService == nil {
		respondWithError(w, http.StatusInternalServerError, "notification service not initialized")
		return
	}

	if err := h.notificationService.ClearNotifications(); err != nil {
		respondWithDetails(w, http.StatusInternalServerError, "failed to clear notifications", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "notification feed cleared"})
}
