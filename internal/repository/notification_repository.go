package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"moexbot/internal/models"
)

// notificationColumns - порядок колонок, общий для всех SELECT и для scanNotification.
const notificationColumns = "id, type, severity, ticker, strategy_id, message, created_at"

// NotificationRepository - лента уведомлений движка: сигналы, сделки,
// стоп-лоссы, ошибки. Читается панелью управления и уходит в WebSocket.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает репозиторий уведомлений.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func scanNotification(s scanner) (*models.Notification, error) {
	var n models.Notification
	err := s.Scan(
		&n.ID,
		&n.Type,
		&n.Severity,
		&n.Ticker,
		&n.StrategyID,
		&n.Message,
		&n.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) queryNotifications(query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// Create сохраняет уведомление и проставляет ID. Момент времени берется
// из самой записи, нулевой заменяется текущим.
func (r *NotificationRepository) Create(notif *models.Notification) error {
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}
	return r.db.QueryRow(
		"INSERT INTO notifications (type, severity, ticker, strategy_id, message, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		string(notif.Type), notif.Severity, notif.Ticker, notif.StrategyID,
		notif.Message, notif.Timestamp,
	).Scan(&notif.ID)
}

// GetRecent возвращает последние уведомления, новые первыми.
func (r *NotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	return r.queryNotifications(
		"SELECT "+notificationColumns+" FROM notifications ORDER BY created_at DESC LIMIT $1", limit,
	)
}

// GetByTypes возвращает последние уведомления перечисленных типов.
func (r *NotificationRepository) GetByTypes(types []string, limit int) ([]*models.Notification, error) {
	return r.queryNotifications(
		"SELECT "+notificationColumns+" FROM notifications WHERE type = ANY($1) ORDER BY created_at DESC LIMIT $2",
		pq.Array(types), limit,
	)
}

// DeleteAll очищает ленту целиком.
func (r *NotificationRepository) DeleteAll() error {
	_, err := r.db.Exec("DELETE FROM notifications")
	return err
}

// DeleteOlderThan удаляет уведомления старше отметки и возвращает их число.
func (r *NotificationRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM notifications WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// KeepRecent оставляет в ленте последние keep записей, остальные удаляет.
func (r *NotificationRepository) KeepRecent(keep int) (int64, error) {
	result, err := r.db.Exec(
		"DELETE FROM notifications WHERE id NOT IN (SELECT id FROM notifications ORDER BY created_at DESC LIMIT $1)",
		keep,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count возвращает общее число уведомлений в ленте.
func (r *NotificationRepository) Count() (int, error) {
	return queryCount(r.db, "SELECT COUNT(*) FROM notifications")
}

// CountByType возвращает число уведомлений заданного типа.
func (r *NotificationRepository) CountByType(notifType string) (int, error) {
	return queryCount(r.db, "SELECT COUNT(*) FROM notifications WHERE type = $1", notifType)
}
