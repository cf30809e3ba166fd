package repository

import (
	"database/sql"
	"errors"
	"time"

	"moexbot/internal/models"
)

// ErrOrderNotFound - запись заявки не найдена.
var ErrOrderNotFound = errors.New("order not found")

// orderColumns - порядок колонок, общий для всех SELECT и для scanOrder.
const orderColumns = "id, strategy_id, ticker, side, lots, price, status, reason, error_message, created_at"

// OrderRepository - журнал всех заявок, отправленных исполнителем.
// Пишется каждая попытка: и принятые шлюзом, и отклонённые с причиной.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает репозиторий заявок.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func scanOrder(s scanner) (*models.OrderRecord, error) {
	var rec models.OrderRecord
	err := s.Scan(
		&rec.ID,
		&rec.StrategyID,
		&rec.Ticker,
		&rec.Side,
		&rec.Lots,
		&rec.Price,
		&rec.Status,
		&rec.Reason,
		&rec.ErrorMessage,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *OrderRepository) queryOrders(query string, args ...interface{}) ([]*models.OrderRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// execExpectingOrder выполняет UPDATE по id и переводит нулевой
// rows affected в ErrOrderNotFound.
func (r *OrderRepository) execExpectingOrder(query string, args ...interface{}) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Create записывает заявку и проставляет ID и CreatedAt.
func (r *OrderRepository) Create(order *models.OrderRecord) error {
	order.CreatedAt = time.Now()
	return r.db.QueryRow(
		"INSERT INTO orders (strategy_id, ticker, side, lots, price, status, reason, error_message, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id",
		order.StrategyID, order.Ticker, order.Side, order.Lots, order.Price,
		order.Status, order.Reason, order.ErrorMessage, order.CreatedAt,
	).Scan(&order.ID)
}

// GetByID возвращает заявку по идентификатору.
func (r *OrderRepository) GetByID(id int) (*models.OrderRecord, error) {
	rec, err := scanOrder(r.db.QueryRow(
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return rec, err
}

// GetRecent возвращает последние заявки, новые первыми.
func (r *OrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	return r.queryOrders(
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC LIMIT $1", limit,
	)
}

// GetByStrategy возвращает заявки одной стратегии.
func (r *OrderRepository) GetByStrategy(strategyID string, limit int) ([]*models.OrderRecord, error) {
	return r.queryOrders(
		"SELECT "+orderColumns+" FROM orders WHERE strategy_id = $1 ORDER BY created_at DESC LIMIT $2",
		strategyID, limit,
	)
}

// GetByTicker возвращает заявки по инструменту.
func (r *OrderRepository) GetByTicker(ticker string, limit int) ([]*models.OrderRecord, error) {
	return r.queryOrders(
		"SELECT "+orderColumns+" FROM orders WHERE ticker = $1 ORDER BY created_at DESC LIMIT $2",
		ticker, limit,
	)
}

// GetByStatus возвращает заявки в заданном статусе.
func (r *OrderRepository) GetByStatus(status string, limit int) ([]*models.OrderRecord, error) {
	return r.queryOrders(
		"SELECT "+orderColumns+" FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2",
		status, limit,
	)
}

// UpdateStatus меняет статус заявки.
func (r *OrderRepository) UpdateStatus(id int, status string) error {
	return r.execExpectingOrder("UPDATE orders SET status = $1 WHERE id = $2", status, id)
}

// SetError помечает заявку отклонённой и сохраняет текст ошибки шлюза.
func (r *OrderRepository) SetError(id int, message string) error {
	return r.execExpectingOrder(
		"UPDATE orders SET status = $1, error_message = $2 WHERE id = $3",
		models.OrderStatusRejected, message, id,
	)
}

// DeleteOlderThan удаляет записи старше отметки и возвращает их число.
func (r *OrderRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM orders WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count возвращает общее число записей в журнале.
func (r *OrderRepository) Count() (int, error) {
	return queryCount(r.db, "SELECT COUNT(*) FROM orders")
}

// CountByStatus возвращает число записей в заданном статусе.
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	return queryCount(r.db, "SELECT COUNT(*) FROM orders WHERE status = $1", status)
}
