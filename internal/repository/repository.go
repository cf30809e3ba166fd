// Package repository - доступ к таблицам Postgres: журнал заявок,
// завершенные сделки и лента уведомлений.
package repository

import "database/sql"

// scanner покрывает и *sql.Row, и *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// queryCount выполняет запрос вида SELECT COUNT(*) и возвращает результат.
func queryCount(db *sql.DB, query string, args ...interface{}) (int, error) {
	var n int
	err := db.QueryRow(query, args...).Scan(&n)
	return n, err
}
