// Package marketdata загружает исторические свечи с MOEX ISS.
package marketdata

import (
	"context"

	"moexbot/internal/models"
)

// Source - источник рыночных данных для движка и скринера.
//
// Реализации обязаны быть потокобезопасными: движок запрашивает
// несколько тикеров параллельно.
type Source interface {
	// GetHistory возвращает дневные свечи за последние days календарных дней
	GetHistory(ctx context.Context, ticker string, days int) (*models.PriceSeries, error)

	// GetRecentBars возвращает не более count последних дневных свечей
	GetRecentBars(ctx context.Context, ticker string, count int) (*models.PriceSeries, error)
}
