package portfolio

import (
	"sort"
	"sync"
	"time"

	"moexbot/internal/models"
)

// Ledger - книга позиций портфеля
//
// Функции:
// - Применение подтвержденных исполнений к позициям
// - Средневзвешенная цена входа при доборе в ту же сторону
// - Частичное закрытие, полное закрытие и переворот через ноль
// - Расчет реализованного PNL закрытого объема для журнала сделок
// - Принудительное обнуление позиции при ликвидации
// - Снимки позиций для API и WebSocket
//
// Книга мутирует только после подтверждения заявки площадкой,
// порядок вызовов в рамках цикла обеспечивает движок.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*models.Position

	// Источник времени, подменяется в тестах
	now func() time.Time
}

// NewLedger создает пустую книгу позиций.
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[string]*models.Position),
		now:       time.Now,
	}
}

// FillResult описывает итог применения исполнения к книге.
type FillResult struct {
	// Итоговое подписанное количество после применения
	Quantity int `json:"quantity"`

	// Итоговая средняя цена входа
	AvgEntryPrice float64 `json:"avg_entry_price"`

	// Закрытый объем в штуках, ноль для чистого добора
	ClosedQuantity int `json:"closed_quantity"`

	// Реализованный PNL закрытого объема
	RealizedPnl float64 `json:"realized_pnl"`

	// Момент открытия закрытой части, для журнала сделок
	OpenedAt time.Time `json:"opened_at,omitempty"`

	// Открыта новая позиция (с нуля или остатком переворота)
	Opened bool `json:"opened"`

	// Позиция перевернулась через ноль
	Flipped bool `json:"flipped"`
}

// ============================================================
// Применение исполнений
// ============================================================

// ApplyFill применяет подтвержденное исполнение к позиции инструмента.
//
// Правила:
//   - Позиции нет: создается с объемом delta по цене исполнения.
//   - Знак delta совпадает со знаком позиции: средняя цена
//     пересчитывается взвешенно по объему, количество складывается.
//   - Знаки противоположны: перекрытие закрывается с фиксацией PNL,
//     остаток при переходе через ноль открывает позицию в новую
//     сторону по цене исполнения.
//
// Нулевая delta не меняет книгу.
func (l *Ledger) ApplyFill(instrument string, delta int, fillPrice float64) FillResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if delta == 0 {
		if !ok {
			return FillResult{}
		}
		return FillResult{Quantity: pos.Quantity, AvgEntryPrice: pos.AvgEntryPrice}
	}

	now := l.now()

	if !ok || pos.Quantity == 0 {
		l.positions[instrument] = &models.Position{
			Ticker:        instrument,
			Quantity:      delta,
			AvgEntryPrice: fillPrice,
			OpenedAt:      now,
			UpdatedAt:     now,
		}
		return FillResult{Quantity: delta, AvgEntryPrice: fillPrice, Opened: true}
	}

	sameSign := (pos.Quantity > 0) == (delta > 0)
	if sameSign {
		total := pos.Quantity + delta
		// Знаки числителя и знаменателя совпадают, формула верна
		// и для короткой позиции
		pos.AvgEntryPrice = (float64(pos.Quantity)*pos.AvgEntryPrice + float64(delta)*fillPrice) / float64(total)
		pos.Quantity = total
		pos.UpdatedAt = now
		return FillResult{Quantity: pos.Quantity, AvgEntryPrice: pos.AvgEntryPrice}
	}

	return l.reduce(pos, delta, fillPrice, now)
}

// reduce закрывает перекрытие противоположного исполнения и
// обрабатывает переход через ноль.
func (l *Ledger) reduce(pos *models.Position, delta int, fillPrice float64, now time.Time) FillResult {
	overlap := abs(delta)
	if held := abs(pos.Quantity); held < overlap {
		overlap = held
	}

	realized := (fillPrice - pos.AvgEntryPrice) * float64(overlap)
	if pos.Quantity < 0 {
		realized = -realized
	}

	result := FillResult{
		ClosedQuantity: overlap,
		RealizedPnl:    realized,
		OpenedAt:       pos.OpenedAt,
	}

	remaining := pos.Quantity + delta
	switch {
	case remaining == 0:
		delete(l.positions, pos.Ticker)

	case (remaining > 0) == (pos.Quantity > 0):
		// Частичное закрытие, средняя цена не меняется
		pos.Quantity = remaining
		pos.UpdatedAt = now
		result.Quantity = remaining
		result.AvgEntryPrice = pos.AvgEntryPrice

	default:
		// Переворот: остаток открывает позицию в новую сторону
		pos.Quantity = remaining
		pos.AvgEntryPrice = fillPrice
		pos.OpenedAt = now
		pos.UpdatedAt = now
		result.Quantity = remaining
		result.AvgEntryPrice = fillPrice
		result.Opened = true
		result.Flipped = true
	}

	return result
}

// ClosePosition принудительно обнуляет позицию инструмента.
// Возвращает снятую позицию для журнала, false если позиции не было.
// Используется при ликвидации в конце сессии и как страховка
// после срабатывания стопа.
func (l *Ledger) ClosePosition(instrument string) (models.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return models.Position{}, false
	}
	delete(l.positions, instrument)
	return *pos, true
}

// ============================================================
// Чтение
// ============================================================

// Position возвращает копию позиции инструмента.
func (l *Ledger) Position(instrument string) (models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return models.Position{}, false
	}
	return *pos, true
}

// Quantity возвращает подписанное количество по инструменту,
// ноль для отсутствующей позиции.
func (l *Ledger) Quantity(instrument string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if pos, ok := l.positions[instrument]; ok {
		return pos.Quantity
	}
	return 0
}

// All возвращает снимок всех открытых позиций,
// отсортированный по тикеру.
func (l *Ledger) All() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// OpenCount возвращает количество открытых позиций.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// CheckStop проверяет пробой стопа по знаку позиции в книге:
// лонг пробивает при цене не выше стопа, шорт при цене не ниже.
// Для плоской позиции всегда false.
func (l *Ledger) CheckStop(instrument string, stop, price float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[instrument]
	if !ok || stop <= 0 {
		return false
	}
	if pos.Quantity > 0 {
		return price <= stop
	}
	return price >= stop
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
