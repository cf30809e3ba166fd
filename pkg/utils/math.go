package utils

import "math"

// Торговая арифметика: шаги цены, объемы позиций, PNL. Все функции
// чистые, без состояния.

// RoundToPriceStep округляет цену вниз до ближайшего кратного шага цены.
//
// Цена заявки обязана быть кратна шагу цены инструмента (0.01 для SBER,
// 0.5 для LKOH). Округление вниз не дает заявке стать дороже исходной
// цены. При step <= 0 цена возвращается без изменений.
//
//	RoundToPriceStep(289.137, 0.01) = 289.13
//	RoundToPriceStep(7514.3, 0.5)   = 7514.0
func RoundToPriceStep(price, step float64) float64 {
	if step <= 0 {
		return price
	}
	return math.Floor(price/step) * step
}

// RoundToPriceStepNearest округляет цену к ближайшему кратному шага.
// Подходит для справочных цен, где направление округления не важно.
func RoundToPriceStepNearest(price, step float64) float64 {
	if step <= 0 {
		return price
	}
	return math.Round(price/step) * step
}

// PositionValue возвращает стоимость позиции в рублях. Объем в лотах
// может быть отрицательным (шорт), стоимость всегда неотрицательна.
//
//	PositionValue(10, 289.5) = 2895.0
//	PositionValue(-5, 100.0) = 500.0
func PositionValue(lots int, price float64) float64 {
	return math.Abs(float64(lots) * price)
}

// LotsForBudget возвращает наибольшее число лотов, укладывающееся в
// бюджет по заданной цене лота. Некорректный бюджет или цена дают 0.
//
//	LotsForBudget(100000, 28950) = 3
//	LotsForBudget(5000, 7514)    = 0
func LotsForBudget(budget, lotPrice float64) int {
	if budget <= 0 || lotPrice <= 0 {
		return 0
	}
	return int(budget / lotPrice)
}

// RealizedPnl возвращает реализованный PNL закрытого объема. Объем
// подписан: положительный для лонга, отрицательный для шорта. Формула
// (exit - entry) * quantity покрывает оба направления, шорт прибылен
// при падении цены.
//
//	RealizedPnl(10, 280, 290)  = 100
//	RealizedPnl(-10, 280, 270) = 100
func RealizedPnl(quantity int, entryPrice, exitPrice float64) float64 {
	return (exitPrice - entryPrice) * float64(quantity)
}

// Clamp зажимает значение в диапазон [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	return min(max(value, lo), hi)
}
