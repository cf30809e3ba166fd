package utils

import (
	"fmt"
	"math"
)

// Валидация торговых данных до их ухода в сеть или в базу.

// Ограничения формата тикера Московской биржи.
// Реальные SECID инструментов: от 2 (ME) до 12 символов,
// заглавные латинские буквы и цифры.
const (
	MinTickerLength = 2
	MaxTickerLength = 12
)

// ValidateTicker проверяет формат тикера инструмента.
//
// Правила:
//   - Длина от 2 до 12 символов
//   - Только заглавные латинские буквы и цифры
//
// Примеры валидных тикеров: SBER, SBERP, GAZP, YNDX, TCSG
func ValidateTicker(ticker string) error {
	if len(ticker) < MinTickerLength || len(ticker) > MaxTickerLength {
		return fmt.Errorf("ticker %q must be %d-%d characters", ticker, MinTickerLength, MaxTickerLength)
	}
	for _, r := range ticker {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("ticker %q contains invalid character %q", ticker, r)
		}
	}
	return nil
}

// ValidateQuantity проверяет объем заявки в лотах.
func ValidateQuantity(lots int) error {
	if lots < 1 {
		return fmt.Errorf("quantity must be at least 1 lot, got %d", lots)
	}
	return nil
}

// ValidatePrice проверяет, что цена положительна и конечна.
func ValidatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("price must be finite, got %v", price)
	}
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	return nil
}
