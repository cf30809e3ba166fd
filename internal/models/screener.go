package models

import "time"

// Рекомендации скринера
const (
	RecommendationStrongBuy  = "STRONG_BUY"
	RecommendationBuy        = "BUY"
	RecommendationHold       = "HOLD"
	RecommendationSell       = "SELL"
	RecommendationStrongSell = "STRONG_SELL"
)

// Направления тренда
const (
	TrendUp      = "up"
	TrendDown    = "down"
	TrendNeutral = "neutral"
)

// StockScore представляет техническую оценку одного инструмента скринером.
// Компонентные оценки сворачиваются во взвешенный итог 0-100, из которого
// выводится рекомендация и список подходящих стратегий.
type StockScore struct {
	Ticker string  `json:"ticker"`
	Name   string  `json:"name,omitempty"`
	Sector string  `json:"sector,omitempty"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`

	// Индикаторы
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	SMA20         float64 `json:"sma_20"`
	SMA50         float64 `json:"sma_50"`
	BBUpper       float64 `json:"bb_upper"`
	BBLower       float64 `json:"bb_lower"`
	BBPosition    float64 `json:"bb_position"` // позиция цены внутри полос, 0-1
	ATR           float64 `json:"atr"`
	ATRPercent    float64 `json:"atr_percent"` // ATR в процентах от цены

	// Тренды: up, down, neutral
	TrendShort  string `json:"trend_short"`
	TrendMedium string `json:"trend_medium"`
	TrendLong   string `json:"trend_long"`

	// Компонентные оценки
	MomentumScore   float64 `json:"momentum_score"`   // -1..1
	TrendScore      float64 `json:"trend_score"`      // -1..1
	VolumeScore     float64 `json:"volume_score"`     // 0..1
	VolatilityScore float64 `json:"volatility_score"` // 0..1, выше = спокойнее

	// Итог
	TotalScore         float64  `json:"total_score"` // 0..100
	Recommendation     string   `json:"recommendation"`
	SuitableStrategies []string `json:"suitable_strategies,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// IsBuyCandidate сообщает, рекомендована ли бумага к покупке.
func (s StockScore) IsBuyCandidate() bool {
	return s.Recommendation == RecommendationBuy || s.Recommendation == RecommendationStrongBuy
}
