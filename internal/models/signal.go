package models

// Signal - торговый сигнал стратегии.
type Signal string

// Типы сигналов
const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"

	// Парные сигналы: направление относится к главному инструменту,
	// парный инструмент торгуется в противоположную сторону.
	SignalBuyPair   Signal = "buy_pair"
	SignalSellPair  Signal = "sell_pair"
	SignalClosePair Signal = "close_pair"
)

// IsPair сообщает, относится ли сигнал к парной стратегии.
func (s Signal) IsPair() bool {
	switch s {
	case SignalBuyPair, SignalSellPair, SignalClosePair:
		return true
	default:
		return false
	}
}

// IsActionable сообщает, требует ли сигнал действия (не hold и не пустой).
func (s Signal) IsActionable() bool {
	return s != "" && s != SignalHold
}

// StrategyKind определяет тип стратегии.
type StrategyKind string

// Поддерживаемые типы стратегий
const (
	KindSMACrossover     StrategyKind = "sma_crossover"
	KindRSIMeanReversion StrategyKind = "rsi_mean_reversion"
	KindPairTrading      StrategyKind = "pair_trading"
)

// Valid проверяет, что тип стратегии известен.
func (k StrategyKind) Valid() bool {
	switch k {
	case KindSMACrossover, KindRSIMeanReversion, KindPairTrading:
		return true
	default:
		return false
	}
}
