package strategy

import (
	"fmt"

	"moexbot/internal/indicators"
	"moexbot/internal/models"
)

// RSIParams содержит параметры стратегии возврата к среднему по RSI.
type RSIParams struct {
	Period     int     `toml:"rsi_period" json:"rsi_period"`
	Oversold   float64 `toml:"oversold" json:"oversold"`
	Overbought float64 `toml:"overbought" json:"overbought"`
}

// Validate проверяет согласованность параметров.
func (p RSIParams) Validate() error {
	if p.Period <= 0 {
		return fmt.Errorf("rsi period must be positive: %d", p.Period)
	}
	if p.Oversold <= 0 || p.Overbought >= 100 {
		return fmt.Errorf("rsi levels must be inside (0, 100): oversold=%.1f overbought=%.1f", p.Oversold, p.Overbought)
	}
	if p.Oversold >= p.Overbought {
		return fmt.Errorf("oversold must be below overbought: oversold=%.1f overbought=%.1f", p.Oversold, p.Overbought)
	}
	return nil
}

// RSIMeanReversion торгует перепроданность и перекупленность по RSI.
// Покупка при RSI ниже уровня перепроданности без лонга, продажа при
// RSI выше уровня перекупленности без шорта. Явного правила выхода нет:
// позиция держится до противоположного экстремума или стоп-лосса.
type RSIMeanReversion struct {
	tradeState
	params RSIParams
}

var _ Strategy = (*RSIMeanReversion)(nil)

// NewRSIMeanReversion создает стратегию возврата к среднему для инструмента.
func NewRSIMeanReversion(instrument string, params RSIParams, quantity int, opts Options) (*RSIMeanReversion, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	if quantity <= 0 {
		quantity = 1
	}

	id := fmt.Sprintf("%s_%s", models.KindRSIMeanReversion, instrument)
	s := &RSIMeanReversion{
		tradeState: newTradeState(models.KindRSIMeanReversion, id, instrument, quantity, opts),
		params:     params,
	}
	s.log.Infow("strategy created",
		"period", params.Period,
		"oversold", params.Oversold,
		"overbought", params.Overbought,
	)
	return s, nil
}

// Evaluate вычисляет сигнал по текущему значению RSI.
func (s *RSIMeanReversion) Evaluate() models.Signal {
	closes := s.series.Closes()
	if len(closes) < s.params.Period+1 {
		return models.SignalHold
	}

	rsi := indicators.RSI(closes, s.params.Period)

	switch {
	case rsi < s.params.Oversold && s.position <= 0:
		s.log.Infow("oversold", "rsi", rsi, "level", s.params.Oversold)
		return models.SignalBuy
	case rsi > s.params.Overbought && s.position >= 0:
		s.log.Infow("overbought", "rsi", rsi, "level", s.params.Overbought)
		return models.SignalSell
	}
	return models.SignalHold
}

func (s *RSIMeanReversion) HasOrderSignal() bool {
	return s.edgeTrigger(s.Evaluate())
}

func (s *RSIMeanReversion) BuildIntent() *models.Intent {
	return s.buildSingleIntent()
}

func (s *RSIMeanReversion) Confirm(intent *models.Intent, mainFilled, _ bool) {
	s.confirmSingle(intent, mainFilled)
}

func (s *RSIMeanReversion) Snapshot() Snapshot {
	return s.snapshotBase()
}
