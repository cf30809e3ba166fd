package strategy

import (
	"fmt"
	"math"

	"moexbot/internal/indicators"
	"moexbot/internal/models"
)

// SMAParams содержит параметры стратегии пересечения скользящих средних.
type SMAParams struct {
	FastPeriod int `toml:"sma_fast" json:"sma_fast"`
	SlowPeriod int `toml:"sma_slow" json:"sma_slow"`
}

// Validate проверяет согласованность параметров.
func (p SMAParams) Validate() error {
	if p.FastPeriod <= 0 || p.SlowPeriod <= 0 {
		return fmt.Errorf("sma periods must be positive: fast=%d slow=%d", p.FastPeriod, p.SlowPeriod)
	}
	if p.FastPeriod >= p.SlowPeriod {
		return fmt.Errorf("fast period must be less than slow period: fast=%d slow=%d", p.FastPeriod, p.SlowPeriod)
	}
	return nil
}

// SMACrossover торгует пересечение быстрой и медленной скользящих средних.
// Покупка при пересечении быстрой снизу вверх без лонга, продажа при
// пересечении сверху вниз без шорта. Пересечение определяется строго по
// последним двум парам значений, дедупликация по фронту служит второй
// страховкой.
type SMACrossover struct {
	tradeState
	params SMAParams
}

var _ Strategy = (*SMACrossover)(nil)

// NewSMACrossover создает стратегию пересечения для инструмента.
func NewSMACrossover(instrument string, params SMAParams, quantity int, opts Options) (*SMACrossover, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	if quantity <= 0 {
		quantity = 1
	}

	id := fmt.Sprintf("%s_%s", models.KindSMACrossover, instrument)
	s := &SMACrossover{
		tradeState: newTradeState(models.KindSMACrossover, id, instrument, quantity, opts),
		params:     params,
	}
	s.log.Infow("strategy created", "fast", params.FastPeriod, "slow", params.SlowPeriod)
	return s, nil
}

// Evaluate вычисляет сигнал по последним двум парам значений SMA.
func (s *SMACrossover) Evaluate() models.Signal {
	closes := s.series.Closes()
	// Для пересечения нужны две последовательные пары значений медленной SMA.
	if len(closes) < s.params.SlowPeriod+1 {
		return models.SignalHold
	}

	fast := indicators.SMA(closes, s.params.FastPeriod)
	slow := indicators.SMA(closes, s.params.SlowPeriod)

	n := len(closes)
	fPrev, fCur := fast[n-2], fast[n-1]
	sPrev, sCur := slow[n-2], slow[n-1]
	if math.IsNaN(fPrev) || math.IsNaN(fCur) || math.IsNaN(sPrev) || math.IsNaN(sCur) {
		return models.SignalHold
	}

	switch {
	case crossAbove(fPrev, sPrev, fCur, sCur) && s.position <= 0:
		s.log.Infow("golden cross",
			"fast_prev", fPrev, "slow_prev", sPrev,
			"fast", fCur, "slow", sCur,
		)
		return models.SignalBuy
	case crossBelow(fPrev, sPrev, fCur, sCur) && s.position >= 0:
		s.log.Infow("death cross",
			"fast_prev", fPrev, "slow_prev", sPrev,
			"fast", fCur, "slow", sCur,
		)
		return models.SignalSell
	}
	return models.SignalHold
}

// crossAbove истинно, когда быстрая была строго ниже медленной, а стала
// на уровне или выше.
func crossAbove(fastPrev, slowPrev, fastCur, slowCur float64) bool {
	return fastPrev < slowPrev && fastCur >= slowCur
}

// crossBelow истинно, когда быстрая была строго выше медленной, а стала
// на уровне или ниже.
func crossBelow(fastPrev, slowPrev, fastCur, slowCur float64) bool {
	return fastPrev > slowPrev && fastCur <= slowCur
}

func (s *SMACrossover) HasOrderSignal() bool {
	return s.edgeTrigger(s.Evaluate())
}

func (s *SMACrossover) BuildIntent() *models.Intent {
	return s.buildSingleIntent()
}

func (s *SMACrossover) Confirm(intent *models.Intent, mainFilled, _ bool) {
	s.confirmSingle(intent, mainFilled)
}

func (s *SMACrossover) Snapshot() Snapshot {
	return s.snapshotBase()
}
