package strategy

import (
	"fmt"
	"math"
	"time"

	"moexbot/internal/indicators"
	"moexbot/internal/models"
)

// PairParams содержит параметры стратегии парного трейдинга.
type PairParams struct {
	PairInstrument   string  `toml:"pair_instrument" json:"pair_instrument"`
	LookbackPeriod   int     `toml:"lookback_period" json:"lookback_period"`
	EntryZ           float64 `toml:"entry_z" json:"entry_z"`
	ExitZ            float64 `toml:"exit_z" json:"exit_z"`
	HedgeRatioUpdate int     `toml:"hedge_ratio_update" json:"hedge_ratio_update"`
}

// Validate проверяет согласованность параметров.
func (p PairParams) Validate() error {
	if p.PairInstrument == "" {
		return fmt.Errorf("pair instrument is required")
	}
	if p.LookbackPeriod < 2 {
		return fmt.Errorf("lookback period must be at least 2: %d", p.LookbackPeriod)
	}
	if p.EntryZ <= 0 {
		return fmt.Errorf("entry threshold must be positive: %.2f", p.EntryZ)
	}
	if p.ExitZ < 0 || p.ExitZ >= p.EntryZ {
		return fmt.Errorf("exit threshold must be inside [0, entry): exit=%.2f entry=%.2f", p.ExitZ, p.EntryZ)
	}
	if p.HedgeRatioUpdate < 1 {
		return fmt.Errorf("hedge ratio update interval must be at least 1: %d", p.HedgeRatioUpdate)
	}
	return nil
}

// PairTrading реализует статистический арбитраж на паре инструментов.
// Спред s = p1 - beta*p2 стандартизируется по скользящему окну;
// вход при |z| выше порога входа во флэте, выход при |z| ниже порога
// выхода. Коэффициент хеджирования beta пересчитывается строго раз в
// HedgeRatioUpdate циклов; при вырожденной регрессии сохраняется
// предыдущее значение.
type PairTrading struct {
	tradeState
	params PairParams

	pairSeries *models.PriceSeries

	hedgeRatio    float64
	spreadMean    float64
	spreadStd     float64
	zScore        float64
	updateCounter int

	pairPosition int
}

var _ Strategy = (*PairTrading)(nil)

// NewPairTrading создает парную стратегию. instrument выступает главной
// ногой, params.PairInstrument второй.
func NewPairTrading(instrument string, params PairParams, quantity int, opts Options) (*PairTrading, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	if params.PairInstrument == instrument {
		return nil, fmt.Errorf("pair instrument must differ from main instrument: %s", instrument)
	}
	if quantity <= 0 {
		quantity = 1
	}

	id := fmt.Sprintf("%s_%s_%s", models.KindPairTrading, instrument, params.PairInstrument)
	s := &PairTrading{
		tradeState: newTradeState(models.KindPairTrading, id, instrument, quantity, opts),
		params:     params,
		hedgeRatio: 1.0,
		spreadStd:  1.0,
	}
	s.log.Infow("strategy created",
		"pair", params.PairInstrument,
		"lookback", params.LookbackPeriod,
		"entry_z", params.EntryZ,
		"exit_z", params.ExitZ,
	)
	return s, nil
}

func (s *PairTrading) PairInstrument() string { return s.params.PairInstrument }

// SetPairData передает стратегии серию парного инструмента.
func (s *PairTrading) SetPairData(series *models.PriceSeries) {
	s.pairSeries = series
}

// HedgeRatio возвращает текущий коэффициент хеджирования.
func (s *PairTrading) HedgeRatio() float64 { return s.hedgeRatio }

// PairPosition возвращает позицию по парному инструменту в лотах.
func (s *PairTrading) PairPosition() int { return s.pairPosition }

// Evaluate вычисляет сигнал по z-оценке спреда. Счетчик пересчета
// коэффициента хеджирования продвигается на каждый вызов с данными.
func (s *PairTrading) Evaluate() models.Signal {
	if s.series.Len() == 0 || s.pairSeries.Len() == 0 {
		return models.SignalHold
	}

	s.updateCounter++
	if s.updateCounter >= s.params.HedgeRatioUpdate {
		if beta, ok := s.computeHedgeRatio(); ok {
			s.hedgeRatio = beta
			s.log.Debugw("hedge ratio updated", "beta", beta)
		} else {
			s.log.Warnw("hedge ratio regression degenerate, keeping previous", "beta", s.hedgeRatio)
		}
		s.updateCounter = 0
	}

	spread, mean, std := s.computeSpread()
	s.spreadMean = mean
	s.spreadStd = std
	s.zScore = (spread - mean) / std

	flat := s.position == 0 && s.pairPosition == 0
	open := s.position != 0 || s.pairPosition != 0

	switch {
	case math.Abs(s.zScore) > s.params.EntryZ && flat:
		if s.zScore > 0 {
			// Спред завышен: продаем главную ногу, покупаем парную.
			s.log.Infow("spread entry", "z", s.zScore, "side", "short_spread")
			return models.SignalSellPair
		}
		s.log.Infow("spread entry", "z", s.zScore, "side", "long_spread")
		return models.SignalBuyPair
	case math.Abs(s.zScore) < s.params.ExitZ && open:
		s.log.Infow("spread exit", "z", s.zScore)
		return models.SignalClosePair
	}
	return models.SignalHold
}

// computeHedgeRatio оценивает beta как наклон регрессии цены главной
// ноги на цену парной по последним min(lookback, доступно) точкам.
// Возвращает ok=false при вырожденной выборке.
func (s *PairTrading) computeHedgeRatio() (float64, bool) {
	n := s.series.Len()
	if s.pairSeries.Len() < n {
		n = s.pairSeries.Len()
	}
	if s.params.LookbackPeriod < n {
		n = s.params.LookbackPeriod
	}
	if n < 2 {
		return 0, false
	}

	y := tail(s.series.Closes(), n)
	x := tail(s.pairSeries.Closes(), n)

	meanX := indicators.Mean(x)
	meanY := indicators.Mean(y)

	var cov, varX float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		cov += dx * (y[i] - meanY)
		varX += dx * dx
	}
	if varX == 0 {
		return 0, false
	}

	beta := cov / varX
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, false
	}
	return beta, true
}

// computeSpread возвращает текущий спред и его среднее и стандартное
// отклонение по скользящему окну. Нулевое отклонение заменяется на 1.0.
func (s *PairTrading) computeSpread() (current, mean, std float64) {
	n := s.series.Len()
	if s.pairSeries.Len() < n {
		n = s.pairSeries.Len()
	}
	if n == 0 {
		return 0, 0, 1.0
	}

	p1 := tail(s.series.Closes(), n)
	p2 := tail(s.pairSeries.Closes(), n)

	history := make([]float64, n)
	for i := 0; i < n; i++ {
		history[i] = p1[i] - s.hedgeRatio*p2[i]
	}
	current = history[n-1]

	lookback := s.params.LookbackPeriod
	if n < lookback {
		lookback = n
	}
	window := history[n-lookback:]
	mean = indicators.Mean(window)
	std = indicators.StdDev(window)
	if std == 0 {
		std = 1.0
	}
	return current, mean, std
}

func (s *PairTrading) HasOrderSignal() bool {
	return s.edgeTrigger(s.Evaluate())
}

// BuildIntent строит парное намерение по ожидающему сигналу. Вход
// размечает ноги по направлению спреда, закрытие использует фактические
// величины открытых позиций.
func (s *PairTrading) BuildIntent() *models.Intent {
	if !s.pending.IsActionable() || s.series.Len() == 0 || s.pairSeries.Len() == 0 {
		return nil
	}

	intent := &models.Intent{
		StrategyID:         s.id,
		Instrument:         s.instrument,
		Action:             s.pending,
		PairInstrument:     s.params.PairInstrument,
		ReferencePrice:     s.series.LastClose(),
		PairReferencePrice: s.pairSeries.LastClose(),
		Reason:             models.ReasonSignal,
		Timestamp:          time.Now(),
	}

	switch s.pending {
	case models.SignalBuyPair:
		intent.Side = models.OrderSideBuy
		intent.PairSide = models.OrderSideSell
		intent.Quantity = s.quantity
		intent.PairQuantity = s.pairQuantity()
	case models.SignalSellPair:
		intent.Side = models.OrderSideSell
		intent.PairSide = models.OrderSideBuy
		intent.Quantity = s.quantity
		intent.PairQuantity = s.pairQuantity()
	case models.SignalClosePair:
		s.fillCloseLegs(intent)
	default:
		return nil
	}
	return intent
}

// pairQuantity возвращает размер парной ноги в лотах: целая часть
// произведения лота главной ноги на beta, минимум один лот.
func (s *PairTrading) pairQuantity() int {
	q := int(float64(s.quantity) * s.hedgeRatio)
	if q < 1 {
		q = 1
	}
	return q
}

// fillCloseLegs заполняет закрывающее намерение по фактическим
// позициям ног. Нулевая нога остается с нулевым количеством и
// не порождает ордера.
func (s *PairTrading) fillCloseLegs(intent *models.Intent) {
	intent.Closing = true
	intent.Quantity = abs(s.position)
	intent.PairQuantity = abs(s.pairPosition)
	if s.position > 0 {
		intent.Side = models.OrderSideSell
	} else if s.position < 0 {
		intent.Side = models.OrderSideBuy
	}
	if s.pairPosition > 0 {
		intent.PairSide = models.OrderSideSell
	} else if s.pairPosition < 0 {
		intent.PairSide = models.OrderSideBuy
	}
}

// Confirm фиксирует фактический результат исполнения ног. Частичное
// исполнение оставляет позицию только по исполненной ноге, чтобы
// состояние стратегии отражало реальную экспозицию.
func (s *PairTrading) Confirm(intent *models.Intent, mainFilled, pairFilled bool) {
	s.pending = ""
	if !mainFilled && !pairFilled {
		return
	}

	switch intent.Action {
	case models.SignalBuyPair:
		if mainFilled {
			s.position = intent.Quantity
		}
		if pairFilled {
			s.pairPosition = -intent.PairQuantity
		}
		s.enterConfirmed(intent, mainFilled)
	case models.SignalSellPair:
		if mainFilled {
			s.position = -intent.Quantity
		}
		if pairFilled {
			s.pairPosition = intent.PairQuantity
		}
		s.enterConfirmed(intent, mainFilled)
	default:
		// Закрытие по сигналу, стопу или ликвидации.
		if mainFilled {
			s.position = 0
		}
		if pairFilled {
			s.pairPosition = 0
		}
		if s.position == 0 && s.pairPosition == 0 {
			s.entryPrice = 0
			s.stopPrice = 0
			if intent.Forced() {
				s.lastSignal = ""
			} else {
				s.lastSignal = intent.Action
			}
		}
	}

	s.tradesCount++
	s.lastTradeAt = time.Now()
}

func (s *PairTrading) enterConfirmed(intent *models.Intent, mainFilled bool) {
	s.lastSignal = intent.Action
	if mainFilled {
		s.entryPrice = intent.ReferencePrice
		s.armStop()
	}
}

// CheckStopLoss отслеживает стоп по главной ноге пары.
func (s *PairTrading) CheckStopLoss() bool {
	return s.tradeState.CheckStopLoss()
}

// BuildStopIntent строит принудительное закрытие обеих ног после
// пробоя стопа по главной ноге.
func (s *PairTrading) BuildStopIntent() *models.Intent {
	if (s.position == 0 && s.pairPosition == 0) || s.series.Len() == 0 {
		return nil
	}

	intent := &models.Intent{
		StrategyID:         s.id,
		Instrument:         s.instrument,
		Action:             models.SignalClosePair,
		PairInstrument:     s.params.PairInstrument,
		ReferencePrice:     s.series.LastClose(),
		PairReferencePrice: s.pairSeries.LastClose(),
		Reason:             models.ReasonStopLoss,
		Timestamp:          time.Now(),
	}
	s.fillCloseLegs(intent)
	return intent
}

// Reset сбрасывает торговое состояние, сохраняя коэффициент
// хеджирования и темп его пересчета.
func (s *PairTrading) Reset() {
	s.tradeState.Reset()
	s.pairPosition = 0
	s.zScore = 0
}

func (s *PairTrading) Snapshot() Snapshot {
	snap := s.snapshotBase()
	snap.PairInstrument = s.params.PairInstrument
	snap.PairPosition = s.pairPosition
	snap.HedgeRatio = s.hedgeRatio
	snap.ZScore = s.zScore
	snap.SpreadMean = s.spreadMean
	snap.SpreadStd = s.spreadStd
	return snap
}

// tail возвращает последние n элементов серии.
func tail(series []float64, n int) []float64 {
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}
