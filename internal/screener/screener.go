// Package screener оценивает бумаги торгового универсума по дневным
// свечам и подбирает кандидатов под стратегии бота.
//
// Каждая бумага получает четыре компонентные оценки - импульс, тренд,
// объем и волатильность. Компоненты сворачиваются во взвешенный итог
// 0-100, из которого выводится торговая рекомендация. Поверх оценок
// работает подбор: какие бумаги подходят под какие стратегии и какие
// пары внутри секторов разошлись по RSI.
package screener

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"moexbot/internal/indicators"
	"moexbot/internal/marketdata"
	"moexbot/internal/models"
	"moexbot/pkg/utils"
)

// Веса компонент итоговой оценки
const (
	weightMomentum   = 0.35
	weightTrend      = 0.30
	weightVolume     = 0.20
	weightVolatility = 0.15
)

// Периоды индикаторов
const (
	rsiPeriod  = 14
	atrPeriod  = 14
	bbPeriod   = 20
	bbNumStd   = 2.0
	smaFast    = 20
	smaSlow    = 50
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

const (
	// scoreWindowBars - глубина анализа: оценка считается по последним
	// 50 дневным свечам, более старая история на балл не влияет.
	scoreWindowBars = 50

	// minScoreBars - минимум свечей для осмысленной оценки.
	// Ниже порога тикер пропускается, а не оценивается нейтрально.
	minScoreBars = 20

	// historyDays - запас календарных дней, покрывающий scoreWindowBars
	// торговых дней с учетом выходных и праздников.
	historyDays = 120

	// scanParallelism ограничивает одновременные запросы истории,
	// чтобы скан не выедал лимит запросов к ISS у движка.
	scanParallelism = 4

	// maxPairCandidates - сколько пар попадает в результат сканирования.
	maxPairCandidates = 5
)

// Result - итог одного полного сканирования универсума.
type Result struct {
	Scores     []models.StockScore `json:"scores"`
	Pairs      []PairCandidate     `json:"pairs,omitempty"`
	Failed     []string            `json:"failed,omitempty"`
	ScannedAt  time.Time           `json:"scanned_at"`
	DurationMS int64               `json:"duration_ms"`
}

// Screener периодически оценивает бумаги универсума через источник
// рыночных данных: считает оценку 0-100 на тикер, подбирает бумаги
// под стратегии и кандидатов в пары внутри секторов. Последний
// результат хранится и отдается управляющему API без повторного
// скана.
type Screener struct {
	source   marketdata.Source
	universe []string

	mu   sync.RWMutex
	last *Result
}

// New создает скринер. При пустом universe используется DefaultUniverse.
func New(source marketdata.Source, universe []string) *Screener {
	if len(universe) == 0 {
		universe = DefaultUniverse
	}
	return &Screener{
		source:   source,
		universe: append([]string(nil), universe...),
	}
}

// Universe возвращает копию списка сканируемых тикеров.
func (s *Screener) Universe() []string {
	return append([]string(nil), s.universe...)
}

// ScanAll оценивает весь универсум. Тикеры с недоступной или слишком
// короткой историей пропускаются и перечисляются в Result.Failed;
// ошибкой завершается только отмена контекста.
func (s *Screener) ScanAll(ctx context.Context) (*Result, error) {
	start := time.Now()

	scores := make([]*models.StockScore, len(s.universe))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanParallelism)
	for i, ticker := range s.universe {
		i, ticker := i, ticker
		g.Go(func() error {
			score, err := s.AnalyzeTicker(gctx, ticker)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				utils.Warn("screener skipped ticker",
					utils.Ticker(ticker),
					utils.Err(err))
				return nil
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("market scan aborted: %w", err)
	}

	result := &Result{ScannedAt: time.Now()}
	for i, score := range scores {
		if score == nil {
			result.Failed = append(result.Failed, s.universe[i])
			continue
		}
		result.Scores = append(result.Scores, *score)
	}

	sort.SliceStable(result.Scores, func(a, b int) bool {
		return result.Scores[a].TotalScore > result.Scores[b].TotalScore
	})

	MatchStrategies(result.Scores)
	result.Pairs = PairCandidates(result.Scores, maxPairCandidates)
	markPairLegs(result.Scores, result.Pairs)

	result.DurationMS = time.Since(start).Milliseconds()

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	utils.Info("market scan finished",
		utils.Int("scored", len(result.Scores)),
		utils.Int("failed", len(result.Failed)),
		utils.Int("pairs", len(result.Pairs)),
		utils.Int64("elapsed_ms", result.DurationMS))
	return result, nil
}

// LastResult возвращает результат последнего сканирования или nil,
// если сканирований еще не было. Результат после публикации не
// изменяется, вызывающий код читает его без копирования.
func (s *Screener) LastResult() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// AnalyzeTicker строит полную техническую оценку одной бумаги.
func (s *Screener) AnalyzeTicker(ctx context.Context, ticker string) (*models.StockScore, error) {
	series, err := s.source.GetHistory(ctx, ticker, historyDays)
	if err != nil {
		return nil, err
	}
	if series.Len() < minScoreBars {
		return nil, fmt.Errorf("%s: only %d bars, need %d", ticker, series.Len(), minScoreBars)
	}

	series.TrimTo(scoreWindowBars)

	closes := series.Closes()
	price := series.LastClose()
	lastBar, _ := series.Last()

	rsi := indicators.RSI(closes, rsiPeriod)
	macdLine, macdSig, macdHist := indicators.MACD(closes, macdFast, macdSlow, macdSignal)
	sma20 := indicators.SMALast(closes, smaFast)
	sma50 := indicators.SMALast(closes, smaSlow)
	bbUpper, _, bbLower := indicators.BollingerBands(closes, bbPeriod, bbNumStd)
	atr := indicators.ATR(series.Highs(), series.Lows(), closes, atrPeriod)

	// Короткая история: скользящие средние деградируют к текущей цене,
	// чтобы трендовые сравнения давали нейтральный результат.
	if math.IsNaN(sma20) {
		sma20 = price
	}
	if math.IsNaN(sma50) {
		sma50 = price
	}

	bbPos := bbPositionOf(price, bbUpper, bbLower)
	if math.IsNaN(bbUpper) {
		bbUpper = price
	}
	if math.IsNaN(bbLower) {
		bbLower = price
	}

	var atrPercent float64
	if price > 0 {
		atrPercent = atr / price * 100
	}

	trendShort, trendMedium, trendLong := classifyTrends(closes, price, sma20, sma50)

	momentum := momentumScore(rsi, macdHist, bbPos)
	trend := trendScore(trendShort, trendMedium, trendLong)
	volume := volumeScore(series.Volumes())
	volatility := volatilityScore(atrPercent)
	total := combineScore(momentum, trend, volume, volatility)

	return &models.StockScore{
		Ticker: ticker,
		Name:   CompanyName(ticker),
		Sector: Sector(ticker),
		Price:  price,
		Volume: lastBar.Volume,

		RSI:           rsi,
		MACD:          macdLine,
		MACDSignal:    macdSig,
		MACDHistogram: macdHist,
		SMA20:         sma20,
		SMA50:         sma50,
		BBUpper:       bbUpper,
		BBLower:       bbLower,
		BBPosition:    bbPos,
		ATR:           atr,
		ATRPercent:    atrPercent,

		TrendShort:  trendShort,
		TrendMedium: trendMedium,
		TrendLong:   trendLong,

		MomentumScore:   momentum,
		TrendScore:      trend,
		VolumeScore:     volume,
		VolatilityScore: volatility,

		TotalScore:     total,
		Recommendation: recommendationFor(total),
		Timestamp:      time.Now(),
	}, nil
}

// TopStocks возвращает до n лучших кандидатов на покупку (рекомендация
// BUY или STRONG_BUY) по убыванию итоговой оценки.
func TopStocks(scores []models.StockScore, n int) []models.StockScore {
	out := make([]models.StockScore, 0, n)
	for _, score := range scores {
		if score.IsBuyCandidate() {
			out = append(out, score)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].TotalScore > out[b].TotalScore
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ============================================================
// Компонентные оценки
// ============================================================

// bbPositionOf возвращает позицию цены внутри полос Боллинджера 0-1.
// При вырожденных полосах позиция нейтральная.
func bbPositionOf(price, upper, lower float64) float64 {
	if math.IsNaN(upper) || math.IsNaN(lower) || upper <= lower {
		return 0.5
	}
	pos := (price - lower) / (upper - lower)
	return utils.Clamp(pos, 0, 1)
}

// classifyTrends определяет направление на трех горизонтах:
// короткий - цена против средней за 5 дней, средний - против SMA20
// с зоной нечувствительности 2%, длинный - против SMA50 с зоной 5%.
func classifyTrends(closes []float64, price, sma20, sma50 float64) (short, medium, long string) {
	short = models.TrendNeutral
	if len(closes) >= 5 {
		if price > indicators.Mean(closes[len(closes)-5:]) {
			short = models.TrendUp
		} else {
			short = models.TrendDown
		}
	}

	switch {
	case price > sma20*1.02:
		medium = models.TrendUp
	case price < sma20*0.98:
		medium = models.TrendDown
	default:
		medium = models.TrendNeutral
	}

	switch {
	case price > sma50*1.05:
		long = models.TrendUp
	case price < sma50*0.95:
		long = models.TrendDown
	default:
		long = models.TrendNeutral
	}
	return short, medium, long
}

// momentumScore сворачивает RSI, гистограмму MACD и позицию в полосах
// Боллинджера в оценку импульса -1..1. Положительные значения -
// перепроданность, отрицательные - перекупленность: скринер ищет
// точки входа в лонг.
func momentumScore(rsi, macdHistogram, bbPos float64) float64 {
	var rsiScore float64
	switch {
	case rsi < 30:
		rsiScore = 1.0
	case rsi < 40:
		rsiScore = 0.7
	case rsi < 50:
		rsiScore = 0.3
	case rsi < 60:
		rsiScore = 0.0
	case rsi < 70:
		rsiScore = -0.3
	default:
		rsiScore = -1.0
	}

	macdScore := -1.0
	if macdHistogram > 0 {
		macdScore = 1.0
	}

	var bbScore float64
	switch {
	case bbPos < 0.1:
		bbScore = 1.0
	case bbPos < 0.3:
		bbScore = 0.5
	case bbPos < 0.7:
		bbScore = 0.0
	case bbPos < 0.9:
		bbScore = -0.5
	default:
		bbScore = -1.0
	}

	return rsiScore*0.4 + macdScore*0.3 + bbScore*0.3
}

// trendScore сворачивает три горизонта в оценку -1..1,
// длинному горизонту вес больше.
func trendScore(short, medium, long string) float64 {
	value := func(trend string) float64 {
		switch trend {
		case models.TrendUp:
			return 1
		case models.TrendDown:
			return -1
		default:
			return 0
		}
	}
	return value(short)*0.3 + value(medium)*0.3 + value(long)*0.4
}

// volumeScore оценивает всплеск объема: последний дневной объем против
// среднего за 10 дней. 0 при недостатке данных.
func volumeScore(volumes []float64) float64 {
	if len(volumes) < 10 {
		return 0
	}
	avg := indicators.Mean(volumes[len(volumes)-10:])
	if avg <= 0 {
		return 0
	}

	ratio := volumes[len(volumes)-1] / avg
	switch {
	case ratio > 1.5:
		return 1.0
	case ratio > 1.2:
		return 0.7
	case ratio > 0.8:
		return 0.3
	default:
		return 0
	}
}

// volatilityScore оценивает спокойность бумаги по ATR в процентах от
// цены: чем ниже дневной ход, тем выше оценка.
func volatilityScore(atrPercent float64) float64 {
	switch {
	case atrPercent < 1:
		return 1.0
	case atrPercent < 2:
		return 0.7
	case atrPercent < 3:
		return 0.3
	default:
		return 0
	}
}

// combineScore сводит компоненты во взвешенный итог 0-100.
// Знаковые компоненты (-1..1) предварительно приводятся к шкале 0-100.
func combineScore(momentum, trend, volume, volatility float64) float64 {
	total := (momentum+1)/2*100*weightMomentum +
		(trend+1)/2*100*weightTrend +
		volume*100*weightVolume +
		volatility*100*weightVolatility
	return utils.Clamp(total, 0, 100)
}

// recommendationFor переводит итоговый балл в торговую рекомендацию.
func recommendationFor(total float64) string {
	switch {
	case total >= 80:
		return models.RecommendationStrongBuy
	case total >= 60:
		return models.RecommendationBuy
	case total >= 40:
		return models.RecommendationHold
	case total >= 20:
		return models.RecommendationSell
	default:
		return models.RecommendationStrongSell
	}
}
