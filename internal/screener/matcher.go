package screener

import (
	"sort"

	"moexbot/internal/models"
)

// Критерии пригодности бумаги под стратегии
const (
	// SMA-кроссовер: бумага в восходящем тренде с живым объемом,
	// но еще не перекупленная
	crossoverMaxRSI    = 65.0
	crossoverMinVolume = 0.5

	// Возврат к среднему: перепроданная бумага у нижней полосы
	// с умеренной волатильностью
	reversionMaxRSI    = 35.0
	reversionMaxBBPos  = 0.3
	reversionMaxATRPct = 3.0
)

// MatchStrategies проставляет каждой бумаге список стратегий, под
// критерии которых она подходит. Пригодность к парной торговле
// определяется отдельно по результату PairCandidates.
func MatchStrategies(scores []models.StockScore) {
	for i := range scores {
		score := &scores[i]
		score.SuitableStrategies = nil

		if score.Price > score.SMA50 && score.VolumeScore > crossoverMinVolume && score.RSI < crossoverMaxRSI {
			score.SuitableStrategies = append(score.SuitableStrategies, string(models.KindSMACrossover))
		}
		if score.RSI < reversionMaxRSI && score.BBPosition < reversionMaxBBPos && score.ATRPercent < reversionMaxATRPct {
			score.SuitableStrategies = append(score.SuitableStrategies, string(models.KindRSIMeanReversion))
		}
	}
}

// PairCandidate - пара бумаг одного сектора, разошедшихся по RSI.
// Перепроданная нога - кандидат на лонг, перекупленная - на шорт.
type PairCandidate struct {
	Sector     string  `json:"sector"`
	Oversold   string  `json:"oversold"`
	Overbought string  `json:"overbought"`
	RSISpread  float64 `json:"rsi_spread"`
}

// PairCandidates ищет в каждом секторе с двумя и более бумагами пару
// с крайними значениями RSI. Пары упорядочены по убыванию расхождения,
// в результат попадает не более limit штук.
func PairCandidates(scores []models.StockScore, limit int) []PairCandidate {
	bySector := make(map[string][]models.StockScore)
	var order []string
	for _, score := range scores {
		if score.Sector == "" {
			continue
		}
		if _, ok := bySector[score.Sector]; !ok {
			order = append(order, score.Sector)
		}
		bySector[score.Sector] = append(bySector[score.Sector], score)
	}

	var pairs []PairCandidate
	for _, sector := range order {
		members := bySector[sector]
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(a, b int) bool {
			return members[a].RSI < members[b].RSI
		})

		low := members[0]
		high := members[len(members)-1]
		pairs = append(pairs, PairCandidate{
			Sector:     sector,
			Oversold:   low.Ticker,
			Overbought: high.Ticker,
			RSISpread:  high.RSI - low.RSI,
		})
	}

	sort.SliceStable(pairs, func(a, b int) bool {
		return pairs[a].RSISpread > pairs[b].RSISpread
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// markPairLegs дописывает парную торговлю в список подходящих стратегий
// бумагам, вошедшим в отобранные пары.
func markPairLegs(scores []models.StockScore, pairs []PairCandidate) {
	if len(pairs) == 0 {
		return
	}

	legs := make(map[string]bool, len(pairs)*2)
	for _, pair := range pairs {
		legs[pair.Oversold] = true
		legs[pair.Overbought] = true
	}

	for i := range scores {
		if legs[scores[i].Ticker] {
			scores[i].SuitableStrategies = append(scores[i].SuitableStrategies, string(models.KindPairTrading))
		}
	}
}
