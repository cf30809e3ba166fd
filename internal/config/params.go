package config

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"moexbot/internal/models"
	"moexbot/internal/strategy"
)

// DefaultKey - ключ таблицы с параметрами по умолчанию.
// Используется как fallback когда для тикера нет собственной таблицы.
const DefaultKey = "__default__"

// StrategyParams - параметры стратегий из TOML файла.
//
// Формат файла:
//
//	[sma_crossover.__default__]
//	sma_fast = 9
//	sma_slow = 21
//
//	[sma_crossover.SBER]
//	sma_fast = 12
//	sma_slow = 26
//
//	[rsi_mean_reversion.__default__]
//	rsi_period = 14
//	oversold = 30.0
//	overbought = 70.0
//
//	[[pair_trading.pairs]]
//	instrument = "SBER"
//	pair_instrument = "SBERP"
//	lookback_period = 60
//	entry_z = 2.0
//	exit_z = 0.5
//	hedge_ratio_update = 20
//
//	[active]
//	SBER = ["sma_crossover", "rsi_mean_reversion"]
//	GAZP = ["sma_crossover"]
//
//	[quantities]
//	__default__ = 1
//	SBER = 10
type StrategyParams struct {
	SMACrossover     map[string]strategy.SMAParams `toml:"sma_crossover"`
	RSIMeanReversion map[string]strategy.RSIParams `toml:"rsi_mean_reversion"`
	PairTrading      PairSection                   `toml:"pair_trading"`
	Active           map[string][]string           `toml:"active"`
	Quantities       map[string]int                `toml:"quantities"`
}

// PairSection - секция парных стратегий
type PairSection struct {
	Pairs []PairEntry `toml:"pairs"`
}

// PairEntry - одна настроенная пара инструментов
type PairEntry struct {
	Instrument string `toml:"instrument"`
	strategy.PairParams
}

// LoadParams читает и валидирует файл параметров стратегий
func LoadParams(path string) (*StrategyParams, error) {
	var params StrategyParams

	md, err := toml.DecodeFile(path, &params)
	if err != nil {
		return nil, fmt.Errorf("failed to parse strategy params %s: %w", path, err)
	}

	// Нераспознанные ключи почти всегда означают опечатку в имени
	// таблицы или параметра - лучше упасть сразу, чем торговать
	// с дефолтами вместо настроенных значений
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in strategy params %s", undecoded[0].String(), path)
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy params %s: %w", path, err)
	}

	return &params, nil
}

// Validate проверяет согласованность параметров.
// Любая ошибка здесь фатальна: бот не стартует с неполной конфигурацией.
func (p *StrategyParams) Validate() error {
	if len(p.Active) == 0 && len(p.PairTrading.Pairs) == 0 {
		return fmt.Errorf("no instruments configured: [active] and [pair_trading.pairs] are both empty")
	}

	// Все таблицы параметров должны быть валидны, включая неиспользуемые:
	// сломанный __default__ всплывёт при первом тикере без своей таблицы
	for ticker, sp := range p.SMACrossover {
		if err := sp.Validate(); err != nil {
			return fmt.Errorf("sma_crossover.%s: %w", ticker, err)
		}
	}
	for ticker, rp := range p.RSIMeanReversion {
		if err := rp.Validate(); err != nil {
			return fmt.Errorf("rsi_mean_reversion.%s: %w", ticker, err)
		}
	}

	for ticker, kinds := range p.Active {
		if ticker == DefaultKey {
			return fmt.Errorf("[active] cannot contain %s", DefaultKey)
		}
		if len(kinds) == 0 {
			return fmt.Errorf("[active] %s: empty strategy list", ticker)
		}

		seen := make(map[string]bool, len(kinds))
		for _, kind := range kinds {
			if seen[kind] {
				return fmt.Errorf("[active] %s: strategy %q listed twice", ticker, kind)
			}
			seen[kind] = true

			switch models.StrategyKind(kind) {
			case models.KindSMACrossover:
				if _, ok := p.SMAFor(ticker); !ok {
					return fmt.Errorf("[active] %s: no [sma_crossover.%s] table and no [sma_crossover.%s]", ticker, ticker, DefaultKey)
				}
			case models.KindRSIMeanReversion:
				if _, ok := p.RSIFor(ticker); !ok {
					return fmt.Errorf("[active] %s: no [rsi_mean_reversion.%s] table and no [rsi_mean_reversion.%s]", ticker, ticker, DefaultKey)
				}
			case models.KindPairTrading:
				return fmt.Errorf("[active] %s: pair_trading is configured via [[pair_trading.pairs]]", ticker)
			default:
				return fmt.Errorf("[active] %s: unknown strategy %q", ticker, kind)
			}
		}

		if p.QuantityFor(ticker) < 1 {
			return fmt.Errorf("[quantities] %s: no quantity and no %s fallback", ticker, DefaultKey)
		}
	}

	seenPairs := make(map[string]bool, len(p.PairTrading.Pairs))
	for i, pe := range p.PairTrading.Pairs {
		if pe.Instrument == "" {
			return fmt.Errorf("pair_trading.pairs[%d]: instrument is required", i)
		}
		if pe.Instrument == pe.PairInstrument {
			return fmt.Errorf("pair_trading.pairs[%d]: instrument and pair_instrument are both %q", i, pe.Instrument)
		}
		if err := pe.PairParams.Validate(); err != nil {
			return fmt.Errorf("pair_trading.pairs[%d] (%s/%s): %w", i, pe.Instrument, pe.PairInstrument, err)
		}

		key := pe.Instrument + "/" + pe.PairInstrument
		if seenPairs[key] {
			return fmt.Errorf("pair_trading.pairs[%d]: pair %s configured twice", i, key)
		}
		seenPairs[key] = true

		if p.QuantityFor(pe.Instrument) < 1 {
			return fmt.Errorf("[quantities] %s: no quantity and no %s fallback", pe.Instrument, DefaultKey)
		}
	}

	for ticker, qty := range p.Quantities {
		if qty < 1 {
			return fmt.Errorf("[quantities] %s: must be at least 1 lot, got %d", ticker, qty)
		}
	}

	return nil
}

// SMAFor возвращает параметры SMA кроссовера для тикера
// с fallback на таблицу __default__
func (p *StrategyParams) SMAFor(ticker string) (strategy.SMAParams, bool) {
	if sp, ok := p.SMACrossover[ticker]; ok {
		return sp, true
	}
	sp, ok := p.SMACrossover[DefaultKey]
	return sp, ok
}

// RSIFor возвращает параметры RSI стратегии для тикера
// с fallback на таблицу __default__
func (p *StrategyParams) RSIFor(ticker string) (strategy.RSIParams, bool) {
	if rp, ok := p.RSIMeanReversion[ticker]; ok {
		return rp, true
	}
	rp, ok := p.RSIMeanReversion[DefaultKey]
	return rp, ok
}

// QuantityFor возвращает размер позиции в лотах для тикера
// с fallback на __default__. Возвращает 0 если не настроено.
func (p *StrategyParams) QuantityFor(ticker string) int {
	if qty, ok := p.Quantities[ticker]; ok {
		return qty
	}
	return p.Quantities[DefaultKey]
}

// Instruments возвращает отсортированный список всех тикеров,
// по которым нужны рыночные данные (активные + обе ноги пар)
func (p *StrategyParams) Instruments() []string {
	set := make(map[string]bool)
	for ticker := range p.Active {
		set[ticker] = true
	}
	for _, pe := range p.PairTrading.Pairs {
		set[pe.Instrument] = true
		set[pe.PairInstrument] = true
	}

	tickers := make([]string, 0, len(set))
	for ticker := range set {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}
