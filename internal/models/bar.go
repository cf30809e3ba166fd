package models

import "time"

// Bar - одна дневная свеча OHLCV.
type Bar struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceSeries хранит историю свечей одного инструмента
// в хронологическом порядке (от старых к новым).
type PriceSeries struct {
	Ticker string `json:"ticker"`
	Bars   []Bar  `json:"bars"`
}

// NewPriceSeries создает серию для инструмента с начальным набором свечей.
func NewPriceSeries(ticker string, bars ...Bar) *PriceSeries {
	s := &PriceSeries{
		Ticker: ticker,
		Bars:   make([]Bar, 0, len(bars)),
	}
	s.Bars = append(s.Bars, bars...)
	return s
}

// Append добавляет свечу в конец серии.
// Свеча с тем же временем, что и последняя, заменяет ее (обновление
// незакрытого дня). Свеча старше последней игнорируется.
// Возвращает true, если серия изменилась.
func (s *PriceSeries) Append(bar Bar) bool {
	if len(s.Bars) == 0 {
		s.Bars = append(s.Bars, bar)
		return true
	}

	last := s.Bars[len(s.Bars)-1]
	switch {
	case bar.Timestamp.After(last.Timestamp):
		s.Bars = append(s.Bars, bar)
		return true
	case bar.Timestamp.Equal(last.Timestamp):
		s.Bars[len(s.Bars)-1] = bar
		return true
	default:
		return false
	}
}

// Len возвращает количество свечей в серии.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Last возвращает последнюю свечу серии.
func (s *PriceSeries) Last() (Bar, bool) {
	if s == nil || len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// LastClose возвращает цену закрытия последней свечи (0 для пустой серии).
func (s *PriceSeries) LastClose() float64 {
	bar, ok := s.Last()
	if !ok {
		return 0
	}
	return bar.Close
}

// Closes возвращает срез цен закрытия в хронологическом порядке.
func (s *PriceSeries) Closes() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs возвращает срез максимумов в хронологическом порядке.
func (s *PriceSeries) Highs() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows возвращает срез минимумов в хронологическом порядке.
func (s *PriceSeries) Lows() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Volumes возвращает срез объемов в хронологическом порядке.
func (s *PriceSeries) Volumes() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// TrimTo оставляет не более max последних свечей.
func (s *PriceSeries) TrimTo(max int) {
	if s == nil || max <= 0 || len(s.Bars) <= max {
		return
	}
	trimmed := make([]Bar, max)
	copy(trimmed, s.Bars[len(s.Bars)-max:])
	s.Bars = trimmed
}

// Clone возвращает глубокую копию серии.
func (s *PriceSeries) Clone() *PriceSeries {
	if s == nil {
		return nil
	}
	bars := make([]Bar, len(s.Bars))
	copy(bars, s.Bars)
	return &PriceSeries{Ticker: s.Ticker, Bars: bars}
}
