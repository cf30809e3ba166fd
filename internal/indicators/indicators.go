// Package indicators содержит чистые функции расчета технических
// индикаторов над числовыми сериями. Все функции деградируют до
// документированных нейтральных значений при недостатке данных
// и никогда не паникуют.
package indicators

import "math"

// SMA рассчитывает простую скользящую среднюю по всей серии.
// Результат выровнен по длине входа: позиции, где накоплено меньше
// period точек, содержат NaN.
func SMA(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if period <= 0 || len(series) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	var sum float64
	for i, v := range series {
		sum += v
		if i >= period {
			sum -= series[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// SMALast возвращает текущее значение простой скользящей средней
// (NaN при недостатке данных).
func SMALast(series []float64, period int) float64 {
	if period <= 0 || len(series) < period {
		return math.NaN()
	}
	return Mean(series[len(series)-period:])
}

// EMA рассчитывает экспоненциальную скользящую среднюю по всей серии.
// Начальное значение на позиции period-1 равно SMA первых period точек,
// далее рекуррентно ema[i] = (x[i]-ema[i-1])*k + ema[i-1], k = 2/(period+1).
// Позиции до начального значения содержат NaN.
func EMA(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if period <= 0 || len(series) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	for i := 0; i < period-1; i++ {
		out[i] = math.NaN()
	}

	var seed float64
	for _, v := range series[:period] {
		seed += v
	}
	out[period-1] = seed / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(series); i++ {
		out[i] = (series[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// EMALast возвращает текущее значение экспоненциальной скользящей средней
// (NaN при недостатке данных).
func EMALast(series []float64, period int) float64 {
	if period <= 0 || len(series) < period {
		return math.NaN()
	}
	arr := EMA(series, period)
	return arr[len(arr)-1]
}

// RSI рассчитывает текущее значение индекса относительной силы по
// последним period приращениям. Используется простое среднее выигрышей
// и потерь. При недостатке данных возвращает нейтральные 50.
// Если средняя потеря равна нулю, возвращает 100; пустое множество
// выигрышей заменяется полом 0.0001 перед делением.
func RSI(series []float64, period int) float64 {
	if period <= 0 || len(series) < period+1 {
		return 50.0
	}

	window := series[len(series)-period-1:]
	var gainSum, lossSum float64
	var gainN, lossN int
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		switch {
		case d > 0:
			gainSum += d
			gainN++
		case d < 0:
			lossSum -= d
			lossN++
		}
	}

	// Полностью плоская серия нейтральна.
	if gainN == 0 && lossN == 0 {
		return 50.0
	}
	if lossN == 0 {
		return 100.0
	}

	avgGain := 0.0001
	if gainN > 0 {
		avgGain = gainSum / float64(gainN)
	}
	avgLoss := lossSum / float64(lossN)

	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// ATR рассчитывает текущее значение среднего истинного диапазона как
// арифметическое среднее последних period истинных диапазонов,
// TR = max(h-l, |h-prevClose|, |l-prevClose|). Диапазоны существуют
// со второй свечи, поэтому требуется period+1 баров; иначе 0.
func ATR(high, low, close []float64, period int) float64 {
	n := len(high)
	if len(low) < n {
		n = len(low)
	}
	if len(close) < n {
		n = len(close)
	}
	if period <= 0 || n < period+1 {
		return 0
	}

	var sum float64
	for i := n - period; i < n; i++ {
		tr := high[i] - low[i]
		if d := math.Abs(high[i] - close[i-1]); d > tr {
			tr = d
		}
		if d := math.Abs(low[i] - close[i-1]); d > tr {
			tr = d
		}
		sum += tr
	}
	return sum / float64(period)
}

// BollingerBands рассчитывает текущие значения полос Боллинджера:
// (верхняя, средняя, нижняя) = (SMA +/- numStd*сигма, SMA), где сигма
// есть стандартное отклонение окна без поправки Бесселя. При недостатке
// данных возвращает тройку NaN.
func BollingerBands(series []float64, period int, numStd float64) (upper, middle, lower float64) {
	if period <= 0 || len(series) < period {
		nan := math.NaN()
		return nan, nan, nan
	}

	window := series[len(series)-period:]
	middle = Mean(window)
	sd := StdDev(window)

	return middle + numStd*sd, middle, middle - numStd*sd
}

// MACD рассчитывает текущие значения (MACD линия, сигнальная линия,
// гистограмма). MACD линия = EMA(fast) - EMA(slow), сигнальная линия =
// EMA от MACD линии с периодом signalPeriod, гистограмма = их разность.
// При недостатке данных возвращает нулевую тройку.
func MACD(series []float64, fast, slow, signalPeriod int) (macd, signal, histogram float64) {
	if fast <= 0 || slow <= 0 || signalPeriod <= 0 {
		return 0, 0, 0
	}
	need := slow
	if fast > need {
		need = fast
	}
	if len(series) < need+signalPeriod {
		return 0, 0, 0
	}

	emaFast := EMA(series, fast)
	emaSlow := EMA(series, slow)

	last := len(series) - 1
	if math.IsNaN(emaFast[last]) || math.IsNaN(emaSlow[last]) {
		return 0, 0, 0
	}

	valid := make([]float64, 0, len(series))
	for i := range series {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			valid = append(valid, emaFast[i]-emaSlow[i])
		}
	}
	if len(valid) < signalPeriod {
		return 0, 0, 0
	}

	signalSeries := EMA(valid, signalPeriod)
	signal = signalSeries[len(signalSeries)-1]
	if math.IsNaN(signal) {
		return 0, 0, 0
	}

	macd = valid[len(valid)-1]
	return macd, signal, macd - signal
}

// Mean возвращает арифметическое среднее серии (0 для пустой).
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// StdDev возвращает стандартное отклонение серии без поправки Бесселя
// (0 для пустой серии).
func StdDev(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	m := Mean(series)
	var ss float64
	for _, v := range series {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(series)))
}
