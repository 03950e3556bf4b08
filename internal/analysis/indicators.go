package analysis

import (
	"math"

	"newsradar/internal/models"
)

// IndicatorSnapshot is the technical-indicator block included in both the
// prediction and report prompts. Pointer fields are nil when the price
// history is too short for that indicator.
type IndicatorSnapshot struct {
	Close float64

	MA5          *float64
	MA20         *float64
	MA60         *float64
	MA5VsClose   *float64 // percent
	MA20VsClose  *float64
	MA60VsClose  *float64
	VolumeRatio  *float64 // today vs 20-day average
	RSI14        *float64
	BollingerUp  *float64
	BollingerMid *float64
	BollingerLow *float64
	PercentB     *float64
	MACD         *float64
	MACDSignal   *float64
	MACDHist     *float64
	Momentum1D   *float64 // percent
	Momentum5D   *float64
	Momentum20D  *float64
}

// ComputeIndicators derives the snapshot from chronological daily prices.
// At least two rows are required; with fewer it returns nil.
func ComputeIndicators(prices []models.StockPrice) *IndicatorSnapshot {
	if len(prices) < 2 {
		return nil
	}
	closes := make([]float64, len(prices))
	volumes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close.InexactFloat64()
		volumes[i] = float64(p.Volume)
	}
	last := closes[len(closes)-1]
	snap := &IndicatorSnapshot{Close: last}

	if ma := sma(closes, 5); ma != nil {
		snap.MA5 = ma
		snap.MA5VsClose = pctVs(last, *ma)
	}
	if ma := sma(closes, 20); ma != nil {
		snap.MA20 = ma
		snap.MA20VsClose = pctVs(last, *ma)
	}
	if ma := sma(closes, 60); ma != nil {
		snap.MA60 = ma
		snap.MA60VsClose = pctVs(last, *ma)
	}

	if avg := sma(volumes, 20); avg != nil && *avg > 0 {
		ratio := volumes[len(volumes)-1] / *avg
		snap.VolumeRatio = &ratio
	}

	snap.RSI14 = rsi(closes, 14)

	if mid := sma(closes, 20); mid != nil {
		sd := stddev(closes[len(closes)-20:], *mid)
		up := *mid + 2*sd
		low := *mid - 2*sd
		snap.BollingerMid = mid
		snap.BollingerUp = &up
		snap.BollingerLow = &low
		if up != low {
			pb := (last - low) / (up - low)
			snap.PercentB = &pb
		}
	}

	if macd, signal, hist := macd(closes); macd != nil {
		snap.MACD = macd
		snap.MACDSignal = signal
		snap.MACDHist = hist
	}

	snap.Momentum1D = momentum(closes, 1)
	snap.Momentum5D = momentum(closes, 5)
	snap.Momentum20D = momentum(closes, 20)
	return snap
}

func sma(vals []float64, period int) *float64 {
	if len(vals) < period || period <= 0 {
		return nil
	}
	sum := 0.0
	for _, v := range vals[len(vals)-period:] {
		sum += v
	}
	out := sum / float64(period)
	return &out
}

func pctVs(current, base float64) *float64 {
	if base == 0 {
		return nil
	}
	out := (current - base) / base * 100
	return &out
}

func rsi(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	var gains, losses float64
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	if losses == 0 {
		out := 100.0
		return &out
	}
	rs := gains / losses
	out := 100 - 100/(1+rs)
	return &out
}

func stddev(vals []float64, mean float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)))
}

func ema(vals []float64, period int) []float64 {
	if len(vals) < period {
		return nil
	}
	out := make([]float64, len(vals))
	k := 2.0 / float64(period+1)
	seed := 0.0
	for _, v := range vals[:period] {
		seed += v
	}
	out[period-1] = seed / float64(period)
	for i := period; i < len(vals); i++ {
		out[i] = vals[i]*k + out[i-1]*(1-k)
	}
	return out
}

// macd returns the 12/26 line, the 9-period signal and the histogram.
func macd(closes []float64) (*float64, *float64, *float64) {
	if len(closes) < 26+9 {
		return nil, nil, nil
	}
	fast := ema(closes, 12)
	slow := ema(closes, 26)
	line := make([]float64, 0, len(closes)-25)
	for i := 25; i < len(closes); i++ {
		line = append(line, fast[i]-slow[i])
	}
	signalSeries := ema(line, 9)
	if signalSeries == nil {
		return nil, nil, nil
	}
	macdVal := line[len(line)-1]
	signalVal := signalSeries[len(signalSeries)-1]
	hist := macdVal - signalVal
	return &macdVal, &signalVal, &hist
}

func momentum(closes []float64, days int) *float64 {
	if len(closes) < days+1 {
		return nil
	}
	base := closes[len(closes)-1-days]
	if base == 0 {
		return nil
	}
	out := (closes[len(closes)-1] - base) / base * 100
	return &out
}
