package indicators

// EMA computes the Exponential Moving Average seeded with a simple MA over
// the first period values. Entries before the warm-up window are zero.
func EMA(data []float64, period int) []float64 {
	ema := make([]float64, len(data))
	if len(data) < period || period < 1 {
		return ema
	}

	k := 2.0 / (float64(period) + 1.0)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	ema[period-1] = sum / float64(period)

	for i := period; i < len(data); i++ {
		ema[i] = (data[i] * k) + (ema[i-1] * (1 - k))
	}
	return ema
}
