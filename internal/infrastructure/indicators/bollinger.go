package indicators

import "math"

type BollingerBands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes Bollinger Bands over a simple moving average. Entries
// before the warm-up window are zero.
func Bollinger(closes []float64, period int, multiplier float64) BollingerBands {
	length := len(closes)
	upper := make([]float64, length)
	middle := make([]float64, length)
	lower := make([]float64, length)
	if length < period || period < 1 {
		return BollingerBands{upper, middle, lower}
	}

	for i := period - 1; i < length; i++ {
		sum := 0.0
		for j := 0; j < period; j++ {
			sum += closes[i-j]
		}
		ma := sum / float64(period)
		middle[i] = ma

		sumSqDiff := 0.0
		for j := 0; j < period; j++ {
			diff := closes[i-j] - ma
			sumSqDiff += diff * diff
		}
		stdDev := math.Sqrt(sumSqDiff / float64(period))

		upper[i] = ma + multiplier*stdDev
		lower[i] = ma - multiplier*stdDev
	}
	return BollingerBands{Upper: upper, Middle: middle, Lower: lower}
}
