package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Monetary values are int64 integers scaled by 10^precision. Floating point
// is never used for money. All conversions truncate instead of rounding so a
// scaled value never reports more than is actually held.

// MaxPrecision is the largest number of decimal places an exchange asset may
// declare. Binance and most venues stay at 8.
const MaxPrecision = 18

var pow10 = func() [MaxPrecision + 1]int64 {
	var t [MaxPrecision + 1]int64
	t[0] = 1
	for i := 1; i <= MaxPrecision; i++ {
		t[i] = t[i-1] * 10
	}
	return t
}()

// Scale returns 10^prec.
func Scale(prec int) int64 {
	if prec < 0 || prec > MaxPrecision {
		return 1
	}
	return pow10[prec]
}

// Transform parses a decimal string as reported by an exchange and scales it
// to an integer at the given precision. Digits beyond prec are dropped, not
// rounded.
func Transform(value string, prec int) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("transform: empty value")
	}
	if prec < 0 || prec > MaxPrecision {
		return 0, fmt.Errorf("transform: precision %d out of range", prec)
	}

	neg := false
	if value[0] == '+' || value[0] == '-' {
		neg = value[0] == '-'
		value = value[1:]
	}

	intPart := value
	fracPart := ""
	if i := strings.IndexByte(value, '.'); i >= 0 {
		intPart, fracPart = value[:i], value[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("transform %q: %w", value, err)
	}

	// Truncate the fraction to prec digits, right-pad if shorter.
	if len(fracPart) > prec {
		fracPart = fracPart[:prec]
	}
	frac := int64(0)
	if fracPart != "" {
		frac, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("transform %q: %w", value, err)
		}
		frac *= Scale(prec - len(fracPart))
	}

	v := whole*Scale(prec) + frac
	if neg {
		v = -v
	}
	return v, nil
}

// Format renders a scaled integer back to its decimal string with exactly
// prec fractional digits. It is the inverse of Transform for any value
// representable at that precision.
func Format(value int64, prec int) string {
	scale := Scale(prec)
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	if prec == 0 {
		return sign + strconv.FormatInt(value, 10)
	}
	return fmt.Sprintf("%s%d.%0*d", sign, value/scale, prec, value%scale)
}

// Truncate drops any digits of a scaled value finer than keep decimal
// places, where the value itself is scaled at prec. Used to clamp amounts
// and prices to a market's amount/price precision before submission.
func Truncate(value int64, prec, keep int) int64 {
	if keep >= prec {
		return value
	}
	step := Scale(prec - keep)
	return (value / step) * step
}

// Div divides two integers at the same scale and returns the quotient scaled
// to prec, truncated toward zero. The intermediate product is computed with
// big.Int so large balances cannot overflow.
func Div(num, den int64, prec int) int64 {
	if den == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(num), big.NewInt(Scale(prec)))
	n.Quo(n, big.NewInt(den))
	return n.Int64()
}

// Cost multiplies an amount (scaled by amountPrec) by a price and rescales
// the product back down by amountPrec, yielding a cost at the price's scale.
func Cost(amount, price int64, amountPrec int) int64 {
	n := new(big.Int).Mul(big.NewInt(amount), big.NewInt(price))
	n.Quo(n, big.NewInt(Scale(amountPrec)))
	return n.Int64()
}

// AmountAt converts a cost back into a base amount at the given price:
// amount = cost * 10^amountPrec / price, truncated.
func AmountAt(cost, price int64, amountPrec int) int64 {
	if price == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(cost), big.NewInt(Scale(amountPrec)))
	n.Quo(n, big.NewInt(price))
	return n.Int64()
}

// PriceOf derives the average price paid for an amount:
// price = cost * 10^amountPrec / amount, truncated.
func PriceOf(cost, amount int64, amountPrec int) int64 {
	if amount == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(cost), big.NewInt(Scale(amountPrec)))
	n.Quo(n, big.NewInt(amount))
	return n.Int64()
}

// Portion returns pct percent of a scaled value, truncated. The percentage
// is carried with four decimal digits of resolution so config ratios like
// lm_ratio stay deterministic.
func Portion(value int64, pct float64) int64 {
	bps := int64(pct * 10000) // percent with 4 decimals
	n := new(big.Int).Mul(big.NewInt(value), big.NewInt(bps))
	n.Quo(n, big.NewInt(1000000))
	return n.Int64()
}

// Print renders a human readable value with its ticker suffix.
func Print(value int64, prec int, ticker string) string {
	return Format(value, prec) + " " + ticker
}
