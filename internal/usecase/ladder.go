package usecase

import "trader-backend/internal/domain"

// Rung is one order slot of a price ladder. Size is in quote cost units for
// buy ladders and base amount units for sell ladders; rung sizes always sum
// exactly to the ladder's total.
type Rung struct {
	Price int64
	Size  int64
}

// ladderPrices spreads numOrders prices across a band of spread percent
// around last: below it for buys, above it for sells.
func ladderPrices(m *domain.Market, last int64, numOrders int, spread float64, below bool) []int64 {
	delta := domain.Portion(last, spread)
	step := delta / int64(numOrders)
	prices := make([]int64, numOrders)
	for i := 0; i < numOrders; i++ {
		off := step * int64(i+1)
		if below {
			prices[i] = m.TruncPrice(last - off)
		} else {
			prices[i] = m.TruncPrice(last + off)
		}
	}
	return prices
}

func avgPrice(prices []int64) int64 {
	var sum int64
	for _, p := range prices {
		sum += p
	}
	return sum / int64(len(prices))
}

// BuyLadder splits total quote cost into numOrders rungs below lastPrice.
// When the per-rung cost would fall under the market's cost minimum the
// ladder collapses to a single rung at the band's average price. Rounding
// remainder goes to the final rung.
func BuyLadder(m *domain.Market, total, lastPrice int64, numOrders int, spread float64) []Rung {
	if total <= 0 || numOrders < 1 {
		return nil
	}
	prices := ladderPrices(m, lastPrice, numOrders, spread, true)
	unit := total / int64(numOrders)
	if unit < m.CostMin {
		return []Rung{{Price: m.TruncPrice(avgPrice(prices)), Size: total}}
	}
	rungs := make([]Rung, numOrders)
	for i := range rungs {
		rungs[i] = Rung{Price: prices[i], Size: unit}
	}
	rungs[numOrders-1].Size = total - unit*int64(numOrders-1)
	return rungs
}

// SellLadder splits total base amount into numOrders rungs above lastPrice,
// collapsing to a single rung when the per-rung amount would fall under the
// smallest tradable amount at that price.
func SellLadder(m *domain.Market, total, lastPrice int64, numOrders int, spread float64) []Rung {
	if total <= 0 || numOrders < 1 {
		return nil
	}
	prices := ladderPrices(m, lastPrice, numOrders, spread, false)
	unit := total / int64(numOrders)
	if unit < m.MinAmountAt(lastPrice) {
		return []Rung{{Price: m.TruncPrice(avgPrice(prices)), Size: total}}
	}
	rungs := make([]Rung, numOrders)
	for i := range rungs {
		rungs[i] = Rung{Price: prices[i], Size: unit}
	}
	rungs[numOrders-1].Size = total - unit*int64(numOrders-1)
	return rungs
}
