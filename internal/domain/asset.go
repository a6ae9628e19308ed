package domain

import "errors"

// Asset is a traded unit (BTC, USDT, ...).
type Asset struct {
	ID     int64  `json:"id"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// ExchangeAsset binds an asset to one exchange with the decimal precision
// that exchange quotes it at. Every scaled integer field elsewhere in the
// system is scaled by 10^Precision of its ExchangeAsset.
type ExchangeAsset struct {
	ID         int64  `json:"id"`
	ExchangeID int64  `json:"exchangeId"`
	AssetID    int64  `json:"assetId"`
	Ticker     string `json:"ticker"`
	Precision  int    `json:"precision"`
}

// Market is a base/quote pair on one exchange together with the order
// minimums the exchange enforces. AmountMin and amounts are scaled by the
// base asset precision; PriceMin, CostMin, prices and costs by the quote
// asset precision.
type Market struct {
	ID              int64         `json:"id"`
	ExchangeID      int64         `json:"exchangeId"`
	Symbol          string        `json:"symbol"`
	Base            ExchangeAsset `json:"base"`
	Quote           ExchangeAsset `json:"quote"`
	AmountPrecision int           `json:"amountPrecision"`
	PricePrecision  int           `json:"pricePrecision"`
	AmountMin       int64         `json:"amountMin"`
	PriceMin        int64         `json:"priceMin"`
	CostMin         int64         `json:"costMin"`
}

// ErrOrderTooSmall is returned when an order would violate the market's
// minimums. It is rejected locally, before any network call.
var ErrOrderTooSmall = errors.New("order below market minimums")

// ValidateOrder checks amount, price and resulting cost against the
// exchange-imposed minimums.
func (m *Market) ValidateOrder(amount, price int64) error {
	if amount < m.AmountMin {
		return ErrOrderTooSmall
	}
	if price < m.PriceMin {
		return ErrOrderTooSmall
	}
	if m.Cost(amount, price) < m.CostMin {
		return ErrOrderTooSmall
	}
	return nil
}

// Cost computes the quote cost of an order at this market's scales.
func (m *Market) Cost(amount, price int64) int64 {
	return Cost(amount, price, m.Base.Precision)
}

// Amount converts a quote cost into a base amount at the given price,
// truncated to the market's amount precision.
func (m *Market) Amount(cost, price int64) int64 {
	a := AmountAt(cost, price, m.Base.Precision)
	return Truncate(a, m.Base.Precision, m.AmountPrecision)
}

// AmountCeil converts a quote cost into the smallest amount at the market's
// amount precision whose notional is not below cost. Plain truncation can
// land just under an exchange minimum; this rounds the other way.
func (m *Market) AmountCeil(cost, price int64) int64 {
	if price <= 0 {
		return 0
	}
	a := m.Amount(cost, price)
	step := Scale(m.Base.Precision - m.AmountPrecision)
	for m.Cost(a, price) < cost {
		a += step
	}
	return a
}

// MinAmountAt returns the smallest tradable amount at a price, honoring
// both the amount minimum and the cost minimum.
func (m *Market) MinAmountAt(price int64) int64 {
	if price <= 0 {
		return m.AmountMin
	}
	a := m.AmountCeil(m.CostMin, price)
	if a < m.AmountMin {
		return m.AmountMin
	}
	return a
}

// TruncPrice clamps a price to the market's price precision.
func (m *Market) TruncPrice(price int64) int64 {
	return Truncate(price, m.Quote.Precision, m.PricePrecision)
}
