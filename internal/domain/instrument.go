package domain

import "time"

// Instrument describes one listed contract. Expiry is the zero time for
// perpetual contracts; the funding-interval expiry used in valuations is
// derived per call and never written back here.
type Instrument struct {
	Symbol      string    `json:"symbol"`
	Underlying  string    `json:"underlying"`
	Expiry      time.Time `json:"expiry"`
	IsPerpetual bool      `json:"is_perpetual"`
}

type Quote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

// MarketSnapshot is one fetch batch treated as "as of" a single moment.
// Quotes are aligned 1:1 with the requested basket.
type MarketSnapshot struct {
	Time   time.Time `json:"time"`
	Quotes []Quote   `json:"quotes"`
}

type PricePoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// FundingRateEntry is the latest periodic funding rate of one perpetual
// contract, expressed as a fraction per funding interval.
type FundingRateEntry struct {
	Symbol string  `json:"symbol"`
	Rate   float64 `json:"rate"`
}

// TenorPoint is one input leg of the term structure. Rate is annualized,
// in percent. The first point of a curve is the spot/reference leg with a
// zero rate contribution.
type TenorPoint struct {
	Label string  `json:"label"`
	Years float64 `json:"years"`
	Rate  float64 `json:"rate"`
}

// ForwardPoint is the marginal rate between two adjacent tenor points.
type ForwardPoint struct {
	Label string  `json:"label"`
	Years float64 `json:"years"`
	Rate  float64 `json:"rate"`
}
