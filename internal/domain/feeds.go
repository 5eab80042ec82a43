package domain

import "time"

type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// CurvePoint is one term-structure reading keyed by a tenor label such as
// "BTC-0626 (0.31y)".
type CurvePoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type YieldEntry struct {
	Symbol  string  `json:"symbol"`
	RatePct float64 `json:"rate_pct"`
}
