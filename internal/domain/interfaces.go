package domain

import (
	"context"
	"time"
)

// MarketData is the exchange transport collaborator. Implementations own
// authentication, rate limiting and reconnection; callers only see
// request/response and subscription primitives.
type MarketData interface {
	ListInstruments(ctx context.Context) ([]Instrument, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	// GetHistoricalPrices returns (timestamp, open) points ordered ascending
	// by time, at most limit points.
	GetHistoricalPrices(ctx context.Context, symbol string, resolutionSec, limit int, start, end time.Time) ([]PricePoint, error)
	GetFundingRates(ctx context.Context) ([]FundingRateEntry, error)
	// GetFundingRateHistory returns (timestamp, periodic rate) points,
	// newest first, as delivered by the venue.
	GetFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]PricePoint, error)

	Subscribe(symbols []string) error
	OnQuoteUpdate(callback func(q Quote))
}

// PlotSink is the presentation collaborator: plain numeric feeds with no
// chart-specific metadata. Publish methods replace a whole series, Append
// methods add one live reading to it.
type PlotSink interface {
	PublishSnapshot(ts time.Time, rows []Quote)
	UpdateQuote(ts time.Time, q Quote)

	PublishPriceSeries(symbol string, points []SeriesPoint)
	AppendPricePoint(symbol string, p SeriesPoint)

	PublishRateSeries(symbol string, secondaryAxis bool, points []SeriesPoint)
	AppendRatePoint(symbol string, secondaryAxis bool, p SeriesPoint)

	AppendAccrualPoint(symbol string, rate, level SeriesPoint)

	PublishTermStructure(implied, forward []CurvePoint)
	PublishTopYields(entries []YieldEntry)

	// Reset drops every retained feed, used when the basket changes.
	Reset()
}

// InstrumentStore persists contract listings between runs so the catalog
// can warm-start when the venue is unreachable.
type InstrumentStore interface {
	ReplaceInstruments(ctx context.Context, instruments []Instrument) error
	ListInstruments(ctx context.Context) ([]Instrument, error)
}
