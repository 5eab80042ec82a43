package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ekurt/funding_curve/internal/domain"
	"go.uber.org/zap"
)

// MaxHistoryPoints caps each historical series; callers needing a longer
// window must request a coarser resolution.
const MaxHistoryPoints = 10000

// Fetcher coordinates concurrent market-data retrieval for a basket of
// contracts. Every batch is fan-out/fan-in: all per-instrument calls must
// succeed or the whole batch fails, so positional alignment with the
// requested basket is never silently broken.
type Fetcher struct {
	source  domain.MarketData
	catalog *InstrumentCatalog
	logger  *zap.Logger
	timeNow func() time.Time // for testing
}

func NewFetcher(source domain.MarketData, catalog *InstrumentCatalog, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		source:  source,
		catalog: catalog,
		logger:  logger,
		timeNow: time.Now,
	}
}

// FetchSnapshot retrieves current bid/ask/last for each symbol concurrently.
// The timestamp is captured once, after every retrieval has completed, so
// the batch reads as of a single moment.
func (f *Fetcher) FetchSnapshot(ctx context.Context, symbols []string) (*domain.MarketSnapshot, error) {
	quotes := make([]domain.Quote, len(symbols))
	errs := make([]error, len(symbols))

	var wg sync.WaitGroup
	for i, s := range symbols {
		wg.Add(1)
		go func(i int, s string) {
			defer wg.Done()
			q, err := f.source.GetQuote(ctx, s)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", s, err)
				return
			}
			quotes[i] = q
		}(i, s)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		f.logger.Warn("snapshot batch failed", zap.Int("symbols", len(symbols)), zap.Error(err))
		return nil, fmt.Errorf("snapshot batch: %w", err)
	}

	return &domain.MarketSnapshot{Time: f.timeNow(), Quotes: quotes}, nil
}

// FetchHistoricalSeries retrieves one ascending price series per symbol,
// positionally aligned with the input. Series lengths may differ (a newly
// listed contract lacks early history); consumers must guard against that.
func (f *Fetcher) FetchHistoricalSeries(ctx context.Context, symbols []string, resolutionSec int, start, end time.Time) ([][]domain.PricePoint, error) {
	series := make([][]domain.PricePoint, len(symbols))
	errs := make([]error, len(symbols))

	var wg sync.WaitGroup
	for i, s := range symbols {
		wg.Add(1)
		go func(i int, s string) {
			defer wg.Done()
			pts, err := f.source.GetHistoricalPrices(ctx, s, resolutionSec, MaxHistoryPoints, start, end)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", s, err)
				return
			}
			series[i] = pts
		}(i, s)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		f.logger.Warn("historical batch failed", zap.Int("symbols", len(symbols)), zap.Error(err))
		return nil, fmt.Errorf("historical batch: %w", err)
	}

	return series, nil
}

// DeriveHistoricalRates turns price history into annualized-rate history,
// percent-scaled, one series per symbol aligned with the input. The first
// symbol is the spot/reference leg and gets an empty series. Perpetual
// contracts use their own funding-rate history over the reference window;
// dated contracts get a pointwise implied rate against the reference series.
//
// Dated series must match the reference length exactly; that is validated
// up front and fails the whole call. Per-point failures, a degenerate
// conversion or a timestamp off the reference axis, fail only that
// instrument's series, which is left empty, and are reported in the joined
// error alongside the partial result.
func (f *Fetcher) DeriveHistoricalRates(ctx context.Context, symbols []string, historicalPrices [][]domain.PricePoint) ([][]domain.PricePoint, error) {
	if len(symbols) != len(historicalPrices) {
		return nil, fmt.Errorf("%w: %d symbols, %d series", ErrLengthMismatch, len(symbols), len(historicalPrices))
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	ref := historicalPrices[0]
	if len(ref) == 0 {
		return nil, fmt.Errorf("%w: empty reference series for %s", ErrLengthMismatch, symbols[0])
	}

	// Validate dated-contract lengths before any iteration begins.
	for i, s := range symbols[1:] {
		inst, ok := f.catalog.Get(s)
		if !ok {
			return nil, fmt.Errorf("unknown instrument %s", s)
		}
		if !inst.IsPerpetual && len(historicalPrices[i+1]) != len(ref) {
			return nil, fmt.Errorf("%s: %w: %d points vs reference %d",
				s, ErrLengthMismatch, len(historicalPrices[i+1]), len(ref))
		}
	}

	out := make([][]domain.PricePoint, len(symbols))
	out[0] = []domain.PricePoint{}

	var errs []error
	for i, s := range symbols[1:] {
		inst, _ := f.catalog.Get(s)
		var pts []domain.PricePoint
		var err error
		if inst.IsPerpetual {
			pts, err = f.perpetualRateHistory(ctx, s, ref)
		} else {
			pts, err = f.impliedRateHistory(s, inst, ref, historicalPrices[i+1])
		}
		if err != nil {
			errs = append(errs, err)
			pts = []domain.PricePoint{}
		}
		out[i+1] = pts
	}

	return out, errors.Join(errs...)
}

// perpetualRateHistory fetches the contract's own funding-rate history over
// the reference window, annualizes each point and normalizes the venue's
// newest-first delivery to ascending order.
func (f *Fetcher) perpetualRateHistory(ctx context.Context, symbol string, ref []domain.PricePoint) ([]domain.PricePoint, error) {
	raw, err := f.source.GetFundingRateHistory(ctx, symbol, ref[0].Time, ref[len(ref)-1].Time)
	if err != nil {
		return nil, fmt.Errorf("%s: funding history: %w", symbol, err)
	}

	pts := make([]domain.PricePoint, len(raw))
	for i, p := range raw {
		pts[len(raw)-1-i] = domain.PricePoint{
			Time:  p.Time,
			Value: 100 * AnnualizedFundingRate(p.Value),
		}
	}
	return pts, nil
}

func (f *Fetcher) impliedRateHistory(symbol string, inst domain.Instrument, ref, own []domain.PricePoint) ([]domain.PricePoint, error) {
	pts := make([]domain.PricePoint, len(own))
	for i := range own {
		if !own[i].Time.Equal(ref[i].Time) {
			return nil, fmt.Errorf("%s at %s: %w: reference at %s",
				symbol, own[i].Time.Format(time.RFC3339), ErrTimeMismatch, ref[i].Time.Format(time.RFC3339))
		}
		rate, err := ImpliedFundingRate(ref[i].Value, own[i].Value, own[i].Time, inst.Expiry)
		if err != nil {
			return nil, fmt.Errorf("%s at %s: %w", symbol, own[i].Time.Format(time.RFC3339), err)
		}
		pts[i] = domain.PricePoint{Time: own[i].Time, Value: 100 * rate}
	}
	return pts, nil
}
