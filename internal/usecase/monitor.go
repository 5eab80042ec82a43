package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ekurt/funding_curve/internal/domain"
	"go.uber.org/zap"
)

type MonitorConfig struct {
	HistoryDays   int
	ResolutionSec int
	TopN          int
}

func (c *MonitorConfig) applyDefaults() {
	if c.HistoryDays <= 0 {
		c.HistoryDays = 7
	}
	if c.ResolutionSec <= 0 {
		c.ResolutionSec = 3600
	}
	if c.TopN <= 0 {
		c.TopN = 10
	}
}

// Monitor orchestrates the two periodic cycles: the price/rate tick that
// feeds the snapshot table, rate series, term structure and accrual index,
// and the ranking tick that refreshes the funding-rate catalog and
// publishes the highest-yielding contracts.
type Monitor struct {
	source  domain.MarketData
	fetcher *Fetcher
	catalog *InstrumentCatalog
	funding *FundingRateCatalog
	accrual *AccrualTracker
	sink    domain.PlotSink
	logger  *zap.Logger
	cfg     MonitorConfig

	mu          sync.Mutex
	basket      []string
	generation  uint64
	needHistory bool

	timeNow func() time.Time // for testing
}

func NewMonitor(source domain.MarketData, fetcher *Fetcher, catalog *InstrumentCatalog, funding *FundingRateCatalog, sink domain.PlotSink, logger *zap.Logger, cfg MonitorConfig) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		source:  source,
		fetcher: fetcher,
		catalog: catalog,
		funding: funding,
		accrual: NewAccrualTracker(),
		sink:    sink,
		logger:  logger,
		cfg:     cfg,
		timeNow: time.Now,
	}
}

// SelectBasket replaces the watched basket with the spot leg of the chosen
// underlying followed by the given contracts, in order. The generation
// counter makes results from in-flight cycles keyed to the previous basket
// cheaply discardable. The ticker subscription follows the basket so live
// quote pushes keep flowing after a change.
func (m *Monitor) SelectBasket(underlying string, contracts []string) []string {
	basket := append([]string{underlying + "/USD"}, contracts...)

	m.mu.Lock()
	m.basket = basket
	m.generation++
	m.needHistory = true
	m.mu.Unlock()

	m.accrual.Reset()
	m.sink.Reset()

	if err := m.source.Subscribe(basket); err != nil {
		m.logger.Warn("ticker subscription failed, feeds update on polling only", zap.Error(err))
	}

	m.logger.Info("basket selected",
		zap.String("underlying", underlying),
		zap.Strings("basket", basket))
	return basket
}

func (m *Monitor) snapshotBasket() ([]string, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	basket := append([]string(nil), m.basket...)
	return basket, m.generation, m.needHistory
}

// stale reports whether a batch keyed to the given generation and
// cardinality no longer matches the live basket.
func (m *Monitor) stale(generation uint64, cardinality int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return generation != m.generation || cardinality != len(m.basket)
}

// RunPriceTick performs one full price/rate cycle: snapshot fetch, one-shot
// historical backfill after a basket change, yield conversion, forward-curve
// bootstrap and accrual update, then publishes the feeds. A failed batch is
// not retried here; the next timer tick is the retry mechanism.
func (m *Monitor) RunPriceTick(ctx context.Context) error {
	basket, generation, withHistory := m.snapshotBasket()
	if len(basket) == 0 {
		return nil
	}

	snapshot, err := m.fetcher.FetchSnapshot(ctx, basket)
	if err != nil {
		return err
	}

	var rateHistory [][]domain.PricePoint
	var priceHistory [][]domain.PricePoint
	if withHistory {
		end := m.timeNow()
		start := end.AddDate(0, 0, -m.cfg.HistoryDays)

		priceHistory, err = m.fetcher.FetchHistoricalSeries(ctx, basket, m.cfg.ResolutionSec, start, end)
		if err != nil {
			return err
		}
		rateHistory, err = m.fetcher.DeriveHistoricalRates(ctx, basket, priceHistory)
		if err != nil {
			if rateHistory == nil {
				return err
			}
			m.logger.Warn("partial historical rate derivation", zap.Error(err))
		}
	}

	// Changes may have been made while retrieving markets.
	if m.stale(generation, len(snapshot.Quotes)) {
		m.logger.Debug("discarding stale batch", zap.Uint64("generation", generation))
		return nil
	}

	if priceHistory != nil {
		for i, s := range basket {
			m.sink.PublishPriceSeries(s, toSeries(priceHistory[i]))
		}
	}
	if rateHistory != nil {
		for i, s := range basket {
			if i == 0 {
				continue
			}
			inst, ok := m.catalog.Get(s)
			m.sink.PublishRateSeries(s, ok && inst.IsPerpetual, toSeries(rateHistory[i]))
		}
	}

	m.publishCurrent(basket, snapshot)

	if withHistory && rateHistory != nil {
		m.mu.Lock()
		if generation == m.generation {
			m.needHistory = false
		}
		m.mu.Unlock()
	}
	return nil
}

// publishCurrent converts the snapshot into the live analytics feeds.
func (m *Monitor) publishCurrent(basket []string, snapshot *domain.MarketSnapshot) {
	m.sink.PublishSnapshot(snapshot.Time, snapshot.Quotes)

	spot := snapshot.Quotes[0].Last
	m.sink.AppendPricePoint(basket[0], domain.SeriesPoint{Time: snapshot.Time, Value: spot})

	// Seed the curve with the spot/reference leg at zero tenor.
	tenors := []domain.TenorPoint{{Label: basket[0], Years: 0, Rate: 0}}

	for i, s := range basket[1:] {
		quote := snapshot.Quotes[i+1]
		m.sink.AppendPricePoint(s, domain.SeriesPoint{Time: snapshot.Time, Value: quote.Last})

		inst, ok := m.catalog.Get(s)
		if !ok {
			m.logger.Warn("instrument missing from catalog", zap.String("symbol", s))
			continue
		}

		ratePct, err := m.currentRatePct(inst, spot, quote.Last, snapshot.Time)
		if err != nil {
			m.logger.Warn("rate conversion failed", zap.String("symbol", s), zap.Error(err))
			continue
		}

		m.sink.AppendRatePoint(s, inst.IsPerpetual, domain.SeriesPoint{Time: snapshot.Time, Value: ratePct})

		yf := YearFraction(snapshot.Time, ExpiryFor(inst, snapshot.Time))
		tenors = append(tenors, domain.TenorPoint{
			Label: fmt.Sprintf("%s (%.2fy)", s, yf),
			Years: yf,
			Rate:  ratePct,
		})

		if inst.IsPerpetual {
			level := m.accrual.Observe(s, snapshot.Time, ratePct)
			m.sink.AppendAccrualPoint(s,
				domain.SeriesPoint{Time: snapshot.Time, Value: ratePct},
				domain.SeriesPoint{Time: snapshot.Time, Value: level})
		}
	}

	forwards, err := BootstrapForwardCurve(tenors)
	if err != nil {
		m.logger.Warn("forward curve bootstrap", zap.Error(err))
	}

	implied := make([]domain.CurvePoint, 0, len(tenors)-1)
	for _, p := range tenors[1:] {
		implied = append(implied, domain.CurvePoint{Label: p.Label, Value: p.Rate})
	}
	forward := make([]domain.CurvePoint, 0, len(forwards))
	for _, p := range forwards {
		forward = append(forward, domain.CurvePoint{Label: p.Label, Value: p.Rate})
	}
	m.sink.PublishTermStructure(implied, forward)
}

// currentRatePct returns the contract's annualized yield in percent: the
// cached funding rate for perpetuals, an implied rate off the spot leg for
// dated futures.
func (m *Monitor) currentRatePct(inst domain.Instrument, spot, last float64, valuation time.Time) (float64, error) {
	if inst.IsPerpetual {
		r, ok := m.funding.Rate(inst.Symbol)
		if !ok {
			return 0, fmt.Errorf("no funding rate observed for %s", inst.Symbol)
		}
		return 100 * AnnualizedFundingRate(r), nil
	}
	r, err := ImpliedFundingRate(spot, last, valuation, inst.Expiry)
	if err != nil {
		return 0, err
	}
	return 100 * r, nil
}

// RunRankingTick refreshes the funding-rate catalog and publishes the
// highest-yielding contracts.
func (m *Monitor) RunRankingTick(ctx context.Context) error {
	if err := m.funding.Refresh(ctx); err != nil {
		return err
	}
	m.sink.PublishTopYields(m.funding.TopYielding(m.cfg.TopN))
	return nil
}

// HandleQuote folds a live ticker update into the published snapshot table.
// Quotes for symbols outside the current basket are dropped.
func (m *Monitor) HandleQuote(q domain.Quote) {
	m.mu.Lock()
	inBasket := false
	for _, s := range m.basket {
		if s == q.Symbol {
			inBasket = true
			break
		}
	}
	m.mu.Unlock()

	if !inBasket {
		return
	}
	m.sink.UpdateQuote(m.timeNow(), q)
}

func toSeries(points []domain.PricePoint) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, len(points))
	for i, p := range points {
		out[i] = domain.SeriesPoint{Time: p.Time, Value: p.Value}
	}
	return out
}
