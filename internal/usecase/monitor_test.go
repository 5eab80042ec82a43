package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ekurt/funding_curve/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockSink records everything published to it.
type mockSink struct {
	mu            sync.Mutex
	snapshots     []domain.MarketSnapshot
	quoteUpdates  []domain.Quote
	priceSeries   map[string][]domain.SeriesPoint
	pricePoints   map[string][]domain.SeriesPoint
	rateSeries    map[string][]domain.SeriesPoint
	ratePoints    map[string][]domain.SeriesPoint
	rateSecondary map[string]bool
	accrualLevels map[string][]domain.SeriesPoint
	implied       []domain.CurvePoint
	forward       []domain.CurvePoint
	topYields     []domain.YieldEntry
	resets        int
}

func newMockSink() *mockSink {
	return &mockSink{
		priceSeries:   make(map[string][]domain.SeriesPoint),
		pricePoints:   make(map[string][]domain.SeriesPoint),
		rateSeries:    make(map[string][]domain.SeriesPoint),
		ratePoints:    make(map[string][]domain.SeriesPoint),
		rateSecondary: make(map[string]bool),
		accrualLevels: make(map[string][]domain.SeriesPoint),
	}
}

func (s *mockSink) PublishSnapshot(ts time.Time, rows []domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, domain.MarketSnapshot{Time: ts, Quotes: rows})
}

func (s *mockSink) UpdateQuote(ts time.Time, q domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quoteUpdates = append(s.quoteUpdates, q)
}

func (s *mockSink) PublishPriceSeries(symbol string, points []domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceSeries[symbol] = points
}

func (s *mockSink) AppendPricePoint(symbol string, p domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pricePoints[symbol] = append(s.pricePoints[symbol], p)
}

func (s *mockSink) PublishRateSeries(symbol string, secondaryAxis bool, points []domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateSeries[symbol] = points
	s.rateSecondary[symbol] = secondaryAxis
}

func (s *mockSink) AppendRatePoint(symbol string, secondaryAxis bool, p domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratePoints[symbol] = append(s.ratePoints[symbol], p)
	s.rateSecondary[symbol] = secondaryAxis
}

func (s *mockSink) AppendAccrualPoint(symbol string, rate, level domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accrualLevels[symbol] = append(s.accrualLevels[symbol], level)
}

func (s *mockSink) PublishTermStructure(implied, forward []domain.CurvePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.implied = implied
	s.forward = forward
}

func (s *mockSink) PublishTopYields(entries []domain.YieldEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topYields = entries
}

func (s *mockSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

func newTestMonitor(t *testing.T, source *mockMarketData, sink *mockSink) *Monitor {
	t.Helper()
	catalog := newTestCatalog(t, source)
	fetcher := NewFetcher(source, catalog, zap.NewNop())
	funding := NewFundingRateCatalog(source, zap.NewNop())
	return NewMonitor(source, fetcher, catalog, funding, sink, zap.NewNop(), MonitorConfig{})
}

func TestMonitor_PriceTickPublishes(t *testing.T) {
	now := time.Date(2022, 3, 15, 10, 0, 0, 0, time.UTC)
	source := &mockMarketData{
		instruments: testInstruments,
		quotes: map[string]domain.Quote{
			"BTC/USD":  {Symbol: "BTC/USD", Bid: 99, Ask: 101, Last: 100},
			"BTC-PERP": {Symbol: "BTC-PERP", Bid: 100, Ask: 102, Last: 101},
			"BTC-0626": {Symbol: "BTC-0626", Bid: 103, Ask: 105, Last: 104},
		},
		fundingRates: []domain.FundingRateEntry{{Symbol: "BTC-PERP", Rate: 0.0001}},
	}
	sink := newMockSink()
	monitor := newTestMonitor(t, source, sink)
	monitor.timeNow = func() time.Time { return now }
	monitor.fetcher.timeNow = func() time.Time { return now }

	require.NoError(t, monitor.funding.Refresh(context.Background()))

	monitor.SelectBasket("BTC", []string{"BTC-PERP", "BTC-0626"})
	monitor.needHistory = false // skip the historical backfill

	require.NoError(t, monitor.RunPriceTick(context.Background()))

	// Snapshot table: one batch, aligned with the basket.
	require.Len(t, sink.snapshots, 1)
	assert.Equal(t, now, sink.snapshots[0].Time)
	require.Len(t, sink.snapshots[0].Quotes, 3)

	// Live rate points: perpetual on the secondary axis, dated on primary.
	require.Len(t, sink.ratePoints["BTC-PERP"], 1)
	assert.True(t, sink.rateSecondary["BTC-PERP"])
	require.Len(t, sink.ratePoints["BTC-0626"], 1)
	assert.False(t, sink.rateSecondary["BTC-0626"])

	perpPct := 100 * AnnualizedFundingRate(0.0001)
	assert.InDelta(t, perpPct, sink.ratePoints["BTC-PERP"][0].Value, 1e-9)

	impliedRate, err := ImpliedFundingRate(100, 104, now, testInstruments[1].Expiry)
	require.NoError(t, err)
	assert.InDelta(t, 100*impliedRate, sink.ratePoints["BTC-0626"][0].Value, 1e-9)

	// Term structure: one implied and one forward point per contract.
	assert.Len(t, sink.implied, 2)
	assert.Len(t, sink.forward, 2)

	// First accrual observation seeds the index at 1.0.
	require.Len(t, sink.accrualLevels["BTC-PERP"], 1)
	assert.Equal(t, 1.0, sink.accrualLevels["BTC-PERP"][0].Value)
	assert.Empty(t, sink.accrualLevels["BTC-0626"])
}

func TestMonitor_StaleBatchDiscarded(t *testing.T) {
	source := &mockMarketData{
		instruments: testInstruments,
		quotes: map[string]domain.Quote{
			"BTC/USD":  {Symbol: "BTC/USD", Last: 100},
			"BTC-PERP": {Symbol: "BTC-PERP", Last: 101},
			"BTC-0626": {Symbol: "BTC-0626", Last: 104},
			"ETH/USD":  {Symbol: "ETH/USD", Last: 3000},
			"ETH-PERP": {Symbol: "ETH-PERP", Last: 3001},
		},
	}
	sink := newMockSink()
	monitor := newTestMonitor(t, source, sink)

	monitor.SelectBasket("BTC", []string{"BTC-PERP", "BTC-0626"})
	monitor.needHistory = false

	// Change the basket while the fetch cycle is in flight.
	var once sync.Once
	source.onQuoteFetch = func(string) {
		once.Do(func() {
			monitor.SelectBasket("ETH", []string{"ETH-PERP"})
			monitor.needHistory = false
		})
	}

	require.NoError(t, monitor.RunPriceTick(context.Background()))
	assert.Empty(t, sink.snapshots, "a batch keyed to the previous basket must be dropped")
	assert.Empty(t, sink.ratePoints)
}

func TestMonitor_EmptyBasketIsNoop(t *testing.T) {
	source := &mockMarketData{instruments: testInstruments}
	sink := newMockSink()
	monitor := newTestMonitor(t, source, sink)

	require.NoError(t, monitor.RunPriceTick(context.Background()))
	assert.Empty(t, sink.snapshots)
}

func TestMonitor_HistoricalBackfillOncePerBasket(t *testing.T) {
	now := time.Date(2022, 3, 15, 10, 0, 0, 0, time.UTC)
	t0 := now.Add(-2 * time.Hour)
	t1 := now.Add(-time.Hour)

	source := &mockMarketData{
		instruments: testInstruments,
		quotes: map[string]domain.Quote{
			"BTC/USD":  {Symbol: "BTC/USD", Last: 100},
			"BTC-PERP": {Symbol: "BTC-PERP", Last: 101},
		},
		history: map[string][]domain.PricePoint{
			"BTC/USD":  {{Time: t0, Value: 99}, {Time: t1, Value: 100}},
			"BTC-PERP": {{Time: t0, Value: 99.5}, {Time: t1, Value: 100.5}},
		},
		fundingHistory: map[string][]domain.PricePoint{
			"BTC-PERP": {{Time: t1, Value: 0.0001}, {Time: t0, Value: 0.0002}},
		},
		fundingRates: []domain.FundingRateEntry{{Symbol: "BTC-PERP", Rate: 0.0001}},
	}
	sink := newMockSink()
	monitor := newTestMonitor(t, source, sink)
	monitor.timeNow = func() time.Time { return now }
	monitor.fetcher.timeNow = func() time.Time { return now }

	require.NoError(t, monitor.funding.Refresh(context.Background()))
	monitor.SelectBasket("BTC", []string{"BTC-PERP"})

	require.NoError(t, monitor.RunPriceTick(context.Background()))

	require.Len(t, sink.priceSeries["BTC/USD"], 2)
	require.Len(t, sink.rateSeries["BTC-PERP"], 2)
	// Normalized ascending even though the feed is newest first.
	assert.Equal(t, t0, sink.rateSeries["BTC-PERP"][0].Time)

	// Second tick reuses the backfill; only live points are appended.
	require.NoError(t, monitor.RunPriceTick(context.Background()))
	assert.Len(t, sink.priceSeries["BTC/USD"], 2)
	assert.Len(t, sink.pricePoints["BTC/USD"], 2)
}

func TestMonitor_RankingTick(t *testing.T) {
	source := &mockMarketData{
		instruments: testInstruments,
		fundingRates: []domain.FundingRateEntry{
			{Symbol: "BTC-PERP", Rate: 0.0001},
			{Symbol: "ETH-PERP", Rate: 0.0005},
			{Symbol: "BTC-PERP", Rate: 0.0009}, // duplicate, first wins
		},
	}
	sink := newMockSink()
	monitor := newTestMonitor(t, source, sink)

	require.NoError(t, monitor.RunRankingTick(context.Background()))

	require.Len(t, sink.topYields, 2)
	assert.Equal(t, "ETH-PERP", sink.topYields[0].Symbol)
	assert.InDelta(t, 100*AnnualizedFundingRate(0.0005), sink.topYields[0].RatePct, 1e-9)
	assert.InDelta(t, 100*AnnualizedFundingRate(0.0001), sink.topYields[1].RatePct, 1e-9)
}

func TestMonitor_HandleQuoteFiltersBasket(t *testing.T) {
	source := &mockMarketData{instruments: testInstruments}
	sink := newMockSink()
	monitor := newTestMonitor(t, source, sink)
	monitor.SelectBasket("BTC", []string{"BTC-PERP"})

	monitor.HandleQuote(domain.Quote{Symbol: "BTC-PERP", Last: 101})
	monitor.HandleQuote(domain.Quote{Symbol: "ETH-PERP", Last: 3000})

	require.Len(t, sink.quoteUpdates, 1)
	assert.Equal(t, "BTC-PERP", sink.quoteUpdates[0].Symbol)
}

func TestMonitor_SelectBasketResetsFeeds(t *testing.T) {
	source := &mockMarketData{instruments: testInstruments}
	sink := newMockSink()
	monitor := newTestMonitor(t, source, sink)

	basket := monitor.SelectBasket("BTC", []string{"BTC-PERP", "BTC-0626"})
	assert.Equal(t, []string{"BTC/USD", "BTC-PERP", "BTC-0626"}, basket)
	assert.Equal(t, 1, sink.resets)
}

func TestMonitor_SelectBasketFollowsTickerSubscription(t *testing.T) {
	source := &mockMarketData{instruments: testInstruments}
	sink := newMockSink()
	monitor := newTestMonitor(t, source, sink)

	monitor.SelectBasket("BTC", []string{"BTC-PERP", "BTC-0626"})
	monitor.SelectBasket("ETH", []string{"ETH-PERP"})

	// Every basket change re-subscribes so live pushes keep flowing.
	require.Len(t, source.subscribed, 2)
	assert.Equal(t, []string{"BTC/USD", "BTC-PERP", "BTC-0626"}, source.subscribed[0])
	assert.Equal(t, []string{"ETH/USD", "ETH-PERP"}, source.subscribed[1])

	monitor.HandleQuote(domain.Quote{Symbol: "ETH-PERP", Last: 3000})
	require.Len(t, sink.quoteUpdates, 1)
	assert.Equal(t, "ETH-PERP", sink.quoteUpdates[0].Symbol)
}

func TestMonitor_SelectBasketToleratesSubscribeFailure(t *testing.T) {
	source := &mockMarketData{
		instruments:  testInstruments,
		subscribeErr: errors.New("ws down"),
	}
	sink := newMockSink()
	monitor := newTestMonitor(t, source, sink)

	// A dead ticker degrades to polling-only; the basket still switches.
	basket := monitor.SelectBasket("BTC", []string{"BTC-PERP"})
	assert.Equal(t, []string{"BTC/USD", "BTC-PERP"}, basket)
	assert.Equal(t, 1, sink.resets)
}
