package web

import (
	"sync"
	"time"

	"github.com/ekurt/funding_curve/internal/domain"
)

// RateSeries is one plotted rate series; SecondaryAxis marks perpetual
// contracts whose funding yield is scaled differently from implied yields.
type RateSeries struct {
	Symbol        string               `json:"symbol"`
	SecondaryAxis bool                 `json:"secondary_axis"`
	Points        []domain.SeriesPoint `json:"points"`
}

type PriceSeries struct {
	Symbol string               `json:"symbol"`
	Points []domain.SeriesPoint `json:"points"`
}

type AccrualSeries struct {
	Symbol string               `json:"symbol"`
	Rates  []domain.SeriesPoint `json:"rates"`
	Levels []domain.SeriesPoint `json:"levels"`
}

type SnapshotView struct {
	Time time.Time      `json:"time"`
	Rows []domain.Quote `json:"rows"`
}

type CurveView struct {
	Implied []domain.CurvePoint `json:"implied"`
	Forward []domain.CurvePoint `json:"forward"`
}

// FeedStore implements domain.PlotSink by retaining the latest value of
// every feed for the HTTP handlers to serve.
type FeedStore struct {
	mu        sync.RWMutex
	snapshot  SnapshotView
	prices    map[string]*PriceSeries
	rates     map[string]*RateSeries
	accruals  map[string]*AccrualSeries
	order     []string // basket order of first appearance
	curve     CurveView
	topYields []domain.YieldEntry
}

func NewFeedStore() *FeedStore {
	s := &FeedStore{}
	s.reset()
	return s
}

func (s *FeedStore) reset() {
	s.snapshot = SnapshotView{}
	s.prices = make(map[string]*PriceSeries)
	s.rates = make(map[string]*RateSeries)
	s.accruals = make(map[string]*AccrualSeries)
	s.order = nil
	s.curve = CurveView{}
	s.topYields = nil
}

func (s *FeedStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *FeedStore) track(symbol string) {
	for _, o := range s.order {
		if o == symbol {
			return
		}
	}
	s.order = append(s.order, symbol)
}

func (s *FeedStore) PublishSnapshot(ts time.Time, rows []domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = SnapshotView{Time: ts, Rows: append([]domain.Quote(nil), rows...)}
}

func (s *FeedStore) UpdateQuote(ts time.Time, q domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.snapshot.Rows {
		if row.Symbol == q.Symbol {
			s.snapshot.Rows[i] = q
			s.snapshot.Time = ts
			return
		}
	}
}

func (s *FeedStore) PublishPriceSeries(symbol string, points []domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(symbol)
	s.prices[symbol] = &PriceSeries{Symbol: symbol, Points: append([]domain.SeriesPoint(nil), points...)}
}

func (s *FeedStore) AppendPricePoint(symbol string, p domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(symbol)
	series, ok := s.prices[symbol]
	if !ok {
		series = &PriceSeries{Symbol: symbol}
		s.prices[symbol] = series
	}
	series.Points = append(series.Points, p)
}

func (s *FeedStore) PublishRateSeries(symbol string, secondaryAxis bool, points []domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(symbol)
	s.rates[symbol] = &RateSeries{
		Symbol:        symbol,
		SecondaryAxis: secondaryAxis,
		Points:        append([]domain.SeriesPoint(nil), points...),
	}
}

func (s *FeedStore) AppendRatePoint(symbol string, secondaryAxis bool, p domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(symbol)
	series, ok := s.rates[symbol]
	if !ok {
		series = &RateSeries{Symbol: symbol, SecondaryAxis: secondaryAxis}
		s.rates[symbol] = series
	}
	series.Points = append(series.Points, p)
}

func (s *FeedStore) AppendAccrualPoint(symbol string, rate, level domain.SeriesPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.accruals[symbol]
	if !ok {
		series = &AccrualSeries{Symbol: symbol}
		s.accruals[symbol] = series
	}
	series.Rates = append(series.Rates, rate)
	series.Levels = append(series.Levels, level)
}

func (s *FeedStore) PublishTermStructure(implied, forward []domain.CurvePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curve = CurveView{
		Implied: append([]domain.CurvePoint(nil), implied...),
		Forward: append([]domain.CurvePoint(nil), forward...),
	}
}

func (s *FeedStore) PublishTopYields(entries []domain.YieldEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topYields = append([]domain.YieldEntry(nil), entries...)
}

// --- read side, used by the HTTP handlers ---

func (s *FeedStore) Snapshot() SnapshotView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SnapshotView{Time: s.snapshot.Time, Rows: append([]domain.Quote(nil), s.snapshot.Rows...)}
}

func (s *FeedStore) PriceSeriesAll() []PriceSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PriceSeries, 0, len(s.prices))
	for _, symbol := range s.order {
		if series, ok := s.prices[symbol]; ok {
			out = append(out, PriceSeries{Symbol: series.Symbol, Points: append([]domain.SeriesPoint(nil), series.Points...)})
		}
	}
	return out
}

func (s *FeedStore) RateSeriesAll() []RateSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RateSeries, 0, len(s.rates))
	for _, symbol := range s.order {
		if series, ok := s.rates[symbol]; ok {
			out = append(out, RateSeries{
				Symbol:        series.Symbol,
				SecondaryAxis: series.SecondaryAxis,
				Points:        append([]domain.SeriesPoint(nil), series.Points...),
			})
		}
	}
	return out
}

func (s *FeedStore) AccrualSeriesAll() []AccrualSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccrualSeries, 0, len(s.accruals))
	for _, symbol := range s.order {
		if series, ok := s.accruals[symbol]; ok {
			out = append(out, AccrualSeries{
				Symbol: series.Symbol,
				Rates:  append([]domain.SeriesPoint(nil), series.Rates...),
				Levels: append([]domain.SeriesPoint(nil), series.Levels...),
			})
		}
	}
	return out
}

func (s *FeedStore) Curve() CurveView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CurveView{
		Implied: append([]domain.CurvePoint(nil), s.curve.Implied...),
		Forward: append([]domain.CurvePoint(nil), s.curve.Forward...),
	}
}

func (s *FeedStore) TopYields() []domain.YieldEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.YieldEntry(nil), s.topYields...)
}
