package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekurt/funding_curve/internal/domain"
	"go.uber.org/zap"
)

// FundingRateCatalog caches the latest periodic funding rate per perpetual
// contract. Refresh builds a fresh map and swaps it in whole, so concurrent
// readers see either the old or the fully replaced view, never a torn one.
type FundingRateCatalog struct {
	source domain.MarketData
	logger *zap.Logger

	mu    sync.RWMutex
	rates map[string]float64
}

func NewFundingRateCatalog(source domain.MarketData, logger *zap.Logger) *FundingRateCatalog {
	return &FundingRateCatalog{
		source: source,
		logger: logger,
		rates:  make(map[string]float64),
	}
}

// Refresh replaces the whole cached mapping from the venue's bulk feed.
// The first occurrence of a symbol in the feed wins; later duplicates in
// the same batch are ignored. Contracts absent from the instrument catalog
// are stored anyway, annualization needs no metadata.
func (c *FundingRateCatalog) Refresh(ctx context.Context) error {
	entries, err := c.source.GetFundingRates(ctx)
	if err != nil {
		return fmt.Errorf("funding rate refresh: %w", err)
	}

	next := make(map[string]float64, len(entries))
	for _, e := range entries {
		if _, seen := next[e.Symbol]; seen {
			continue
		}
		next[e.Symbol] = e.Rate
	}

	c.mu.Lock()
	c.rates = next
	c.mu.Unlock()

	c.logger.Debug("funding rates refreshed", zap.Int("count", len(next)))
	return nil
}

// Rate returns the latest periodic rate for a symbol. Rates not yet
// observed are absent, not zero.
func (c *FundingRateCatalog) Rate(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rates[symbol]
	return r, ok
}

// TopYielding returns at most n contracts ordered descending by annualized
// yield, percent-scaled.
func (c *FundingRateCatalog) TopYielding(n int) []domain.YieldEntry {
	c.mu.RLock()
	entries := make([]domain.YieldEntry, 0, len(c.rates))
	for s, r := range c.rates {
		entries = append(entries, domain.YieldEntry{Symbol: s, RatePct: 100 * AnnualizedFundingRate(r)})
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].RatePct > entries[j].RatePct })
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries
}
