package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekurt/funding_curve/internal/domain"
	"go.uber.org/zap"
)

// InstrumentCatalog holds contract metadata loaded from the venue's
// listings. The map is replaced atomically on every load; entries are
// read-only once published.
type InstrumentCatalog struct {
	source domain.MarketData
	store  domain.InstrumentStore // optional warm cache, may be nil
	logger *zap.Logger

	mu          sync.RWMutex
	instruments map[string]domain.Instrument
}

func NewInstrumentCatalog(source domain.MarketData, store domain.InstrumentStore, logger *zap.Logger) *InstrumentCatalog {
	return &InstrumentCatalog{
		source:      source,
		store:       store,
		logger:      logger,
		instruments: make(map[string]domain.Instrument),
	}
}

// Load fetches the current listings and swaps them in. When the venue is
// unreachable it falls back to the persisted listings from the last
// successful run, if any.
func (c *InstrumentCatalog) Load(ctx context.Context) error {
	list, err := c.source.ListInstruments(ctx)
	if err != nil {
		if c.store != nil {
			cached, cerr := c.store.ListInstruments(ctx)
			if cerr == nil && len(cached) > 0 {
				c.logger.Warn("listing fetch failed, using cached instruments",
					zap.Error(err), zap.Int("count", len(cached)))
				c.swap(cached)
				return nil
			}
		}
		return fmt.Errorf("instrument listing: %w", err)
	}

	c.swap(list)

	if c.store != nil {
		if serr := c.store.ReplaceInstruments(ctx, list); serr != nil {
			c.logger.Warn("failed to persist instrument listings", zap.Error(serr))
		}
	}
	return nil
}

func (c *InstrumentCatalog) swap(list []domain.Instrument) {
	next := make(map[string]domain.Instrument, len(list))
	for _, inst := range list {
		next[inst.Symbol] = inst
	}
	c.mu.Lock()
	c.instruments = next
	c.mu.Unlock()
}

func (c *InstrumentCatalog) Get(symbol string) (domain.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instruments[symbol]
	return inst, ok
}

func (c *InstrumentCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instruments)
}

// Underlyings lists the distinct underlying assets, sorted.
func (c *InstrumentCatalog) Underlyings() []string {
	c.mu.RLock()
	seen := make(map[string]bool)
	for _, inst := range c.instruments {
		seen[inst.Underlying] = true
	}
	c.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// ContractsFor lists the contract symbols on one underlying, sorted.
func (c *InstrumentCatalog) ContractsFor(underlying string) []string {
	c.mu.RLock()
	var out []string
	for _, inst := range c.instruments {
		if inst.Underlying == underlying {
			out = append(out, inst.Symbol)
		}
	}
	c.mu.RUnlock()

	sort.Strings(out)
	return out
}
