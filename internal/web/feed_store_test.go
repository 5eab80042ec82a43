package web

import (
	"testing"
	"time"

	"github.com/ekurt/funding_curve/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedStore_SnapshotAndQuoteUpdate(t *testing.T) {
	store := NewFeedStore()
	ts := time.Date(2022, 3, 15, 10, 0, 0, 0, time.UTC)

	store.PublishSnapshot(ts, []domain.Quote{
		{Symbol: "BTC/USD", Bid: 99, Ask: 101, Last: 100},
		{Symbol: "BTC-PERP", Bid: 100, Ask: 102, Last: 101},
	})

	// Live update replaces the matching row; unknown symbols are dropped.
	later := ts.Add(time.Second)
	store.UpdateQuote(later, domain.Quote{Symbol: "BTC-PERP", Bid: 101, Ask: 103, Last: 102})
	store.UpdateQuote(later, domain.Quote{Symbol: "ETH-PERP", Last: 3000})

	snap := store.Snapshot()
	assert.Equal(t, later, snap.Time)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, 102.0, snap.Rows[1].Last)
}

func TestFeedStore_SeriesOrderAndAppend(t *testing.T) {
	store := NewFeedStore()
	ts := time.Date(2022, 3, 15, 10, 0, 0, 0, time.UTC)

	store.PublishPriceSeries("BTC/USD", []domain.SeriesPoint{{Time: ts, Value: 100}})
	store.PublishPriceSeries("BTC-PERP", []domain.SeriesPoint{{Time: ts, Value: 101}})
	store.AppendPricePoint("BTC/USD", domain.SeriesPoint{Time: ts.Add(time.Minute), Value: 100.5})

	all := store.PriceSeriesAll()
	require.Len(t, all, 2)
	// Basket order of first appearance is preserved.
	assert.Equal(t, "BTC/USD", all[0].Symbol)
	assert.Len(t, all[0].Points, 2)

	store.AppendRatePoint("BTC-PERP", true, domain.SeriesPoint{Time: ts, Value: 87.66})
	rates := store.RateSeriesAll()
	require.Len(t, rates, 1)
	assert.True(t, rates[0].SecondaryAxis)
}

func TestFeedStore_Reset(t *testing.T) {
	store := NewFeedStore()
	ts := time.Date(2022, 3, 15, 10, 0, 0, 0, time.UTC)

	store.PublishSnapshot(ts, []domain.Quote{{Symbol: "BTC/USD", Last: 100}})
	store.AppendAccrualPoint("BTC-PERP",
		domain.SeriesPoint{Time: ts, Value: 87.66},
		domain.SeriesPoint{Time: ts, Value: 1.0})
	store.PublishTopYields([]domain.YieldEntry{{Symbol: "BTC-PERP", RatePct: 87.66}})

	store.Reset()

	assert.Empty(t, store.Snapshot().Rows)
	assert.Empty(t, store.AccrualSeriesAll())
	assert.Empty(t, store.TopYields())
}
