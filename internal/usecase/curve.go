package usecase

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ekurt/funding_curve/internal/domain"
)

// BootstrapForwardCurve differences a sequence of (tenor, annualized rate)
// points into the marginal forward rate between each adjacent pair. The
// first point is the spot/reference seed and produces no output row. A
// zero-width pair is reported in the joined error, identified by its tenor
// label, without suppressing the remaining pairs.
func BootstrapForwardCurve(points []domain.TenorPoint) ([]domain.ForwardPoint, error) {
	if len(points) < 2 {
		return nil, nil
	}

	forwards := make([]domain.ForwardPoint, 0, len(points)-1)
	var errs []error

	prev := points[0]
	for _, p := range points[1:] {
		if p.Years == prev.Years {
			errs = append(errs, fmt.Errorf("%s: %w at %gy", p.Label, ErrZeroWidthInterval, p.Years))
			prev = p
			continue
		}
		fwd := (p.Rate*p.Years - prev.Rate*prev.Years) / (p.Years - prev.Years)
		forwards = append(forwards, domain.ForwardPoint{Label: p.Label, Years: p.Years, Rate: fwd})
		prev = p
	}

	return forwards, errors.Join(errs...)
}

type accrualState struct {
	level float64
	last  time.Time
}

// AccrualTracker maintains a per-instrument compounding index from discrete
// annualized-rate observations. Accrual is simple interest over the elapsed
// fraction of a year, matching the observation cadence.
type AccrualTracker struct {
	mu     sync.Mutex
	states map[string]*accrualState
}

func NewAccrualTracker() *AccrualTracker {
	return &AccrualTracker{states: make(map[string]*accrualState)}
}

// Observe folds one (timestamp, annualized rate in percent) reading into the
// instrument's index and returns the updated level. The first observation
// seeds the level at 1.0 with zero elapsed time.
func (t *AccrualTracker) Observe(symbol string, ts time.Time, annualRatePct float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[symbol]
	if !ok {
		st = &accrualState{level: 1.0, last: ts}
		t.states[symbol] = st
		return st.level
	}

	elapsedYears := ts.Sub(st.last).Hours() / 24 / 365.25
	st.level *= 1 + annualRatePct/100*elapsedYears
	st.last = ts
	return st.level
}

// Reset drops all accrued state, used when the basket changes.
func (t *AccrualTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[string]*accrualState)
}
