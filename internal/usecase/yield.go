package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/ekurt/funding_curve/internal/domain"
)

const (
	secondsPerYear          = 365.25 * 86400
	fundingIntervalsPerYear = 24 * 365.25
)

var (
	ErrZeroSpot          = errors.New("zero spot price")
	ErrNonPositiveTenor  = errors.New("non-positive time to expiry")
	ErrZeroWidthInterval = errors.New("zero-width tenor interval")
	ErrLengthMismatch    = errors.New("series length mismatch")
	ErrTimeMismatch      = errors.New("series time axis mismatch")
)

// YearFraction returns the time between valuation and expiry as a fraction
// of a 365.25-day year. The sign is preserved so callers can detect an
// expiry in the past.
func YearFraction(valuation, expiry time.Time) float64 {
	return expiry.Sub(valuation).Seconds() / secondsPerYear
}

// ImpliedFundingRate backs an annualized rate out of the gap between a
// futures price and spot under a cost-of-carry assumption. The result is a
// fraction, not a percent.
func ImpliedFundingRate(spot, futuresPrice float64, valuation, expiry time.Time) (float64, error) {
	if spot == 0 {
		return 0, ErrZeroSpot
	}
	yf := YearFraction(valuation, expiry)
	if yf <= 0 {
		return 0, fmt.Errorf("%w: expiry %s, valuation %s",
			ErrNonPositiveTenor, expiry.Format(time.RFC3339), valuation.Format(time.RFC3339))
	}
	return (futuresPrice - spot) / spot / yf, nil
}

// AnnualizedFundingRate converts a per-hour periodic funding rate into an
// annualized fraction. Percent scaling is left to the presentation boundary.
func AnnualizedFundingRate(periodic float64) float64 {
	return periodic * fundingIntervalsPerYear
}

// PerpetualExpiry returns the end of the funding interval containing the
// valuation time, i.e. the next top-of-hour boundary. It is recomputed on
// every call and never stored on the instrument.
func PerpetualExpiry(valuation time.Time) time.Time {
	return valuation.Truncate(time.Hour).Add(time.Hour)
}

// ExpiryFor resolves the expiry to value an instrument against at the given
// valuation time.
func ExpiryFor(inst domain.Instrument, valuation time.Time) time.Time {
	if inst.IsPerpetual {
		return PerpetualExpiry(valuation)
	}
	return inst.Expiry
}
