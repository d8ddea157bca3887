package core

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// -----------------------------------------------------------------------------

// GapPercent calculates the open gap versus the previous close, in percent,
// rounded to two places.
func GapPercent(price, prevClose decimal.Decimal) decimal.Decimal {
	if prevClose.IsZero() {
		return decimal.Zero
	}
	return price.Sub(prevClose).Div(prevClose).Mul(hundred).Round(2)
}

// -----------------------------------------------------------------------------

// RelativeVolume computes the volume anomaly ratio.
func RelativeVolume(currentVol, avgVol int64) decimal.Decimal {
	if avgVol <= 0 {
		if currentVol == 0 {
			return decimal.NewFromInt(1)
		}
		return decimal.NewFromInt(currentVol)
	}
	return decimal.NewFromInt(currentVol).Div(decimal.NewFromInt(avgVol)).Round(2)
}

// -----------------------------------------------------------------------------

// NearestLevels returns the highest support at or below price and the lowest
// resistance at or above it. ok flags are false when no such level exists.
func NearestLevels(price decimal.Decimal, support, resistance []decimal.Decimal) (s decimal.Decimal, sOK bool, r decimal.Decimal, rOK bool) {
	for _, lvl := range support {
		if lvl.LessThanOrEqual(price) && (!sOK || lvl.GreaterThan(s)) {
			s, sOK = lvl, true
		}
	}
	for _, lvl := range resistance {
		if lvl.GreaterThanOrEqual(price) && (!rOK || lvl.LessThan(r)) {
			r, rOK = lvl, true
		}
	}
	return s, sOK, r, rOK
}

// -----------------------------------------------------------------------------

// DistancePercent is the signed distance from price to level in percent.
func DistancePercent(price, level decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return level.Sub(price).Div(price).Mul(hundred).Round(2)
}
