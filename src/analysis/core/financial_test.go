package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGapPercent(t *testing.T) {
	assert.True(t, d("5.88").Equal(GapPercent(d("131.40"), d("124.10"))))
	assert.True(t, d("-3.06").Equal(GapPercent(d("244.10"), d("251.80"))))
	assert.True(t, GapPercent(d("1"), decimal.Zero).IsZero())
}

func TestRelativeVolume(t *testing.T) {
	assert.True(t, d("2").Equal(RelativeVolume(200, 100)))
	assert.True(t, d("1").Equal(RelativeVolume(0, 0)))
	assert.True(t, d("7").Equal(RelativeVolume(7, 0)))
}

func TestNearestLevels(t *testing.T) {
	s, sOK, r, rOK := NearestLevels(d("131.40"),
		[]decimal.Decimal{d("122.50"), d("126.00"), d("140")},
		[]decimal.Decimal{d("138.20"), d("134.00"), d("120")})
	assert.True(t, sOK)
	assert.True(t, rOK)
	assert.True(t, d("126.00").Equal(s))
	assert.True(t, d("134.00").Equal(r))

	_, sOK, _, rOK = NearestLevels(d("10"), nil, nil)
	assert.False(t, sOK)
	assert.False(t, rOK)

	assert.True(t, d("1.98").Equal(DistancePercent(d("131.40"), d("134.00"))))
}
