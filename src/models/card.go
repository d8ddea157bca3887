package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MCard is the card payload served by the backend for one ticker.
type MCard struct {
	Ticker     string          `json:"ticker"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	PrevClose  decimal.Decimal `json:"prev_close"`
	GapPercent decimal.Decimal `json:"gap_percent"`
	Volume     int64           `json:"volume"`
	AvgVolume  int64           `json:"avg_volume"`
	Levels     MCardLevels     `json:"levels"`
	Headlines  []MHeadline     `json:"headlines"`
	Summary    string          `json:"summary"`
	AsOf       time.Time       `json:"as_of"`
}

type MCardLevels struct {
	Support    []decimal.Decimal `json:"support"`
	Resistance []decimal.Decimal `json:"resistance"`
}

type MHeadline struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// -----------------------------------------------------------------------------

// MCardViewModel is a validated card plus staleness flags, as held in the card cache.
type MCardViewModel struct {
	Ticker    string    `json:"ticker"`
	Card      MCard     `json:"card"`
	ETag      string    `json:"etag,omitempty"`
	IsMissing bool      `json:"is_missing"`
	IsStale   bool      `json:"is_stale"`
	FetchedAt time.Time `json:"fetched_at"`
}
