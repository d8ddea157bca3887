package devapi

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"gapper-terminal/src/analysis/core"
	"gapper-terminal/src/models"

	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"
)

// -----------------------------------------------------------------------------
// Store holds the cards and the ranked gapper list served by the dev backend.
// -----------------------------------------------------------------------------

type Store struct {
	mu      sync.RWMutex
	cards   map[string]storedCard
	gappers []models.MTopGapper
}

type storedCard struct {
	body []byte
	etag string
	card models.MCard
}

// -----------------------------------------------------------------------------

func NewStore() *Store {
	return &Store{cards: make(map[string]storedCard)}
}

// -----------------------------------------------------------------------------

// ETagFor derives a strong ETag from a serialized card.
func ETagFor(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

// -----------------------------------------------------------------------------

// PutCard stores card and returns its new ETag.
func (s *Store) PutCard(card models.MCard) string {
	card.Ticker = strings.ToUpper(card.Ticker)
	body, _ := json.Marshal(card)
	etag := ETagFor(body)

	s.mu.Lock()
	s.cards[card.Ticker] = storedCard{body: body, etag: etag, card: card}
	s.mu.Unlock()
	return etag
}

// Card returns the serialized card and its ETag.
func (s *Store) Card(ticker string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.cards[strings.ToUpper(ticker)]
	return sc.body, sc.etag, ok
}

// CardValue returns a copy of the stored card.
func (s *Store) CardValue(ticker string) (models.MCard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.cards[strings.ToUpper(ticker)]
	return sc.card, ok
}

func (s *Store) RemoveCard(ticker string) {
	s.mu.Lock()
	delete(s.cards, strings.ToUpper(ticker))
	s.mu.Unlock()
}

// Tickers lists stored cards alphabetically.
func (s *Store) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.cards))
	for t := range s.cards {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

// SetGappers replaces the ranking. Rows are kept in the given order.
func (s *Store) SetGappers(rows []models.MTopGapper) {
	s.mu.Lock()
	s.gappers = append([]models.MTopGapper(nil), rows...)
	s.mu.Unlock()
}

// Gappers returns up to limit rows (all when limit <= 0).
func (s *Store) Gappers(limit int) []models.MTopGapper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.gappers)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]models.MTopGapper{}, s.gappers[:n]...)
}

// -----------------------------------------------------------------------------

// Seed loads a small demo universe.
func (s *Store) Seed(now time.Time) {
	seed := []struct {
		ticker, name        string
		price, prev         string
		volume, avg         int64
		support, resistance []string
		summary             string
	}{
		{"NVDA", "NVIDIA Corp", "131.40", "124.10", 41_200_000, 38_000_000, []string{"126.00", "122.50"}, []string{"134.00", "138.20"}, "Gapping up on datacenter guidance."},
		{"TSLA", "Tesla Inc", "244.10", "251.80", 88_100_000, 97_000_000, []string{"240.00"}, []string{"252.00", "260.00"}, "Delivery miss weighs on open."},
		{"AAPL", "Apple Inc", "228.70", "226.00", 31_000_000, 52_000_000, []string{"225.00"}, []string{"231.00"}, "Quiet premarket ahead of event."},
		{"AMD", "Advanced Micro Devices", "171.90", "160.20", 55_500_000, 46_000_000, []string{"165.00"}, []string{"175.00"}, "Sympathy move with NVDA."},
		{"PLTR", "Palantir Technologies", "41.05", "37.90", 72_000_000, 60_000_000, []string{"39.50"}, []string{"42.00"}, "Contract win headline."},
	}

	var rows []models.MTopGapper
	for _, c := range seed {
		card := models.MCard{
			Ticker:    c.ticker,
			Name:      c.name,
			Price:     decimal.RequireFromString(c.price),
			PrevClose: decimal.RequireFromString(c.prev),
			Volume:    c.volume,
			AvgVolume: c.avg,
			Summary:   c.summary,
			AsOf:      now.UTC().Truncate(time.Second),
			Headlines: []models.MHeadline{{
				Title:       c.name + " moves premarket",
				URL:         "https://news.example.com/" + strings.ToLower(c.ticker),
				PublishedAt: now.UTC().Add(-30 * time.Minute).Truncate(time.Second),
			}},
		}
		for _, v := range c.support {
			card.Levels.Support = append(card.Levels.Support, decimal.RequireFromString(v))
		}
		for _, v := range c.resistance {
			card.Levels.Resistance = append(card.Levels.Resistance, decimal.RequireFromString(v))
		}
		card.GapPercent = core.GapPercent(card.Price, card.PrevClose)
		s.PutCard(card)
		rows = append(rows, models.MTopGapper{Ticker: c.ticker, Score: card.GapPercent.Abs()})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score.GreaterThan(rows[j].Score) })
	s.SetGappers(rows)
}
