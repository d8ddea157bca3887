package devapi

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"gapper-terminal/src/analysis/core"
	"gapper-terminal/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// Simulate nudges a random card every interval and publishes the matching
// card_updated event, plus entered_gapper / left_gapper on the live channel
// whenever the top of the ranking changes. It returns when ctx ends.
func (s *Server) Simulate(ctx context.Context, interval time.Duration, top int) {
	if top <= 0 {
		top = 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	leaders := s.leaders(top)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tickers := s.Store.Tickers()
			if len(tickers) == 0 {
				continue
			}
			sym := tickers[rand.IntN(len(tickers))]
			card, ok := s.Store.CardValue(sym)
			if !ok {
				continue
			}

			// +/- 1.5% random walk
			move := decimal.NewFromFloat((rand.Float64() - 0.5) * 0.03)
			card.Price = card.Price.Mul(decimal.NewFromInt(1).Add(move)).Round(2)
			card.GapPercent = core.GapPercent(card.Price, card.PrevClose)
			card.Volume += rand.Int64N(250_000)
			card.AsOf = now.UTC().Truncate(time.Second)
			s.Store.PutCard(card)
			s.rerank()

			ts := json.RawMessage(strconv.FormatInt(now.Unix(), 10))
			payload, _ := json.Marshal(card)
			s.Publish(models.MWireEvent{EventType: string(models.EventCardUpdated), Ticker: sym, Payload: payload, Timestamp: ts})

			next := s.leaders(top)
			for t, rank := range next {
				if _, was := leaders[t]; !was {
					s.publishGapper(models.EventEnteredGapper, t, rank+1, ts)
				}
			}
			for t := range leaders {
				if _, still := next[t]; !still {
					s.publishGapper(models.EventLeftGapper, t, 0, ts)
				}
			}
			leaders = next
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Server) publishGapper(kind models.EventType, ticker string, rank int, ts json.RawMessage) {
	entry := models.MGapperEntry{Ticker: ticker, Rank: rank}
	if card, ok := s.Store.CardValue(ticker); ok {
		entry.GapPercent = card.GapPercent.InexactFloat64()
	}
	payload, _ := json.Marshal(entry)
	s.Publish(models.MWireEvent{
		EventType: string(kind),
		Ticker:    ticker,
		Channel:   models.LiveGappersChannel,
		Payload:   payload,
		Timestamp: ts,
	})
}

// -----------------------------------------------------------------------------

func (s *Server) rerank() {
	var rows []models.MTopGapper
	for _, t := range s.Store.Tickers() {
		if card, ok := s.Store.CardValue(t); ok {
			rows = append(rows, models.MTopGapper{Ticker: t, Score: card.GapPercent.Abs()})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score.GreaterThan(rows[j].Score) })
	s.Store.SetGappers(rows)
}

// leaders returns ranked tickers keyed for membership; order comes from Gappers.
func (s *Server) leaders(top int) map[string]int {
	out := make(map[string]int, top)
	for i, g := range s.Store.Gappers(top) {
		out[g.Ticker] = i
	}
	return out
}
