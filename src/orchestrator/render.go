package orchestrator

import (
	"fmt"
	"strings"

	"gapper-terminal/src/analysis/core"
	"gapper-terminal/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

func renderCard(intent models.Intent, vm models.MCardViewModel) string {
	if vm.IsMissing {
		return fmt.Sprintf("%s: no card available yet", vm.Ticker)
	}
	c := vm.Card

	switch intent {
	case models.IntentQuickGap:
		return renderGap(c)
	case models.IntentLevels:
		return renderLevels(c)
	case models.IntentNews:
		return renderNews(c)
	case models.IntentMessage, models.IntentScan:
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s", c.Ticker)
	if c.Name != "" {
		fmt.Fprintf(&b, " (%s)", c.Name)
	}
	fmt.Fprintf(&b, " $%s %s gap, RVOL %sx", c.Price.StringFixed(2), signed(c.GapPercent), core.RelativeVolume(c.Volume, c.AvgVolume).StringFixed(2))
	if c.Summary != "" {
		fmt.Fprintf(&b, "\n%s", c.Summary)
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func renderGap(c models.MCard) string {
	return fmt.Sprintf("%s gap %s (%s vs %s prev close), vol %s / avg %s (%sx)",
		c.Ticker, signed(c.GapPercent), c.Price.StringFixed(2), c.PrevClose.StringFixed(2),
		humanVolume(c.Volume), humanVolume(c.AvgVolume), core.RelativeVolume(c.Volume, c.AvgVolume).StringFixed(2))
}

// -----------------------------------------------------------------------------

func renderLevels(c models.MCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s levels at $%s", c.Ticker, c.Price.StringFixed(2))

	s, sOK, r, rOK := core.NearestLevels(c.Price, c.Levels.Support, c.Levels.Resistance)
	if sOK {
		fmt.Fprintf(&b, "\n  nearest support %s (%s)", s.StringFixed(2), signed(core.DistancePercent(c.Price, s)))
	}
	if rOK {
		fmt.Fprintf(&b, "\n  nearest resistance %s (%s)", r.StringFixed(2), signed(core.DistancePercent(c.Price, r)))
	}
	if len(c.Levels.Support) > 0 {
		fmt.Fprintf(&b, "\n  support: %s", joinLevels(c.Levels.Support))
	}
	if len(c.Levels.Resistance) > 0 {
		fmt.Fprintf(&b, "\n  resistance: %s", joinLevels(c.Levels.Resistance))
	}
	if !sOK && !rOK && len(c.Levels.Support)+len(c.Levels.Resistance) == 0 {
		b.WriteString("\n  no levels published")
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func renderNews(c models.MCard) string {
	if len(c.Headlines) == 0 {
		return fmt.Sprintf("%s: no recent headlines", c.Ticker)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s headlines", c.Ticker)
	for _, h := range c.Headlines {
		fmt.Fprintf(&b, "\n  - %s", h.Title)
		if !h.PublishedAt.IsZero() {
			fmt.Fprintf(&b, " (%s)", h.PublishedAt.Format("Jan 2 15:04"))
		}
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func renderGappers(rows []models.MTopGapper) string {
	if len(rows) == 0 {
		return "No gappers ranked right now."
	}
	var b strings.Builder
	b.WriteString("Top gappers:")
	for i, r := range rows {
		fmt.Fprintf(&b, "\n  %d. %s %s", i+1, r.Ticker, r.Score.StringFixed(2))
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func signed(pct decimal.Decimal) string {
	if pct.IsPositive() {
		return "+" + pct.StringFixed(2) + "%"
	}
	return pct.StringFixed(2) + "%"
}

func joinLevels(levels []decimal.Decimal) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = l.StringFixed(2)
	}
	return strings.Join(parts, ", ")
}

func humanVolume(v int64) string {
	switch {
	case v >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(v)/1e9)
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(v)/1e6)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", float64(v)/1e3)
	}
	return fmt.Sprintf("%d", v)
}
