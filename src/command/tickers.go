package command

import (
	"strings"
	"unicode"
)

const maxTickerLen = 6

// -----------------------------------------------------------------------------

// NormalizeTicker strips every non-alphanumeric rune and uppercases. It
// returns "" unless the result is 1-6 characters starting with a letter.
func NormalizeTicker(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	t := b.String()
	if t == "" || len(t) > maxTickerLen || !unicode.IsLetter(rune(t[0])) {
		return ""
	}
	return t
}

// -----------------------------------------------------------------------------

// DollarTickers returns the "$TICKER" tokens in text, de-duplicated in
// first-seen order.
func DollarTickers(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(text) {
		if t, ok := dollarTicker(tok); ok {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out
}

func dollarTicker(tok string) (string, bool) {
	tok = strings.TrimRight(tok, ",.;:!?)\"'")
	tok = strings.TrimLeft(tok, "(\"'")
	if !strings.HasPrefix(tok, "$") {
		return "", false
	}
	t := NormalizeTicker(tok[1:])
	return t, t != ""
}

// -----------------------------------------------------------------------------

// BareTickerOnly returns the ticker when text is a single uppercase
// ticker-shaped word that is not a stopword, else "".
func BareTickerOnly(text string) string {
	fields := strings.Fields(text)
	if len(fields) != 1 {
		return ""
	}
	word := fields[0]
	if strings.HasPrefix(word, "$") || word != strings.ToUpper(word) {
		return ""
	}
	t := NormalizeTicker(word)
	if t == "" || IsStopword(t) {
		return ""
	}
	return t
}

// -----------------------------------------------------------------------------

// tickerSet collects unique tickers up to a cap, keeping first-seen order.
type tickerSet struct {
	max  int
	list []string
	seen map[string]struct{}
}

func newTickerSet(max int) *tickerSet {
	return &tickerSet{max: max, seen: make(map[string]struct{})}
}

func (s *tickerSet) add(t string) {
	if t == "" || len(s.list) >= s.max {
		return
	}
	if _, ok := s.seen[t]; ok {
		return
	}
	s.seen[t] = struct{}{}
	s.list = append(s.list, t)
}

func (s *tickerSet) items() []string {
	if len(s.list) == 0 {
		return []string{}
	}
	return s.list
}
