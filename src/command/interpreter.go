package command

import (
	"strings"
	"sync"

	"gapper-terminal/src/models"
	"gapper-terminal/src/utils"
)

// -----------------------------------------------------------------------------
// Interpreter turns one chat submission into an intent and a ticker list.
// Parse never fails; unrecognized input degrades to a plain message.
// -----------------------------------------------------------------------------

type Interpreter struct {
	registry   *Registry
	maxTickers int

	mu   sync.RWMutex
	pool map[string]struct{} // watchlist + recent tickers
}

// -----------------------------------------------------------------------------

func NewInterpreter(registry *Registry, maxTickers int) *Interpreter {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if maxTickers <= 0 {
		maxTickers = utils.DefaultMaxTickers
	}
	return &Interpreter{
		registry:   registry,
		maxTickers: maxTickers,
		pool:       make(map[string]struct{}),
	}
}

func (in *Interpreter) Registry() *Registry { return in.registry }

// -----------------------------------------------------------------------------

// SetCandidatePool replaces the known tickers matched inside free text.
func (in *Interpreter) SetCandidatePool(tickers []string) {
	pool := make(map[string]struct{}, len(tickers))
	for _, raw := range tickers {
		if t := NormalizeTicker(raw); t != "" {
			pool[t] = struct{}{}
		}
	}
	in.mu.Lock()
	in.pool = pool
	in.mu.Unlock()
}

func (in *Interpreter) inPool(t string) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	_, ok := in.pool[t]
	return ok
}

// -----------------------------------------------------------------------------

// Parse applies, in order: registered slash command, plain command verb,
// $TICKER tokens, a single bare ticker, candidate pool words, plain message.
func (in *Interpreter) Parse(text string) models.MParsedInput {
	raw := text
	fields := strings.Fields(text)
	out := models.MParsedInput{
		Intent:            models.IntentMessage,
		Tickers:           []string{},
		NormalizedMessage: strings.Join(fields, " "),
		Raw:               raw,
	}
	if len(fields) == 0 {
		return out
	}

	// (a) slash command
	if strings.HasPrefix(fields[0], "/") {
		name := strings.TrimPrefix(fields[0], "/")
		if cmd := in.registry.Get(name); cmd != nil {
			return in.fromCommand(out, cmd, fields[1:], true)
		}
		// Unknown verb: the whole remainder is a ticker search.
		remainder := append([]string{name}, fields[1:]...)
		out.Tickers = in.searchTickers(remainder)
		out.NormalizedMessage = strings.Join(remainder, " ")
		return out
	}

	// (b) plain verb
	if cmd := in.registry.Get(fields[0]); cmd != nil && in.allTickerArgs(cmd, fields[1:]) {
		return in.fromCommand(out, cmd, fields[1:], false)
	}

	// (c) $TICKER tokens
	set := newTickerSet(in.maxTickers)
	for _, t := range DollarTickers(text) {
		set.add(t)
	}
	if len(set.list) > 0 {
		out.Tickers = set.items()
		out.NormalizedMessage = upperDollarTokens(fields)
		return out
	}

	// (d) single bare ticker
	if len(fields) == 1 {
		if t := BareTickerOnly(fields[0]); t != "" {
			out.Tickers = []string{t}
			return out
		}
		if t := NormalizeTicker(fields[0]); t != "" && in.inPool(t) {
			out.Tickers = []string{t}
			return out
		}
		return out
	}

	// free text mentioning known tickers
	for _, w := range fields {
		if t := NormalizeTicker(w); t != "" && !IsStopword(t) && in.inPool(t) {
			set.add(t)
		}
	}
	out.Tickers = set.items()
	return out
}

// -----------------------------------------------------------------------------

func (in *Interpreter) fromCommand(out models.MParsedInput, cmd *Command, args []string, slash bool) models.MParsedInput {
	out.Intent = cmd.Intent
	out.CommandName = cmd.Name
	out.Args = append([]string(nil), args...)

	if cmd.Intent == models.IntentScan {
		out.NormalizedMessage = strings.TrimSpace(cmd.Name + " " + strings.Join(args, " "))
		return out
	}

	set := newTickerSet(in.maxTickers)
	for _, a := range args {
		if t, ok := dollarTicker(a); ok {
			set.add(t)
			continue
		}
		if t := NormalizeTicker(a); t != "" && !IsStopword(t) {
			set.add(t)
		}
	}
	// "/levels ON" names a real symbol even though ON is a stopword.
	if slash && len(set.list) == 0 && len(args) == 1 {
		set.add(NormalizeTicker(args[0]))
	}

	out.Tickers = set.items()
	out.NormalizedMessage = strings.TrimSpace(cmd.Name + " " + strings.Join(out.Tickers, " "))
	return out
}

// -----------------------------------------------------------------------------

// allTickerArgs decides whether "news nvda" is a command or just a sentence
// that happens to start with a verb.
func (in *Interpreter) allTickerArgs(cmd *Command, args []string) bool {
	if len(args) == 0 {
		return true
	}
	if cmd.Intent == models.IntentScan || len(args) > in.maxTickers {
		return false
	}
	for _, a := range args {
		if _, ok := dollarTicker(a); ok {
			continue
		}
		t := NormalizeTicker(a)
		if t == "" || IsStopword(t) {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------

func (in *Interpreter) searchTickers(words []string) []string {
	set := newTickerSet(in.maxTickers)
	for _, w := range words {
		if t, ok := dollarTicker(w); ok {
			set.add(t)
			continue
		}
		if t := NormalizeTicker(w); t != "" && !IsStopword(t) {
			set.add(t)
		}
	}
	return set.items()
}

func upperDollarTokens(fields []string) string {
	out := make([]string, len(fields))
	for i, f := range fields {
		if strings.HasPrefix(f, "$") {
			out[i] = strings.ToUpper(f)
		} else {
			out[i] = f
		}
	}
	return strings.Join(out, " ")
}
