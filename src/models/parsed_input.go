package models

// Intent is the closed set of things a submission can ask for.
type Intent string

const (
	IntentMessage  Intent = "message"
	IntentScan     Intent = "scan"
	IntentQuickGap Intent = "quick_gap"
	IntentLevels   Intent = "levels"
	IntentNews     Intent = "news"
)

// -----------------------------------------------------------------------------

// Valid reports whether i is one of the enumerated intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentMessage, IntentScan, IntentQuickGap, IntentLevels, IntentNews:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// MParsedInput is the immutable result of interpreting one submission.
type MParsedInput struct {
	Intent            Intent   `json:"intent"`
	Tickers           []string `json:"tickers"`
	CommandName       string   `json:"command_name,omitempty"` // e.g. "analyze"; empty for free text
	Args              []string `json:"args,omitempty"`
	NormalizedMessage string   `json:"normalized_message"`
	Raw               string   `json:"raw"`
}

// -----------------------------------------------------------------------------

// PrimaryTicker returns the first resolved ticker or "".
func (p MParsedInput) PrimaryTicker() string {
	if len(p.Tickers) == 0 {
		return ""
	}
	return p.Tickers[0]
}
