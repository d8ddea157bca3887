package utils

// -----------------------------------------------------------------------------

// Defaults shared by components that can run without a loaded config.
const (
	DefaultCacheCapacity    = 50
	DefaultMaxTickers       = 6
	DefaultChannelHistory   = 100
	DefaultLiveFeedHistory  = 200
	DefaultScanLimit        = 10
	DefaultUsageReply       = "Try /analyze NVDA, /levels TSLA, /news AAPL, /gap AMD or /scan. You can also type $TICKER in any message."
	DefaultMarketClosedNote = "Markets are closed; ranking reflects the last session."
)
