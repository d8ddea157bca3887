package interfaces

import "context"

// -----------------------------------------------------------------------------
// IPreferenceStore persists UI preferences, the watchlist and recent tickers.
// -----------------------------------------------------------------------------

type IPreferenceStore interface {

	// Initialize sets up the database schema and tables.
	Initialize(ctx context.Context) error

	// -----------------------------------------------------------------------------

	GetPreference(ctx context.Context, key string) (string, bool, error)
	SetPreference(ctx context.Context, key, value string) error

	// -----------------------------------------------------------------------------

	Watchlist(ctx context.Context) ([]string, error)
	AddToWatchlist(ctx context.Context, ticker string) error
	RemoveFromWatchlist(ctx context.Context, ticker string) error

	// -----------------------------------------------------------------------------

	// RecentTickers returns up to limit tickers, most recent first.
	RecentTickers(ctx context.Context, limit int) ([]string, error)
	TouchRecent(ctx context.Context, tickers ...string) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
