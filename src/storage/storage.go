package storage

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"gapper-terminal/src/command"
	"gapper-terminal/src/helpers"
	"gapper-terminal/src/interfaces"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
	"gapper-terminal/src/utils"
)

const defaultRecentCap = 20

// -----------------------------------------------------------------------------

// New picks the preference store named by storage.db_type.
// The returned store still needs Initialize.
func New(cfg *models.MConfig, log *logger.Logger) (interfaces.IPreferenceStore, error) {
	switch cfg.Storage.DBType {
	case "sqlite", "":
		return NewSQLiteStore(cfg, log)
	case "postgres":
		return NewPostgresStore(cfg, log)
	case "none":
		return NewMemoryStore(recentCap(cfg)), nil
	}
	return nil, helpers.NewConfigurationError(fmt.Sprintf("unsupported db_type %q", cfg.Storage.DBType), nil)
}

// -----------------------------------------------------------------------------

func recentCap(cfg *models.MConfig) int {
	if cfg.Interpreter.RecentTickerCap > 0 {
		return cfg.Interpreter.RecentTickerCap
	}
	return defaultRecentCap
}

func canonical(ticker string) (string, error) {
	t := command.NormalizeTicker(ticker)
	if t == "" {
		return "", helpers.NewDatabaseError(fmt.Sprintf("invalid ticker %q", ticker), nil)
	}
	return t, nil
}

// canonicalAll normalizes and de-duplicates, keeping first-seen order.
func canonicalAll(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	for _, raw := range tickers {
		if t := command.NormalizeTicker(raw); t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func queryTickers(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, helpers.NewDatabaseError("failed to query tickers", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, helpers.NewDatabaseError("failed to scan ticker", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("failed to read tickers", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// MemoryStore keeps preferences for the lifetime of the process only.
// -----------------------------------------------------------------------------

type MemoryStore struct {
	mu        sync.Mutex
	prefs     map[string]string
	watchlist []string
	recent    *utils.BoundedCache[string, struct{}]
}

func NewMemoryStore(recentCap int) *MemoryStore {
	if recentCap <= 0 {
		recentCap = defaultRecentCap
	}
	return &MemoryStore{
		prefs:  make(map[string]string),
		recent: utils.NewBoundedCache[string, struct{}](recentCap),
	}
}

func (m *MemoryStore) Initialize(context.Context) error { return nil }
func (m *MemoryStore) Close() error                     { return nil }

func (m *MemoryStore) GetPreference(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.prefs[key]
	return v, ok, nil
}

func (m *MemoryStore) SetPreference(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.prefs[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Watchlist(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.watchlist), nil
}

func (m *MemoryStore) AddToWatchlist(_ context.Context, ticker string) error {
	t, err := canonical(ticker)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if !slices.Contains(m.watchlist, t) {
		m.watchlist = append(m.watchlist, t)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RemoveFromWatchlist(_ context.Context, ticker string) error {
	t, err := canonical(ticker)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.watchlist = slices.DeleteFunc(m.watchlist, func(s string) bool { return s == t })
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RecentTickers(_ context.Context, limit int) ([]string, error) {
	keys := m.recent.Keys()
	slices.Reverse(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (m *MemoryStore) TouchRecent(_ context.Context, tickers ...string) error {
	clean := canonicalAll(tickers)
	for i := len(clean) - 1; i >= 0; i-- {
		m.recent.Set(clean[i], struct{}{})
	}
	return nil
}

var (
	_ interfaces.IPreferenceStore = (*SQLiteStore)(nil)
	_ interfaces.IPreferenceStore = (*PostgresStore)(nil)
	_ interfaces.IPreferenceStore = (*MemoryStore)(nil)
)
