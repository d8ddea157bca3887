package storage

import (
	"context"
	"path/filepath"
	"testing"

	"gapper-terminal/src/config"
	"gapper-terminal/src/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, recentCap int) *SQLiteStore {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "prefs.db")
	cfg.Interpreter.RecentTickerCap = recentCap

	s, err := NewSQLiteStore(cfg.MConfig, nil)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]interfaces.IPreferenceStore {
	return map[string]interfaces.IPreferenceStore{
		"sqlite": openSQLite(t, 3),
		"memory": NewMemoryStore(3),
	}
}

// -----------------------------------------------------------------------------

func TestPreferences(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := s.GetPreference(ctx, "theme")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetPreference(ctx, "theme", "dark"))
			require.NoError(t, s.SetPreference(ctx, "theme", "light"))

			v, ok, err := s.GetPreference(ctx, "theme")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "light", v)
		})
	}
}

func TestWatchlist(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.AddToWatchlist(ctx, "nvda"))
			require.NoError(t, s.AddToWatchlist(ctx, "$TSLA"))
			require.NoError(t, s.AddToWatchlist(ctx, "NVDA"))
			assert.Error(t, s.AddToWatchlist(ctx, "  "))

			list, err := s.Watchlist(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"NVDA", "TSLA"}, list)

			require.NoError(t, s.RemoveFromWatchlist(ctx, "nvda"))
			list, err = s.Watchlist(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"TSLA"}, list)
		})
	}
}

func TestRecentTickersAreCappedMostRecentFirst(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.TouchRecent(ctx, "AAPL"))
			require.NoError(t, s.TouchRecent(ctx, "NVDA", "AMD"))
			require.NoError(t, s.TouchRecent(ctx, "TSLA"))

			recent, err := s.RecentTickers(ctx, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"TSLA", "NVDA", "AMD"}, recent)

			require.NoError(t, s.TouchRecent(ctx, "amd", "amd"))
			recent, err = s.RecentTickers(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"AMD", "TSLA"}, recent)
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(cfg.MConfig, nil)
	require.NoError(t, err)
	require.NoError(t, first.Initialize(ctx))
	require.NoError(t, first.AddToWatchlist(ctx, "PLTR"))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(cfg.MConfig, nil)
	require.NoError(t, err)
	require.NoError(t, second.Initialize(ctx))
	defer second.Close()

	list, err := second.Watchlist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PLTR"}, list)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DBType = "mongo"
	_, err := New(cfg.MConfig, nil)
	assert.Error(t, err)

	cfg.Storage.DBType = "none"
	s, err := New(cfg.MConfig, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	cfg.Storage.DBType = "postgres"
	cfg.Storage.DBConnectionString = ""
	_, err = New(cfg.MConfig, nil)
	assert.Error(t, err)
}
