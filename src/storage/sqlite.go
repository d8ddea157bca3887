package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gapper-terminal/src/helpers"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteStore struct {
	Config    *models.MConfig
	DB        *sql.DB
	Logger    *logger.Logger
	recentCap int
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) (*SQLiteStore, error) {
	if cfg.Storage.DBPath == "" {
		return nil, helpers.NewConfigurationError("storage.db_path is required for sqlite", nil)
	}
	if log == nil {
		log = logger.NewLogger(cfg, "SQLiteStore")
	}
	return &SQLiteStore{
		Config:    cfg,
		Logger:    log,
		recentCap: recentCap(cfg),
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite", d.Config.Storage.DBPath)
	if err != nil {
		return helpers.NewDatabaseError("failed to open sqlite database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return helpers.NewDatabaseError("failed to reach sqlite database", err)
	}
	// sqlite has a single writer.
	db.SetMaxOpenConns(1)
	d.DB = db

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	if err := d.createTables(ctx); err != nil {
		return err
	}
	d.Logger.Info("SQLite preference store ready at %s", d.Config.Storage.DBPath)
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			ticker TEXT PRIMARY KEY,
			added_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS recent_tickers (
			ticker TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			touched_at INTEGER NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := d.DB.ExecContext(ctx, q); err != nil {
			return helpers.NewDatabaseError("failed to create tables", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.DB.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, helpers.NewDatabaseError(fmt.Sprintf("failed to read preference %q", key), err)
	}
	return value, true, nil
}

func (d *SQLiteStore) SetPreference(ctx context.Context, key, value string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Unix())
	if err != nil {
		return helpers.NewDatabaseError(fmt.Sprintf("failed to write preference %q", key), err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Watchlist(ctx context.Context) ([]string, error) {
	return queryTickers(ctx, d.DB, "SELECT ticker FROM watchlist ORDER BY added_at, ticker")
}

func (d *SQLiteStore) AddToWatchlist(ctx context.Context, ticker string) error {
	t, err := canonical(ticker)
	if err != nil {
		return err
	}
	_, err = d.DB.ExecContext(ctx, "INSERT INTO watchlist (ticker, added_at) VALUES (?, ?) ON CONFLICT (ticker) DO NOTHING",
		t, time.Now().UTC().UnixNano())
	if err != nil {
		return helpers.NewDatabaseError("failed to add to watchlist", err)
	}
	return nil
}

func (d *SQLiteStore) RemoveFromWatchlist(ctx context.Context, ticker string) error {
	t, err := canonical(ticker)
	if err != nil {
		return err
	}
	if _, err := d.DB.ExecContext(ctx, "DELETE FROM watchlist WHERE ticker = ?", t); err != nil {
		return helpers.NewDatabaseError("failed to remove from watchlist", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) RecentTickers(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = d.recentCap
	}
	return queryTickers(ctx, d.DB, "SELECT ticker FROM recent_tickers ORDER BY seq DESC LIMIT ?", limit)
}

// TouchRecent marks tickers as used; the first argument becomes the most recent.
func (d *SQLiteStore) TouchRecent(ctx context.Context, tickers ...string) error {
	clean := canonicalAll(tickers)
	if len(clean) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewDatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM recent_tickers").Scan(&seq); err != nil {
		return helpers.NewDatabaseError("failed to read recent sequence", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recent_tickers (ticker, seq, touched_at) VALUES (?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET seq = excluded.seq, touched_at = excluded.touched_at
	`)
	if err != nil {
		return helpers.NewDatabaseError("failed to prepare recent upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for i := len(clean) - 1; i >= 0; i-- {
		seq++
		if _, err := stmt.ExecContext(ctx, clean[i], seq, now); err != nil {
			return helpers.NewDatabaseError("failed to record recent ticker", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM recent_tickers WHERE ticker NOT IN (
			SELECT ticker FROM recent_tickers ORDER BY seq DESC LIMIT ?
		)`, d.recentCap); err != nil {
		return helpers.NewDatabaseError("failed to trim recent tickers", err)
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
