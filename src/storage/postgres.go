package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gapper-terminal/src/helpers"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresStore struct {
	Config    *models.MConfig
	DB        *sql.DB
	Schema    string
	Logger    *logger.Logger
	recentCap int
}

// -----------------------------------------------------------------------------

// NewPostgresStore keeps every table inside a schema named after the
// configured application name.
func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*PostgresStore, error) {
	if cfg.Storage.DBConnectionString == "" {
		return nil, helpers.NewConfigurationError("storage.db_connection_string is required for postgres", nil)
	}
	if log == nil {
		log = logger.NewLogger(cfg, "PostgresStore")
	}
	schema := strings.ReplaceAll(strings.ToLower(cfg.Name), "-", "_")
	if schema == "" {
		schema = "gapper_terminal"
	}
	return &PostgresStore{
		Config:    cfg,
		Schema:    schema,
		Logger:    log,
		recentCap: recentCap(cfg),
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Initialize(ctx context.Context) error {
	db, err := sql.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return helpers.NewDatabaseError("failed to open postgres connection", err)
	}
	// The server may still be starting next to us.
	ping := helpers.Backoff{Initial: 250 * time.Millisecond, Factor: 2, Max: 2 * time.Second, MaxAttempts: 4}
	if err := helpers.RetryWithBackoff(ctx, "postgres ping", ping, d.Logger, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		db.Close()
		return helpers.NewDatabaseError("failed to reach postgres", err)
	}
	d.DB = db

	if _, err := d.DB.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return helpers.NewDatabaseError(fmt.Sprintf("failed to create schema %s", d.Schema), err)
	}
	if err := d.createTables(ctx); err != nil {
		return err
	}

	d.Logger.Info("PostgresStore initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, name)
}

func (d *PostgresStore) createTables(ctx context.Context) error {
	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`, d.table("preferences")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ticker TEXT PRIMARY KEY,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`, d.table("watchlist")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ticker TEXT PRIMARY KEY,
			seq BIGINT NOT NULL,
			touched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`, d.table("recent_tickers")),
	}
	for _, q := range queries {
		if _, err := d.DB.ExecContext(ctx, q); err != nil {
			return helpers.NewDatabaseError("failed to create tables", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.DB.QueryRowContext(ctx, fmt.Sprintf("SELECT value FROM %s WHERE key = $1", d.table("preferences")), key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, helpers.NewDatabaseError(fmt.Sprintf("failed to read preference %q", key), err)
	}
	return value, true, nil
}

func (d *PostgresStore) SetPreference(ctx context.Context, key, value string) error {
	_, err := d.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, d.table("preferences")), key, value, time.Now().UTC())
	if err != nil {
		return helpers.NewDatabaseError(fmt.Sprintf("failed to write preference %q", key), err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Watchlist(ctx context.Context) ([]string, error) {
	return queryTickers(ctx, d.DB, fmt.Sprintf("SELECT ticker FROM %s ORDER BY added_at, ticker", d.table("watchlist")))
}

func (d *PostgresStore) AddToWatchlist(ctx context.Context, ticker string) error {
	t, err := canonical(ticker)
	if err != nil {
		return err
	}
	_, err = d.DB.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (ticker, added_at) VALUES ($1, $2) ON CONFLICT (ticker) DO NOTHING",
		d.table("watchlist")), t, time.Now().UTC())
	if err != nil {
		return helpers.NewDatabaseError("failed to add to watchlist", err)
	}
	return nil
}

func (d *PostgresStore) RemoveFromWatchlist(ctx context.Context, ticker string) error {
	t, err := canonical(ticker)
	if err != nil {
		return err
	}
	if _, err := d.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE ticker = $1", d.table("watchlist")), t); err != nil {
		return helpers.NewDatabaseError("failed to remove from watchlist", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) RecentTickers(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = d.recentCap
	}
	return queryTickers(ctx, d.DB, fmt.Sprintf("SELECT ticker FROM %s ORDER BY seq DESC LIMIT $1", d.table("recent_tickers")), limit)
}

func (d *PostgresStore) TouchRecent(ctx context.Context, tickers ...string) error {
	clean := canonicalAll(tickers)
	if len(clean) == 0 {
		return nil
	}
	recent := d.table("recent_tickers")

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewDatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	// Serializes concurrent touches so seq stays unique.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("LOCK TABLE %s IN EXCLUSIVE MODE", recent)); err != nil {
		return helpers.NewDatabaseError("failed to lock recent tickers", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) FROM %s", recent)).Scan(&seq); err != nil {
		return helpers.NewDatabaseError("failed to read recent sequence", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (ticker, seq, touched_at) VALUES ($1, $2, $3)
		ON CONFLICT (ticker) DO UPDATE SET seq = EXCLUDED.seq, touched_at = EXCLUDED.touched_at
	`, recent))
	if err != nil {
		return helpers.NewDatabaseError("failed to prepare recent upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := len(clean) - 1; i >= 0; i-- {
		seq++
		if _, err := stmt.ExecContext(ctx, clean[i], seq, now); err != nil {
			return helpers.NewDatabaseError("failed to record recent ticker", err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %[1]s WHERE ticker NOT IN (
			SELECT ticker FROM %[1]s ORDER BY seq DESC LIMIT $1
		)`, recent), d.recentCap); err != nil {
		return helpers.NewDatabaseError("failed to trim recent tickers", err)
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
