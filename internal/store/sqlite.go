package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"kabunotify/internal/model"
)

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(path string, busyTimeout time.Duration, log zerolog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	}
	if ms := busyTimeout.Milliseconds(); ms > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			channel_id TEXT PRIMARY KEY,
			guild_id   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stocks (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL UNIQUE,
			name   TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS channel_stocks (
			channel_id TEXT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
			stock_id   INTEGER NOT NULL REFERENCES stocks(id),
			added_by   TEXT NOT NULL,
			created_at TEXT DEFAULT (datetime('now')),
			PRIMARY KEY (channel_id, stock_id)
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id      TEXT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
			cron_expression TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_guild_id ON channels(guild_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_channel_id ON schedules(channel_id)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return tx.Commit()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureChannel(ctx context.Context, e execer, channelID, guildID string) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO channels (channel_id, guild_id) VALUES (?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET guild_id = excluded.guild_id`,
		channelID, guildID)
	if err != nil {
		return fmt.Errorf("ensure channel %s: %w", channelID, err)
	}
	return nil
}

func (s *SQLiteStore) EnsureChannel(ctx context.Context, channelID, guildID string) error {
	return ensureChannel(ctx, s.db, channelID, guildID)
}

// UpsertStock returns the stock id, filling in the name when it was unknown.
func (s *SQLiteStore) UpsertStock(ctx context.Context, ticker, name string) (int64, error) {
	var nameArg any
	if name != "" {
		nameArg = name
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO stocks (ticker, name) VALUES (?, ?)
		 ON CONFLICT(ticker) DO UPDATE SET name = COALESCE(stocks.name, excluded.name)
		 RETURNING id`,
		ticker, nameArg).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert stock %s: %w", ticker, err)
	}
	return id, nil
}

// AddChannelStock attaches a stock to a channel. It returns false when the
// channel already tracks it.
func (s *SQLiteStore) AddChannelStock(ctx context.Context, channelID, guildID string, stockID int64, addedBy string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if err := ensureChannel(ctx, tx, channelID, guildID); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO channel_stocks (channel_id, stock_id, added_by) VALUES (?, ?, ?)`,
		channelID, stockID, addedBy)
	if err != nil {
		return false, fmt.Errorf("add channel stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

func (s *SQLiteStore) RemoveChannelStock(ctx context.Context, channelID, ticker string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_stocks
		 WHERE channel_id = ? AND stock_id = (SELECT id FROM stocks WHERE ticker = ?)`,
		channelID, ticker)
	if err != nil {
		return false, fmt.Errorf("remove channel stock: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TrackedTickers returns the channel's stocks in the order they were added.
func (s *SQLiteStore) TrackedTickers(ctx context.Context, channelID string) ([]model.Stock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.ticker, COALESCE(s.name, '')
		 FROM channel_stocks cs JOIN stocks s ON s.id = cs.stock_id
		 WHERE cs.channel_id = ?
		 ORDER BY cs.created_at, cs.rowid`,
		channelID)
	if err != nil {
		return nil, fmt.Errorf("query tracked tickers: %w", err)
	}
	defer rows.Close()

	var out []model.Stock
	for rows.Next() {
		var st model.Stock
		if err := rows.Scan(&st.ID, &st.Ticker, &st.Name); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// AddSchedules inserts the expressions the channel does not have yet and
// returns only the newly created rows.
func (s *SQLiteStore) AddSchedules(ctx context.Context, channelID, guildID string, exprs []string) ([]model.Schedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := ensureChannel(ctx, tx, channelID, guildID); err != nil {
		return nil, err
	}

	existing := map[string]bool{}
	rows, err := tx.QueryContext(ctx, `SELECT cron_expression FROM schedules WHERE channel_id = ?`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	for rows.Next() {
		var expr string
		if err := rows.Scan(&expr); err != nil {
			rows.Close()
			return nil, err
		}
		existing[expr] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var added []model.Schedule
	for _, expr := range exprs {
		if existing[expr] {
			continue
		}
		existing[expr] = true
		res, err := tx.ExecContext(ctx, `INSERT INTO schedules (channel_id, cron_expression) VALUES (?, ?)`, channelID, expr)
		if err != nil {
			return nil, fmt.Errorf("insert schedule: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		added = append(added, model.Schedule{ID: id, ChannelID: channelID, Expression: expr})
	}
	return added, tx.Commit()
}

// SetSchedules replaces every schedule of the channel.
func (s *SQLiteStore) SetSchedules(ctx context.Context, channelID, guildID string, exprs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ensureChannel(ctx, tx, channelID, guildID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("clear schedules: %w", err)
	}
	for _, expr := range exprs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schedules (channel_id, cron_expression) VALUES (?, ?)`, channelID, expr); err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Schedules(ctx context.Context, channelID string) ([]model.Schedule, error) {
	return s.querySchedules(ctx,
		`SELECT id, channel_id, cron_expression FROM schedules WHERE channel_id = ? ORDER BY id`, channelID)
}

func (s *SQLiteStore) AllSchedules(ctx context.Context) ([]model.Schedule, error) {
	return s.querySchedules(ctx, `SELECT id, channel_id, cron_expression FROM schedules ORDER BY id`)
}

func (s *SQLiteStore) querySchedules(ctx context.Context, query string, args ...any) ([]model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		var sc model.Schedule
		if err := rows.Scan(&sc.ID, &sc.ChannelID, &sc.Expression); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// DeleteSchedule removes schedule id of channelID. It returns false when the
// channel has no such row.
func (s *SQLiteStore) DeleteSchedule(ctx context.Context, channelID string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ? AND channel_id = ?`, id, channelID)
	if err != nil {
		return false, fmt.Errorf("delete schedule %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GuildOverview lists every configured channel of the guild ordered by channel id.
func (s *SQLiteStore) GuildOverview(ctx context.Context, guildID string) ([]model.ChannelOverview, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id FROM channels WHERE guild_id = ? ORDER BY channel_id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []model.ChannelOverview
	for _, id := range ids {
		stocks, err := s.TrackedTickers(ctx, id)
		if err != nil {
			return nil, err
		}
		schedules, err := s.Schedules(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(stocks) == 0 && len(schedules) == 0 {
			continue
		}
		out = append(out, model.ChannelOverview{ChannelID: id, GuildID: guildID, Stocks: stocks, Schedules: schedules})
	}
	return out, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
