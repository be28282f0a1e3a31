package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"cryptoKline/internal/domain"
	"cryptoKline/internal/ports"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	Name        string
	NumericType string             // Column type for prices and volumes
	Placeholder func(n int) string // n is 1-based
}

// SQLite uses ?-style placeholders and keeps decimals as TEXT.
var SQLite = Dialect{
	Name:        "sqlite",
	NumericType: "TEXT",
	Placeholder: func(int) string { return "?" },
}

// Postgres uses $n placeholders and NUMERIC columns.
var Postgres = Dialect{
	Name:        "postgres",
	NumericType: "NUMERIC",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

const klineColumns = "symbol, kline_interval, open_time, close_time, open, high, low, close, volume, " +
	"quote_asset_volume, trade_count, taker_buy_base_volume, taker_buy_quote_volume"

// Store implements ports.KlineRepository over database/sql.
// Tables are created on first use.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  ports.Logger

	mu      sync.Mutex
	created map[string]bool
}

// New wraps an open connection. The caller keeps ownership of pool settings.
func New(db *sql.DB, dialect Dialect, logger ports.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger,
		created: make(map[string]bool),
	}
}

// DB exposes the underlying handle for diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing database connection", map[string]interface{}{"driver": s.dialect.Name})
		return s.db.Close()
	}
	return nil
}

// ValidateTable rejects names that cannot be used as a bare identifier.
func ValidateTable(table string) error {
	if !tableNameRe.MatchString(table) {
		return fmt.Errorf("invalid table name %q: %w", table, ports.ErrInvalidRequest)
	}
	return nil
}

func (s *Store) ensureTable(ctx context.Context, table string) error {
	if err := ValidateTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[table] {
		return nil
	}

	n := s.dialect.NumericType
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		symbol TEXT NOT NULL,
		kline_interval TEXT NOT NULL,
		open_time BIGINT NOT NULL,
		close_time BIGINT NOT NULL,
		open %[2]s NOT NULL,
		high %[2]s NOT NULL,
		low %[2]s NOT NULL,
		close %[2]s NOT NULL,
		volume %[2]s NOT NULL,
		quote_asset_volume %[2]s NOT NULL,
		trade_count BIGINT NOT NULL,
		taker_buy_base_volume %[2]s NOT NULL,
		taker_buy_quote_volume %[2]s NOT NULL,
		PRIMARY KEY (symbol, kline_interval, open_time)
	)`, table, n)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create table %s: %w: %w", table, ports.ErrQueryFailed, err)
	}
	s.created[table] = true
	s.logger.Info(ctx, "Kline table initialized/verified", map[string]interface{}{"table": table, "driver": s.dialect.Name})
	return nil
}

func (s *Store) placeholders(from, count int) string {
	ph := make([]string, count)
	for i := range ph {
		ph[i] = s.dialect.Placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

func (s *Store) upsertQuery(table string) string {
	return fmt.Sprintf(`
	INSERT INTO %s (%s)
	VALUES (%s)
	ON CONFLICT (symbol, kline_interval, open_time) DO UPDATE SET
		close_time = excluded.close_time,
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume,
		quote_asset_volume = excluded.quote_asset_volume,
		trade_count = excluded.trade_count,
		taker_buy_base_volume = excluded.taker_buy_base_volume,
		taker_buy_quote_volume = excluded.taker_buy_quote_volume`,
		table, klineColumns, s.placeholders(1, 13))
}

// AppendKlines upserts klines into table inside one transaction.
// Re-appending a row with the same key overwrites it.
func (s *Store) AppendKlines(ctx context.Context, table string, klines []*domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, s.upsertQuery(table))
	if err != nil {
		return fmt.Errorf("failed to prepare upsert into %s: %w: %w", table, ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, k := range klines {
		_, err := stmt.ExecContext(ctx,
			k.Symbol, string(k.Interval), k.OpenTime.UnixMilli(), k.CloseTime.UnixMilli(),
			k.Open, k.High, k.Low, k.Close, k.Volume,
			k.QuoteAssetVolume, k.TradeCount, k.TakerBuyBaseVolume, k.TakerBuyQuoteVolume)
		if err != nil {
			return fmt.Errorf("failed to upsert kline %s %s: %w: %w", k.Symbol, k.OpenTime.Format(time.RFC3339), ports.ErrUpdateFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit klines into %s: %w: %w", table, ports.ErrUpdateFailed, err)
	}
	s.logger.Debug(ctx, "Klines appended", map[string]interface{}{"table": table, "rows": len(klines), "symbol": klines[0].Symbol})
	return nil
}

// LatestOpenTime returns the newest stored open time, or the zero time if none.
func (s *Store) LatestOpenTime(ctx context.Context, table, symbol string, interval domain.Interval) (time.Time, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return time.Time{}, err
	}
	query := fmt.Sprintf(`SELECT MAX(open_time) FROM %s WHERE symbol = %s AND kline_interval = %s`,
		table, s.dialect.Placeholder(1), s.dialect.Placeholder(2))

	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, symbol, string(interval)).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest open time for %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(latest.Int64).UTC(), nil
}

// CountRange counts rows opening in [start, end).
func (s *Store) CountRange(ctx context.Context, table, symbol string, interval domain.Interval, start, end time.Time) (int, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE symbol = %s AND kline_interval = %s AND open_time >= %s AND open_time < %s`,
		table, s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3), s.dialect.Placeholder(4))

	var count int
	err := s.db.QueryRowContext(ctx, query, symbol, string(interval), start.UnixMilli(), end.UnixMilli()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count klines for %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return count, nil
}

// FindRange returns rows opening in [start, end), ascending.
func (s *Store) FindRange(ctx context.Context, table, symbol string, interval domain.Interval, start, end time.Time) ([]*domain.Kline, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
	WHERE symbol = %s AND kline_interval = %s AND open_time >= %s AND open_time < %s
	ORDER BY open_time ASC`,
		klineColumns, table, s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3), s.dialect.Placeholder(4))

	rows, err := s.db.QueryContext(ctx, query, symbol, string(interval), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query klines for %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var klines []*domain.Kline
	for rows.Next() {
		k, err := scanKline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kline row: %w", err)
		}
		klines = append(klines, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kline rows: %w", err)
	}
	return klines, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanKline(row scanner) (*domain.Kline, error) {
	var k domain.Kline
	var interval string
	var openMs, closeMs int64
	err := row.Scan(&k.Symbol, &interval, &openMs, &closeMs,
		&k.Open, &k.High, &k.Low, &k.Close, &k.Volume,
		&k.QuoteAssetVolume, &k.TradeCount, &k.TakerBuyBaseVolume, &k.TakerBuyQuoteVolume)
	if err != nil {
		return nil, err
	}
	k.Interval = domain.Interval(interval)
	k.OpenTime = time.UnixMilli(openMs).UTC()
	k.CloseTime = time.UnixMilli(closeMs).UTC()
	return &k, nil
}
