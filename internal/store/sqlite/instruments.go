// Package sqlite stores the watched-instrument configuration. One row per
// (token, exchange, interval) with per-instrument strategy overrides.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signal-enginev1/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS instruments (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_token    TEXT NOT NULL,
	trading_symbol  TEXT NOT NULL,
	exchange        TEXT NOT NULL DEFAULT 'NSE',
	interval        TEXT NOT NULL DEFAULT 'ONE_MINUTE',
	short_span      INTEGER NOT NULL DEFAULT 9,
	long_span       INTEGER NOT NULL DEFAULT 21,
	candle_count    INTEGER NOT NULL DEFAULT 100,
	trailing_window INTEGER NOT NULL DEFAULT 5,
	is_active       INTEGER NOT NULL DEFAULT 1,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(symbol_token, exchange, interval)
);
CREATE INDEX IF NOT EXISTS idx_instruments_active ON instruments(is_active);
`

// InstrumentStore is a SQLite-backed instrument repository.
type InstrumentStore struct {
	db *sql.DB
}

// NewInstrumentStore opens (creating if needed) the database at path and
// applies the schema. WAL mode keeps readers unblocked during writes.
func NewInstrumentStore(path string) (*InstrumentStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &InstrumentStore{db: db}, nil
}

// Create inserts an instrument and returns it with the assigned ID.
func (s *InstrumentStore) Create(ctx context.Context, inst model.Instrument) (model.Instrument, error) {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instruments
			(symbol_token, trading_symbol, exchange, interval,
			 short_span, long_span, candle_count, trailing_window, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.SymbolToken, inst.TradingSymbol, inst.Exchange, inst.Interval,
		inst.ShortSpan, inst.LongSpan, inst.CandleCount, inst.TrailingWindow,
		boolToInt(inst.Active), inst.CreatedAt,
	)
	if err != nil {
		return model.Instrument{}, fmt.Errorf("insert instrument %s: %w", inst.SymbolToken, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Instrument{}, err
	}
	inst.ID = id
	return inst, nil
}

// Update rewrites all mutable fields of the instrument with the given ID.
func (s *InstrumentStore) Update(ctx context.Context, inst model.Instrument) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE instruments SET
			symbol_token = ?, trading_symbol = ?, exchange = ?, interval = ?,
			short_span = ?, long_span = ?, candle_count = ?, trailing_window = ?,
			is_active = ?
		WHERE id = ?`,
		inst.SymbolToken, inst.TradingSymbol, inst.Exchange, inst.Interval,
		inst.ShortSpan, inst.LongSpan, inst.CandleCount, inst.TrailingWindow,
		boolToInt(inst.Active), inst.ID,
	)
	if err != nil {
		return fmt.Errorf("update instrument %d: %w", inst.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the instrument with the given ID.
func (s *InstrumentStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM instruments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete instrument %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Get fetches one instrument by ID. Returns sql.ErrNoRows when absent.
func (s *InstrumentStore) Get(ctx context.Context, id int64) (model.Instrument, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id)
	return scanInstrument(row)
}

// GetByToken fetches one instrument by its (token, exchange, interval) key.
func (s *InstrumentStore) GetByToken(ctx context.Context, token, exchange, interval string) (model.Instrument, error) {
	row := s.db.QueryRowContext(ctx,
		selectCols+` WHERE symbol_token = ? AND exchange = ? AND interval = ?`,
		token, exchange, interval)
	return scanInstrument(row)
}

// List returns all instruments ordered by trading symbol.
func (s *InstrumentStore) List(ctx context.Context) ([]model.Instrument, error) {
	return s.query(ctx, selectCols+` ORDER BY trading_symbol`)
}

// Active returns only instruments enabled for evaluation.
func (s *InstrumentStore) Active(ctx context.Context) ([]model.Instrument, error) {
	return s.query(ctx, selectCols+` WHERE is_active = 1 ORDER BY trading_symbol`)
}

func (s *InstrumentStore) query(ctx context.Context, q string, args ...any) ([]model.Instrument, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// DB exposes the handle for health checks.
func (s *InstrumentStore) DB() *sql.DB { return s.db }

func (s *InstrumentStore) Close() error { return s.db.Close() }

const selectCols = `
	SELECT id, symbol_token, trading_symbol, exchange, interval,
	       short_span, long_span, candle_count, trailing_window, is_active, created_at
	FROM instruments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(r rowScanner) (model.Instrument, error) {
	var inst model.Instrument
	var active int
	err := r.Scan(
		&inst.ID, &inst.SymbolToken, &inst.TradingSymbol, &inst.Exchange, &inst.Interval,
		&inst.ShortSpan, &inst.LongSpan, &inst.CandleCount, &inst.TrailingWindow,
		&active, &inst.CreatedAt,
	)
	if err != nil {
		return model.Instrument{}, err
	}
	inst.Active = active != 0
	return inst, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
