package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"TradingStation/internal/model"
)

// SQLiteStore persists alert state in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLiteStore opens (or creates) the SQLite database and runs migrations.
func OpenSQLiteStore(dbPath string, log *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite alert store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_state (
			ticker            TEXT    NOT NULL,
			timeframe         TEXT    NOT NULL,
			last_signal       TEXT    NOT NULL,
			last_changed_at   INTEGER NOT NULL DEFAULT 0,
			last_evaluated_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (ticker, timeframe)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (s *SQLiteStore) Load(ctx context.Context, key model.InstrumentKey) (model.AlertState, bool, error) {
	var signal string
	var changed, evaluated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_signal, last_changed_at, last_evaluated_at FROM alert_state WHERE ticker = ? AND timeframe = ?`,
		key.Ticker, string(key.Timeframe),
	).Scan(&signal, &changed, &evaluated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlertState{}, false, nil
	}
	if err != nil {
		return model.AlertState{}, false, fmt.Errorf("load alert state %s: %w", key, err)
	}
	return model.AlertState{
		Key:             key,
		LastSignal:      model.ParseSignal(signal),
		LastChangedAt:   fromMillis(changed),
		LastEvaluatedAt: fromMillis(evaluated),
	}, true, nil
}

// Save upserts the state row for state.Key.
func (s *SQLiteStore) Save(ctx context.Context, state model.AlertState) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO alert_state
		(ticker, timeframe, last_signal, last_changed_at, last_evaluated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(ticker, timeframe) DO UPDATE SET
			last_signal = excluded.last_signal,
			last_changed_at = excluded.last_changed_at,
			last_evaluated_at = excluded.last_evaluated_at`,
		state.Key.Ticker, string(state.Key.Timeframe), string(state.LastSignal),
		toMillis(state.LastChangedAt), toMillis(state.LastEvaluatedAt),
	)
	if err != nil {
		return fmt.Errorf("save alert state %s: %w", state.Key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.AlertState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, timeframe, last_signal, last_changed_at, last_evaluated_at
		FROM alert_state ORDER BY ticker, timeframe`)
	if err != nil {
		return nil, fmt.Errorf("list alert state: %w", err)
	}
	defer rows.Close()

	var out []model.AlertState
	for rows.Next() {
		var ticker, tf, signal string
		var changed, evaluated int64
		if err := rows.Scan(&ticker, &tf, &signal, &changed, &evaluated); err != nil {
			return nil, fmt.Errorf("scan alert state: %w", err)
		}
		out = append(out, model.AlertState{
			Key:             model.InstrumentKey{Ticker: ticker, Timeframe: model.Timeframe(tf)},
			LastSignal:      model.ParseSignal(signal),
			LastChangedAt:   fromMillis(changed),
			LastEvaluatedAt: fromMillis(evaluated),
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.log.Info("closing sqlite alert store")
	return s.db.Close()
}
