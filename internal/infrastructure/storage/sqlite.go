package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
)

// SQLiteStore records fills and position closures for post-hoc reporting.
// Live orders and positions are never written here; they exist only in
// memory and do not survive a restart.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			order_type TEXT NOT NULL,
			quantity REAL NOT NULL,
			fill_price REAL NOT NULL,
			leverage INTEGER NOT NULL,
			fill_time DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);`,
		`CREATE TABLE IF NOT EXISTS position_closures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			quantity REAL NOT NULL,
			avg_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			leverage INTEGER NOT NULL,
			reason TEXT NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_closures_symbol ON position_closures(symbol);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// TradeRepository implementation

func (s *SQLiteStore) SaveFill(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO fills (order_id, symbol, side, order_type, quantity, fill_price, leverage, fill_time)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		order.ID, order.Symbol, string(order.Side), string(order.Kind),
		order.Quantity, order.FillPrice, order.Leverage, order.FillTime)
	return err
}

func (s *SQLiteStore) ListFills(ctx context.Context, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT order_id, symbol, side, order_type, quantity, fill_price, leverage, fill_time
			  FROM fills ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, kind string
		var fillTime time.Time
		if err := rows.Scan(&o.ID, &o.Symbol, &side, &kind, &o.Quantity, &o.FillPrice, &o.Leverage, &fillTime); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		o.Kind = domain.OrderKind(kind)
		o.Status = domain.StatusFilled
		o.FillTime = fillTime
		fills = append(fills, &o)
	}
	return fills, rows.Err()
}

func (s *SQLiteStore) SaveClosure(ctx context.Context, closure *domain.PositionClosure) error {
	query := `INSERT INTO position_closures (symbol, quantity, avg_price, exit_price, realized_pnl, leverage, reason, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		closure.Symbol, closure.Quantity, closure.AvgPrice, closure.ExitPrice,
		closure.RealizedPnL, closure.Leverage, string(closure.Reason), closure.ClosedAt)
	return err
}

func (s *SQLiteStore) ListClosures(ctx context.Context, limit int) ([]*domain.PositionClosure, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, symbol, quantity, avg_price, exit_price, realized_pnl, leverage, reason, closed_at
			  FROM position_closures ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var closures []*domain.PositionClosure
	for rows.Next() {
		var c domain.PositionClosure
		var reason string
		if err := rows.Scan(&c.ID, &c.Symbol, &c.Quantity, &c.AvgPrice, &c.ExitPrice,
			&c.RealizedPnL, &c.Leverage, &reason, &c.ClosedAt); err != nil {
			return nil, err
		}
		c.Reason = domain.CloseReason(reason)
		closures = append(closures, &c)
	}
	return closures, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
