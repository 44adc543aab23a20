// Package database persists the audit trail a completed (or in-flight)
// backtest run leaves behind: filled/canceled orders, closed positions,
// and the transactions that link them. The virtual trading system
// itself never reads this back — it is the run-history record a control
// API lists and replays, grounded on the teacher's migrate+sqlite3 setup.
package database

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/riverbt/nodeflow/pkg/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a migrated sqlite connection holding the run-history tables.
type DB struct {
	conn *sql.DB
}

// New opens dbPath and brings it up to the latest migration.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_fk=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	driver, err := sqlite3.WithInstance(db.conn, &sqlite3.Config{})
	if err != nil {
		return err
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection, for callers that need raw SQL.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// SaveRun records a strategy run's identity and graph document, upserting
// on strategy_id so re-running the same strategy updates its row in place.
func (db *DB) SaveRun(strategyID, name string, graph []byte, startedAt time.Time) error {
	query := `
		INSERT INTO runs (strategy_id, name, graph, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(strategy_id) DO UPDATE SET
			name = excluded.name,
			graph = excluded.graph,
			started_at = excluded.started_at,
			finished_at = NULL
	`
	_, err := db.conn.Exec(query, strategyID, name, graph, startedAt)
	return err
}

// FinishRun stamps a run's completion time.
func (db *DB) FinishRun(strategyID string, finishedAt time.Time) error {
	_, err := db.conn.Exec(`UPDATE runs SET finished_at = ? WHERE strategy_id = ?`, finishedAt, strategyID)
	return err
}

// SaveOrder upserts a terminal (Filled/Canceled/Expired/Rejected) virtual
// order into history_orders. Invariant: once terminal, an order's row is
// never updated again by the caller, so this is effectively insert-only,
// but the upsert guards against a duplicate delivery.
func (db *DB) SaveOrder(strategyID string, o *model.VirtualOrder) error {
	query := `
		INSERT INTO history_orders (
			order_id, strategy_id, node_id, node_name, symbol, exchange,
			side, type, status, quantity, open_price, tp, sl, position_id,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := db.conn.Exec(query,
		o.OrderID,
		strategyID,
		o.NodeID,
		o.NodeName,
		o.Symbol,
		o.Exchange,
		string(o.Side),
		string(o.Type),
		string(o.Status),
		o.Quantity,
		o.OpenPrice,
		o.TP,
		o.SL,
		o.PositionID,
		o.CreatedAt,
		o.UpdatedAt,
	)
	return err
}

// SavePosition upserts a closed position into history_positions.
func (db *DB) SavePosition(strategyID string, p *model.VirtualPosition) error {
	query := `
		INSERT INTO history_positions (
			position_id, strategy_id, symbol, exchange, side, quantity,
			entry_price, realized_pnl, leverage, margin, created_at, closed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id) DO UPDATE SET
			realized_pnl = excluded.realized_pnl,
			closed_at = excluded.closed_at
	`
	_, err := db.conn.Exec(query,
		p.PositionID,
		strategyID,
		p.Symbol,
		p.Exchange,
		string(p.Side),
		p.Quantity,
		p.EntryPrice,
		p.RealizedPnL,
		p.Leverage,
		p.Margin,
		p.CreatedAt,
		p.ClosedAt,
	)
	return err
}

// SaveTransaction inserts an immutable fill record.
func (db *DB) SaveTransaction(strategyID string, t *model.VirtualTransaction) error {
	query := `
		INSERT INTO transactions (
			transaction_id, strategy_id, order_id, position_id, symbol,
			exchange, side, quantity, price, realized_pnl, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO NOTHING
	`
	_, err := db.conn.Exec(query,
		t.TransactionID,
		strategyID,
		t.OrderID,
		t.PositionID,
		t.Symbol,
		t.Exchange,
		string(t.Side),
		t.Quantity,
		t.Price,
		t.RealizedPnL,
		t.CreatedAt,
	)
	return err
}

// HistoryPositions returns every closed position recorded for a run,
// most recently closed first.
func (db *DB) HistoryPositions(strategyID string) ([]*model.VirtualPosition, error) {
	query := `
		SELECT position_id, symbol, exchange, side, quantity, entry_price,
			realized_pnl, leverage, margin, created_at, closed_at
		FROM history_positions
		WHERE strategy_id = ?
		ORDER BY closed_at DESC
	`
	rows, err := db.conn.Query(query, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.VirtualPosition
	for rows.Next() {
		p := &model.VirtualPosition{}
		var side string
		if err := rows.Scan(
			&p.PositionID, &p.Symbol, &p.Exchange, &side, &p.Quantity,
			&p.EntryPrice, &p.RealizedPnL, &p.Leverage, &p.Margin,
			&p.CreatedAt, &p.ClosedAt,
		); err != nil {
			return nil, err
		}
		p.Side = model.OrderSide(side)
		out = append(out, p)
	}
	return out, rows.Err()
}

// HistoryOrders returns every terminal order recorded for a run, most
// recently updated first.
func (db *DB) HistoryOrders(strategyID string) ([]*model.VirtualOrder, error) {
	query := `
		SELECT order_id, node_id, node_name, symbol, exchange, side, type,
			status, quantity, open_price, tp, sl, position_id, created_at, updated_at
		FROM history_orders
		WHERE strategy_id = ?
		ORDER BY updated_at DESC
	`
	rows, err := db.conn.Query(query, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.VirtualOrder
	for rows.Next() {
		o := &model.VirtualOrder{StrategyID: strategyID}
		var side, typ, status string
		if err := rows.Scan(
			&o.OrderID, &o.NodeID, &o.NodeName, &o.Symbol, &o.Exchange,
			&side, &typ, &status, &o.Quantity, &o.OpenPrice, &o.TP, &o.SL,
			&o.PositionID, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		o.Side = model.OrderSide(side)
		o.Type = model.OrderType(typ)
		o.Status = model.OrderStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}
