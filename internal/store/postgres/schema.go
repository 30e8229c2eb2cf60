package postgres

import (
	"context"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT,
		type TEXT NOT NULL CHECK (type IN ('RAW', 'MANUFACTURED', 'SELLABLE')),
		unit TEXT NOT NULL,
		price NUMERIC CHECK (price >= 0),
		low_stock_level NUMERIC CHECK (low_stock_level >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS items_name_key ON items (lower(name))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS items_sku_key ON items (sku) WHERE sku IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS recipe_items (
		id TEXT PRIMARY KEY,
		parent_item_id TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
		child_item_id TEXT NOT NULL REFERENCES items (id),
		quantity NUMERIC NOT NULL CHECK (quantity > 0),
		UNIQUE (parent_item_id, child_item_id)
	)`,

	`CREATE TABLE IF NOT EXISTS inventory_lots (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL NOT NULL,
		item_id TEXT NOT NULL REFERENCES items (id),
		quantity NUMERIC NOT NULL CHECK (quantity >= 0),
		unit_cost NUMERIC NOT NULL CHECK (unit_cost >= 0),
		acquired_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_lots_fifo_idx ON inventory_lots (item_id, acquired_at, seq)`,

	`CREATE TABLE IF NOT EXISTS stock_movements (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL NOT NULL,
		kind TEXT NOT NULL,
		item_id TEXT NOT NULL REFERENCES items (id),
		lot_id TEXT REFERENCES inventory_lots (id),
		quantity NUMERIC NOT NULL,
		unit_cost NUMERIC NOT NULL,
		reference TEXT,
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS stock_movements_item_idx ON stock_movements (item_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS stock_movements_reference_idx ON stock_movements (reference)`,

	`CREATE TABLE IF NOT EXISTS cash_sessions (
		id TEXT PRIMARY KEY,
		opened_at TIMESTAMPTZ NOT NULL,
		opened_by TEXT NOT NULL,
		closed_at TIMESTAMPTZ,
		closed_by TEXT,
		opening_float NUMERIC NOT NULL CHECK (opening_float >= 0),
		closing_float NUMERIC CHECK (closing_float >= 0),
		notes TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS cash_sessions_single_open_key ON cash_sessions ((closed_at IS NULL)) WHERE closed_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS session_inventory_snapshots (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES cash_sessions (id),
		item_id TEXT NOT NULL REFERENCES items (id),
		quantity NUMERIC NOT NULL CHECK (quantity >= 0),
		type TEXT NOT NULL CHECK (type IN ('OPENING', 'CLOSING')),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS session_inventory_snapshots_session_idx ON session_inventory_snapshots (session_id)`,

	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		session_id TEXT REFERENCES cash_sessions (id),
		user_id TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		total NUMERIC NOT NULL,
		cogs NUMERIC NOT NULL,
		payment_type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at)`,
	`CREATE INDEX IF NOT EXISTS sales_session_idx ON sales (session_id)`,

	`CREATE TABLE IF NOT EXISTS sale_items (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales (id) ON DELETE CASCADE,
		line_no INT NOT NULL,
		item_id TEXT NOT NULL REFERENCES items (id),
		qty INT NOT NULL CHECK (qty > 0),
		unit_price NUMERIC NOT NULL,
		line_total NUMERIC NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'RECEIVED', 'PREPPING', 'DONE'))
	)`,
	`CREATE INDEX IF NOT EXISTS sale_items_open_idx ON sale_items (sale_id) WHERE status <> 'DONE'`,

	`CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS suppliers_name_key ON suppliers (lower(name))`,

	`CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		supplier_id TEXT REFERENCES suppliers (id),
		notes TEXT,
		total_cost NUMERIC NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id TEXT PRIMARY KEY,
		purchase_id TEXT NOT NULL REFERENCES purchases (id) ON DELETE CASCADE,
		line_no INT NOT NULL,
		item_id TEXT NOT NULL REFERENCES items (id),
		lot_id TEXT NOT NULL REFERENCES inventory_lots (id),
		quantity NUMERIC NOT NULL,
		unit_cost NUMERIC NOT NULL,
		total_cost NUMERIC NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		amount NUMERIC NOT NULL CHECK (amount > 0),
		paid_via TEXT NOT NULL CHECK (paid_via IN ('CASH', 'CARD', 'OTHER')),
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS expenses_created_at_idx ON expenses (created_at)`,

	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
