package postgres

import (
	"context"
	"database/sql"
	"errors"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/store"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const itemColumns = `id, name, COALESCE(sku, ''), type, unit, price, low_stock_level, created_at`

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.ID, &item.Name, &item.SKU, &item.Type, &item.Unit, &item.Price, &item.LowStockLevel, &item.CreatedAt)
	item.CreatedAt = item.CreatedAt.UTC()
	return item, err
}

func getItem(ctx context.Context, q querier, id string) (*domain.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func listRecipe(ctx context.Context, q querier, parentItemID string) ([]domain.RecipeItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, parent_item_id, child_item_id, quantity
		FROM recipe_items
		WHERE parent_item_id = $1
		ORDER BY id
	`, parentItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edges := make([]domain.RecipeItem, 0, 4)
	for rows.Next() {
		var edge domain.RecipeItem
		if err := rows.Scan(&edge.ID, &edge.ParentItemID, &edge.ChildItemID, &edge.Quantity); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

const lotColumns = `id, seq, item_id, quantity, unit_cost, acquired_at`

func scanLots(rows *sql.Rows) ([]domain.InventoryLot, error) {
	defer rows.Close()
	lots := make([]domain.InventoryLot, 0, 8)
	for rows.Next() {
		var lot domain.InventoryLot
		if err := rows.Scan(&lot.ID, &lot.Seq, &lot.ItemID, &lot.Quantity, &lot.UnitCost, &lot.AcquiredAt); err != nil {
			return nil, err
		}
		lot.AcquiredAt = lot.AcquiredAt.UTC()
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

const saleColumns = `id, COALESCE(session_id, ''), user_id, COALESCE(idempotency_key, ''), total, cogs, payment_type, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.SessionID, &sale.UserID, &sale.IdempotencyKey, &sale.Total, &sale.COGS, &sale.PaymentType, &sale.CreatedAt)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

const saleItemColumns = `id, sale_id, item_id, qty, unit_price, line_total, status`

func scanSaleItem(row rowScanner) (domain.SaleItem, error) {
	var line domain.SaleItem
	err := row.Scan(&line.ID, &line.SaleID, &line.ItemID, &line.Qty, &line.UnitPrice, &line.LineTotal, &line.Status)
	return line, err
}

func getSale(ctx context.Context, q querier, column string, value string) (*domain.Sale, error) {
	sale, err := scanSale(q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+column+` = $1`, value))
	if err != nil {
		return nil, notFound(err)
	}
	lines, err := loadSaleItems(ctx, q, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = lines[sale.ID]
	return &sale, nil
}

// querySales runs a sales query and attaches each sale's lines.
func querySales(ctx context.Context, q querier, query string, args ...any) ([]domain.Sale, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 16)
	ids := make([]string, 0, 16)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}

	lines, err := loadSaleItems(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = lines[sales[i].ID]
	}
	return sales, nil
}

func loadSaleItems(ctx context.Context, q querier, saleIDs []string) (map[string][]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+saleItemColumns+`
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.SaleItem, len(saleIDs))
	for rows.Next() {
		line, err := scanSaleItem(rows)
		if err != nil {
			return nil, err
		}
		out[line.SaleID] = append(out[line.SaleID], line)
	}
	return out, rows.Err()
}

const sessionColumns = `id, opened_at, opened_by, closed_at, COALESCE(closed_by, ''), opening_float, closing_float, COALESCE(notes, '')`

func scanSession(row rowScanner) (domain.CashSession, error) {
	var session domain.CashSession
	err := row.Scan(&session.ID, &session.OpenedAt, &session.OpenedBy, &session.ClosedAt, &session.ClosedBy,
		&session.OpeningFloat, &session.ClosingFloat, &session.Notes)
	session.OpenedAt = session.OpenedAt.UTC()
	if session.ClosedAt != nil {
		closedAt := session.ClosedAt.UTC()
		session.ClosedAt = &closedAt
	}
	return session, err
}

func activeSession(ctx context.Context, q querier) (*domain.CashSession, error) {
	session, err := scanSession(q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE closed_at IS NULL`))
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

func getSupplier(ctx context.Context, q querier, id string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := q.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.Email, &supplier.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	supplier.CreatedAt = supplier.CreatedAt.UTC()
	return &supplier, nil
}

// affectedOne maps an UPDATE that touched no rows to ErrNotFound.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
