package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/store"
)

type pgTx struct {
	q       querier
	builder squirrel.StatementBuilderType
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return getItem(ctx, t.q, id)
}

func (t *pgTx) ListRecipe(ctx context.Context, parentItemID string) ([]domain.RecipeItem, error) {
	return listRecipe(ctx, t.q, parentItemID)
}

func (t *pgTx) InsertItem(ctx context.Context, item domain.Item) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO items (id, name, sku, type, unit, price, low_stock_level, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, item.ID, item.Name, nullIfEmpty(item.SKU), item.Type, item.Unit, item.Price, item.LowStockLevel, item.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("item %q: %w", item.Name, store.ErrDuplicate)
	}
	return err
}

func (t *pgTx) UpdateItem(ctx context.Context, item domain.Item) error {
	query, args, err := t.builder.Update("items").
		Set("name", item.Name).
		Set("sku", nullIfEmpty(item.SKU)).
		Set("unit", item.Unit).
		Set("price", item.Price).
		Set("low_stock_level", item.LowStockLevel).
		Where(squirrel.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return err
	}
	err = affectedOne(t.q.ExecContext(ctx, query, args...))
	if isUniqueViolation(err) {
		return fmt.Errorf("item %q: %w", item.Name, store.ErrDuplicate)
	}
	return err
}

func (t *pgTx) ReplaceRecipe(ctx context.Context, parentItemID string, edges []domain.RecipeItem) error {
	if _, err := getItem(ctx, t.q, parentItemID); err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM recipe_items WHERE parent_item_id = $1`, parentItemID); err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}

	insert := t.builder.Insert("recipe_items").Columns("id", "parent_item_id", "child_item_id", "quantity")
	for _, edge := range edges {
		insert = insert.Values(edge.ID, parentItemID, edge.ChildItemID, edge.Quantity)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, query, args...)
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

// LockLots takes the item row lock first so that writers touching the same
// item queue behind each other, then locks its lots in FIFO order.
func (t *pgTx) LockLots(ctx context.Context, itemID string) ([]domain.InventoryLot, error) {
	if _, err := t.q.ExecContext(ctx, `SELECT 1 FROM items WHERE id = $1 FOR UPDATE`, itemID); err != nil {
		return nil, err
	}
	rows, err := t.q.QueryContext(ctx, `
		SELECT `+lotColumns+`
		FROM inventory_lots
		WHERE item_id = $1
		ORDER BY acquired_at ASC, seq ASC
		FOR UPDATE
	`, itemID)
	if err != nil {
		return nil, err
	}
	return scanLots(rows)
}

func (t *pgTx) SetLotQuantity(ctx context.Context, lotID string, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return store.ErrInvalidTransaction
	}
	return affectedOne(t.q.ExecContext(ctx, `UPDATE inventory_lots SET quantity = $2 WHERE id = $1`, lotID, qty))
}

func (t *pgTx) InsertLot(ctx context.Context, lot domain.InventoryLot) (*domain.InventoryLot, error) {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO inventory_lots (id, item_id, quantity, unit_cost, acquired_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING seq
	`, lot.ID, lot.ItemID, lot.Quantity, lot.UnitCost, lot.AcquiredAt).Scan(&lot.Seq)
	switch {
	case isForeignKeyViolation(err):
		return nil, store.ErrNotFound
	case isUniqueViolation(err):
		return nil, store.ErrDuplicate
	case err != nil:
		return nil, err
	}
	return &lot, nil
}

func (t *pgTx) InsertMovement(ctx context.Context, m domain.StockMovement) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_movements (id, kind, item_id, lot_id, quantity, unit_cost, reference, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, m.ID, m.Kind, m.ItemID, nullIfEmpty(m.LotID), m.Quantity, m.UnitCost, nullIfEmpty(m.Reference), nullIfEmpty(m.Note), m.CreatedAt)
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (t *pgTx) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return getSale(ctx, t.q, "idempotency_key", key)
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sales (id, session_id, user_id, idempotency_key, total, cogs, payment_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, nullIfEmpty(sale.SessionID), sale.UserID, nullIfEmpty(sale.IdempotencyKey),
		sale.Total, sale.COGS, sale.PaymentType, sale.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("sale %s: %w", sale.ID, store.ErrDuplicate)
	case isForeignKeyViolation(err):
		return fmt.Errorf("session %s: %w", sale.SessionID, store.ErrNotFound)
	case err != nil:
		return err
	}

	for i, line := range sale.Items {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, line_no, item_id, qty, unit_price, line_total, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, line.ID, sale.ID, i+1, line.ItemID, line.Qty, line.UnitPrice, line.LineTotal, line.Status); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) GetSaleItemForUpdate(ctx context.Context, id string) (*domain.SaleItem, error) {
	line, err := scanSaleItem(t.q.QueryRowContext(ctx, `SELECT `+saleItemColumns+` FROM sale_items WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &line, nil
}

func (t *pgTx) SetSaleItemStatus(ctx context.Context, id string, status domain.FulfillmentStatus) error {
	return affectedOne(t.q.ExecContext(ctx, `UPDATE sale_items SET status = $2 WHERE id = $1`, id, status))
}

func (t *pgTx) GetActiveSession(ctx context.Context) (*domain.CashSession, error) {
	return activeSession(ctx, t.q)
}

func (t *pgTx) GetSessionForUpdate(ctx context.Context, id string) (*domain.CashSession, error) {
	session, err := scanSession(t.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

func (t *pgTx) InsertSession(ctx context.Context, session domain.CashSession) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO cash_sessions (id, opened_at, opened_by, opening_float, notes)
		VALUES ($1,$2,$3,$4,$5)
	`, session.ID, session.OpenedAt, session.OpenedBy, session.OpeningFloat, nullIfEmpty(session.Notes))
	if isUniqueViolation(err) {
		return store.ErrSessionAlreadyOpen
	}
	return err
}

func (t *pgTx) CloseSession(ctx context.Context, id string, closingFloat decimal.Decimal, notes string, closedBy string, closedAt time.Time) (*domain.CashSession, error) {
	session, err := scanSession(t.q.QueryRowContext(ctx, `
		UPDATE cash_sessions
		SET closed_at = $2, closed_by = $3, closing_float = $4, notes = COALESCE(NULLIF($5::text, ''), notes)
		WHERE id = $1 AND closed_at IS NULL
		RETURNING `+sessionColumns, id, closedAt, closedBy, closingFloat, notes))
	if err == nil {
		return &session, nil
	}
	if !isNoRows(err) {
		return nil, err
	}
	if _, err := t.GetSessionForUpdate(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrSessionClosed
}

func (t *pgTx) InsertSnapshot(ctx context.Context, snapshot domain.SessionInventorySnapshot) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO session_inventory_snapshots (id, session_id, item_id, quantity, type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, snapshot.ID, snapshot.SessionID, snapshot.ItemID, snapshot.Quantity, snapshot.Type, snapshot.CreatedAt)
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (t *pgTx) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	return getSupplier(ctx, t.q, id)
}

func (t *pgTx) InsertPurchase(ctx context.Context, purchase domain.Purchase) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO purchases (id, supplier_id, notes, total_cost, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, purchase.ID, nullIfEmpty(purchase.SupplierID), nullIfEmpty(purchase.Notes), purchase.TotalCost, purchase.CreatedBy, purchase.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return store.ErrDuplicate
	case isForeignKeyViolation(err):
		return store.ErrNotFound
	case err != nil:
		return err
	}

	for i, line := range purchase.Items {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO purchase_items (id, purchase_id, line_no, item_id, lot_id, quantity, unit_cost, total_cost)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, line.ID, purchase.ID, i+1, line.ItemID, line.LotID, line.Quantity, line.UnitCost, line.TotalCost); err != nil {
			return err
		}
	}
	return nil
}
