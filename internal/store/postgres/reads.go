package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/xid"
)

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 32)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return getItem(ctx, s.db, id)
}

func (s *Store) ListRecipe(ctx context.Context, parentItemID string) ([]domain.RecipeItem, error) {
	return listRecipe(ctx, s.db, parentItemID)
}

func (s *Store) ListLots(ctx context.Context, itemID string) ([]domain.InventoryLot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lotColumns+`
		FROM inventory_lots
		WHERE item_id = $1
		ORDER BY acquired_at ASC, seq ASC
	`, itemID)
	if err != nil {
		return nil, err
	}
	return scanLots(rows)
}

type movementRow struct {
	ID        string          `db:"id"`
	Kind      string          `db:"kind"`
	ItemID    string          `db:"item_id"`
	LotID     string          `db:"lot_id"`
	Quantity  decimal.Decimal `db:"quantity"`
	UnitCost  decimal.Decimal `db:"unit_cost"`
	Reference string          `db:"reference"`
	Note      string          `db:"note"`
	CreatedAt time.Time       `db:"created_at"`
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	q := s.builder.
		Select("id", "kind", "item_id", "COALESCE(lot_id, '') AS lot_id", "quantity", "unit_cost",
			"COALESCE(reference, '') AS reference", "COALESCE(note, '') AS note", "created_at").
		From("stock_movements").
		OrderBy("created_at DESC", "seq DESC")
	if filter.ItemID != "" {
		q = q.Where(squirrel.Eq{"item_id": filter.ItemID})
	}
	if filter.Kind != "" {
		q = q.Where(squirrel.Eq{"kind": string(filter.Kind)})
	}
	if filter.Reference != "" {
		q = q.Where(squirrel.Eq{"reference": filter.Reference})
	}
	if !filter.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"created_at": filter.From})
	}
	if !filter.To.IsZero() {
		q = q.Where(squirrel.Lt{"created_at": filter.To})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []movementRow
	if err := sqlscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, err
	}

	moves := make([]domain.StockMovement, 0, len(rows))
	for _, r := range rows {
		moves = append(moves, domain.StockMovement{
			ID:        r.ID,
			Kind:      domain.MovementKind(r.Kind),
			ItemID:    r.ItemID,
			LotID:     r.LotID,
			Quantity:  r.Quantity,
			UnitCost:  r.UnitCost,
			Reference: r.Reference,
			Note:      r.Note,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return moves, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return getSale(ctx, s.db, "id", id)
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	q := s.builder.Select(saleColumns).From("sales").OrderBy("created_at ASC", "id ASC")
	if !from.IsZero() {
		q = q.Where(squirrel.GtOrEq{"created_at": from})
	}
	if !to.IsZero() {
		q = q.Where(squirrel.Lt{"created_at": to})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return querySales(ctx, s.db, query, args...)
}

func (s *Store) ListSessionSales(ctx context.Context, sessionID string) ([]domain.Sale, error) {
	return querySales(ctx, s.db, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
}

// ListPendingOrders returns sales that still have lines short of DONE,
// newest first, with only those lines attached.
func (s *Store) ListRecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) ListPendingOrders(ctx context.Context) ([]domain.PendingOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, COALESCE(s.session_id, ''), s.created_at,
			si.id, si.sale_id, si.item_id, si.qty, si.unit_price, si.line_total, si.status, i.name
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		JOIN items i ON i.id = si.item_id
		WHERE si.status <> 'DONE'
		ORDER BY s.created_at DESC, s.id DESC, si.line_no ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PendingOrder, 0, 8)
	for rows.Next() {
		var (
			order domain.PendingOrder
			line  domain.PendingOrderItem
		)
		if err := rows.Scan(&order.SaleID, &order.SessionID, &order.CreatedAt,
			&line.ID, &line.SaleID, &line.ItemID, &line.Qty, &line.UnitPrice, &line.LineTotal, &line.Status, &line.ItemName); err != nil {
			return nil, err
		}
		if n := len(orders); n > 0 && orders[n-1].SaleID == order.SaleID {
			orders[n-1].Items = append(orders[n-1].Items, line)
			continue
		}
		order.CreatedAt = order.CreatedAt.UTC()
		order.Items = []domain.PendingOrderItem{line}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.CashSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.attachSnapshots(ctx, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) GetActiveSession(ctx context.Context) (*domain.CashSession, error) {
	session, err := activeSession(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if err := s.attachSnapshots(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) attachSnapshots(ctx context.Context, session *domain.CashSession) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, item_id, quantity, type, created_at
		FROM session_inventory_snapshots
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, session.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var snap domain.SessionInventorySnapshot
		if err := rows.Scan(&snap.ID, &snap.SessionID, &snap.ItemID, &snap.Quantity, &snap.Type, &snap.CreatedAt); err != nil {
			return err
		}
		snap.CreatedAt = snap.CreatedAt.UTC()
		session.Snapshots = append(session.Snapshots, snap)
	}
	return rows.Err()
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]domain.CashSession, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		ORDER BY opened_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Email), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.Email, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		supplier.CreatedAt = supplier.CreatedAt.UTC()
		suppliers = append(suppliers, supplier)
	}
	return suppliers, rows.Err()
}

const purchaseColumns = `id, COALESCE(supplier_id, ''), COALESCE(notes, ''), total_cost, created_by, created_at`

func scanPurchase(row rowScanner) (domain.Purchase, error) {
	var purchase domain.Purchase
	err := row.Scan(&purchase.ID, &purchase.SupplierID, &purchase.Notes, &purchase.TotalCost, &purchase.CreatedBy, &purchase.CreatedAt)
	purchase.CreatedAt = purchase.CreatedAt.UTC()
	return purchase, err
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	purchase, err := scanPurchase(s.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	lines, err := s.loadPurchaseItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	purchase.Items = lines[id]
	return &purchase, nil
}

// ListPurchases returns purchases newest first with their lines attached.
func (s *Store) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, purchase)
		ids = append(ids, purchase.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return purchases, nil
	}

	lines, err := s.loadPurchaseItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range purchases {
		purchases[i].Items = lines[purchases[i].ID]
	}
	return purchases, nil
}

func (s *Store) loadPurchaseItems(ctx context.Context, purchaseIDs []string) (map[string][]domain.PurchaseItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_id, item_id, lot_id, quantity, unit_cost, total_cost
		FROM purchase_items
		WHERE purchase_id = ANY($1)
		ORDER BY purchase_id, line_no
	`, purchaseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.PurchaseItem, len(purchaseIDs))
	for rows.Next() {
		var line domain.PurchaseItem
		if err := rows.Scan(&line.ID, &line.PurchaseID, &line.ItemID, &line.LotID, &line.Quantity, &line.UnitCost, &line.TotalCost); err != nil {
			return nil, err
		}
		out[line.PurchaseID] = append(out[line.PurchaseID], line)
	}
	return out, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) error {
	query, args, err := s.builder.Insert("expenses").
		Columns("id", "label", "amount", "paid_via", "created_by", "created_at").
		Values(expense.ID, expense.Label, expense.Amount, expense.PaidVia, expense.CreatedBy, expense.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	if limit < 1 {
		limit = 50
	}
	query, args, err := s.builder.
		Select("id", "label", "amount", "paid_via", "created_by", "created_at").
		From("expenses").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	expenses := make([]domain.Expense, 0, limit)
	if err := sqlscan.Select(ctx, s.db, &expenses, query, args...); err != nil {
		return nil, err
	}
	for i := range expenses {
		expenses[i].CreatedAt = expenses[i].CreatedAt.UTC()
	}
	return expenses, nil
}
