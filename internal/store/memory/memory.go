package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/xid"
)

// Store keeps the ledger in process memory. A transaction holds the write
// lock for its whole duration and works on a cloned state, so concurrent
// writers are serialized and a failed closure leaves nothing behind.
type Store struct {
	mu    sync.RWMutex
	st    *state
	users map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		st:    newState(),
		users: make(map[string]domain.UserAccount),
	}
}

// WithinTx must not be re-entered from fn: the read methods on Store take the
// same lock.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(ctx, &memTx{st: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.st.items))
	for _, item := range s.st.items {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return strings.Compare(a.Name, b.Name)
	})
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.st.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListRecipe(_ context.Context, parentItemID string) ([]domain.RecipeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.st.recipes[parentItemID]), nil
}

func (s *Store) ListLots(_ context.Context, itemID string) ([]domain.InventoryLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.st.items[itemID]; !ok {
		return nil, store.ErrNotFound
	}
	lots := slices.Clone(s.st.lots[itemID])
	slices.SortStableFunc(lots, compareLotFIFO)
	return lots, nil
}

// ListMovements returns matching movements newest first.
func (s *Store) ListMovements(_ context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockMovement, 0, 64)
	for i := len(s.st.movements) - 1; i >= 0; i-- {
		m := s.st.movements[i]
		if filter.ItemID != "" && m.ItemID != filter.ItemID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		if filter.Reference != "" && m.Reference != filter.Reference {
			continue
		}
		if !inRange(m.CreatedAt, filter.From, filter.To) {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.st.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale = cloneSale(sale)
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterSales(func(sale domain.Sale) bool {
		return inRange(sale.CreatedAt, from, to)
	}), nil
}

func (s *Store) ListSessionSales(_ context.Context, sessionID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterSales(func(sale domain.Sale) bool {
		return sale.SessionID == sessionID
	}), nil
}

func (s *Store) ListRecentSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, max(limit, 0))
	for i := len(s.st.saleOrder) - 1; i >= 0; i-- {
		sale := s.st.sales[s.st.saleOrder[i]]
		sale.Items = nil
		out = append(out, sale)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) filterSales(keep func(domain.Sale) bool) []domain.Sale {
	out := make([]domain.Sale, 0, 16)
	for _, id := range s.st.saleOrder {
		sale := s.st.sales[id]
		if keep(sale) {
			out = append(out, cloneSale(sale))
		}
	}
	return out
}

func (s *Store) ListPendingOrders(_ context.Context) ([]domain.PendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.PendingOrder, 0, 8)
	for i := len(s.st.saleOrder) - 1; i >= 0; i-- {
		sale := s.st.sales[s.st.saleOrder[i]]
		order := domain.PendingOrder{SaleID: sale.ID, SessionID: sale.SessionID, CreatedAt: sale.CreatedAt}
		for _, line := range sale.Items {
			if line.Status == domain.StatusDone {
				continue
			}
			order.Items = append(order.Items, domain.PendingOrderItem{
				SaleItem: line,
				ItemName: s.st.items[line.ItemID].Name,
			})
		}
		if len(order.Items) > 0 {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (s *Store) GetSession(_ context.Context, id string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.st.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	session = cloneSession(session)
	session.Snapshots = slices.Clone(s.st.snapshots[id])
	return &session, nil
}

func (s *Store) GetActiveSession(ctx context.Context) (*domain.CashSession, error) {
	s.mu.RLock()
	active := s.st.activeSession
	s.mu.RUnlock()

	if active == "" {
		return nil, store.ErrNotFound
	}
	return s.GetSession(ctx, active)
}

func (s *Store) ListSessions(_ context.Context, limit int) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CashSession, 0, len(s.st.sessionOrder))
	for i := len(s.st.sessionOrder) - 1; i >= 0; i-- {
		out = append(out, cloneSession(s.st.sessions[s.st.sessionOrder[i]]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CurrentStock(_ context.Context) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make([]domain.StockLevel, 0, len(s.st.items))
	for _, item := range s.st.items {
		total := decimal.Zero
		for _, lot := range s.st.lots[item.ID] {
			total = total.Add(lot.Quantity)
		}
		levels = append(levels, domain.StockLevel{
			ItemID:        item.ID,
			ItemName:      item.Name,
			TotalQuantity: total,
			Unit:          item.Unit,
			LowStockLevel: item.LowStockLevel,
		})
	}
	slices.SortFunc(levels, func(a, b domain.StockLevel) int {
		return strings.Compare(a.ItemName, b.ItemName)
	})
	return levels, nil
}

func (s *Store) SalesSummary(_ context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revenue, cogs, orders := decimal.Zero, decimal.Zero, 0
	for _, sale := range s.st.sales {
		if !inRange(sale.CreatedAt, from, to) {
			continue
		}
		revenue = revenue.Add(sale.Total)
		cogs = cogs.Add(sale.COGS)
		orders++
	}
	return domain.NewSalesSummary(from, to, revenue, cogs, orders), nil
}

// TopProducts aggregates sale lines per item and orders them by revenue,
// highest first, then by name.
func (s *Store) TopProducts(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byItem := make(map[string]*domain.TopProduct)
	for _, id := range s.st.saleOrder {
		sale := s.st.sales[id]
		if !inRange(sale.CreatedAt, from, to) {
			continue
		}
		for _, line := range sale.Items {
			row, ok := byItem[line.ItemID]
			if !ok {
				item := s.st.items[line.ItemID]
				row = &domain.TopProduct{ItemID: item.ID, ItemName: item.Name, SKU: item.SKU, TotalRevenue: decimal.Zero}
				byItem[line.ItemID] = row
			}
			row.TotalQty += line.Qty
			row.TotalRevenue = row.TotalRevenue.Add(line.LineTotal)
		}
	}

	out := make([]domain.TopProduct, 0, len(byItem))
	for _, row := range byItem {
		out = append(out, *row)
	}
	slices.SortFunc(out, func(a, b domain.TopProduct) int {
		if c := b.TotalRevenue.Cmp(a.TotalRevenue); c != 0 {
			return c
		}
		return strings.Compare(a.ItemName, b.ItemName)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.st.suppliers {
		if nameKey(existing.Name) == nameKey(supplier.Name) {
			return nil, store.ErrDuplicate
		}
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.st.suppliers[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.st.suppliers))
	for _, supplier := range s.st.suppliers {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.st.purchases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	purchase = clonePurchase(purchase)
	return &purchase, nil
}

func (s *Store) ListPurchases(_ context.Context, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Purchase, 0, len(s.st.purchaseOrder))
	for i := len(s.st.purchaseOrder) - 1; i >= 0; i-- {
		out = append(out, clonePurchase(s.st.purchases[s.st.purchaseOrder[i]]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.expenses {
		if existing.ID == expense.ID {
			return store.ErrDuplicate
		}
	}
	s.st.expenses = append(s.st.expenses, expense)
	return nil
}

// ListExpenses returns expenses newest first.
func (s *Store) ListExpenses(_ context.Context, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0, len(s.st.expenses))
	for i := len(s.st.expenses) - 1; i >= 0; i-- {
		out = append(out, s.st.expenses[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.users[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}
