package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/store"
)

type memTx struct {
	st *state
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) GetItem(_ context.Context, id string) (*domain.Item, error) {
	item, ok := t.st.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (t *memTx) ListRecipe(_ context.Context, parentItemID string) ([]domain.RecipeItem, error) {
	return slices.Clone(t.st.recipes[parentItemID]), nil
}

func (t *memTx) InsertItem(_ context.Context, item domain.Item) error {
	if _, exists := t.st.items[item.ID]; exists {
		return store.ErrDuplicate
	}
	if _, exists := t.st.itemIDsByName[nameKey(item.Name)]; exists {
		return store.ErrDuplicate
	}
	sku := strings.ToUpper(strings.TrimSpace(item.SKU))
	if sku != "" {
		if _, exists := t.st.itemIDsBySKU[sku]; exists {
			return store.ErrDuplicate
		}
		t.st.itemIDsBySKU[sku] = item.ID
	}
	t.st.items[item.ID] = item
	t.st.itemIDsByName[nameKey(item.Name)] = item.ID
	return nil
}

// UpdateItem rewrites catalog fields and keeps the name and SKU indexes unique.
func (t *memTx) UpdateItem(_ context.Context, item domain.Item) error {
	current, ok := t.st.items[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	if owner, exists := t.st.itemIDsByName[nameKey(item.Name)]; exists && owner != item.ID {
		return store.ErrDuplicate
	}
	oldSKU := strings.ToUpper(strings.TrimSpace(current.SKU))
	sku := strings.ToUpper(strings.TrimSpace(item.SKU))
	if sku != "" {
		if owner, exists := t.st.itemIDsBySKU[sku]; exists && owner != item.ID {
			return store.ErrDuplicate
		}
	}

	delete(t.st.itemIDsByName, nameKey(current.Name))
	if oldSKU != "" {
		delete(t.st.itemIDsBySKU, oldSKU)
	}
	t.st.itemIDsByName[nameKey(item.Name)] = item.ID
	if sku != "" {
		t.st.itemIDsBySKU[sku] = item.ID
	}
	item.Type = current.Type
	item.CreatedAt = current.CreatedAt
	t.st.items[item.ID] = item
	return nil
}

func (t *memTx) ReplaceRecipe(_ context.Context, parentItemID string, edges []domain.RecipeItem) error {
	if _, ok := t.st.items[parentItemID]; !ok {
		return store.ErrNotFound
	}
	for _, edge := range edges {
		if _, ok := t.st.items[edge.ChildItemID]; !ok {
			return store.ErrNotFound
		}
	}
	if len(edges) == 0 {
		delete(t.st.recipes, parentItemID)
		return nil
	}
	t.st.recipes[parentItemID] = slices.Clone(edges)
	return nil
}

// LockLots needs no per-item lock here: the whole store is held by WithinTx.
func (t *memTx) LockLots(_ context.Context, itemID string) ([]domain.InventoryLot, error) {
	lots := slices.Clone(t.st.lots[itemID])
	slices.SortStableFunc(lots, compareLotFIFO)
	return lots, nil
}

func (t *memTx) SetLotQuantity(_ context.Context, lotID string, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return store.ErrInvalidTransaction
	}
	itemID, ok := t.st.lotItem[lotID]
	if !ok {
		return store.ErrNotFound
	}
	lots := t.st.lots[itemID]
	for i := range lots {
		if lots[i].ID == lotID {
			lots[i].Quantity = qty
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *memTx) InsertLot(_ context.Context, lot domain.InventoryLot) (*domain.InventoryLot, error) {
	if _, ok := t.st.items[lot.ItemID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, exists := t.st.lotItem[lot.ID]; exists {
		return nil, store.ErrDuplicate
	}
	t.st.lotSeq++
	lot.Seq = t.st.lotSeq
	t.st.lots[lot.ItemID] = append(t.st.lots[lot.ItemID], lot)
	t.st.lotItem[lot.ID] = lot.ItemID
	return &lot, nil
}

func (t *memTx) InsertMovement(_ context.Context, movement domain.StockMovement) error {
	if _, ok := t.st.items[movement.ItemID]; !ok {
		return store.ErrNotFound
	}
	t.st.movements = append(t.st.movements, movement)
	return nil
}

func (t *memTx) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	saleID, ok := t.st.saleIDsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale := cloneSale(t.st.sales[saleID])
	return &sale, nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.st.sales[sale.ID]; exists {
		return store.ErrDuplicate
	}
	if sale.IdempotencyKey != "" {
		if _, exists := t.st.saleIDsByIdem[sale.IdempotencyKey]; exists {
			return store.ErrDuplicate
		}
		t.st.saleIDsByIdem[sale.IdempotencyKey] = sale.ID
	}
	t.st.sales[sale.ID] = cloneSale(sale)
	t.st.saleOrder = append(t.st.saleOrder, sale.ID)
	for _, line := range sale.Items {
		t.st.saleItemSale[line.ID] = sale.ID
	}
	return nil
}

func (t *memTx) GetSaleItemForUpdate(_ context.Context, id string) (*domain.SaleItem, error) {
	saleID, ok := t.st.saleItemSale[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, line := range t.st.sales[saleID].Items {
		if line.ID == id {
			return &line, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) SetSaleItemStatus(_ context.Context, id string, status domain.FulfillmentStatus) error {
	saleID, ok := t.st.saleItemSale[id]
	if !ok {
		return store.ErrNotFound
	}
	sale := t.st.sales[saleID]
	for i := range sale.Items {
		if sale.Items[i].ID == id {
			sale.Items[i].Status = status
			t.st.sales[saleID] = sale
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *memTx) GetActiveSession(_ context.Context) (*domain.CashSession, error) {
	if t.st.activeSession == "" {
		return nil, store.ErrNotFound
	}
	session := cloneSession(t.st.sessions[t.st.activeSession])
	return &session, nil
}

func (t *memTx) GetSessionForUpdate(_ context.Context, id string) (*domain.CashSession, error) {
	session, ok := t.st.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	session = cloneSession(session)
	return &session, nil
}

func (t *memTx) InsertSession(_ context.Context, session domain.CashSession) error {
	if t.st.activeSession != "" {
		return store.ErrSessionAlreadyOpen
	}
	if _, exists := t.st.sessions[session.ID]; exists {
		return store.ErrDuplicate
	}
	t.st.sessions[session.ID] = cloneSession(session)
	t.st.sessionOrder = append(t.st.sessionOrder, session.ID)
	t.st.activeSession = session.ID
	return nil
}

func (t *memTx) CloseSession(_ context.Context, id string, closingFloat decimal.Decimal, notes string, closedBy string, closedAt time.Time) (*domain.CashSession, error) {
	session, ok := t.st.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !session.Open() {
		return nil, store.ErrSessionClosed
	}
	session.ClosedAt = &closedAt
	session.ClosedBy = closedBy
	session.ClosingFloat = &closingFloat
	if notes != "" {
		session.Notes = notes
	}
	t.st.sessions[id] = session
	if t.st.activeSession == id {
		t.st.activeSession = ""
	}
	closed := cloneSession(session)
	return &closed, nil
}

func (t *memTx) InsertSnapshot(_ context.Context, snapshot domain.SessionInventorySnapshot) error {
	if _, ok := t.st.sessions[snapshot.SessionID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := t.st.items[snapshot.ItemID]; !ok {
		return store.ErrNotFound
	}
	t.st.snapshots[snapshot.SessionID] = append(t.st.snapshots[snapshot.SessionID], snapshot)
	return nil
}

func (t *memTx) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	supplier, ok := t.st.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &supplier, nil
}

func (t *memTx) InsertPurchase(_ context.Context, purchase domain.Purchase) error {
	if _, exists := t.st.purchases[purchase.ID]; exists {
		return store.ErrDuplicate
	}
	t.st.purchases[purchase.ID] = clonePurchase(purchase)
	t.st.purchaseOrder = append(t.st.purchaseOrder, purchase.ID)
	return nil
}
