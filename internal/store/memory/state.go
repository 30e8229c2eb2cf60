package memory

import (
	"maps"
	"slices"
	"strings"
	"time"

	"pizzatruck/backend/internal/domain"
)

// state is everything a transaction may change. WithinTx works on a clone and
// swaps it in only when the closure succeeds.
type state struct {
	items         map[string]domain.Item
	itemIDsByName map[string]string
	itemIDsBySKU  map[string]string
	recipes       map[string][]domain.RecipeItem
	lots          map[string][]domain.InventoryLot
	lotItem       map[string]string
	lotSeq        int64
	movements     []domain.StockMovement
	sales         map[string]domain.Sale
	saleOrder     []string
	saleIDsByIdem map[string]string
	saleItemSale  map[string]string
	sessions      map[string]domain.CashSession
	sessionOrder  []string
	activeSession string
	snapshots     map[string][]domain.SessionInventorySnapshot
	suppliers     map[string]domain.Supplier
	purchases     map[string]domain.Purchase
	purchaseOrder []string
	expenses      []domain.Expense
}

func newState() *state {
	return &state{
		items:         make(map[string]domain.Item),
		itemIDsByName: make(map[string]string),
		itemIDsBySKU:  make(map[string]string),
		recipes:       make(map[string][]domain.RecipeItem),
		lots:          make(map[string][]domain.InventoryLot),
		lotItem:       make(map[string]string),
		sales:         make(map[string]domain.Sale),
		saleIDsByIdem: make(map[string]string),
		saleItemSale:  make(map[string]string),
		sessions:      make(map[string]domain.CashSession),
		snapshots:     make(map[string][]domain.SessionInventorySnapshot),
		suppliers:     make(map[string]domain.Supplier),
		purchases:     make(map[string]domain.Purchase),
	}
}

func (st *state) clone() *state {
	dup := &state{
		items:         maps.Clone(st.items),
		itemIDsByName: maps.Clone(st.itemIDsByName),
		itemIDsBySKU:  maps.Clone(st.itemIDsBySKU),
		recipes:       make(map[string][]domain.RecipeItem, len(st.recipes)),
		lots:          make(map[string][]domain.InventoryLot, len(st.lots)),
		lotItem:       maps.Clone(st.lotItem),
		lotSeq:        st.lotSeq,
		movements:     slices.Clone(st.movements),
		sales:         make(map[string]domain.Sale, len(st.sales)),
		saleOrder:     slices.Clone(st.saleOrder),
		saleIDsByIdem: maps.Clone(st.saleIDsByIdem),
		saleItemSale:  maps.Clone(st.saleItemSale),
		sessions:      maps.Clone(st.sessions),
		sessionOrder:  slices.Clone(st.sessionOrder),
		activeSession: st.activeSession,
		snapshots:     make(map[string][]domain.SessionInventorySnapshot, len(st.snapshots)),
		suppliers:     maps.Clone(st.suppliers),
		purchases:     make(map[string]domain.Purchase, len(st.purchases)),
		purchaseOrder: slices.Clone(st.purchaseOrder),
		expenses:      slices.Clone(st.expenses),
	}
	for id, edges := range st.recipes {
		dup.recipes[id] = slices.Clone(edges)
	}
	for id, lots := range st.lots {
		dup.lots[id] = slices.Clone(lots)
	}
	for id, sale := range st.sales {
		dup.sales[id] = cloneSale(sale)
	}
	for id, snaps := range st.snapshots {
		dup.snapshots[id] = slices.Clone(snaps)
	}
	for id, purchase := range st.purchases {
		dup.purchases[id] = clonePurchase(purchase)
	}
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func clonePurchase(src domain.Purchase) domain.Purchase {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func cloneSession(src domain.CashSession) domain.CashSession {
	dup := src
	if src.ClosedAt != nil {
		closedAt := *src.ClosedAt
		dup.ClosedAt = &closedAt
	}
	if src.ClosingFloat != nil {
		closing := *src.ClosingFloat
		dup.ClosingFloat = &closing
	}
	dup.Snapshots = nil
	return dup
}

func compareLotFIFO(a domain.InventoryLot, b domain.InventoryLot) int {
	if c := a.AcquiredAt.Compare(b.AcquiredAt); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func inRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
