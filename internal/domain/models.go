package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemType string

const (
	ItemTypeRaw          ItemType = "RAW"
	ItemTypeManufactured ItemType = "MANUFACTURED"
	ItemTypeSellable     ItemType = "SELLABLE"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeRaw, ItemTypeManufactured, ItemTypeSellable:
		return true
	}
	return false
}

type Item struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	SKU           string           `json:"sku,omitempty"`
	Type          ItemType         `json:"type"`
	Unit          string           `json:"unit"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	LowStockLevel *decimal.Decimal `json:"low_stock_level,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Sellable reports whether the item can appear on a sale line.
func (i Item) Sellable() bool {
	return i.Type == ItemTypeSellable && i.Price != nil
}

// RecipeItem is one BOM edge: Quantity units of the child per unit of the parent.
type RecipeItem struct {
	ID           string          `json:"id"`
	ParentItemID string          `json:"parent_item_id"`
	ChildItemID  string          `json:"child_item_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type ItemDetail struct {
	Item   Item         `json:"item"`
	Recipe []RecipeItem `json:"recipe"`
}

type RecipeLine struct {
	ChildItemID string          `json:"child_item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type ItemCreateRequest struct {
	Name            string           `json:"name"`
	SKU             string           `json:"sku"`
	Type            ItemType         `json:"type"`
	Unit            string           `json:"unit"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	LowStockLevel   *decimal.Decimal `json:"low_stock_level,omitempty"`
	Recipe          []RecipeLine     `json:"recipe,omitempty"`
	InitialQuantity *decimal.Decimal `json:"initial_quantity,omitempty"`
	InitialUnitCost *decimal.Decimal `json:"initial_unit_cost,omitempty"`
}

// ItemUpdateRequest patches catalog fields. Nil fields are left unchanged;
// the item type and its lots are never touched.
type ItemUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	SKU           *string          `json:"sku,omitempty"`
	Unit          *string          `json:"unit,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	LowStockLevel *decimal.Decimal `json:"low_stock_level,omitempty"`
}

type RecipeUpdateRequest struct {
	Lines []RecipeLine `json:"lines"`
}

// InventoryLot is a FIFO cost layer. Seq is assigned by the store on insert
// and breaks ties between lots acquired at the same instant.
type InventoryLot struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	ItemID     string          `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	AcquiredAt time.Time       `json:"acquired_at"`
}

type MovementKind string

const (
	MovementPurchase    MovementKind = "PURCHASE"
	MovementSaleConsume MovementKind = "SALE_CONSUME"
	MovementAdjustment  MovementKind = "ADJUSTMENT"
	MovementWastage     MovementKind = "WASTAGE"
	MovementSessionOut  MovementKind = "SESSION_OUT"
	MovementSessionIn   MovementKind = "SESSION_IN"
)

// StockMovement is an append-only journal entry. Quantity is signed;
// negative values leave stock.
type StockMovement struct {
	ID        string          `json:"id"`
	Kind      MovementKind    `json:"kind"`
	ItemID    string          `json:"item_id"`
	LotID     string          `json:"lot_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Reference string          `json:"reference,omitempty"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type MovementFilter struct {
	ItemID    string
	Kind      MovementKind
	Reference string
	From      time.Time
	To        time.Time
	Limit     int
}

type PaymentType string

const (
	PaymentCash  PaymentType = "CASH"
	PaymentCard  PaymentType = "CARD"
	PaymentOther PaymentType = "OTHER"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentOther:
		return true
	}
	return false
}

type Sale struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"session_id,omitempty"`
	UserID         string          `json:"user_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Total          decimal.Decimal `json:"total"`
	COGS           decimal.Decimal `json:"cogs"`
	PaymentType    PaymentType     `json:"payment_type"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []SaleItem      `json:"items"`
}

type SaleItem struct {
	ID        string            `json:"id"`
	SaleID    string            `json:"sale_id"`
	ItemID    string            `json:"item_id"`
	Qty       int               `json:"qty"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	LineTotal decimal.Decimal   `json:"line_total"`
	Status    FulfillmentStatus `json:"status"`
}

type SaleLineRequest struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

type SaleCreateRequest struct {
	SessionID      string            `json:"session_id,omitempty"`
	PaymentType    PaymentType       `json:"payment_type"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Items          []SaleLineRequest `json:"items"`
}

type SaleResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

type SaleItemStatusRequest struct {
	Status string `json:"status"`
}

type StockAdjustmentRequest struct {
	ItemID   string `json:"item_id"`
	Quantity string `json:"quantity"`
	Note     string `json:"note,omitempty"`
}

type StockAdjustmentResponse struct {
	ItemID   string          `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Kind     MovementKind    `json:"kind"`
	Cost     decimal.Decimal `json:"cost"`
}

type CashSession struct {
	ID           string                     `json:"id"`
	OpenedAt     time.Time                  `json:"opened_at"`
	OpenedBy     string                     `json:"opened_by"`
	ClosedAt     *time.Time                 `json:"closed_at,omitempty"`
	ClosedBy     string                     `json:"closed_by,omitempty"`
	OpeningFloat decimal.Decimal            `json:"opening_float"`
	ClosingFloat *decimal.Decimal           `json:"closing_float,omitempty"`
	Notes        string                     `json:"notes,omitempty"`
	Snapshots    []SessionInventorySnapshot `json:"snapshots,omitempty"`
}

func (s CashSession) Open() bool {
	return s.ClosedAt == nil
}

type SnapshotType string

const (
	SnapshotOpening SnapshotType = "OPENING"
	SnapshotClosing SnapshotType = "CLOSING"
)

type SessionInventorySnapshot struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	ItemID    string          `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Type      SnapshotType    `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
}

// SessionStockLine carries a quantity as text; it is parsed at the service boundary.
type SessionStockLine struct {
	ItemID   string `json:"item_id"`
	Quantity string `json:"quantity"`
}

type SessionOpenRequest struct {
	OpeningFloat decimal.Decimal    `json:"opening_float"`
	Notes        string             `json:"notes,omitempty"`
	Inventory    []SessionStockLine `json:"inventory"`
}

type SessionCloseRequest struct {
	SessionID    string             `json:"session_id"`
	ClosingFloat decimal.Decimal    `json:"closing_float"`
	Notes        string             `json:"notes,omitempty"`
	Inventory    []SessionStockLine `json:"inventory,omitempty"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type Purchase struct {
	ID         string          `json:"id"`
	SupplierID string          `json:"supplier_id,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	Items      []PurchaseItem  `json:"items"`
}

type PurchaseItem struct {
	ID         string          `json:"id"`
	PurchaseID string          `json:"purchase_id"`
	ItemID     string          `json:"item_id"`
	LotID      string          `json:"lot_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

type PurchaseLineRequest struct {
	ItemID    string          `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

type PurchaseCreateRequest struct {
	SupplierID string                `json:"supplier_id,omitempty"`
	Notes      string                `json:"notes,omitempty"`
	Items      []PurchaseLineRequest `json:"items"`
}

// Expense is money paid out that did not buy stock: fuel, permits, repairs.
type Expense struct {
	ID        string          `json:"id" db:"id"`
	Label     string          `json:"label" db:"label"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	PaidVia   PaymentType     `json:"paid_via" db:"paid_via"`
	CreatedBy string          `json:"created_by" db:"created_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type ExpenseCreateRequest struct {
	Label   string          `json:"label"`
	Amount  decimal.Decimal `json:"amount"`
	PaidVia PaymentType     `json:"paid_via"`
}

type TopProduct struct {
	ItemID       string          `json:"item_id" db:"item_id"`
	ItemName     string          `json:"item_name" db:"item_name"`
	SKU          string          `json:"sku,omitempty" db:"sku"`
	TotalQty     int             `json:"total_qty" db:"total_qty"`
	TotalRevenue decimal.Decimal `json:"total_revenue" db:"total_revenue"`
}

type ActivityType string

const (
	ActivitySale    ActivityType = "sale"
	ActivityExpense ActivityType = "expense"
)

// ActivityEntry is one row of the dashboard feed: a sale or an expense.
type ActivityEntry struct {
	Type        ActivityType    `json:"type"`
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

type StockLevel struct {
	ItemID        string           `json:"item_id" db:"item_id"`
	ItemName      string           `json:"item_name" db:"item_name"`
	TotalQuantity decimal.Decimal  `json:"total_quantity" db:"total_quantity"`
	Unit          string           `json:"unit" db:"unit"`
	LowStockLevel *decimal.Decimal `json:"low_stock_level,omitempty" db:"low_stock_level"`
}

type SalesSummary struct {
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Revenue     decimal.Decimal `json:"revenue"`
	COGS        decimal.Decimal `json:"cogs"`
	GrossMargin decimal.Decimal `json:"gross_margin_percent"`
	OrderCount  int             `json:"order_count"`
}

type PendingOrderItem struct {
	SaleItem
	ItemName string `json:"item_name"`
}

type PendingOrder struct {
	SaleID    string             `json:"sale_id"`
	SessionID string             `json:"session_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Items     []PendingOrderItem `json:"items"`
}

type ReconciliationLine struct {
	ItemID      string          `json:"item_id"`
	ItemName    string          `json:"item_name"`
	Opening     decimal.Decimal `json:"opening"`
	Closing     decimal.Decimal `json:"closing"`
	Consumed    decimal.Decimal `json:"consumed"`
	Wastage     decimal.Decimal `json:"wastage"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

type SessionReconciliation struct {
	Session CashSession          `json:"session"`
	Lines   []ReconciliationLine `json:"lines"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	RoleKitchen = "kitchen"
)

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// NewSalesSummary fills in the gross margin percentage, rounded to two places.
func NewSalesSummary(from time.Time, to time.Time, revenue decimal.Decimal, cogs decimal.Decimal, orders int) SalesSummary {
	margin := decimal.Zero
	if revenue.IsPositive() {
		margin = revenue.Sub(cogs).Div(revenue).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return SalesSummary{
		From:        from,
		To:          to,
		Revenue:     revenue,
		COGS:        cogs,
		GrossMargin: margin,
		OrderCount:  orders,
	}
}
