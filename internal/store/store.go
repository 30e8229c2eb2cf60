package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
)

// Tx is the set of ledger operations that run inside one atomic transaction.
// Every write made through a Tx is committed or rolled back together.
type Tx interface {
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListRecipe(ctx context.Context, parentItemID string) ([]domain.RecipeItem, error)
	InsertItem(ctx context.Context, item domain.Item) error
	UpdateItem(ctx context.Context, item domain.Item) error
	ReplaceRecipe(ctx context.Context, parentItemID string, edges []domain.RecipeItem) error

	// LockLots returns the item's lots oldest first, ordered by acquisition
	// time then Seq. Concurrent writers to the same item block until commit.
	LockLots(ctx context.Context, itemID string) ([]domain.InventoryLot, error)
	SetLotQuantity(ctx context.Context, lotID string, qty decimal.Decimal) error
	InsertLot(ctx context.Context, lot domain.InventoryLot) (*domain.InventoryLot, error)
	InsertMovement(ctx context.Context, movement domain.StockMovement) error

	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	InsertSale(ctx context.Context, sale domain.Sale) error
	GetSaleItemForUpdate(ctx context.Context, id string) (*domain.SaleItem, error)
	SetSaleItemStatus(ctx context.Context, id string, status domain.FulfillmentStatus) error

	GetActiveSession(ctx context.Context) (*domain.CashSession, error)
	GetSessionForUpdate(ctx context.Context, id string) (*domain.CashSession, error)
	InsertSession(ctx context.Context, session domain.CashSession) error
	CloseSession(ctx context.Context, id string, closingFloat decimal.Decimal, notes string, closedBy string, closedAt time.Time) (*domain.CashSession, error)
	InsertSnapshot(ctx context.Context, snapshot domain.SessionInventorySnapshot) error

	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	InsertPurchase(ctx context.Context, purchase domain.Purchase) error
}

type Repository interface {
	// WithinTx runs fn inside one atomic transaction. A non-nil error from fn
	// rolls back every write made through the Tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListRecipe(ctx context.Context, parentItemID string) ([]domain.RecipeItem, error)
	ListLots(ctx context.Context, itemID string) ([]domain.InventoryLot, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	ListSessionSales(ctx context.Context, sessionID string) ([]domain.Sale, error)
	// ListRecentSales returns the newest sales first, without their lines.
	ListRecentSales(ctx context.Context, limit int) ([]domain.Sale, error)
	ListPendingOrders(ctx context.Context) ([]domain.PendingOrder, error)

	GetSession(ctx context.Context, id string) (*domain.CashSession, error)
	GetActiveSession(ctx context.Context) (*domain.CashSession, error)
	ListSessions(ctx context.Context, limit int) ([]domain.CashSession, error)

	CurrentStock(ctx context.Context) ([]domain.StockLevel, error)
	SalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error)
	// TopProducts ranks sold items by revenue within [from, to).
	TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error)

	CreateExpense(ctx context.Context, expense domain.Expense) error
	ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
