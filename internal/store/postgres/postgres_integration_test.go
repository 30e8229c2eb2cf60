package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzatruck/backend/internal/cache"
	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/service"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/store/postgres"
)

func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	databaseURL := os.Getenv("PIZZATRUCK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PIZZATRUCK_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := postgres.New(ctx, databaseURL, postgres.WithMaxRetries(8))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	svc   *service.Service
	repo  *postgres.Store
	admin context.Context
	flour string
	sauce string
	pizza string
	soda  string
}

// newFixture creates a uniquely named pizza catalog so runs never collide.
func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := openStore(t)
	f := fixture{
		svc:   service.New(repo, cache.NoopStockCache{}),
		repo:  repo,
		admin: service.WithActor(context.Background(), domain.Actor{Username: "it-admin", Role: domain.RoleAdmin}),
	}
	stamp := time.Now().UnixNano()
	create := func(req domain.ItemCreateRequest) string {
		req.Name = fmt.Sprintf("%s %d", req.Name, stamp)
		detail, err := f.svc.CreateItem(f.admin, req)
		require.NoError(t, err)
		return detail.Item.ID
	}
	price := dec("12")
	sodaPrice := dec("2.5")

	f.flour = create(domain.ItemCreateRequest{Name: "IT Flour", Type: domain.ItemTypeRaw, Unit: "kg"})
	f.sauce = create(domain.ItemCreateRequest{Name: "IT Sauce", Type: domain.ItemTypeRaw, Unit: "L"})
	dough := create(domain.ItemCreateRequest{
		Name: "IT Dough", Type: domain.ItemTypeManufactured, Unit: "ball",
		Recipe: []domain.RecipeLine{{ChildItemID: f.flour, Quantity: dec("0.5")}},
	})
	f.pizza = create(domain.ItemCreateRequest{
		Name: "IT Pizza", Type: domain.ItemTypeSellable, Unit: "unit", Price: &price,
		Recipe: []domain.RecipeLine{
			{ChildItemID: dough, Quantity: dec("1")},
			{ChildItemID: f.sauce, Quantity: dec("0.2")},
		},
	})
	f.soda = create(domain.ItemCreateRequest{Name: "IT Soda", Type: domain.ItemTypeSellable, Unit: "can", Price: &sodaPrice})

	_, err := f.svc.CreatePurchase(f.admin, domain.PurchaseCreateRequest{
		Items: []domain.PurchaseLineRequest{
			{ItemID: f.flour, Quantity: dec("50"), TotalCost: dec("100")},
			{ItemID: f.sauce, Quantity: dec("10"), TotalCost: dec("30")},
			{ItemID: f.soda, Quantity: dec("5"), TotalCost: dec("3")},
		},
	})
	require.NoError(t, err)
	return f
}

func (f fixture) onHand(t *testing.T, itemID string) decimal.Decimal {
	t.Helper()
	lots, err := f.repo.ListLots(context.Background(), itemID)
	require.NoError(t, err)
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.Quantity)
	}
	return total
}

func TestSaleConsumesRecipeFIFO(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.CreateSale(f.admin, domain.SaleCreateRequest{
		IdempotencyKey: fmt.Sprintf("it-%d", time.Now().UnixNano()),
		Items:          []domain.SaleLineRequest{{ItemID: f.pizza, Qty: 2}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Sale.Total.Equal(dec("24")))
	assert.True(t, resp.Sale.COGS.Equal(dec("3.2")), "cogs %s", resp.Sale.COGS)
	assert.True(t, f.onHand(t, f.flour).Equal(dec("49")))
	assert.True(t, f.onHand(t, f.sauce).Equal(dec("9.6")))

	stored, err := f.repo.GetSale(context.Background(), resp.Sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, domain.StatusPending, stored.Items[0].Status)

	again, err := f.svc.CreateSale(f.admin, domain.SaleCreateRequest{
		IdempotencyKey: resp.Sale.IdempotencyKey,
		Items:          []domain.SaleLineRequest{{ItemID: f.pizza, Qty: 2}},
	})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.True(t, f.onHand(t, f.flour).Equal(dec("49")))

	moves, err := f.repo.ListMovements(context.Background(), domain.MovementFilter{Reference: resp.Sale.ID})
	require.NoError(t, err)
	assert.Len(t, moves, 2)
}

func TestShortfallRollsBackEveryLine(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateSale(f.admin, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{{ItemID: f.pizza, Qty: 1}, {ItemID: f.soda, Qty: 6}},
	})
	var shortfall *store.InsufficientInventoryError
	require.True(t, errors.As(err, &shortfall), "got %v", err)
	assert.True(t, shortfall.Available.Equal(dec("5")))
	assert.True(t, f.onHand(t, f.flour).Equal(dec("50")))
	assert.True(t, f.onHand(t, f.sauce).Equal(dec("10")))
}

func TestConcurrentSalesDoNotOverConsume(t *testing.T) {
	f := newFixture(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateSale(f.admin, domain.SaleCreateRequest{
				Items: []domain.SaleLineRequest{{ItemID: f.soda, Qty: 1}},
			})
			if err != nil && !errors.Is(err, store.ErrInsufficientInventory) && !errors.Is(err, store.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, sold, 5)
	assert.True(t, f.onHand(t, f.soda).Equal(decimal.NewFromInt(int64(5-sold))))
}

func TestStockReportAndMovementFilters(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdjustStock(f.admin, domain.StockAdjustmentRequest{ItemID: f.flour, Quantity: "-2", Note: "spill"})
	require.NoError(t, err)

	wastage, err := f.repo.ListMovements(context.Background(), domain.MovementFilter{ItemID: f.flour, Kind: domain.MovementWastage})
	require.NoError(t, err)
	require.Len(t, wastage, 1)
	assert.Equal(t, "spill", wastage[0].Note)
	assert.True(t, wastage[0].Quantity.Equal(dec("-2")))

	levels, err := f.repo.CurrentStock(context.Background())
	require.NoError(t, err)
	found := false
	for _, level := range levels {
		if level.ItemID == f.flour {
			found = true
			assert.True(t, level.TotalQuantity.Equal(dec("48")))
		}
	}
	assert.True(t, found)
}

func TestCatalogUpdateExpensesAndDashboardReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Second)

	_, err := f.svc.CreateSale(f.admin, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{{ItemID: f.pizza, Qty: 1}, {ItemID: f.soda, Qty: 2}},
	})
	require.NoError(t, err)

	top, err := f.repo.TopProducts(ctx, start, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	ranked := make(map[string]domain.TopProduct, len(top))
	for _, row := range top {
		ranked[row.ItemID] = row
	}
	assert.Equal(t, 1, ranked[f.pizza].TotalQty)
	assert.True(t, ranked[f.pizza].TotalRevenue.Equal(dec("12")))
	assert.Equal(t, 2, ranked[f.soda].TotalQty)

	expense, err := f.svc.CreateExpense(f.admin, domain.ExpenseCreateRequest{Label: "Propane refill", Amount: dec("18.75")})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCash, expense.PaidVia)
	expenses, err := f.repo.ListExpenses(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, expenses)
	assert.Equal(t, expense.ID, expenses[0].ID)
	assert.True(t, expenses[0].Amount.Equal(dec("18.75")))

	activity, err := f.svc.RecentActivity(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, activity)

	purchases, err := f.repo.ListPurchases(ctx, 1)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Len(t, purchases[0].Items, 3)

	name := fmt.Sprintf("IT Cola %d", time.Now().UnixNano())
	price := dec("3")
	updated, err := f.svc.UpdateItem(f.admin, f.soda, domain.ItemUpdateRequest{Name: &name, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, domain.ItemTypeSellable, updated.Type)
	stored, err := f.repo.GetItem(ctx, f.soda)
	require.NoError(t, err)
	assert.Equal(t, name, stored.Name)
	assert.True(t, stored.Price.Equal(price))

	flour, err := f.repo.GetItem(ctx, f.flour)
	require.NoError(t, err)
	_, err = f.svc.UpdateItem(f.admin, f.soda, domain.ItemUpdateRequest{Name: &flour.Name})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}
