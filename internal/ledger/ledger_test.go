package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/ledger"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/store/memory"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

type fixture struct {
	repo   *memory.Store
	ledger *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		repo:   memory.New(),
		ledger: ledger.New(steppingClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))),
	}
}

func (f *fixture) tx(t *testing.T, fn func(ctx context.Context, tx store.Tx) error) error {
	t.Helper()
	return f.repo.WithinTx(context.Background(), fn)
}

func (f *fixture) item(t *testing.T, id string, itemType domain.ItemType) {
	t.Helper()
	require.NoError(t, f.tx(t, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertItem(ctx, domain.Item{ID: id, Name: id, Type: itemType, Unit: "unit"})
	}))
}

func (f *fixture) recipe(t *testing.T, parent string, lines ...domain.RecipeLine) {
	t.Helper()
	edges := make([]domain.RecipeItem, 0, len(lines))
	for _, line := range lines {
		edges = append(edges, domain.RecipeItem{ID: parent + "->" + line.ChildItemID, ParentItemID: parent, ChildItemID: line.ChildItemID, Quantity: line.Quantity})
	}
	require.NoError(t, f.tx(t, func(ctx context.Context, tx store.Tx) error {
		return tx.ReplaceRecipe(ctx, parent, edges)
	}))
}

func (f *fixture) lot(t *testing.T, itemID string, qty string, cost string) *domain.InventoryLot {
	t.Helper()
	var lot *domain.InventoryLot
	require.NoError(t, f.tx(t, func(ctx context.Context, tx store.Tx) error {
		var err error
		lot, err = f.ledger.Add(ctx, tx, itemID, d(qty), d(cost))
		if err != nil {
			return err
		}
		return f.ledger.RecordLot(ctx, tx, *lot, ledger.Entry{Kind: domain.MovementPurchase})
	}))
	return lot
}

func (f *fixture) lotQuantities(t *testing.T, itemID string) []string {
	t.Helper()
	lots, err := f.repo.ListLots(context.Background(), itemID)
	require.NoError(t, err)
	out := make([]string, 0, len(lots))
	for _, lot := range lots {
		out = append(out, lot.Quantity.String())
	}
	return out
}

func (f *fixture) assertBalanced(t *testing.T, itemID string) {
	t.Helper()
	lots, err := f.repo.ListLots(context.Background(), itemID)
	require.NoError(t, err)
	movements, err := f.repo.ListMovements(context.Background(), domain.MovementFilter{ItemID: itemID})
	require.NoError(t, err)

	onHand, journal := decimal.Zero, decimal.Zero
	for _, lot := range lots {
		assert.False(t, lot.Quantity.IsNegative(), "lot %s went negative", lot.ID)
		onHand = onHand.Add(lot.Quantity)
	}
	for _, m := range movements {
		journal = journal.Add(m.Quantity)
	}
	assert.True(t, onHand.Equal(journal), "item %s: lots %s != movements %s", itemID, onHand, journal)
}

func TestConsumeDrawsOldestLotFirst(t *testing.T) {
	f := newFixture(t)
	f.item(t, "flour", domain.ItemTypeRaw)
	f.lot(t, "flour", "10", "2")
	f.lot(t, "flour", "5", "3")

	var got ledger.Consumption
	require.NoError(t, f.tx(t, func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = f.ledger.Consume(ctx, tx, "flour", d("4"))
		return err
	}))

	assert.True(t, got.Cost.Equal(d("8")), "cost %s", got.Cost)
	require.Len(t, got.Draws, 1)
	assert.Equal(t, []string{"6", "5"}, f.lotQuantities(t, "flour"))
}

func TestConsumeSpansLotsAndKeepsExhaustedLot(t *testing.T) {
	f := newFixture(t)
	f.item(t, "flour", domain.ItemTypeRaw)
	first := f.lot(t, "flour", "10", "2")
	second := f.lot(t, "flour", "5", "3")

	var got ledger.Consumption
	require.NoError(t, f.tx(t, func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = f.ledger.Consume(ctx, tx, "flour", d("12"))
		return err
	}))

	assert.True(t, got.Cost.Equal(d("26")), "cost %s", got.Cost)
	require.Len(t, got.Draws, 2)
	assert.Equal(t, first.ID, got.Draws[0].LotID)
	assert.Equal(t, second.ID, got.Draws[1].LotID)
	assert.Equal(t, []string{"0", "3"}, f.lotQuantities(t, "flour"))
}

func TestConsumeShortfallTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.item(t, "flour", domain.ItemTypeRaw)
	f.lot(t, "flour", "10", "2")
	f.lot(t, "flour", "5", "3")

	err := f.tx(t, func(ctx context.Context, tx store.Tx) error {
		_, err := f.ledger.Consume(ctx, tx, "flour", d("16"))
		return err
	})

	var shortfall *store.InsufficientInventoryError
	require.True(t, errors.As(err, &shortfall))
	assert.Equal(t, "flour", shortfall.ItemID)
	assert.True(t, shortfall.Available.Equal(d("15")))
	assert.True(t, shortfall.Required.Equal(d("16")))
	assert.Equal(t, []string{"10", "5"}, f.lotQuantities(t, "flour"))
}

func TestConsumeBreaksTimestampTiesByInsertionOrder(t *testing.T) {
	f := newFixture(t)
	f.ledger = ledger.New(func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) })
	f.item(t, "sauce", domain.ItemTypeRaw)
	f.lot(t, "sauce", "1", "5")
	f.lot(t, "sauce", "1", "1")

	var got ledger.Consumption
	require.NoError(t, f.tx(t, func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = f.ledger.Consume(ctx, tx, "sauce", d("1"))
		return err
	}))
	assert.True(t, got.Cost.Equal(d("5")), "first inserted lot must be drawn first, cost %s", got.Cost)
}

func TestAddAlwaysCreatesNewLot(t *testing.T) {
	f := newFixture(t)
	f.item(t, "salt", domain.ItemTypeRaw)
	f.lot(t, "salt", "1", "0.5")
	f.lot(t, "salt", "1", "0.5")

	lots, err := f.repo.ListLots(context.Background(), "salt")
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.NotEqual(t, lots[0].ID, lots[1].ID)
	assert.Less(t, lots[0].Seq, lots[1].Seq)

	err = f.tx(t, func(ctx context.Context, tx store.Tx) error {
		_, err := f.ledger.Add(ctx, tx, "salt", d("0"), d("1"))
		return err
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func pizzaFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.item(t, "flour", domain.ItemTypeRaw)
	f.item(t, "sauce", domain.ItemTypeRaw)
	f.item(t, "dough", domain.ItemTypeManufactured)
	f.item(t, "pizza", domain.ItemTypeSellable)
	f.recipe(t, "dough", domain.RecipeLine{ChildItemID: "flour", Quantity: d("0.5")})
	f.recipe(t, "pizza",
		domain.RecipeLine{ChildItemID: "dough", Quantity: d("1")},
		domain.RecipeLine{ChildItemID: "sauce", Quantity: d("0.2")},
	)
	f.lot(t, "flour", "50", "2")
	f.lot(t, "sauce", "10", "3")
	return f
}

func TestResolveAndConsumeMultipliesThroughRecipeChain(t *testing.T) {
	f := pizzaFixture(t)
	resolver := ledger.NewResolver(f.ledger)

	var cost decimal.Decimal
	require.NoError(t, f.tx(t, func(ctx context.Context, tx store.Tx) error {
		var err error
		cost, err = resolver.ResolveAndConsume(ctx, tx, "pizza", d("2"), ledger.Entry{Kind: domain.MovementSaleConsume, Reference: "sale-1"})
		return err
	}))

	assert.True(t, cost.Equal(d("3.20")), "cogs %s", cost)
	assert.Equal(t, []string{"49"}, f.lotQuantities(t, "flour"))
	assert.Equal(t, []string{"9.6"}, f.lotQuantities(t, "sauce"))

	consumed, err := f.repo.ListMovements(context.Background(), domain.MovementFilter{Reference: "sale-1"})
	require.NoError(t, err)
	require.Len(t, consumed, 2)
	for _, m := range consumed {
		assert.Equal(t, domain.MovementSaleConsume, m.Kind)
		assert.NotEmpty(t, m.LotID)
	}
	lots, err := f.repo.ListLots(context.Background(), "dough")
	require.NoError(t, err)
	assert.Empty(t, lots)

	for _, id := range []string{"flour", "sauce", "dough", "pizza"} {
		f.assertBalanced(t, id)
	}
}

func TestResolveAndConsumeEmitsOneMovementPerLot(t *testing.T) {
	f := pizzaFixture(t)
	f.lot(t, "sauce", "10", "4")
	resolver := ledger.NewResolver(f.ledger)

	var cost decimal.Decimal
	require.NoError(t, f.tx(t, func(ctx context.Context, tx store.Tx) error {
		var err error
		cost, err = resolver.ResolveAndConsume(ctx, tx, "sauce", d("11"), ledger.Entry{Kind: domain.MovementSaleConsume, Reference: "sale-2"})
		return err
	}))

	assert.True(t, cost.Equal(d("34")), "cost %s", cost)
	moves, err := f.repo.ListMovements(context.Background(), domain.MovementFilter{Reference: "sale-2"})
	require.NoError(t, err)
	assert.Len(t, moves, 2)
	f.assertBalanced(t, "sauce")
}

func TestResolveAndConsumeAbortsOnDeepShortfall(t *testing.T) {
	f := pizzaFixture(t)
	resolver := ledger.NewResolver(f.ledger)

	err := f.tx(t, func(ctx context.Context, tx store.Tx) error {
		_, err := resolver.ResolveAndConsume(ctx, tx, "pizza", d("51"), ledger.Entry{Kind: domain.MovementSaleConsume})
		return err
	})
	assert.ErrorIs(t, err, store.ErrInsufficientInventory)
	assert.Equal(t, []string{"50"}, f.lotQuantities(t, "flour"))
	assert.Equal(t, []string{"10"}, f.lotQuantities(t, "sauce"))
}

func TestResolveAndConsumeAllowsSharedSubRecipes(t *testing.T) {
	f := pizzaFixture(t)
	f.item(t, "calzone", domain.ItemTypeSellable)
	f.recipe(t, "calzone",
		domain.RecipeLine{ChildItemID: "dough", Quantity: d("1")},
		domain.RecipeLine{ChildItemID: "flour", Quantity: d("0.1")},
	)
	resolver := ledger.NewResolver(f.ledger)

	var cost decimal.Decimal
	require.NoError(t, f.tx(t, func(ctx context.Context, tx store.Tx) error {
		var err error
		cost, err = resolver.ResolveAndConsume(ctx, tx, "calzone", d("1"), ledger.Entry{Kind: domain.MovementSaleConsume})
		return err
	}))
	assert.True(t, cost.Equal(d("1.2")), "cost %s", cost)
	assert.Equal(t, []string{"49.4"}, f.lotQuantities(t, "flour"))
}

func TestResolveAndConsumeRejectsCycles(t *testing.T) {
	f := newFixture(t)
	f.item(t, "a", domain.ItemTypeManufactured)
	f.item(t, "b", domain.ItemTypeManufactured)
	f.recipe(t, "a", domain.RecipeLine{ChildItemID: "b", Quantity: d("1")})
	f.recipe(t, "b", domain.RecipeLine{ChildItemID: "a", Quantity: d("2")})
	resolver := ledger.NewResolver(f.ledger)

	err := f.tx(t, func(ctx context.Context, tx store.Tx) error {
		_, err := resolver.ResolveAndConsume(ctx, tx, "a", d("1"), ledger.Entry{Kind: domain.MovementSaleConsume})
		return err
	})
	var cycle *store.CyclicRecipeError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Path)
}

func TestValidateRecipeDetectsClosingEdge(t *testing.T) {
	f := pizzaFixture(t)
	resolver := ledger.NewResolver(f.ledger)

	err := f.tx(t, func(ctx context.Context, tx store.Tx) error {
		return resolver.ValidateRecipe(ctx, tx, "dough", []string{"flour", "pizza"})
	})
	assert.ErrorIs(t, err, store.ErrCyclicRecipe)

	err = f.tx(t, func(ctx context.Context, tx store.Tx) error {
		return resolver.ValidateRecipe(ctx, tx, "dough", []string{"dough"})
	})
	assert.ErrorIs(t, err, store.ErrCyclicRecipe)

	err = f.tx(t, func(ctx context.Context, tx store.Tx) error {
		return resolver.ValidateRecipe(ctx, tx, "pizza", []string{"dough", "sauce", "flour"})
	})
	assert.NoError(t, err)
}
