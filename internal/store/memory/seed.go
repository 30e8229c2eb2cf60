package memory

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/logger"
)

type seedItem struct {
	id       string
	name     string
	sku      string
	itemType domain.ItemType
	unit     string
	price    string
	lowStock string
}

type seedPurchase struct {
	itemID    string
	quantity  string
	totalCost string
}

var seedCatalog = []seedItem{
	{id: "item-flour", name: "Flour", itemType: domain.ItemTypeRaw, unit: "kg", lowStock: "5"},
	{id: "item-yeast", name: "Yeast", itemType: domain.ItemTypeRaw, unit: "g", lowStock: "200"},
	{id: "item-water", name: "Water", itemType: domain.ItemTypeRaw, unit: "L", lowStock: "10"},
	{id: "item-salt", name: "Salt", itemType: domain.ItemTypeRaw, unit: "kg", lowStock: "1"},
	{id: "item-sauce", name: "Tomato Sauce", itemType: domain.ItemTypeRaw, unit: "L", lowStock: "5"},
	{id: "item-mozzarella", name: "Mozzarella Cheese", itemType: domain.ItemTypeRaw, unit: "kg", lowStock: "3"},
	{id: "item-pepperoni", name: "Pepperoni", itemType: domain.ItemTypeRaw, unit: "kg", lowStock: "2"},
	{id: "item-dough", name: "Pizza Dough", itemType: domain.ItemTypeManufactured, unit: "ball", lowStock: "10"},
	{id: "item-margherita", name: "Margherita Pizza", sku: "PIZ-MAR", itemType: domain.ItemTypeSellable, unit: "unit", price: "12.00"},
	{id: "item-pepperoni-pizza", name: "Pepperoni Pizza", sku: "PIZ-PEP", itemType: domain.ItemTypeSellable, unit: "unit", price: "14.00"},
	{id: "item-soda", name: "Canned Soda", sku: "DR-COKE", itemType: domain.ItemTypeSellable, unit: "can", price: "2.50", lowStock: "12"},
}

var seedRecipes = map[string][]domain.RecipeLine{
	"item-dough": {
		{ChildItemID: "item-flour", Quantity: decimal.RequireFromString("0.5")},
		{ChildItemID: "item-yeast", Quantity: decimal.RequireFromString("10")},
		{ChildItemID: "item-water", Quantity: decimal.RequireFromString("0.3")},
		{ChildItemID: "item-salt", Quantity: decimal.RequireFromString("0.01")},
	},
	"item-margherita": {
		{ChildItemID: "item-dough", Quantity: decimal.RequireFromString("1")},
		{ChildItemID: "item-sauce", Quantity: decimal.RequireFromString("0.2")},
		{ChildItemID: "item-mozzarella", Quantity: decimal.RequireFromString("0.15")},
	},
	"item-pepperoni-pizza": {
		{ChildItemID: "item-dough", Quantity: decimal.RequireFromString("1")},
		{ChildItemID: "item-sauce", Quantity: decimal.RequireFromString("0.2")},
		{ChildItemID: "item-mozzarella", Quantity: decimal.RequireFromString("0.15")},
		{ChildItemID: "item-pepperoni", Quantity: decimal.RequireFromString("0.1")},
	},
}

var seedStock = []seedPurchase{
	{itemID: "item-flour", quantity: "50", totalCost: "100"},
	{itemID: "item-yeast", quantity: "5000", totalCost: "50"},
	{itemID: "item-water", quantity: "100", totalCost: "10"},
	{itemID: "item-salt", quantity: "10", totalCost: "5"},
	{itemID: "item-sauce", quantity: "50", totalCost: "150"},
	{itemID: "item-mozzarella", quantity: "20", totalCost: "200"},
	{itemID: "item-pepperoni", quantity: "10", totalCost: "100"},
	{itemID: "item-soda", quantity: "48", totalCost: "28.80"},
}

// NewSeeded returns a store holding the demo pizza truck catalog, its opening
// stock (each lot paired with a PURCHASE movement) and dev user accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	tx := &memTx{st: s.st}
	ctx := context.Background()

	for _, si := range seedCatalog {
		item := domain.Item{
			ID:        si.id,
			Name:      si.name,
			SKU:       si.sku,
			Type:      si.itemType,
			Unit:      si.unit,
			CreatedAt: now,
		}
		if si.price != "" {
			price := decimal.RequireFromString(si.price)
			item.Price = &price
		}
		if si.lowStock != "" {
			level := decimal.RequireFromString(si.lowStock)
			item.LowStockLevel = &level
		}
		mustSeed(tx.InsertItem(ctx, item))
	}

	for parentID, lines := range seedRecipes {
		edges := make([]domain.RecipeItem, 0, len(lines))
		for i, line := range lines {
			edges = append(edges, domain.RecipeItem{
				ID:           parentID + "-r" + strconv.Itoa(i+1),
				ParentItemID: parentID,
				ChildItemID:  line.ChildItemID,
				Quantity:     line.Quantity,
			})
		}
		mustSeed(tx.ReplaceRecipe(ctx, parentID, edges))
	}

	s.st.suppliers["sup-general"] = domain.Supplier{ID: "sup-general", Name: "General Supplier", Phone: "123-456-7890", Email: "info@generalsupplier.com", CreatedAt: now}
	s.st.suppliers["sup-dairy"] = domain.Supplier{ID: "sup-dairy", Name: "Dairy Supplier", Phone: "987-654-3210", Email: "sales@dairysupplier.com", CreatedAt: now}

	purchase := domain.Purchase{ID: "pur-seed", SupplierID: "sup-general", Notes: "Initial stock", TotalCost: decimal.Zero, CreatedBy: "system", CreatedAt: now}
	for _, sp := range seedStock {
		qty := decimal.RequireFromString(sp.quantity)
		total := decimal.RequireFromString(sp.totalCost)
		unitCost := total.DivRound(qty, 6)
		lot, err := tx.InsertLot(ctx, domain.InventoryLot{
			ID:         "lot-seed-" + sp.itemID,
			ItemID:     sp.itemID,
			Quantity:   qty,
			UnitCost:   unitCost,
			AcquiredAt: now,
		})
		mustSeed(err)
		mustSeed(tx.InsertMovement(ctx, domain.StockMovement{
			ID:        "mv-seed-" + sp.itemID,
			Kind:      domain.MovementPurchase,
			ItemID:    sp.itemID,
			LotID:     lot.ID,
			Quantity:  qty,
			UnitCost:  unitCost,
			Reference: purchase.ID,
			CreatedAt: now,
		}))
		purchase.Items = append(purchase.Items, domain.PurchaseItem{
			ID:         "pi-seed-" + sp.itemID,
			PurchaseID: purchase.ID,
			ItemID:     sp.itemID,
			LotID:      lot.ID,
			Quantity:   qty,
			UnitCost:   unitCost,
			TotalCost:  total,
		})
		purchase.TotalCost = purchase.TotalCost.Add(total)
	}
	mustSeed(tx.InsertPurchase(ctx, purchase))

	s.users = seedUsers(now)
	return s
}

// seedUsers builds dev accounts. Passwords come from SEED_ADMIN_PASSWORD,
// SEED_CASHIER_PASSWORD and SEED_KITCHEN_PASSWORD with dev fallbacks; the
// postgres store never uses them.
func seedUsers(now time.Time) map[string]domain.UserAccount {
	accounts := []struct {
		username string
		envKey   string
		fallback string
		role     string
	}{
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"cashier", "SEED_CASHIER_PASSWORD", "cashier123", domain.RoleCashier},
		{"kitchen", "SEED_KITCHEN_PASSWORD", "kitchen123", domain.RoleKitchen},
	}

	users := make(map[string]domain.UserAccount, len(accounts))
	for _, a := range accounts {
		password := os.Getenv(a.envKey)
		if password == "" {
			password = a.fallback
			logger.Default().Warnw("using default dev credentials", "component", "memory-store", "username", a.username, "env", a.envKey)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		mustSeed(err)
		users[a.username] = domain.UserAccount{
			Username:  a.username,
			Password:  string(hash),
			Role:      a.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func mustSeed(err error) {
	if err != nil {
		panic("memory seed: " + err.Error())
	}
}
