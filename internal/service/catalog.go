package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/ledger"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/xid"
)

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.ItemDetail, error) {
	id = strings.TrimSpace(id)
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.ItemDetail{}, err
	}
	recipe, err := s.repo.ListRecipe(ctx, id)
	if err != nil {
		return domain.ItemDetail{}, err
	}
	return domain.ItemDetail{Item: *item, Recipe: recipe}, nil
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.ItemDetail, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ItemDetail{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = trimUpper(req.SKU)
	req.Unit = strings.TrimSpace(req.Unit)
	req.Type = domain.ItemType(trimUpper(string(req.Type)))

	if req.Name == "" || req.Unit == "" || !req.Type.Valid() {
		return domain.ItemDetail{}, invalid("name, unit and a valid type are required")
	}
	if err := checkAmounts(req.Price, req.LowStockLevel, req.InitialQuantity, req.InitialUnitCost); err != nil {
		return domain.ItemDetail{}, err
	}
	if req.Type == domain.ItemTypeSellable && req.Price == nil {
		return domain.ItemDetail{}, invalid("sellable items need a price")
	}
	if !nonNegative(req.Price) || !nonNegative(req.LowStockLevel) || !nonNegative(req.InitialUnitCost) {
		return domain.ItemDetail{}, invalid("price, low stock level and unit cost must not be negative")
	}
	if req.Type == domain.ItemTypeRaw && len(req.Recipe) > 0 {
		return domain.ItemDetail{}, invalid("raw items cannot have a recipe")
	}
	if req.InitialQuantity != nil && !req.InitialQuantity.IsPositive() {
		return domain.ItemDetail{}, invalid("initial quantity must be positive")
	}
	if req.InitialQuantity != nil && len(req.Recipe) > 0 {
		return domain.ItemDetail{}, fmt.Errorf("initial stock for %s: %w", req.Name, store.ErrNotStocked)
	}

	item := domain.Item{
		ID:            xid.New("item"),
		Name:          req.Name,
		SKU:           req.SKU,
		Type:          req.Type,
		Unit:          req.Unit,
		Price:         req.Price,
		LowStockLevel: req.LowStockLevel,
		CreatedAt:     s.now(),
	}
	edges, err := recipeEdges(item.ID, req.Recipe)
	if err != nil {
		return domain.ItemDetail{}, err
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		if len(edges) > 0 {
			if err := s.writeRecipe(ctx, tx, item.ID, edges); err != nil {
				return err
			}
		}
		if req.InitialQuantity == nil {
			return nil
		}
		unitCost := decimal.Zero
		if req.InitialUnitCost != nil {
			unitCost = *req.InitialUnitCost
		}
		lot, err := s.ledger.Add(ctx, tx, item.ID, *req.InitialQuantity, unitCost)
		if err != nil {
			return err
		}
		return s.ledger.RecordLot(ctx, tx, *lot, ledger.Entry{Kind: domain.MovementAdjustment, Reference: item.ID, Note: "initial stock"})
	})
	if err != nil {
		return domain.ItemDetail{}, err
	}

	s.invalidateStock(ctx)
	s.audit(ctx, "item_create", "item", item.ID, "name", item.Name, "type", item.Type, "recipe_lines", len(edges))
	return domain.ItemDetail{Item: item, Recipe: edges}, nil
}

// UpdateItem patches an item's catalog fields. Type, recipe and stock are
// changed through their own operations.
func (s *Service) UpdateItem(ctx context.Context, id string, req domain.ItemUpdateRequest) (domain.Item, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Item{}, err
	}
	id = strings.TrimSpace(id)
	if err := checkAmounts(req.Price, req.LowStockLevel); err != nil {
		return domain.Item{}, err
	}
	if !nonNegative(req.Price) || !nonNegative(req.LowStockLevel) {
		return domain.Item{}, invalid("price and low stock level must not be negative")
	}

	var item domain.Item
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.GetItem(ctx, id)
		if err != nil {
			return fmt.Errorf("item %s: %w", id, err)
		}
		item = *found
		if req.Name != nil {
			item.Name = strings.TrimSpace(*req.Name)
		}
		if req.SKU != nil {
			item.SKU = trimUpper(*req.SKU)
		}
		if req.Unit != nil {
			item.Unit = strings.TrimSpace(*req.Unit)
		}
		if req.Price != nil {
			item.Price = req.Price
		}
		if req.LowStockLevel != nil {
			item.LowStockLevel = req.LowStockLevel
		}
		if item.Name == "" || item.Unit == "" {
			return invalid("name and unit must not be empty")
		}
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return domain.Item{}, err
	}

	s.invalidateStock(ctx)
	s.audit(ctx, "item_update", "item", item.ID, "name", item.Name)
	return item, nil
}

// SetRecipe replaces an item's recipe. Edges that would make the recipe graph
// cyclic are rejected, and an item still holding stock cannot gain a recipe.
func (s *Service) SetRecipe(ctx context.Context, itemID string, req domain.RecipeUpdateRequest) (domain.ItemDetail, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ItemDetail{}, err
	}
	itemID = strings.TrimSpace(itemID)
	edges, err := recipeEdges(itemID, req.Lines)
	if err != nil {
		return domain.ItemDetail{}, err
	}

	var item domain.Item
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return fmt.Errorf("item %s: %w", itemID, err)
		}
		item = *found
		if item.Type == domain.ItemTypeRaw && len(edges) > 0 {
			return invalid("raw items cannot have a recipe")
		}
		if len(edges) > 0 {
			lots, err := tx.LockLots(ctx, itemID)
			if err != nil {
				return err
			}
			for _, lot := range lots {
				if lot.Quantity.IsPositive() {
					return invalid("item %s still holds stock", itemID)
				}
			}
		}
		return s.writeRecipe(ctx, tx, itemID, edges)
	})
	if err != nil {
		return domain.ItemDetail{}, err
	}

	s.audit(ctx, "recipe_set", "item", itemID, "recipe_lines", len(edges))
	return domain.ItemDetail{Item: item, Recipe: edges}, nil
}

func (s *Service) writeRecipe(ctx context.Context, tx store.Tx, parentID string, edges []domain.RecipeItem) error {
	childIDs := make([]string, 0, len(edges))
	for _, edge := range edges {
		if _, err := tx.GetItem(ctx, edge.ChildItemID); err != nil {
			return fmt.Errorf("recipe child %s: %w", edge.ChildItemID, err)
		}
		childIDs = append(childIDs, edge.ChildItemID)
	}
	if err := s.resolver.ValidateRecipe(ctx, tx, parentID, childIDs); err != nil {
		return err
	}
	return tx.ReplaceRecipe(ctx, parentID, edges)
}

func recipeEdges(parentID string, lines []domain.RecipeLine) ([]domain.RecipeItem, error) {
	edges := make([]domain.RecipeItem, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for i, line := range lines {
		childID := strings.TrimSpace(line.ChildItemID)
		if childID == "" || !line.Quantity.IsPositive() {
			return nil, invalid("recipe line needs a child item and a positive quantity")
		}
		if err := checkAmounts(&line.Quantity); err != nil {
			return nil, err
		}
		if seen[childID] {
			return nil, invalid("recipe lists %s twice", childID)
		}
		seen[childID] = true
		edges = append(edges, domain.RecipeItem{
			ID:           parentID + "-r" + strconv.Itoa(i+1),
			ParentItemID: parentID,
			ChildItemID:  childID,
			Quantity:     line.Quantity,
		})
	}
	return edges, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, invalid("supplier name is required")
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.audit(ctx, "supplier_create", "supplier", created.ID, "name", created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}
