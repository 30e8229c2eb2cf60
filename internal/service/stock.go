package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/ledger"
	"pizzatruck/backend/internal/logger"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/xid"
)

const (
	defaultMovementLimit = 200
	maxMovementLimit     = 1000
)

// AdjustStock applies a signed manual correction. A positive quantity adds a
// zero-cost lot with an ADJUSTMENT movement; a negative one is consumed FIFO
// and journaled as WASTAGE. Zero is rejected.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustmentResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	itemID := strings.TrimSpace(req.ItemID)
	if itemID == "" {
		return domain.StockAdjustmentResponse{}, invalid("item_id is required")
	}
	qty, err := domain.ParseQuantity(req.Quantity)
	if err != nil {
		return domain.StockAdjustmentResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	if qty.IsZero() {
		return domain.StockAdjustmentResponse{}, invalid("adjustment quantity must not be zero")
	}

	resp := domain.StockAdjustmentResponse{ItemID: itemID, Quantity: qty, Cost: decimal.Zero}
	reference := xid.New("adj")
	note := strings.TrimSpace(req.Note)

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetItem(ctx, itemID); err != nil {
			return fmt.Errorf("item %s: %w", itemID, err)
		}
		if err := ensureStocked(ctx, tx, itemID); err != nil {
			return err
		}

		if qty.IsPositive() {
			resp.Kind = domain.MovementAdjustment
			lot, err := s.ledger.Add(ctx, tx, itemID, qty, decimal.Zero)
			if err != nil {
				return err
			}
			return s.ledger.RecordLot(ctx, tx, *lot, ledger.Entry{Kind: resp.Kind, Reference: reference, Note: note})
		}

		resp.Kind = domain.MovementWastage
		consumed, err := s.ledger.Consume(ctx, tx, itemID, qty.Abs())
		if err != nil {
			return err
		}
		resp.Cost = consumed.Cost
		return s.ledger.RecordDraws(ctx, tx, itemID, consumed.Draws, ledger.Entry{Kind: resp.Kind, Reference: reference, Note: note})
	})
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	s.invalidateStock(ctx)
	s.audit(ctx, "stock_adjust", "item", itemID, "quantity", qty.String(), "kind", resp.Kind, "reference", reference)
	return resp, nil
}

// CreatePurchase receives stock from a supplier. Each line becomes a new lot
// costed at total/quantity and a PURCHASE movement referencing the purchase.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Purchase{}, err
	}
	if len(req.Items) == 0 {
		return domain.Purchase{}, invalid("purchase has no items")
	}
	for _, line := range req.Items {
		if strings.TrimSpace(line.ItemID) == "" || !line.Quantity.IsPositive() || line.TotalCost.IsNegative() {
			return domain.Purchase{}, invalid("purchase line needs an item, a positive quantity and a non-negative cost")
		}
		if err := checkAmounts(&line.Quantity, &line.TotalCost); err != nil {
			return domain.Purchase{}, err
		}
	}

	purchase := domain.Purchase{
		ID:         xid.New("pur"),
		SupplierID: strings.TrimSpace(req.SupplierID),
		Notes:      strings.TrimSpace(req.Notes),
		TotalCost:  decimal.Zero,
		CreatedBy:  actorName(ctx),
		CreatedAt:  s.now(),
	}

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		purchase.Items = purchase.Items[:0]
		purchase.TotalCost = decimal.Zero
		if purchase.SupplierID != "" {
			if _, err := tx.GetSupplier(ctx, purchase.SupplierID); err != nil {
				return fmt.Errorf("supplier %s: %w", purchase.SupplierID, err)
			}
		}
		entry := ledger.Entry{Kind: domain.MovementPurchase, Reference: purchase.ID, Note: purchase.Notes}

		for _, line := range req.Items {
			itemID := strings.TrimSpace(line.ItemID)
			if _, err := tx.GetItem(ctx, itemID); err != nil {
				return fmt.Errorf("item %s: %w", itemID, err)
			}
			if err := ensureStocked(ctx, tx, itemID); err != nil {
				return err
			}
			unitCost := line.TotalCost.DivRound(line.Quantity, 6)
			lot, err := s.ledger.Add(ctx, tx, itemID, line.Quantity, unitCost)
			if err != nil {
				return err
			}
			if err := s.ledger.RecordLot(ctx, tx, *lot, entry); err != nil {
				return err
			}
			purchase.Items = append(purchase.Items, domain.PurchaseItem{
				ID:         xid.New("pi"),
				PurchaseID: purchase.ID,
				ItemID:     itemID,
				LotID:      lot.ID,
				Quantity:   line.Quantity,
				UnitCost:   unitCost,
				TotalCost:  line.TotalCost,
			})
			purchase.TotalCost = purchase.TotalCost.Add(line.TotalCost)
		}
		return tx.InsertPurchase(ctx, purchase)
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.invalidateStock(ctx)
	s.audit(ctx, "purchase_create", "purchase", purchase.ID, "total_cost", purchase.TotalCost.String(), "lines", len(purchase.Items))
	return purchase, nil
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	purchase, err := s.repo.GetPurchase(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListPurchases(ctx, limit)
}

// GetCurrentStock returns on-hand quantity per item ordered by name. Results
// are served from the stock cache until the next ledger write. A report that
// overlapped a write made by this process is returned but not kept; writes
// made by other processes sharing the cache are bounded by the TTL.
func (s *Service) GetCurrentStock(ctx context.Context) ([]domain.StockLevel, error) {
	if cached, hit, err := s.stockCache.Get(ctx); err != nil {
		logger.Warn(ctx, "stock cache read failed", "error", err)
	} else if hit {
		return cached, nil
	}

	version := s.stockVersion.Load()
	levels, err := s.repo.CurrentStock(ctx)
	if err != nil {
		return nil, err
	}
	if s.stockVersion.Load() != version {
		return levels, nil
	}
	if err := s.stockCache.Set(ctx, levels, s.stockTTL); err != nil {
		logger.Warn(ctx, "stock cache write failed", "error", err)
	}
	// A write may have invalidated between the check and the Set.
	if s.stockVersion.Load() != version {
		s.dropStockCache(ctx)
	}
	return levels, nil
}

// ListLowStock returns items with a threshold whose stock is strictly below it.
func (s *Service) ListLowStock(ctx context.Context) ([]domain.StockLevel, error) {
	levels, err := s.GetCurrentStock(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.StockLevel, 0, len(levels))
	for _, level := range levels {
		if level.LowStockLevel != nil && level.TotalQuantity.LessThan(*level.LowStockLevel) {
			low = append(low, level)
		}
	}
	return low, nil
}

func (s *Service) ListLots(ctx context.Context, itemID string) ([]domain.InventoryLot, error) {
	return s.repo.ListLots(ctx, strings.TrimSpace(itemID))
}

func (s *Service) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultMovementLimit
	}
	if filter.Limit > maxMovementLimit {
		filter.Limit = maxMovementLimit
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return nil, invalid("movement range end must be after start")
	}
	return s.repo.ListMovements(ctx, filter)
}
