package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/ledger"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/xid"
)

// CreateSale records a sale and draws every line down through its recipe in
// one transaction. Revenue is price times quantity; COGS is the FIFO cost of
// the leaf stock consumed. Nothing is persisted unless every line succeeds.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	req.PaymentType = domain.PaymentType(trimUpper(string(req.PaymentType)))
	if req.PaymentType == "" {
		req.PaymentType = domain.PaymentCash
	}
	if !req.PaymentType.Valid() {
		return domain.SaleResponse{}, invalid("unsupported payment type %q", req.PaymentType)
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, invalid("sale has no items")
	}
	for _, line := range req.Items {
		if strings.TrimSpace(line.ItemID) == "" || line.Qty < 1 {
			return domain.SaleResponse{}, invalid("sale line needs an item and a positive qty")
		}
	}

	var (
		sale      domain.Sale
		duplicate bool
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		duplicate = false
		if req.IdempotencyKey != "" {
			existing, err := tx.FindSaleByIdempotency(ctx, req.IdempotencyKey)
			if err == nil {
				sale, duplicate = *existing, true
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		if req.SessionID != "" {
			session, err := tx.GetSessionForUpdate(ctx, req.SessionID)
			if err != nil {
				return fmt.Errorf("session %s: %w", req.SessionID, err)
			}
			if !session.Open() {
				return fmt.Errorf("session %s: %w", req.SessionID, store.ErrSessionClosed)
			}
		}

		items := make([]domain.Item, 0, len(req.Items))
		for _, line := range req.Items {
			item, err := tx.GetItem(ctx, strings.TrimSpace(line.ItemID))
			if err != nil {
				return fmt.Errorf("item %s: %w", line.ItemID, err)
			}
			if !item.Sellable() {
				return fmt.Errorf("item %s (%s): %w", item.ID, item.Name, store.ErrInvalidSaleItem)
			}
			items = append(items, *item)
		}

		sale = domain.Sale{
			ID:             xid.New("sale"),
			SessionID:      req.SessionID,
			UserID:         actorName(ctx),
			IdempotencyKey: req.IdempotencyKey,
			Total:          decimal.Zero,
			COGS:           decimal.Zero,
			PaymentType:    req.PaymentType,
			CreatedAt:      s.now(),
			Items:          make([]domain.SaleItem, 0, len(req.Items)),
		}
		entry := ledger.Entry{Kind: domain.MovementSaleConsume, Reference: sale.ID}

		for i, line := range req.Items {
			item := items[i]
			qty := decimal.NewFromInt(int64(line.Qty))
			cost, err := s.resolver.ResolveAndConsume(ctx, tx, item.ID, qty, entry)
			if err != nil {
				return err
			}
			lineTotal := item.Price.Mul(qty)
			sale.Items = append(sale.Items, domain.SaleItem{
				ID:        xid.New("si"),
				SaleID:    sale.ID,
				ItemID:    item.ID,
				Qty:       line.Qty,
				UnitPrice: *item.Price,
				LineTotal: lineTotal,
				Status:    domain.StatusPending,
			})
			sale.Total = sale.Total.Add(lineTotal)
			sale.COGS = sale.COGS.Add(cost)
		}

		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	if !duplicate {
		s.invalidateStock(ctx)
		s.audit(ctx, "sale_create", "sale", sale.ID,
			"total", sale.Total.String(),
			"cogs", sale.COGS.String(),
			"lines", len(sale.Items),
			"session_id", sale.SessionID,
		)
	}

	return domain.SaleResponse{Sale: sale, Duplicate: duplicate}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// UpdateSaleItemStatus advances a sale line one step through the kitchen
// workflow. Unknown values and any move outside the transition table fail
// with store.ErrInvalidStatus.
func (s *Service) UpdateSaleItemStatus(ctx context.Context, saleItemID string, rawStatus string) (domain.SaleItem, error) {
	next, ok := domain.ParseFulfillmentStatus(rawStatus)
	if !ok {
		return domain.SaleItem{}, fmt.Errorf("%w: %q", store.ErrInvalidStatus, rawStatus)
	}
	saleItemID = strings.TrimSpace(saleItemID)

	var updated domain.SaleItem
	var previous domain.FulfillmentStatus
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		line, err := tx.GetSaleItemForUpdate(ctx, saleItemID)
		if err != nil {
			return err
		}
		if !line.Status.CanTransitionTo(next) {
			return &store.StatusTransitionError{From: line.Status, To: next}
		}
		if err := tx.SetSaleItemStatus(ctx, line.ID, next); err != nil {
			return err
		}
		previous = line.Status
		updated = *line
		updated.Status = next
		return nil
	})
	if err != nil {
		return domain.SaleItem{}, err
	}

	s.audit(ctx, "sale_item_status", "sale_item", updated.ID, "from", previous, "to", next)
	return updated, nil
}

func (s *Service) ListPendingOrders(ctx context.Context) ([]domain.PendingOrder, error) {
	return s.repo.ListPendingOrders(ctx)
}
