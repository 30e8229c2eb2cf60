// Package ledger implements FIFO lot costing and recursive bill-of-materials
// consumption on top of a store.Tx. Callers own the transaction; nothing here
// commits or retries.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/xid"
)

// Draw is the part of a single lot taken by one consumption.
type Draw struct {
	LotID    string
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

func (d Draw) Cost() decimal.Decimal {
	return d.Quantity.Mul(d.UnitCost)
}

type Consumption struct {
	ItemID   string
	Quantity decimal.Decimal
	Cost     decimal.Decimal
	Draws    []Draw
}

type Ledger struct {
	now func() time.Time
}

// New returns a Ledger stamping new lots with now. A nil now uses the UTC wall clock.
func New(now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{now: now}
}

// Consume takes qty from itemID's lots oldest first and returns the FIFO cost.
// Availability is checked before any lot is touched, so a shortfall leaves
// every lot unchanged. Exhausted lots stay in place at zero.
func (l *Ledger) Consume(ctx context.Context, tx store.Tx, itemID string, qty decimal.Decimal) (Consumption, error) {
	result := Consumption{ItemID: itemID, Quantity: qty, Cost: decimal.Zero}
	if qty.IsNegative() {
		return result, fmt.Errorf("consume %s: negative quantity %s: %w", itemID, qty, store.ErrInvalidTransaction)
	}
	if qty.IsZero() {
		return result, nil
	}

	lots, err := tx.LockLots(ctx, itemID)
	if err != nil {
		return result, fmt.Errorf("lock lots for %s: %w", itemID, err)
	}

	available := decimal.Zero
	for _, lot := range lots {
		available = available.Add(lot.Quantity)
	}
	if available.LessThan(qty) {
		return result, &store.InsufficientInventoryError{ItemID: itemID, Available: available, Required: qty}
	}

	remaining := qty
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		if !lot.Quantity.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, lot.Quantity)
		if err := tx.SetLotQuantity(ctx, lot.ID, lot.Quantity.Sub(take)); err != nil {
			return result, fmt.Errorf("draw lot %s: %w", lot.ID, err)
		}
		draw := Draw{LotID: lot.ID, Quantity: take, UnitCost: lot.UnitCost}
		result.Draws = append(result.Draws, draw)
		result.Cost = result.Cost.Add(draw.Cost())
		remaining = remaining.Sub(take)
	}

	return result, nil
}

// Add creates a new lot for itemID. Lots are never merged.
func (l *Ledger) Add(ctx context.Context, tx store.Tx, itemID string, qty decimal.Decimal, unitCost decimal.Decimal) (*domain.InventoryLot, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("add lot for %s: quantity %s must be positive: %w", itemID, qty, store.ErrInvalidTransaction)
	}
	if unitCost.IsNegative() {
		return nil, fmt.Errorf("add lot for %s: negative unit cost %s: %w", itemID, unitCost, store.ErrInvalidTransaction)
	}

	lot, err := tx.InsertLot(ctx, domain.InventoryLot{
		ID:         xid.New("lot"),
		ItemID:     itemID,
		Quantity:   qty,
		UnitCost:   unitCost,
		AcquiredAt: l.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("insert lot for %s: %w", itemID, err)
	}
	return lot, nil
}
