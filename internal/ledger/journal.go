package ledger

import (
	"context"
	"fmt"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/xid"
)

// Entry tags the movements written for one cause.
type Entry struct {
	Kind      domain.MovementKind
	Reference string
	Note      string
}

// RecordDraws writes one negative movement per lot drawn.
func (l *Ledger) RecordDraws(ctx context.Context, tx store.Tx, itemID string, draws []Draw, entry Entry) error {
	at := l.now()
	for _, draw := range draws {
		err := tx.InsertMovement(ctx, domain.StockMovement{
			ID:        xid.New("mv"),
			Kind:      entry.Kind,
			ItemID:    itemID,
			LotID:     draw.LotID,
			Quantity:  draw.Quantity.Neg(),
			UnitCost:  draw.UnitCost,
			Reference: entry.Reference,
			Note:      entry.Note,
			CreatedAt: at,
		})
		if err != nil {
			return fmt.Errorf("record %s movement for %s: %w", entry.Kind, itemID, err)
		}
	}
	return nil
}

// RecordLot writes the positive movement that pairs with a newly added lot.
func (l *Ledger) RecordLot(ctx context.Context, tx store.Tx, lot domain.InventoryLot, entry Entry) error {
	err := tx.InsertMovement(ctx, domain.StockMovement{
		ID:        xid.New("mv"),
		Kind:      entry.Kind,
		ItemID:    lot.ItemID,
		LotID:     lot.ID,
		Quantity:  lot.Quantity,
		UnitCost:  lot.UnitCost,
		Reference: entry.Reference,
		Note:      entry.Note,
		CreatedAt: l.now(),
	})
	if err != nil {
		return fmt.Errorf("record %s movement for %s: %w", entry.Kind, lot.ItemID, err)
	}
	return nil
}
