package ledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/store"
)

// Resolver walks the recipe graph and consumes leaf stock.
type Resolver struct {
	ledger *Ledger
}

func NewResolver(l *Ledger) *Resolver {
	return &Resolver{ledger: l}
}

// ResolveAndConsume consumes qty units of itemID and returns the summed leaf
// FIFO cost. Items with recipe edges hold no lots and are expanded into their
// children scaled by the edge quantity; items without edges are consumed from
// their own lots with one movement per lot touched. Any failure leaves the
// caller's transaction to roll back.
func (r *Resolver) ResolveAndConsume(ctx context.Context, tx store.Tx, itemID string, qty decimal.Decimal, entry Entry) (decimal.Decimal, error) {
	return r.resolve(ctx, tx, itemID, qty, entry, make([]string, 0, 8))
}

func (r *Resolver) resolve(ctx context.Context, tx store.Tx, itemID string, qty decimal.Decimal, entry Entry, path []string) (decimal.Decimal, error) {
	if slices.Contains(path, itemID) {
		return decimal.Zero, &store.CyclicRecipeError{Path: append(slices.Clone(path), itemID)}
	}

	edges, err := tx.ListRecipe(ctx, itemID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load recipe for %s: %w", itemID, err)
	}

	if len(edges) == 0 {
		consumed, err := r.ledger.Consume(ctx, tx, itemID, qty)
		if err != nil {
			return decimal.Zero, err
		}
		if err := r.ledger.RecordDraws(ctx, tx, itemID, consumed.Draws, entry); err != nil {
			return decimal.Zero, err
		}
		return consumed.Cost, nil
	}

	path = append(path, itemID)
	total := decimal.Zero
	for _, edge := range edges {
		cost, err := r.resolve(ctx, tx, edge.ChildItemID, qty.Mul(edge.Quantity), entry, path)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	return total, nil
}

// ValidateRecipe fails with a CyclicRecipeError when giving parentID the
// children childIDs would let the recipe graph reach parentID again.
func (r *Resolver) ValidateRecipe(ctx context.Context, tx store.Tx, parentID string, childIDs []string) error {
	cleared := make(map[string]bool)
	for _, childID := range childIDs {
		if err := reaches(ctx, tx, childID, parentID, []string{parentID}, cleared); err != nil {
			return err
		}
	}
	return nil
}

func reaches(ctx context.Context, tx store.Tx, from string, target string, path []string, cleared map[string]bool) error {
	if from == target || slices.Contains(path[1:], from) {
		return &store.CyclicRecipeError{Path: append(slices.Clone(path), from)}
	}
	if cleared[from] {
		return nil
	}

	edges, err := tx.ListRecipe(ctx, from)
	if err != nil {
		return fmt.Errorf("load recipe for %s: %w", from, err)
	}
	path = append(path, from)
	for _, edge := range edges {
		if err := reaches(ctx, tx, edge.ChildItemID, target, path, cleared); err != nil {
			return err
		}
	}
	cleared[from] = true
	return nil
}
