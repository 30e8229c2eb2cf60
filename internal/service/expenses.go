package service

import (
	"context"
	"strings"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/xid"
)

// CreateExpense records money paid out of the truck that bought no stock.
// The ledger is not touched. PaidVia defaults to CASH.
func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Expense{}, err
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return domain.Expense{}, invalid("expense label is required")
	}
	if err := checkAmounts(&req.Amount); err != nil {
		return domain.Expense{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, invalid("expense amount must be positive")
	}
	paidVia := domain.PaymentType(trimUpper(string(req.PaidVia)))
	if paidVia == "" {
		paidVia = domain.PaymentCash
	}
	if !paidVia.Valid() {
		return domain.Expense{}, invalid("unknown payment type %q", req.PaidVia)
	}

	expense := domain.Expense{
		ID:        xid.New("exp"),
		Label:     label,
		Amount:    req.Amount,
		PaidVia:   paidVia,
		CreatedBy: actorName(ctx),
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateExpense(ctx, expense); err != nil {
		return domain.Expense{}, err
	}
	s.audit(ctx, "expense_create", "expense", expense.ID, "amount", expense.Amount.String(), "paid_via", expense.PaidVia)
	return expense, nil
}

func (s *Service) ListExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListExpenses(ctx, limit)
}
