package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"pizzatruck/backend/internal/domain"
)

const defaultTopProducts = 10

func (s *Service) SalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return domain.SalesSummary{}, invalid("summary range end must be after start")
	}
	return s.repo.SalesSummary(ctx, from.UTC(), to.UTC())
}

// TodaySummary covers the current UTC day.
func (s *Service) TodaySummary(ctx context.Context) (domain.SalesSummary, error) {
	from, to := s.today()
	return s.SalesSummary(ctx, from, to)
}

func (s *Service) today() (time.Time, time.Time) {
	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

// TopProducts ranks items sold in [from, to) by revenue. An empty range
// means the current UTC day.
func (s *Service) TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error) {
	if from.IsZero() && to.IsZero() {
		from, to = s.today()
	}
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return nil, invalid("report range end must be after start")
	}
	if limit <= 0 || limit > 100 {
		limit = defaultTopProducts
	}
	return s.repo.TopProducts(ctx, from.UTC(), to.UTC(), limit)
}

// RecentActivity merges the newest sales and expenses into one feed, newest
// first. Each source contributes at most half of limit.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	half := max(1, limit/2)

	sales, err := s.repo.ListRecentSales(ctx, half)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, half)
	if err != nil {
		return nil, err
	}

	feed := make([]domain.ActivityEntry, 0, len(sales)+len(expenses))
	for _, sale := range sales {
		feed = append(feed, domain.ActivityEntry{
			Type:        domain.ActivitySale,
			ID:          sale.ID,
			Description: "Sale of $" + sale.Total.StringFixed(2),
			Amount:      sale.Total,
			CreatedAt:   sale.CreatedAt,
		})
	}
	for _, expense := range expenses {
		feed = append(feed, domain.ActivityEntry{
			Type:        domain.ActivityExpense,
			ID:          expense.ID,
			Description: expense.Label,
			Amount:      expense.Amount,
			CreatedAt:   expense.CreatedAt,
		})
	}
	slices.SortStableFunc(feed, func(a, b domain.ActivityEntry) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if len(feed) > limit {
		feed = feed[:limit]
	}
	return feed, nil
}
