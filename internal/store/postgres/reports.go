package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
)

// CurrentStock sums lot quantities per item. Items without lots report zero.
func (s *Store) CurrentStock(ctx context.Context) ([]domain.StockLevel, error) {
	query, args, err := s.builder.
		Select(
			"i.id AS item_id",
			"i.name AS item_name",
			"COALESCE(SUM(l.quantity), 0) AS total_quantity",
			"i.unit AS unit",
			"i.low_stock_level AS low_stock_level",
		).
		From("items i").
		LeftJoin("inventory_lots l ON l.item_id = i.id").
		GroupBy("i.id", "i.name", "i.unit", "i.low_stock_level").
		OrderBy("i.name ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	levels := make([]domain.StockLevel, 0, 32)
	if err := sqlscan.Select(ctx, s.db, &levels, query, args...); err != nil {
		return nil, err
	}
	return levels, nil
}

type summaryRow struct {
	Revenue    decimal.Decimal `db:"revenue"`
	COGS       decimal.Decimal `db:"cogs"`
	OrderCount int             `db:"order_count"`
}

func (s *Store) SalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	q := s.builder.
		Select("COALESCE(SUM(total), 0) AS revenue", "COALESCE(SUM(cogs), 0) AS cogs", "COUNT(*) AS order_count").
		From("sales")
	if !from.IsZero() {
		q = q.Where(squirrel.GtOrEq{"created_at": from})
	}
	if !to.IsZero() {
		q = q.Where(squirrel.Lt{"created_at": to})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return domain.SalesSummary{}, err
	}

	var row summaryRow
	if err := sqlscan.Get(ctx, s.db, &row, query, args...); err != nil {
		return domain.SalesSummary{}, err
	}
	return domain.NewSalesSummary(from, to, row.Revenue, row.COGS, row.OrderCount), nil
}

// TopProducts sums sale lines per item in [from, to), highest revenue first.
func (s *Store) TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.TopProduct, error) {
	q := s.builder.
		Select(
			"si.item_id AS item_id",
			"i.name AS item_name",
			"COALESCE(i.sku, '') AS sku",
			"COALESCE(SUM(si.qty), 0) AS total_qty",
			"COALESCE(SUM(si.line_total), 0) AS total_revenue",
		).
		From("sale_items si").
		Join("sales s ON s.id = si.sale_id").
		Join("items i ON i.id = si.item_id").
		GroupBy("si.item_id", "i.name", "i.sku").
		OrderBy("total_revenue DESC", "i.name ASC")
	if !from.IsZero() {
		q = q.Where(squirrel.GtOrEq{"s.created_at": from})
	}
	if !to.IsZero() {
		q = q.Where(squirrel.Lt{"s.created_at": to})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	products := make([]domain.TopProduct, 0, 16)
	if err := sqlscan.Select(ctx, s.db, &products, query, args...); err != nil {
		return nil, err
	}
	return products, nil
}
