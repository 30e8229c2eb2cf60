package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/cache"
	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/ledger"
	"pizzatruck/backend/internal/logger"
	"pizzatruck/backend/internal/store"
)

var ErrAdminRequired = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	stockCache cache.StockCache
	ledger     *ledger.Ledger
	resolver   *ledger.Resolver
	stockTTL   time.Duration
	now        func() time.Time

	// stockVersion counts committed ledger writes; a stock report read
	// across a write is not cached.
	stockVersion atomic.Uint64
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithStockCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.stockTTL = ttl }
}

func New(repo store.Repository, stockCache cache.StockCache, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		stockCache: stockCache,
		stockTTL:   30 * time.Second,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stockCache == nil {
		s.stockCache = cache.NoopStockCache{}
	}
	s.ledger = ledger.New(s.now)
	s.resolver = ledger.NewResolver(s.ledger)
	return s
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrAdminRequired
	}
	return nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

// audit writes a structured audit line for a committed change.
func (s *Service) audit(ctx context.Context, action string, entityType string, entityID string, keysAndValues ...any) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	fields := append([]any{
		"audit", true,
		"action", action,
		"entity_type", entityType,
		"entity_id", entityID,
		"actor", actor.Username,
		"actor_role", actor.Role,
	}, keysAndValues...)
	logger.Info(ctx, "audit", fields...)
}

// invalidateStock drops the cached stock report after a committed ledger write.
func (s *Service) invalidateStock(ctx context.Context) {
	s.stockVersion.Add(1)
	s.dropStockCache(ctx)
}

func (s *Service) dropStockCache(ctx context.Context) {
	if err := s.stockCache.Invalidate(ctx); err != nil {
		logger.Warn(ctx, "stock cache invalidate failed", "error", err)
	}
}

// ensureStocked rejects items whose stock lives in their recipe children.
func ensureStocked(ctx context.Context, tx store.Tx, itemID string) error {
	edges, err := tx.ListRecipe(ctx, itemID)
	if err != nil {
		return err
	}
	if len(edges) > 0 {
		return fmt.Errorf("item %s: %w", itemID, store.ErrNotStocked)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

// checkAmounts bounds request decimals before any of them reach the ledger.
func checkAmounts(values ...*decimal.Decimal) error {
	for _, value := range values {
		if value == nil {
			continue
		}
		if err := domain.CheckQuantity(*value); err != nil {
			return fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
		}
	}
	return nil
}

func nonNegative(value *decimal.Decimal) bool {
	return value == nil || !value.IsNegative()
}

func trimUpper(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
