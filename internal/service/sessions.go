package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/ledger"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/xid"
)

type stockLine struct {
	itemID string
	qty    decimal.Decimal
}

// parseStockLines validates text quantities once, at the edge.
func parseStockLines(lines []domain.SessionStockLine) ([]stockLine, error) {
	parsed := make([]stockLine, 0, len(lines))
	for _, line := range lines {
		itemID := strings.TrimSpace(line.ItemID)
		if itemID == "" {
			return nil, invalid("inventory line needs an item_id")
		}
		qty, err := domain.ParseQuantity(line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
		}
		if qty.IsNegative() {
			return nil, invalid("inventory quantity for %s must not be negative", itemID)
		}
		parsed = append(parsed, stockLine{itemID: itemID, qty: qty})
	}
	return parsed, nil
}

// OpenSessionAndMoveStock opens a cash session and sends the listed stock out
// to the truck in the same transaction.
func (s *Service) OpenSessionAndMoveStock(ctx context.Context, req domain.SessionOpenRequest) (domain.CashSession, error) {
	if err := checkAmounts(&req.OpeningFloat); err != nil {
		return domain.CashSession{}, err
	}
	if req.OpeningFloat.IsNegative() {
		return domain.CashSession{}, invalid("opening float must not be negative")
	}
	lines, err := parseStockLines(req.Inventory)
	if err != nil {
		return domain.CashSession{}, err
	}
	if len(lines) == 0 {
		return domain.CashSession{}, invalid("opening inventory is required")
	}

	var session domain.CashSession
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetActiveSession(ctx); err == nil {
			return store.ErrSessionAlreadyOpen
		} else if !isNotFound(err) {
			return err
		}

		session = domain.CashSession{
			ID:           xid.New("sess"),
			OpenedAt:     s.now(),
			OpenedBy:     actorName(ctx),
			OpeningFloat: req.OpeningFloat,
			Notes:        strings.TrimSpace(req.Notes),
		}
		if err := tx.InsertSession(ctx, session); err != nil {
			return err
		}
		snapshots, err := s.transferStock(ctx, tx, session.ID, lines, domain.SnapshotOpening)
		if err != nil {
			return err
		}
		session.Snapshots = snapshots
		return nil
	})
	if err != nil {
		return domain.CashSession{}, err
	}

	s.invalidateStock(ctx)
	s.audit(ctx, "session_open", "cash_session", session.ID, "opening_float", session.OpeningFloat.String(), "lines", len(lines))
	return session, nil
}

// CloseCashSession closes an open session. Inventory lines, when present, are
// returned to the back of house as a CLOSING transfer in the same transaction.
func (s *Service) CloseCashSession(ctx context.Context, req domain.SessionCloseRequest) (domain.CashSession, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return domain.CashSession{}, invalid("session_id is required")
	}
	if err := checkAmounts(&req.ClosingFloat); err != nil {
		return domain.CashSession{}, err
	}
	if req.ClosingFloat.IsNegative() {
		return domain.CashSession{}, invalid("closing float must not be negative")
	}
	lines, err := parseStockLines(req.Inventory)
	if err != nil {
		return domain.CashSession{}, err
	}

	var closed domain.CashSession
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetSessionForUpdate(ctx, sessionID); err != nil {
			return fmt.Errorf("session %s: %w", sessionID, err)
		}
		session, err := tx.CloseSession(ctx, sessionID, req.ClosingFloat, strings.TrimSpace(req.Notes), actorName(ctx), s.now())
		if err != nil {
			return err
		}
		closed = *session
		if len(lines) == 0 {
			return nil
		}
		snapshots, err := s.transferStock(ctx, tx, sessionID, lines, domain.SnapshotClosing)
		if err != nil {
			return err
		}
		closed.Snapshots = snapshots
		return nil
	})
	if err != nil {
		return domain.CashSession{}, err
	}

	if len(lines) > 0 {
		s.invalidateStock(ctx)
	}
	s.audit(ctx, "session_close", "cash_session", closed.ID, "closing_float", req.ClosingFloat.String(), "lines", len(lines))
	return closed, nil
}

// MoveStockForSession runs a standalone OPENING or CLOSING transfer for an
// existing session. OPENING needs the session to be open; CLOSING is also
// accepted after the session was closed.
func (s *Service) MoveStockForSession(ctx context.Context, sessionID string, inventory []domain.SessionStockLine, direction domain.SnapshotType) ([]domain.SessionInventorySnapshot, error) {
	sessionID = strings.TrimSpace(sessionID)
	direction = domain.SnapshotType(trimUpper(string(direction)))
	if direction != domain.SnapshotOpening && direction != domain.SnapshotClosing {
		return nil, invalid("unknown transfer direction %q", direction)
	}
	lines, err := parseStockLines(inventory)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, invalid("inventory is required")
	}

	var snapshots []domain.SessionInventorySnapshot
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("session %s: %w", sessionID, err)
		}
		if direction == domain.SnapshotOpening && !session.Open() {
			return fmt.Errorf("session %s: %w", sessionID, store.ErrSessionClosed)
		}
		snapshots, err = s.transferStock(ctx, tx, sessionID, lines, direction)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStock(ctx)
	s.audit(ctx, "session_transfer", "cash_session", sessionID, "direction", direction, "lines", len(lines))
	return snapshots, nil
}

// transferStock moves each line out of (OPENING) or back into (CLOSING) the
// lot ledger and records a snapshot per line. Zero lines are snapshotted
// without touching stock.
func (s *Service) transferStock(ctx context.Context, tx store.Tx, sessionID string, lines []stockLine, direction domain.SnapshotType) ([]domain.SessionInventorySnapshot, error) {
	kind := domain.MovementSessionOut
	if direction == domain.SnapshotClosing {
		kind = domain.MovementSessionIn
	}
	entry := ledger.Entry{Kind: kind, Reference: sessionID}

	snapshots := make([]domain.SessionInventorySnapshot, 0, len(lines))
	for _, line := range lines {
		if _, err := tx.GetItem(ctx, line.itemID); err != nil {
			return nil, fmt.Errorf("item %s: %w", line.itemID, err)
		}
		if err := ensureStocked(ctx, tx, line.itemID); err != nil {
			return nil, err
		}

		if line.qty.IsPositive() {
			switch direction {
			case domain.SnapshotOpening:
				consumed, err := s.ledger.Consume(ctx, tx, line.itemID, line.qty)
				if err != nil {
					return nil, err
				}
				if err := s.ledger.RecordDraws(ctx, tx, line.itemID, consumed.Draws, entry); err != nil {
					return nil, err
				}
			case domain.SnapshotClosing:
				lot, err := s.ledger.Add(ctx, tx, line.itemID, line.qty, decimal.Zero)
				if err != nil {
					return nil, err
				}
				if err := s.ledger.RecordLot(ctx, tx, *lot, entry); err != nil {
					return nil, err
				}
			}
		}

		snapshot := domain.SessionInventorySnapshot{
			ID:        xid.New("snap"),
			SessionID: sessionID,
			ItemID:    line.itemID,
			Quantity:  line.qty,
			Type:      direction,
			CreatedAt: s.now(),
		}
		if err := tx.InsertSnapshot(ctx, snapshot); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

func (s *Service) GetActiveSession(ctx context.Context) (domain.CashSession, error) {
	session, err := s.repo.GetActiveSession(ctx)
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (domain.CashSession, error) {
	session, err := s.repo.GetSession(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

func (s *Service) ListSessions(ctx context.Context, limit int) ([]domain.CashSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListSessions(ctx, limit)
}

// SessionReconciliation compares what went out and came back against what
// the session's sales consumed and what was written off while it was open.
func (s *Service) SessionReconciliation(ctx context.Context, sessionID string) (domain.SessionReconciliation, error) {
	session, err := s.repo.GetSession(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return domain.SessionReconciliation{}, err
	}

	lines := make(map[string]*domain.ReconciliationLine)
	order := make([]string, 0, len(session.Snapshots))
	lineFor := func(itemID string) *domain.ReconciliationLine {
		line, ok := lines[itemID]
		if !ok {
			line = &domain.ReconciliationLine{ItemID: itemID, Opening: decimal.Zero, Closing: decimal.Zero, Consumed: decimal.Zero, Wastage: decimal.Zero}
			lines[itemID] = line
			order = append(order, itemID)
		}
		return line
	}
	for _, snap := range session.Snapshots {
		line := lineFor(snap.ItemID)
		if snap.Type == domain.SnapshotOpening {
			line.Opening = line.Opening.Add(snap.Quantity)
		} else {
			line.Closing = line.Closing.Add(snap.Quantity)
		}
	}

	sales, err := s.repo.ListSessionSales(ctx, session.ID)
	if err != nil {
		return domain.SessionReconciliation{}, err
	}
	for _, sale := range sales {
		moves, err := s.repo.ListMovements(ctx, domain.MovementFilter{Kind: domain.MovementSaleConsume, Reference: sale.ID})
		if err != nil {
			return domain.SessionReconciliation{}, err
		}
		for _, m := range moves {
			if line, ok := lines[m.ItemID]; ok {
				line.Consumed = line.Consumed.Sub(m.Quantity)
			}
		}
	}

	wasteFilter := domain.MovementFilter{Kind: domain.MovementWastage, From: session.OpenedAt}
	if session.ClosedAt != nil {
		wasteFilter.To = *session.ClosedAt
	}
	wasted, err := s.repo.ListMovements(ctx, wasteFilter)
	if err != nil {
		return domain.SessionReconciliation{}, err
	}
	for _, m := range wasted {
		if line, ok := lines[m.ItemID]; ok {
			line.Wastage = line.Wastage.Sub(m.Quantity)
		}
	}

	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return domain.SessionReconciliation{}, err
	}
	names := make(map[string]string, len(items))
	for _, item := range items {
		names[item.ID] = item.Name
	}

	out := domain.SessionReconciliation{Session: *session, Lines: make([]domain.ReconciliationLine, 0, len(order))}
	for _, itemID := range order {
		line := lines[itemID]
		line.ItemName = names[itemID]
		line.Discrepancy = line.Opening.Sub(line.Closing).Sub(line.Consumed).Sub(line.Wastage)
		out.Lines = append(out.Lines, *line)
	}
	slices.SortFunc(out.Lines, func(a, b domain.ReconciliationLine) int {
		return strings.Compare(a.ItemName, b.ItemName)
	})
	return out, nil
}
