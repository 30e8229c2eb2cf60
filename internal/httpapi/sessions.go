package httpapi

import (
	"net/http"
	"strings"

	"pizzatruck/backend/internal/domain"
)

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sessions, err := a.service.ListSessions(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 20, 200))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *API) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SessionOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	session, err := a.service.OpenSessionAndMoveStock(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SessionCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	session, err := a.service.CloseCashSession(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleSessionActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	session, err := a.service.GetActiveSession(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type sessionTransferRequest struct {
	Direction string                    `json:"direction"`
	Inventory []domain.SessionStockLine `json:"inventory"`
}

// handleSessionActions serves /api/v1/sessions/{id}, /transfer and /reconciliation.
func (a *API) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r, "/api/v1/sessions/")
	if len(parts) == 0 || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		session, err := a.service.GetSession(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
		return
	}

	switch parts[1] {
	case "transfer":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req sessionTransferRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		direction := domain.SnapshotType(strings.ToUpper(strings.TrimSpace(req.Direction)))
		snapshots, err := a.service.MoveStockForSession(r.Context(), sessionID, req.Inventory, direction)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"snapshots": snapshots})
	case "reconciliation":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		report, err := a.service.SessionReconciliation(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	default:
		http.NotFound(w, r)
	}
}
