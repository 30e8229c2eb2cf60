package httpapi

import (
	"net/http"

	"pizzatruck/backend/internal/domain"
)

// handleSalesSummary reports the requested range, or today when no range is given.
func (a *API) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	from, to, err := parseTimeRange(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var summary domain.SalesSummary
	if from.IsZero() && to.IsZero() {
		summary, err = a.service.TodaySummary(r.Context())
	} else {
		summary, err = a.service.SalesSummary(r.Context(), from, to)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	from, to, err := parseTimeRange(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	products, err := a.service.TopProducts(r.Context(), from, to, parsePositiveLimit(r.URL.Query().Get("limit"), 10, 100))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	activity, err := a.service.RecentActivity(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 10, 100))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": activity})
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		expenses, err := a.service.ListExpenses(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
	case http.MethodPost:
		var req domain.ExpenseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expense, err := a.service.CreateExpense(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, expense)
	default:
		writeMethodNotAllowed(w)
	}
}
