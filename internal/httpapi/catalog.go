package httpapi

import (
	"net/http"

	"pizzatruck/backend/internal/domain"
)

func (a *API) handleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.service.ListItems(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if !allowRoles(w, r, roleAdmin) {
			return
		}
		var req domain.ItemCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		detail, err := a.service.CreateItem(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, detail)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleItemActions serves /api/v1/items/{id} (GET, PATCH), /recipe and /lots.
func (a *API) handleItemActions(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r, "/api/v1/items/")
	if len(parts) == 0 || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	itemID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			detail, err := a.service.GetItem(r.Context(), itemID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, detail)
		case http.MethodPatch:
			if !allowRoles(w, r, roleAdmin) {
				return
			}
			var req domain.ItemUpdateRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			item, err := a.service.UpdateItem(r.Context(), itemID, req)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	switch parts[1] {
	case "recipe":
		if r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		if !allowRoles(w, r, roleAdmin) {
			return
		}
		var req domain.RecipeUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		detail, err := a.service.SetRecipe(r.Context(), itemID, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case "lots":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		if !allowRoles(w, r, roleAdmin) {
			return
		}
		lots, err := a.service.ListLots(r.Context(), itemID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lots": lots})
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, supplier)
	default:
		writeMethodNotAllowed(w)
	}
}
