package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/logger"
	"pizzatruck/backend/internal/service"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/xid"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for an hour bucket given as
// Unix seconds truncated to the hour.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

const (
	roleAdmin   = domain.RoleAdmin
	roleCashier = domain.RoleCashier
	roleKitchen = domain.RoleKitchen
)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/items", a.requireAuth(a.handleItems, roleAdmin, roleCashier, roleKitchen))
	mux.HandleFunc("/api/v1/items/", a.requireAuth(a.handleItemActions, roleAdmin, roleCashier, roleKitchen))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, roleAdmin, roleCashier))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleLookup, roleAdmin, roleCashier))
	mux.HandleFunc("/api/v1/sale-items/", a.requireAuth(a.handleSaleItemStatus, roleAdmin, roleKitchen))
	mux.HandleFunc("/api/v1/kitchen/orders", a.requireAuth(a.handlePendingOrders, roleAdmin, roleKitchen))

	mux.HandleFunc("/api/v1/stock", a.requireAuth(a.handleCurrentStock, roleAdmin, roleCashier))
	mux.HandleFunc("/api/v1/stock/low", a.requireAuth(a.handleLowStock, roleAdmin, roleCashier))
	mux.HandleFunc("/api/v1/stock/adjustments", a.requireAuth(a.handleStockAdjustment, roleAdmin))
	mux.HandleFunc("/api/v1/stock/movements", a.requireAuth(a.handleMovements, roleAdmin))

	mux.HandleFunc("/api/v1/suppliers", a.requireAuth(a.handleSuppliers, roleAdmin))
	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases, roleAdmin))
	mux.HandleFunc("/api/v1/purchases/", a.requireAuth(a.handlePurchaseLookup, roleAdmin))

	mux.HandleFunc("/api/v1/sessions", a.requireAuth(a.handleSessions, roleAdmin, roleCashier))
	mux.HandleFunc("/api/v1/sessions/open", a.requireAuth(a.handleSessionOpen, roleAdmin, roleCashier))
	mux.HandleFunc("/api/v1/sessions/close", a.requireAuth(a.handleSessionClose, roleAdmin, roleCashier))
	mux.HandleFunc("/api/v1/sessions/active", a.requireAuth(a.handleSessionActive, roleAdmin, roleCashier))
	mux.HandleFunc("/api/v1/sessions/", a.requireAuth(a.handleSessionActions, roleAdmin, roleCashier))

	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, roleAdmin))

	mux.HandleFunc("/api/v1/reports/summary", a.requireAuth(a.handleSalesSummary, roleAdmin))
	mux.HandleFunc("/api/v1/reports/top-products", a.requireAuth(a.handleTopProducts, roleAdmin))
	mux.HandleFunc("/api/v1/reports/activity", a.requireAuth(a.handleRecentActivity, roleAdmin))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, roleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With("actor", actor.Username))
		next(w, r.WithContext(ctx))
	}
}

// allowRoles is the per-method gate for routes shared by several roles.
func allowRoles(w http.ResponseWriter, r *http.Request, roles ...string) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok || !slices.Contains(roles, actor.Role) {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return false
	}
	return true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		logger.Info(r.Context(), "login rejected", "username", req.Username, "reason", err)
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token that mutating requests must echo
// in the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"csrf_token": a.generateCSRFToken()})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return true
	}
	if slices.Contains(csrfExemptPaths, r.URL.Path) {
		return true
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.auth.CreateUser(r.Context(), req)
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		logger.Info(r.Context(), "audit", "audit", true, "action", "user_create", "entity_type", "user", "entity_id", user.Username, "role", user.Role)
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = xid.New("req")
		}
		w.Header().Set("X-Request-ID", requestID)
		reqLog := logger.FromContext(r.Context()).With("request_id", requestID, "method", r.Method, "path", r.URL.Path)
		r = r.WithContext(logger.WithLogger(r.Context(), reqLog))

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if !a.checkCSRF(w, r) {
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		reqLog.Infow("request", "status", rec.status, "duration", time.Since(startedAt))
	})
}

// pathTail returns the path below prefix split on "/", with empty segments dropped.
func pathTail(r *http.Request, prefix string) []string {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if tail == "" {
		return nil
	}
	parts := strings.Split(tail, "/")
	return slices.DeleteFunc(parts, func(p string) bool { return strings.TrimSpace(p) == "" })
}

// parseTimeRange reads RFC3339 or YYYY-MM-DD "from"/"to" query values. A bare
// "to" date covers that whole day.
func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	parse := func(key string, endOfDay bool) (time.Time, error) {
		raw := strings.TrimSpace(r.URL.Query().Get(key))
		if raw == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC(), nil
		}
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s must be RFC3339 or YYYY-MM-DD", store.ErrInvalidTransaction, key)
		}
		if endOfDay {
			day = day.AddDate(0, 0, 1)
		}
		return day, nil
	}
	from, err := parse("from", false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parse("to", true)
	return from, to, err
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
		limit = parsed
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrAdminRequired):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientInventory),
		errors.Is(err, store.ErrSessionAlreadyOpen),
		errors.Is(err, store.ErrSessionClosed),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidSaleItem),
		errors.Is(err, store.ErrInvalidTransaction),
		errors.Is(err, store.ErrNotStocked):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInvalidStatus),
		errors.Is(err, store.ErrCyclicRecipe):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.Error(r.Context(), "request failed", "error", err)
		writeJSON(w, status, map[string]any{"error": "internal server error"})
		return
	}

	var shortfall *store.InsufficientInventoryError
	if errors.As(err, &shortfall) {
		writeJSON(w, status, map[string]any{
			"error":     err.Error(),
			"item_id":   shortfall.ItemID,
			"available": shortfall.Available,
			"required":  shortfall.Required,
		})
		return
	}
	var cycle *store.CyclicRecipeError
	if errors.As(err, &cycle) {
		writeJSON(w, status, map[string]any{"error": err.Error(), "path": cycle.Path})
		return
	}
	writeError(w, status, err)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the message of 5xx responses; 4xx messages are user-facing.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		logger.Default().Errorw("internal error", "status", status, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
