package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pizzatruck/backend/internal/cache"
	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/logger"
	"pizzatruck/backend/internal/service"
	"pizzatruck/backend/internal/store/memory"
)

func TestMain(m *testing.M) {
	logger.SetDefault(logger.Nop())
	os.Exit(m.Run())
}

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopStockCache{})
	auth := NewAuthManager("test-secret-key-test-secret-key-00", time.Hour, repo)

	return New(svc, auth, "*")
}

// call sends a JSON request with the given bearer token and CSRF token.
func call(t *testing.T, handler http.Handler, method, path, token, csrf string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()
	rec := call(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var payload domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return payload.AccessToken
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := call(t, api.Handler(), http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := call(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleItems_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := call(t, api.Handler(), http.MethodGet, "/api/v1/items", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRoleGates(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)
	cashier := loginAs(t, api, "cashier", "cashier123")
	kitchen := loginAs(t, api, "kitchen", "kitchen123")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"cashier lists items", http.MethodGet, "/api/v1/items", cashier, nil, http.StatusOK},
		{"cashier cannot create items", http.MethodPost, "/api/v1/items", cashier, domain.ItemCreateRequest{Name: "Basil", Type: domain.ItemTypeRaw, Unit: "g"}, http.StatusForbidden},
		{"cashier cannot adjust stock", http.MethodPost, "/api/v1/stock/adjustments", cashier, domain.StockAdjustmentRequest{ItemID: "item-flour", Quantity: "-1"}, http.StatusForbidden},
		{"cashier cannot read lots", http.MethodGet, "/api/v1/items/item-flour/lots", cashier, nil, http.StatusForbidden},
		{"kitchen cannot sell", http.MethodPost, "/api/v1/sales", kitchen, domain.SaleCreateRequest{Items: []domain.SaleLineRequest{{ItemID: "item-soda", Qty: 1}}}, http.StatusForbidden},
		{"kitchen reads orders", http.MethodGet, "/api/v1/kitchen/orders", kitchen, nil, http.StatusOK},
		{"kitchen cannot read stock", http.MethodGet, "/api/v1/stock", kitchen, nil, http.StatusForbidden},
		{"cashier cannot record expenses", http.MethodPost, "/api/v1/expenses", cashier, domain.ExpenseCreateRequest{Label: "Fuel", Amount: decimal.NewFromInt(40)}, http.StatusForbidden},
		{"cashier cannot rename items", http.MethodPatch, "/api/v1/items/item-soda", cashier, map[string]string{"name": "Cola"}, http.StatusForbidden},
		{"cashier cannot read activity", http.MethodGet, "/api/v1/reports/activity", cashier, nil, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(t, handler, tc.method, tc.path, tc.token, csrf, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (body: %s)", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSaleFlowThroughKitchen(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)
	cashier := loginAs(t, api, "cashier", "cashier123")
	kitchen := loginAs(t, api, "kitchen", "kitchen123")

	order := domain.SaleCreateRequest{
		PaymentType:    domain.PaymentCard,
		IdempotencyKey: "till-1-0001",
		Items:          []domain.SaleLineRequest{{ItemID: "item-margherita", Qty: 2}},
	}
	rec := call(t, handler, http.MethodPost, "/api/v1/sales", cashier, csrf, order)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if !created.Sale.Total.Equal(decimal.RequireFromString("24")) {
		t.Fatalf("expected total 24, got %s", created.Sale.Total)
	}
	if !created.Sale.COGS.Equal(decimal.RequireFromString("6.47")) {
		t.Fatalf("expected cogs 6.47, got %s", created.Sale.COGS)
	}
	if len(created.Sale.Items) != 1 || created.Sale.Items[0].Status != domain.StatusPending {
		t.Fatalf("expected one pending line, got %+v", created.Sale.Items)
	}

	retry := call(t, handler, http.MethodPost, "/api/v1/sales", cashier, csrf, order)
	if retry.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", retry.Code)
	}
	var replay domain.SaleResponse
	if err := json.NewDecoder(retry.Body).Decode(&replay); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if !replay.Duplicate || replay.Sale.ID != created.Sale.ID {
		t.Fatalf("expected duplicate of %s, got %+v", created.Sale.ID, replay)
	}

	lineID := created.Sale.Items[0].ID
	statusPath := "/api/v1/sale-items/" + lineID + "/status"
	if rec := call(t, handler, http.MethodPatch, statusPath, kitchen, csrf, domain.SaleItemStatusRequest{Status: "received"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec := call(t, handler, http.MethodPatch, statusPath, kitchen, csrf, domain.SaleItemStatusRequest{Status: "PENDING"}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 moving backwards, got %d", rec.Code)
	}
	if rec := call(t, handler, http.MethodPatch, "/api/v1/sale-items/nope/status", kitchen, csrf, domain.SaleItemStatusRequest{Status: "RECEIVED"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown line, got %d", rec.Code)
	}
}

func TestSaleShortfallReportsQuantities(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)
	cashier := loginAs(t, api, "cashier", "cashier123")

	rec := call(t, handler, http.MethodPost, "/api/v1/sales", cashier, csrf, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{{ItemID: "item-soda", Qty: 49}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		ItemID    string          `json:"item_id"`
		Available decimal.Decimal `json:"available"`
		Required  decimal.Decimal `json:"required"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ItemID != "item-soda" || !body.Available.Equal(decimal.NewFromInt(48)) || !body.Required.Equal(decimal.NewFromInt(49)) {
		t.Fatalf("unexpected shortfall body %+v", body)
	}

	stock := call(t, handler, http.MethodGet, "/api/v1/stock", cashier, "", nil)
	var levels struct {
		Stock []domain.StockLevel `json:"stock"`
	}
	if err := json.NewDecoder(stock.Body).Decode(&levels); err != nil {
		t.Fatalf("decode stock: %v", err)
	}
	for _, level := range levels.Stock {
		if level.ItemID == "item-soda" && !level.TotalQuantity.Equal(decimal.NewFromInt(48)) {
			t.Fatalf("failed sale changed soda stock to %s", level.TotalQuantity)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)
	cashier := loginAs(t, api, "cashier", "cashier123")

	open := domain.SessionOpenRequest{
		OpeningFloat: decimal.NewFromInt(100),
		Inventory:    []domain.SessionStockLine{{ItemID: "item-soda", Quantity: "24"}},
	}
	rec := call(t, handler, http.MethodPost, "/api/v1/sessions/open", cashier, csrf, open)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var session domain.CashSession
	if err := json.NewDecoder(rec.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	if again := call(t, handler, http.MethodPost, "/api/v1/sessions/open", cashier, csrf, open); again.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second open session, got %d", again.Code)
	}

	sale := call(t, handler, http.MethodPost, "/api/v1/sales", cashier, csrf, domain.SaleCreateRequest{
		SessionID: session.ID,
		Items:     []domain.SaleLineRequest{{ItemID: "item-soda", Qty: 3}},
	})
	if sale.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", sale.Code, sale.Body.String())
	}

	closeReq := domain.SessionCloseRequest{
		SessionID:    session.ID,
		ClosingFloat: decimal.RequireFromString("107.50"),
		Inventory:    []domain.SessionStockLine{{ItemID: "item-soda", Quantity: "21"}},
	}
	if rec := call(t, handler, http.MethodPost, "/api/v1/sessions/close", cashier, csrf, closeReq); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec := call(t, handler, http.MethodPost, "/api/v1/sessions/close", cashier, csrf, closeReq); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 closing twice, got %d", rec.Code)
	}

	recon := call(t, handler, http.MethodGet, "/api/v1/sessions/"+session.ID+"/reconciliation", cashier, "", nil)
	if recon.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", recon.Code, recon.Body.String())
	}
	var report domain.SessionReconciliation
	if err := json.NewDecoder(recon.Body).Decode(&report); err != nil {
		t.Fatalf("decode reconciliation: %v", err)
	}
	if len(report.Lines) != 1 || !report.Lines[0].Discrepancy.IsZero() {
		t.Fatalf("expected one balanced line, got %+v", report.Lines)
	}

	if rec := call(t, handler, http.MethodGet, "/api/v1/sessions/active", cashier, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no open session, got %d", rec.Code)
	}
}

func TestAdminCatalogAndAdjustments(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)
	admin := loginAs(t, api, "admin", "admin123")

	if rec := call(t, handler, http.MethodGet, "/api/v1/items/missing", admin, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	cycle := domain.RecipeUpdateRequest{Lines: []domain.RecipeLine{{ChildItemID: "item-margherita", Quantity: decimal.NewFromInt(1)}}}
	if rec := call(t, handler, http.MethodPut, "/api/v1/items/item-dough/recipe", admin, csrf, cycle); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a cyclic recipe, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	if rec := call(t, handler, http.MethodPost, "/api/v1/stock/adjustments", admin, csrf, domain.StockAdjustmentRequest{ItemID: "item-margherita", Quantity: "-1"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 adjusting a recipe item, got %d", rec.Code)
	}

	rec := call(t, handler, http.MethodPost, "/api/v1/stock/adjustments", admin, csrf, domain.StockAdjustmentRequest{ItemID: "item-flour", Quantity: "-2", Note: "spilled"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var adj domain.StockAdjustmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&adj); err != nil {
		t.Fatalf("decode adjustment: %v", err)
	}
	if adj.Kind != domain.MovementWastage || !adj.Cost.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected wastage costing 4, got %+v", adj)
	}

	moves := call(t, handler, http.MethodGet, "/api/v1/stock/movements?item_id=item-flour&kind=wastage", admin, "", nil)
	var journal struct {
		Movements []domain.StockMovement `json:"movements"`
	}
	if err := json.NewDecoder(moves.Body).Decode(&journal); err != nil {
		t.Fatalf("decode movements: %v", err)
	}
	if len(journal.Movements) != 1 || !journal.Movements[0].Quantity.Equal(decimal.NewFromInt(-2)) {
		t.Fatalf("expected one -2 wastage movement, got %+v", journal.Movements)
	}

	if rec := call(t, handler, http.MethodGet, "/api/v1/stock/movements?from=yesterday", admin, "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad range, got %d", rec.Code)
	}
	if rec := call(t, handler, http.MethodGet, "/api/v1/reports/summary", admin, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for today's summary, got %d", rec.Code)
	}
}

func TestExpensesAndDashboardReports(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)
	admin := loginAs(t, api, "admin", "admin123")

	if rec := call(t, handler, http.MethodPost, "/api/v1/sales", admin, csrf, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{{ItemID: "item-margherita", Qty: 1}, {ItemID: "item-soda", Qty: 2}},
	}); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec := call(t, handler, http.MethodPost, "/api/v1/expenses", admin, csrf, domain.ExpenseCreateRequest{Label: "Generator fuel", Amount: decimal.RequireFromString("35.20"), PaidVia: "card"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var expense domain.Expense
	if err := json.NewDecoder(rec.Body).Decode(&expense); err != nil {
		t.Fatalf("decode expense: %v", err)
	}
	if expense.PaidVia != domain.PaymentCard || expense.CreatedBy != "admin" {
		t.Fatalf("unexpected expense %+v", expense)
	}
	if rec := call(t, handler, http.MethodPost, "/api/v1/expenses", admin, csrf, domain.ExpenseCreateRequest{Label: "Permit", Amount: decimal.New(1, -40)}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an out of range amount, got %d", rec.Code)
	}

	var list struct {
		Expenses []domain.Expense `json:"expenses"`
	}
	decodeGet(t, handler, "/api/v1/expenses", admin, &list)
	if len(list.Expenses) != 1 || list.Expenses[0].ID != expense.ID {
		t.Fatalf("expected the recorded expense, got %+v", list.Expenses)
	}

	var top struct {
		Products []domain.TopProduct `json:"products"`
	}
	decodeGet(t, handler, "/api/v1/reports/top-products", admin, &top)
	if len(top.Products) != 2 || top.Products[0].ItemID != "item-margherita" || top.Products[1].TotalQty != 2 {
		t.Fatalf("unexpected ranking %+v", top.Products)
	}

	var feed struct {
		Activity []domain.ActivityEntry `json:"activity"`
	}
	decodeGet(t, handler, "/api/v1/reports/activity?limit=4", admin, &feed)
	if len(feed.Activity) != 2 {
		t.Fatalf("expected a sale and an expense, got %+v", feed.Activity)
	}

	var purchases struct {
		Purchases []domain.Purchase `json:"purchases"`
	}
	decodeGet(t, handler, "/api/v1/purchases", admin, &purchases)
	if len(purchases.Purchases) != 1 || purchases.Purchases[0].ID != "pur-seed" || len(purchases.Purchases[0].Items) == 0 {
		t.Fatalf("expected the seeded purchase with lines, got %+v", purchases.Purchases)
	}

	rec = call(t, handler, http.MethodPatch, "/api/v1/items/item-soda", admin, csrf, map[string]any{"name": "Cola Can", "price": "3.00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var item domain.Item
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.Name != "Cola Can" || item.Type != domain.ItemTypeSellable || !item.Price.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected item %+v", item)
	}
	if rec := call(t, handler, http.MethodPatch, "/api/v1/items/item-soda", admin, csrf, map[string]any{"name": "Flour"}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a taken name, got %d", rec.Code)
	}
}

func decodeGet(t *testing.T, handler http.Handler, path, token string, out any) {
	t.Helper()
	rec := call(t, handler, http.MethodGet, path, token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d (body: %s)", path, rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}
