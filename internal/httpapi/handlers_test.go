package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/password"
	"medipos/backend/internal/service"
	"medipos/backend/internal/session"
	"medipos/backend/internal/store/local"
	"medipos/backend/internal/store/memory"
)

func init() {
	password.Cost = bcrypt.MinCost
}

// newTestAPI builds a full API over a seeded in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := local.New(memory.New(memory.DefaultQuotaBytes))
	if err := local.Seed(context.Background(), repo, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	logger := zaptest.NewLogger(t)
	svc := service.New(repo, service.Options{Logger: logger})
	sessions := session.NewManager(repo, "test-secret-key", logger)

	return New(svc, sessions, "*", logger)
}

func login(t *testing.T, handler http.Handler, username string, pass string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: pass})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, res.Code, res.Body.String())
	}
	var result domain.AuthResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if result.Token == "" {
		t.Fatalf("expected token in login response")
	}
	return result.Token
}

func call(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	res := call(t, handler, http.MethodGet, "/healthz", "", nil)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()

	res := call(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrong"})

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	var result domain.AuthResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if result.Success || result.Error != "Invalid password" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestMedicinesRequireAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	res := call(t, handler, http.MethodGet, "/api/v1/medicines", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}
	res = call(t, handler, http.MethodGet, "/api/v1/medicines", "not-a-token", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", res.Code)
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	res := call(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{MedicineID: "med-002", Quantity: 5}},
		PaymentMethod: "card",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", res.Code, res.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	res = call(t, handler, http.MethodGet, "/api/v1/medicines/med-002", token, nil)
	var got struct {
		Medicine domain.Medicine `json:"medicine"`
	}
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode medicine: %v", err)
	}
	if got.Medicine.StockQuantity != 70 {
		t.Fatalf("expected stock 70 after sale, got %d", got.Medicine.StockQuantity)
	}

	res = call(t, handler, http.MethodDelete, "/api/v1/sales/"+created.Sale.ID, token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", res.Code)
	}
	res = call(t, handler, http.MethodDelete, "/api/v1/sales/"+created.Sale.ID, token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", res.Code)
	}

	res = call(t, handler, http.MethodGet, "/api/v1/analytics/sales", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for analytics, got %d", res.Code)
	}
}

func TestCashierCannotEditSales(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier123")

	res := call(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 1}},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected cashier sale to succeed, got %d", res.Code)
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	res = call(t, handler, http.MethodDelete, "/api/v1/sales/"+created.Sale.ID, token, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier delete, got %d", res.Code)
	}
	res = call(t, handler, http.MethodGet, "/api/v1/users", token, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier user listing, got %d", res.Code)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "manager", "manager123")

	res := call(t, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for me, got %d", res.Code)
	}
	res = call(t, handler, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for logout, got %d", res.Code)
	}
	res = call(t, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", res.Code)
	}
}

func TestInvalidSaleIsBadRequest(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	res := call(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 0}},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSyncDisabledIsConflict(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	res := call(t, handler, http.MethodGet, "/api/v1/sync/status", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for status, got %d", res.Code)
	}
	res = call(t, handler, http.MethodPost, "/api/v1/sync/flush", token, nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 when sync is disabled, got %d", res.Code)
	}
}
