package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"glaz/internal/accounttypes"
	"glaz/internal/backend"
	"glaz/internal/currency"
	"glaz/internal/services"
	"glaz/internal/storage"
)

type staticRates struct {
	snap currency.Snapshot
}

func (s staticRates) Fetch(ctx context.Context) (currency.Snapshot, error) {
	return s.snap, nil
}

func testRates() *currency.Service {
	return currency.NewService(staticRates{snap: currency.Snapshot{
		Rates: map[string]currency.Rate{
			"RUB": {Name: "Российский рубль", Value: 1, Symbol: "₽"},
			"USD": {Name: "Доллар США", Value: 100, Symbol: "$"},
			"EUR": {Name: "Евро", Value: 110, Symbol: "€"},
		},
		LastUpdated: time.Now(),
	}}, time.Hour)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), 5)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	registry := accounttypes.NewRegistry(store, store)
	svc, err := services.NewAccountService(store, registry, testRates(), nil)
	if err != nil {
		t.Fatalf("NewAccountService: %v", err)
	}
	srv := NewServer(":0", Deps{
		Accounts:      svc,
		Registry:      registry,
		Rates:         testRates(),
		BackupManager: backend.BackupManager(store),
		Retention:     5,
		Port:          "8081",
	})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestListAccounts(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	accounts, ok := body["accounts"].([]any)
	if !ok {
		t.Fatalf("accounts missing from response: %v", body)
	}
	if len(accounts) != 2 {
		t.Fatalf("len(accounts) = %d, want 2 seeded", len(accounts))
	}
}

func TestAccountCRUD(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/accounts", map[string]any{
		"name":     "Валютный счет",
		"balance":  500,
		"currency": "USD",
		"type":     "savings",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)["account"].(map[string]any)
	id := int64(created["id"].(float64))
	if id != 3 {
		t.Errorf("id = %d, want 3", id)
	}
	if created["type"] != "savings" {
		t.Errorf("type = %v, want savings", created["type"])
	}

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/accounts/%d", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/accounts/%d", id), map[string]any{
		"balance": 750.5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody(t, rec)["account"].(map[string]any)
	if updated["balance"].(float64) != 750.5 {
		t.Errorf("balance = %v, want 750.5", updated["balance"])
	}
	if updated["name"] != "Валютный счет" {
		t.Errorf("name = %v, want unchanged", updated["name"])
	}

	rec = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/accounts/%d", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "Account deleted" {
		t.Errorf("message = %v", body["message"])
	}

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/accounts/%d", id), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"currency": "RUB", "balance": 100}},
		{"missing currency", map[string]any{"name": "Счет", "balance": 100}},
		{"missing balance", map[string]any{"name": "Счет", "currency": "RUB"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/accounts", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestInvalidAccountID(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTotalBalance(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/total", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["totalBalance"].(float64) != 150000 {
		t.Errorf("totalBalance = %v, want 150000", body["totalBalance"])
	}
	if body["currency"] != "RUB" {
		t.Errorf("currency = %v, want RUB", body["currency"])
	}
	if body["accountsCount"].(float64) != 2 {
		t.Errorf("accountsCount = %v, want 2", body["accountsCount"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/accounts/total?currency=usd", nil)
	body = decodeBody(t, rec)
	if body["totalBalance"].(float64) != 1500 {
		t.Errorf("USD totalBalance = %v, want 1500", body["totalBalance"])
	}
	if body["currency"] != "USD" {
		t.Errorf("currency = %v, want USD", body["currency"])
	}
}

func TestTotalBalanceInvalidatedByMutation(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/total", nil)
	before := decodeBody(t, rec)["totalBalance"].(float64)

	rec = doRequest(t, srv, http.MethodPost, "/api/accounts", map[string]any{
		"name":     "Новый счет",
		"balance":  1000,
		"currency": "RUB",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/accounts/total", nil)
	after := decodeBody(t, rec)["totalBalance"].(float64)
	if after != before+1000 {
		t.Errorf("totalBalance = %v, want %v", after, before+1000)
	}
}

func TestCurrencies(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/currencies", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	available, ok := body["availableCurrencies"].([]any)
	if !ok || len(available) != 3 {
		t.Errorf("availableCurrencies = %v, want 3 entries", body["availableCurrencies"])
	}
	if _, ok := body["rates"].(map[string]any); !ok {
		t.Errorf("rates missing: %v", body)
	}
}

func TestConvert(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/currencies/convert?amount=100&from=USD&to=RUB", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["convertedAmount"].(float64) != 10000 {
		t.Errorf("convertedAmount = %v, want 10000", body["convertedAmount"])
	}
	if body["rate"].(float64) != 100 {
		t.Errorf("rate = %v, want 100", body["rate"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/currencies/convert?amount=100", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing params status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/currencies/convert?amount=abc&from=USD&to=RUB", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad amount status = %d, want 400", rec.Code)
	}
}

func TestBackupAndRestore(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/storage/backup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("backup status = %d, body %s", rec.Code, rec.Body.String())
	}
	backupFile, ok := decodeBody(t, rec)["backupFile"].(string)
	if !ok || backupFile == "" {
		t.Fatal("backupFile missing from response")
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/accounts", map[string]any{
		"name":     "Временный счет",
		"balance":  0,
		"currency": "RUB",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/storage/backups", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list backups status = %d", rec.Code)
	}
	listBody := decodeBody(t, rec)
	if listBody["maxBackups"].(float64) != 5 {
		t.Errorf("maxBackups = %v, want 5", listBody["maxBackups"])
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/storage/restore", map[string]any{
		"filename": backupFile,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d, body %s", rec.Code, rec.Body.String())
	}
	restoreBody := decodeBody(t, rec)
	if restoreBody["message"] != "Data restored successfully" {
		t.Errorf("message = %v", restoreBody["message"])
	}
	if restoreBody["restoredAccounts"].(float64) != 2 {
		t.Errorf("restoredAccounts = %v, want 2", restoreBody["restoredAccounts"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/accounts", nil)
	accounts := decodeBody(t, rec)["accounts"].([]any)
	if len(accounts) != 2 {
		t.Errorf("len(accounts) after restore = %d, want 2", len(accounts))
	}
}

func TestRestoreValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/storage/restore", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty filename status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/storage/restore/no_such_backup.json", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing backup status = %d, want 404", rec.Code)
	}
}

func TestStorageStats(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/storage/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["accountsCount"].(float64) != 2 {
		t.Errorf("accountsCount = %v, want 2", body["accountsCount"])
	}
	if body["nextId"].(float64) != 3 {
		t.Errorf("nextId = %v, want 3", body["nextId"])
	}
}

func TestStorageEndpointsWithoutBackupManager(t *testing.T) {
	srv := newTestServer(t)
	srv.backupMgr = nil

	for _, path := range []string{"/api/storage/stats", "/api/storage/backups"} {
		rec := doRequest(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, rec.Code)
		}
	}
	rec := doRequest(t, srv, http.MethodPost, "/api/storage/backup", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST backup status = %d, want 400", rec.Code)
	}
}

func TestAccountTypesCRUD(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/account-types", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	types := body["types"].([]any)
	if len(types) != 4 {
		t.Fatalf("len(types) = %d, want 4 defaults", len(types))
	}
	if _, ok := body["usageStats"].(map[string]any); !ok {
		t.Errorf("usageStats missing: %v", body)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/account-types", map[string]any{
		"name":        "Brokerage",
		"description": "Брокерский счет",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)["type"].(map[string]any)
	typeID := created["id"].(string)
	if typeID != "brokerage" {
		t.Errorf("id = %q, want brokerage", typeID)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/account-types/"+typeID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/account-types/"+typeID, map[string]any{
		"name": "Брокерский",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody(t, rec)["type"].(map[string]any)
	if updated["name"] != "Брокерский" {
		t.Errorf("name = %v", updated["name"])
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/account-types/"+typeID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	delBody := decodeBody(t, rec)
	if delBody["reassignedAccounts"].(float64) != 0 {
		t.Errorf("reassignedAccounts = %v, want 0", delBody["reassignedAccounts"])
	}
}

func TestDeleteTypeReassignsAccounts(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodDelete, "/api/account-types/investment", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["reassignedAccounts"].(float64) != 1 {
		t.Errorf("reassignedAccounts = %v, want 1", body["reassignedAccounts"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/accounts/2", nil)
	account := decodeBody(t, rec)["account"].(map[string]any)
	if account["type"] != "checking" {
		t.Errorf("type = %v, want checking after reassignment", account["type"])
	}
}

func TestSystemTypeProtection(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodDelete, "/api/account-types/checking", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete checking status = %d, want 400", rec.Code)
	}

	// Pre-flighted mutations report an unknown type id as a request error.
	rec = doRequest(t, srv, http.MethodPut, "/api/account-types/missing", map[string]any{"name": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("update missing type status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/account-types/missing", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete missing type status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/account-types/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing type status = %d, want 404", rec.Code)
	}
}

func TestDuplicateTypeName(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/account-types", map[string]any{
		"name": "Накопительный",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate name status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "OK" {
		t.Errorf("status = %v, want OK", body["status"])
	}
	if body["version"] != apiVersion {
		t.Errorf("version = %v, want %s", body["version"], apiVersion)
	}
	storageInfo, ok := body["storage"].(map[string]any)
	if !ok {
		t.Fatalf("storage missing: %v", body)
	}
	if storageInfo["accountsCount"].(float64) != 2 {
		t.Errorf("accountsCount = %v, want 2", storageInfo["accountsCount"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got == "" {
		t.Error("X-Frame-Options not set")
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
