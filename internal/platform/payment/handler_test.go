package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mediledger/nexus/internal/platform/auth"
)

func TestGetEarnings(t *testing.T) {
	ledger := NewMemoryLedger()
	account := uuid.New()
	if err := ledger.Credit(context.Background(), account, 250); err != nil {
		t.Fatalf("credit: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/earnings", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, account.String()))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := NewHandler(ledger).GetEarnings(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp earningsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Account != account.String() {
		t.Errorf("account = %q, want %q", resp.Account, account)
	}
	if resp.Balance != 250 {
		t.Errorf("balance = %d, want 250", resp.Balance)
	}
}

func TestGetEarnings_ZeroForUnknownAccount(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/earnings", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, uuid.New().String()))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := NewHandler(NewMemoryLedger()).GetEarnings(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	var resp earningsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Balance != 0 {
		t.Errorf("balance = %d, want 0", resp.Balance)
	}
}
