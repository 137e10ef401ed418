package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"yogochsavdo/backend/internal/currency"
	"yogochsavdo/backend/internal/domain"
	"yogochsavdo/backend/internal/service"
	"yogochsavdo/backend/internal/store/memory"
)

type rateFetcherStub struct {
	rate float64
}

func (s rateFetcherStub) FetchRate(context.Context) (float64, error) {
	return s.rate, nil
}

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")

	repo := memory.NewSeeded()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	converter := currency.NewConverter(rateFetcherStub{rate: 12500}, nil, time.Minute, logger)
	svc := service.New(repo, converter, logger)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", logger)
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "admin123"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("admin login failed, status %d (body: %s)", res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if payload.AccessToken == "" {
		t.Fatal("expected access token in login response")
	}
	return payload.AccessToken
}

func doJSON(t *testing.T, api *API, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
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

	rec := doJSON(t, api, http.MethodPost, "/api/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/products?search=taxta", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) != 2 {
		t.Fatalf("expected 2 taxta products, got %d", len(body.Products))
	}
}

func TestCreditSaleFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/sales", token, domain.SaleCreateRequest{
		Lines:         []domain.SaleLineRequest{{ProductID: "prod-reyka-20", Quantity: 10}},
		PaymentType:   domain.PaymentCredit,
		PaidSom:       40000,
		CustomerName:  "Aziz Karimov",
		CustomerPhone: "+998901112233",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created domain.SaleCreateResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}
	if created.DebtRecordID == "" {
		t.Fatal("expected debt record id in response")
	}

	rec = doJSON(t, api, http.MethodGet, "/api/debtors", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from debtors, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var debtors struct {
		Debtors []struct {
			TotalDue int64 `json:"total_due"`
			Lines    []struct {
				ProductKey string `json:"product_key"`
				ProductDue int64  `json:"product_due"`
			} `json:"lines"`
		} `json:"debtors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&debtors); err != nil {
		t.Fatalf("decode debtors: %v", err)
	}
	if len(debtors.Debtors) != 1 || debtors.Debtors[0].TotalDue != 100000 {
		t.Fatalf("unexpected debtors payload: %+v", debtors)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/debts/pay/"+created.DebtRecordID, token, domain.DebtPayRequest{Amount: 100000})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from pay, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var pay domain.DebtPayResponse
	if err := json.NewDecoder(rec.Body).Decode(&pay); err != nil {
		t.Fatalf("decode pay response: %v", err)
	}
	if !pay.Settled {
		t.Fatalf("expected settled debt, got %+v", pay)
	}
}

func TestDebtPayRejectsOverpaymentOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/sales", token, domain.SaleCreateRequest{
		Lines:         []domain.SaleLineRequest{{ProductID: "prod-reyka-20", Quantity: 1}},
		PaymentType:   domain.PaymentCredit,
		CustomerName:  "Bobur",
		CustomerPhone: "+998933334455",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.SaleCreateResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/debts/pay/"+created.DebtRecordID, token, domain.DebtPayRequest{Amount: 14001})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for overpayment, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestEmployeeRoleCannotReadDebts(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/employees", token, domain.EmployeeCreateRequest{
		FullName:  "Sotuvchi Test",
		JobType:   domain.JobMonthly,
		SalarySom: 3_000_000,
		Username:  "sotuvchi",
		Password:  "parol123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating employee, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/login", "", domain.LoginRequest{Username: "sotuvchi", Password: "parol123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("employee login failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var login domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Role != "employee" {
		t.Fatalf("expected employee role, got %q", login.Role)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/debts/all", login.AccessToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee reading debts, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/sales", login.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for employee reading sales, got %d", rec.Code)
	}
}

func TestExchangeRateEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/exchange-rate", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var rate domain.ExchangeRateResponse
	if err := json.NewDecoder(rec.Body).Decode(&rate); err != nil {
		t.Fatalf("decode rate: %v", err)
	}
	if rate.SomPerUSD != 12500 {
		t.Fatalf("expected rate 12500, got %v", rate.SomPerUSD)
	}
}
