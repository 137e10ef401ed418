package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"yogochsavdo/backend/internal/currency"
	"yogochsavdo/backend/internal/domain"
	"yogochsavdo/backend/internal/store"
	"yogochsavdo/backend/internal/store/memory"
)

type stubFetcher struct {
	rate float64
	err  error
}

func (s stubFetcher) FetchRate(context.Context) (float64, error) {
	return s.rate, s.err
}

func newTestService(t *testing.T) (*Service, *memory.Store, context.Context) {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "test-secret")

	repo := memory.NewSeeded()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	converter := currency.NewConverter(stubFetcher{rate: 12500}, nil, time.Minute, logger)
	svc := New(repo, converter, logger)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
	return svc, repo, ctx
}

func createCreditSale(t *testing.T, svc *Service, ctx context.Context, name, phone string, lines []domain.SaleLineRequest, paid int64) domain.SaleCreateResponse {
	t.Helper()
	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:         lines,
		PaymentType:   domain.PaymentCredit,
		PaidSom:       paid,
		CustomerName:  name,
		CustomerPhone: phone,
	})
	if err != nil {
		t.Fatalf("create credit sale: %v", err)
	}
	return resp
}

func TestCreateSaleCreditCreatesDebtRecord(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	resp := createCreditSale(t, svc, ctx, "Aziz Karimov", "+998901112233", []domain.SaleLineRequest{
		{ProductID: "prod-reyka-20", Quantity: 10},
	}, 40000)

	if resp.Sale.TotalSom != 140000 {
		t.Fatalf("expected total 140000, got %d", resp.Sale.TotalSom)
	}
	if resp.Sale.DueSom != 100000 {
		t.Fatalf("expected due 100000, got %d", resp.Sale.DueSom)
	}
	if resp.Sale.PaymentType != domain.PaymentCredit {
		t.Fatalf("expected payment type qarz, got %s", resp.Sale.PaymentType)
	}
	if resp.DebtRecordID == "" {
		t.Fatal("expected a debt record for the unpaid remainder")
	}

	product, err := repo.GetProductByID(ctx, "prod-reyka-20")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 390 {
		t.Fatalf("expected stock 390 after sale, got %d", product.Quantity)
	}

	groups, err := svc.GroupedDebtors(ctx)
	if err != nil {
		t.Fatalf("grouped debtors: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 debtor group, got %d", len(groups))
	}
	if groups[0].TotalDue != 100000 {
		t.Fatalf("expected group due 100000, got %d", groups[0].TotalDue)
	}
	if len(groups[0].Lines) != 1 || groups[0].Lines[0].ProductDue != 100000 {
		t.Fatalf("unexpected group lines: %+v", groups[0].Lines)
	}
}

func TestCreateSaleCubicProductUsesVolumeAndRate(t *testing.T) {
	svc, _, ctx := newTestService(t)

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:       []domain.SaleLineRequest{{ProductID: "prod-taxta-50", Quantity: 2}},
		PaymentType: domain.PaymentCash,
		PaidSom:     196875,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	// 50x150x6000mm = 0.045 kub per piece, 2 pieces at $175/kub, rate 12500.
	if resp.Sale.TotalSom != 196875 {
		t.Fatalf("expected total 196875, got %d", resp.Sale.TotalSom)
	}
	if resp.Sale.RateSomPerUSD != 12500 {
		t.Fatalf("expected rate 12500, got %v", resp.Sale.RateSomPerUSD)
	}
	if resp.Sale.Lines[0].Kub != 0.09 {
		t.Fatalf("expected 0.09 kub, got %v", resp.Sale.Lines[0].Kub)
	}
	if resp.DebtRecordID != "" {
		t.Fatalf("fully paid sale must not open a debt record, got %s", resp.DebtRecordID)
	}
}

func TestCreateSaleRejectsInsufficientStock(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:       []domain.SaleLineRequest{{ProductID: "prod-shifer-8", Quantity: 5}},
		PaymentType: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, err := repo.GetProductByID(ctx, "prod-shifer-8")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 4 {
		t.Fatalf("stock must be untouched on rejection, got %d", product.Quantity)
	}
}

func TestCreateSaleCreditRequiresCustomer(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:       []domain.SaleLineRequest{{ProductID: "prod-reyka-20", Quantity: 1}},
		PaymentType: domain.PaymentCash,
		PaidSom:     0,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for anonymous credit sale, got %v", err)
	}
}

func TestCreateSaleRequiresAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)

	ctx := WithActor(context.Background(), domain.Actor{Username: "sotuvchi", Role: "employee"})
	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:       []domain.SaleLineRequest{{ProductID: "prod-reyka-20", Quantity: 1}},
		PaymentType: domain.PaymentCash,
		PaidSom:     14000,
	})
	if err == nil || err.Error() != "admin role required" {
		t.Fatalf("expected admin role required, got %v", err)
	}
}

func TestPayDebtLifecycle(t *testing.T) {
	svc, _, ctx := newTestService(t)

	resp := createCreditSale(t, svc, ctx, "Bobur", "+998933334455", []domain.SaleLineRequest{
		{ProductID: "prod-reyka-20", Quantity: 5},
	}, 20000)
	// total 70000, due 50000

	if _, err := svc.PayDebt(ctx, resp.DebtRecordID, 0); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero amount, got %v", err)
	}
	if _, err := svc.PayDebt(ctx, resp.DebtRecordID, 50001); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for overpayment, got %v", err)
	}

	pay, err := svc.PayDebt(ctx, resp.DebtRecordID, 20000)
	if err != nil {
		t.Fatalf("pay debt: %v", err)
	}
	if pay.Remaining != 30000 || pay.Settled {
		t.Fatalf("expected 30000 remaining and open, got %+v", pay)
	}

	pay, err = svc.PayDebt(ctx, resp.DebtRecordID, 30000)
	if err != nil {
		t.Fatalf("settle debt: %v", err)
	}
	if !pay.Settled || pay.Remaining != 0 {
		t.Fatalf("expected settled record, got %+v", pay)
	}

	open, err := svc.ListDebts(ctx)
	if err != nil {
		t.Fatalf("list debts: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open debts, got %d", len(open))
	}
}

func TestPayDebtLineAgainstApportionedShare(t *testing.T) {
	svc, _, ctx := newTestService(t)

	resp := createCreditSale(t, svc, ctx, "Dilshod", "+998977778899", []domain.SaleLineRequest{
		{ProductID: "prod-reyka-20", Quantity: 10}, // 140000
		{ProductID: "prod-shifer-8", Quantity: 1},  // 78000
	}, 18000)
	// total 218000, due 200000: shares 128440 / 71560

	groups, err := svc.GroupedDebtors(ctx)
	if err != nil {
		t.Fatalf("grouped debtors: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Lines) != 2 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	if groups[0].Lines[0].ProductDue != 128440 || groups[0].Lines[1].ProductDue != 71560 {
		t.Fatalf("unexpected apportioned shares: %d / %d", groups[0].Lines[0].ProductDue, groups[0].Lines[1].ProductDue)
	}

	_, err = svc.PayDebtLine(ctx, domain.DebtLinePayRequest{
		DebtRecordID: resp.DebtRecordID,
		ProductKey:   "prod-reyka-20",
		Amount:       200000,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput when amount exceeds the line share, got %v", err)
	}

	_, err = svc.PayDebtLine(ctx, domain.DebtLinePayRequest{
		DebtRecordID: resp.DebtRecordID,
		ProductKey:   "prod-yoq",
		Amount:       1000,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown product line, got %v", err)
	}

	pay, err := svc.PayDebtLine(ctx, domain.DebtLinePayRequest{
		DebtRecordID: resp.DebtRecordID,
		ProductKey:   "prod-reyka-20",
		Amount:       28440,
	})
	if err != nil {
		t.Fatalf("pay debt line: %v", err)
	}
	if pay.Remaining != 171560 {
		t.Fatalf("expected 171560 remaining, got %d", pay.Remaining)
	}
}

func TestSettleDebtsByCustomerKey(t *testing.T) {
	svc, _, ctx := newTestService(t)

	createCreditSale(t, svc, ctx, "Gulnora", "+998900001122", []domain.SaleLineRequest{
		{ProductID: "prod-reyka-20", Quantity: 2},
	}, 0) // due 28000
	createCreditSale(t, svc, ctx, "Gulnora", "+998900001122", []domain.SaleLineRequest{
		{ProductID: "prod-shifer-8", Quantity: 1},
	}, 8000) // due 70000

	groups, err := svc.GroupedDebtors(ctx)
	if err != nil {
		t.Fatalf("grouped debtors: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}

	settled, err := svc.SettleDebts(ctx, domain.DebtSettleRequest{CustomerKey: groups[0].Key})
	if err != nil {
		t.Fatalf("settle debts: %v", err)
	}
	if len(settled.SettledIDs) != 2 {
		t.Fatalf("expected 2 settled records, got %d", len(settled.SettledIDs))
	}
	if settled.TotalPaid != 98000 {
		t.Fatalf("expected 98000 total paid, got %d", settled.TotalPaid)
	}

	open, err := svc.ListDebts(ctx)
	if err != nil {
		t.Fatalf("list debts: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open debts after settle, got %d", len(open))
	}
}

func TestCreateEmployeeCreatesUserAccount(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	employee, err := svc.CreateEmployee(ctx, domain.EmployeeCreateRequest{
		FullName:  "Sardor Aliyev",
		Phone:     "+998935556677",
		JobType:   domain.JobMonthly,
		SalarySom: 4_000_000,
		Username:  "Sardor",
		Password:  "parol123",
	})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	if employee.Username != "sardor" {
		t.Fatalf("expected lowercased username, got %q", employee.Username)
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	found := false
	for _, user := range users {
		if user.Username == "sardor" && user.Role == "employee" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a login account for the new employee")
	}
}

func TestGiveAdvanceFlagsOverLimit(t *testing.T) {
	svc, _, ctx := newTestService(t)

	employee, err := svc.CreateEmployee(ctx, domain.EmployeeCreateRequest{
		FullName:  "Olim Rahimov",
		JobType:   domain.JobContract,
		SalarySom: 2_000_000,
	})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}

	resp, err := svc.GiveAdvance(ctx, domain.AdvanceRequest{EmployeeID: employee.ID, AmountSom: 600_000})
	if err != nil {
		t.Fatalf("give advance: %v", err)
	}
	if resp.OverLimit {
		t.Fatalf("600k of a 1M limit must not be flagged: %+v", resp)
	}
	if resp.LimitSom != 1_000_000 {
		t.Fatalf("expected limit 1000000, got %d", resp.LimitSom)
	}

	resp, err = svc.GiveAdvance(ctx, domain.AdvanceRequest{EmployeeID: employee.ID, AmountSom: 600_000})
	if err != nil {
		t.Fatalf("second advance: %v", err)
	}
	if !resp.OverLimit {
		t.Fatal("expected month-to-date 1.2M over a 1M limit to be flagged")
	}
}

func TestExpenseStatsGroupsByCategory(t *testing.T) {
	svc, _, ctx := newTestService(t)

	for _, req := range []domain.ExpenseCreateRequest{
		{Title: "Yuk mashinasi", Category: "transport", AmountSom: 500000},
		{Title: "Benzin", Category: "transport", AmountSom: 300000},
		{Title: "Elektr", Category: "kommunal", AmountSom: 200000},
	} {
		if _, err := svc.AddExpense(ctx, req); err != nil {
			t.Fatalf("add expense %q: %v", req.Title, err)
		}
	}

	stats, err := svc.ExpenseStats(ctx, domain.ExpenseFilter{})
	if err != nil {
		t.Fatalf("expense stats: %v", err)
	}
	if stats.TotalSom != 1000000 || stats.Count != 3 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if len(stats.ByCategory) != 2 || stats.ByCategory[0].Category != "transport" || stats.ByCategory[0].AmountSom != 800000 {
		t.Fatalf("unexpected category breakdown: %+v", stats.ByCategory)
	}
}

func TestStatsOverviewSplitsKubByPayment(t *testing.T) {
	svc, _, ctx := newTestService(t)

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:       []domain.SaleLineRequest{{ProductID: "prod-taxta-25", Quantity: 2}},
		PaymentType: domain.PaymentCash,
		PaidSom:     94500,
	}); err != nil {
		t.Fatalf("cash sale: %v", err)
	}
	createCreditSale(t, svc, ctx, "Nodira", "+998911234567", []domain.SaleLineRequest{
		{ProductID: "prod-taxta-25", Quantity: 1},
	}, 0)

	overview, err := svc.StatsOverview(ctx)
	if err != nil {
		t.Fatalf("stats overview: %v", err)
	}
	if overview.Sales != 2 {
		t.Fatalf("expected 2 sales, got %d", overview.Sales)
	}
	// 25x150x6000mm = 0.0225 kub per piece.
	if overview.KubByPayment.Cash != 0.045 {
		t.Fatalf("expected 0.045 cash kub, got %v", overview.KubByPayment.Cash)
	}
	if overview.KubByPayment.Credit != 0.0225 {
		t.Fatalf("expected 0.0225 credit kub, got %v", overview.KubByPayment.Credit)
	}
	if overview.OutstandingSom != 47250 {
		t.Fatalf("expected 47250 outstanding, got %d", overview.OutstandingSom)
	}
}

func TestProductLifecycle(t *testing.T) {
	svc, _, ctx := newTestService(t)

	created, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:      "Vagonka 12mm",
		Code:      "vg-12",
		Category:  "vagonka",
		Unit:      domain.UnitPiece,
		Quantity:  50,
		SellPrice: 45000,
		CostPrice: 36000,
		Currency:  domain.CurrencySom,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.Code != "VG-12" {
		t.Fatalf("expected uppercased code, got %q", created.Code)
	}

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Vagonka nusxa", Code: "VG-12", Unit: domain.UnitPiece,
		Quantity: 1, SellPrice: 1000, Currency: domain.CurrencySom,
	})
	if !errors.Is(err, store.ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}

	newPrice := 48000.0
	updated, err := svc.UpdateProduct(ctx, created.ID, domain.ProductUpdateRequest{SellPrice: &newPrice})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.SellPrice != 48000 {
		t.Fatalf("expected price 48000, got %v", updated.SellPrice)
	}

	if err := svc.DeleteProduct(ctx, created.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if err := svc.DeleteProduct(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCustomerRankingOrdersByVolume(t *testing.T) {
	svc, _, ctx := newTestService(t)

	createCreditSale(t, svc, ctx, "Katta Mijoz", "+998901000001", []domain.SaleLineRequest{
		{ProductID: "prod-taxta-25", Quantity: 4},
	}, 0)
	createCreditSale(t, svc, ctx, "Kichik Mijoz", "+998901000002", []domain.SaleLineRequest{
		{ProductID: "prod-taxta-25", Quantity: 1},
	}, 0)

	ranking, err := svc.CustomerRanking(ctx, 10)
	if err != nil {
		t.Fatalf("customer ranking: %v", err)
	}
	if len(ranking) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(ranking))
	}
	if ranking[0].CustomerName != "Katta Mijoz" {
		t.Fatalf("expected highest-volume customer first, got %+v", ranking[0])
	}
}
