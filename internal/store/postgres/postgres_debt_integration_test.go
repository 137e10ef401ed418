package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"yogochsavdo/backend/internal/domain"
)

func TestDebtPaymentRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("YOGOCHSAVDO_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set YOGOCHSAVDO_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	saleID := fmt.Sprintf("sale-it-%d", stamp)
	debtID := fmt.Sprintf("debt-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM debt_records WHERE id = $1`, debtID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
	})

	sale := domain.Sale{
		ID: saleID,
		Lines: []domain.SaleLine{
			{ProductID: "prod-it", Name: "Taxta IT", Quantity: 2, Price: 50000, Currency: domain.CurrencySom, TotalSom: 100000},
		},
		PaymentType:   domain.PaymentCredit,
		TotalSom:      100000,
		PaidSom:       40000,
		DueSom:        60000,
		CustomerName:  "Integration Mijoz",
		CustomerPhone: fmt.Sprintf("+99890%d", stamp%10000000),
	}
	if _, err := s.CreateSale(ctx, sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	record := domain.DebtRecord{
		ID:            debtID,
		SaleID:        saleID,
		CustomerName:  sale.CustomerName,
		CustomerPhone: sale.CustomerPhone,
		DebtAmount:    60000,
	}
	if _, err := s.CreateDebtRecord(ctx, record); err != nil {
		t.Fatalf("create debt record: %v", err)
	}

	updated, err := s.UpdateDebtAmount(ctx, debtID, 25000, time.Now().UTC())
	if err != nil {
		t.Fatalf("update debt amount: %v", err)
	}
	if updated.DebtAmount != 25000 {
		t.Fatalf("expected 25000 remaining, got %d", updated.DebtAmount)
	}

	open, err := s.ListDebtRecords(ctx, true)
	if err != nil {
		t.Fatalf("list open debts: %v", err)
	}
	found := false
	for _, r := range open {
		if r.ID == debtID {
			found = true
		}
	}
	if !found {
		t.Fatalf("open debt %s missing from list", debtID)
	}

	if _, err := s.UpdateDebtAmount(ctx, debtID, 0, time.Now().UTC()); err != nil {
		t.Fatalf("settle debt: %v", err)
	}
	open, err = s.ListDebtRecords(ctx, true)
	if err != nil {
		t.Fatalf("list open debts after settle: %v", err)
	}
	for _, r := range open {
		if r.ID == debtID {
			t.Fatalf("settled debt %s still listed as open", debtID)
		}
	}
}
