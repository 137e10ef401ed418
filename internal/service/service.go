package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"yogochsavdo/backend/internal/currency"
	"yogochsavdo/backend/internal/debt"
	"yogochsavdo/backend/internal/domain"
	"yogochsavdo/backend/internal/ids"
	"yogochsavdo/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// advanceLimitPercent is the share of the monthly salary beyond which an
// advance is flagged. The flag is informational; the payment still goes out.
const advanceLimitPercent = 50

type Service struct {
	repo      store.Repository
	converter *currency.Converter
	log       *logrus.Logger
}

func New(repo store.Repository, converter *currency.Converter, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		repo:      repo,
		converter: converter,
		log:       log,
	}
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductListFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" || req.Code == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if !validUnit(req.Unit) || !validCurrency(req.Currency) {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Quantity < 0 || req.SellPrice <= 0 || req.CostPrice < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.WidthMM < 0 || req.HeightMM < 0 || req.LengthMM < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		ID:        ids.New("prod"),
		Name:      req.Name,
		Code:      req.Code,
		Category:  req.Category,
		WidthMM:   req.WidthMM,
		HeightMM:  req.HeightMM,
		LengthMM:  req.LengthMM,
		Unit:      req.Unit,
		Quantity:  req.Quantity,
		SellPrice: req.SellPrice,
		CostPrice: req.CostPrice,
		Currency:  req.Currency,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("code=%s,qty=%d", created.Code, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.WidthMM != nil {
		if *req.WidthMM < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.WidthMM = *req.WidthMM
	}
	if req.HeightMM != nil {
		if *req.HeightMM < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.HeightMM = *req.HeightMM
	}
	if req.LengthMM != nil {
		if *req.LengthMM < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.LengthMM = *req.LengthMM
	}
	if req.Unit != nil {
		if !validUnit(*req.Unit) {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Unit = *req.Unit
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Quantity = *req.Quantity
	}
	if req.SellPrice != nil {
		if *req.SellPrice <= 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellPrice = *req.SellPrice
	}
	if req.CostPrice != nil {
		if *req.CostPrice < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.Currency != nil {
		if !validCurrency(*req.Currency) {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Currency = *req.Currency
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("code=%s,qty=%d,price=%.2f", saved.Code, saved.Quantity, saved.SellPrice))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) ExchangeRate(ctx context.Context) (domain.ExchangeRateResponse, error) {
	quote, err := s.converter.Rate(ctx)
	if err != nil {
		return domain.ExchangeRateResponse{}, err
	}
	return domain.ExchangeRateResponse{
		SomPerUSD: quote.SomPerUSD,
		FetchedAt: quote.FetchedAt.UTC().Format(time.RFC3339),
		Source:    "cbu.uz",
	}, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleCreateResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SaleCreateResponse{}, fmt.Errorf("admin role required")
	}

	if len(req.Lines) == 0 || req.PaidSom < 0 {
		return domain.SaleCreateResponse{}, store.ErrInvalidInput
	}
	switch req.PaymentType {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentCredit:
	default:
		return domain.SaleCreateResponse{}, store.ErrInvalidInput
	}

	products := make([]domain.Product, 0, len(req.Lines))
	needsRate := false
	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return domain.SaleCreateResponse{}, store.ErrInvalidInput
		}
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			return domain.SaleCreateResponse{}, err
		}
		if product.Quantity < line.Quantity {
			return domain.SaleCreateResponse{}, store.ErrInsufficientStock
		}
		if product.Currency == domain.CurrencyUSD {
			needsRate = true
		}
		products = append(products, *product)
	}

	var rate float64
	if needsRate {
		quote, err := s.converter.Rate(ctx)
		if err != nil {
			return domain.SaleCreateResponse{}, err
		}
		rate = quote.SomPerUSD
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:            ids.New("sale"),
		PaymentType:   req.PaymentType,
		PaidSom:       req.PaidSom,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		RateSomPerUSD: rate,
		CreatedAt:     now,
	}
	for i, line := range req.Lines {
		product := products[i]
		kub := 0.0
		multiplier := float64(line.Quantity)
		if product.Unit == domain.UnitCubic {
			kub = product.UnitVolume() * float64(line.Quantity)
			multiplier = kub
		}
		total := currency.LineTotalSom(product.SellPrice, multiplier, product.Currency, rate)
		sale.Lines = append(sale.Lines, domain.SaleLine{
			ProductID: product.ID,
			Name:      product.Name,
			Code:      product.Code,
			Category:  product.Category,
			Unit:      product.Unit,
			Quantity:  line.Quantity,
			Kub:       kub,
			Price:     product.SellPrice,
			Currency:  product.Currency,
			Cost:      product.CostPrice,
			TotalSom:  total,
		})
		sale.TotalSom += total
	}

	if sale.PaidSom > sale.TotalSom {
		return domain.SaleCreateResponse{}, store.ErrInvalidInput
	}
	sale.DueSom = sale.TotalSom - sale.PaidSom
	if sale.DueSom > 0 {
		// An unpaid remainder makes this a credit sale no matter what the
		// terminal sent.
		sale.PaymentType = domain.PaymentCredit
		if sale.CustomerName == "" || sale.CustomerPhone == "" {
			return domain.SaleCreateResponse{}, store.ErrInvalidInput
		}
	}
	if req.DueDate != "" {
		due, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return domain.SaleCreateResponse{}, store.ErrInvalidInput
		}
		sale.DueDate = &due
	}

	for i, line := range req.Lines {
		if err := s.repo.AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
			// Roll back the decrements already applied.
			for j := 0; j < i; j++ {
				if restoreErr := s.repo.AdjustStock(ctx, req.Lines[j].ProductID, req.Lines[j].Quantity); restoreErr != nil {
					s.log.WithError(restoreErr).WithField("product_id", req.Lines[j].ProductID).Warn("failed to restore stock after aborted sale")
				}
			}
			return domain.SaleCreateResponse{}, err
		}
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		for _, line := range req.Lines {
			if restoreErr := s.repo.AdjustStock(ctx, line.ProductID, line.Quantity); restoreErr != nil {
				s.log.WithError(restoreErr).WithField("product_id", line.ProductID).Warn("failed to restore stock after aborted sale")
			}
		}
		return domain.SaleCreateResponse{}, err
	}

	resp := domain.SaleCreateResponse{Sale: *created}
	if created.DueSom > 0 {
		record, err := s.repo.CreateDebtRecord(ctx, domain.DebtRecord{
			ID:            ids.New("debt"),
			SaleID:        created.ID,
			CustomerName:  created.CustomerName,
			CustomerPhone: created.CustomerPhone,
			DebtAmount:    created.DueSom,
			DueDate:       created.DueDate,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return domain.SaleCreateResponse{}, err
		}
		resp.DebtRecordID = record.ID
	}

	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("total=%d,paid=%d,type=%s", created.TotalSom, created.PaidSom, created.PaymentType))
	return resp, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) ListDebts(ctx context.Context) ([]domain.DebtRecord, error) {
	records, err := s.repo.ListDebtRecords(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.DebtAmount < 0 {
			s.log.WithField("debt_record_id", record.ID).Warn("negative debt amount in storage")
		}
	}
	return records, nil
}

// GroupedDebtors returns open debts aggregated by customer with each
// record's due apportioned across the originating sale's lines.
func (s *Service) GroupedDebtors(ctx context.Context) ([]debt.CustomerGroup, error) {
	records, err := s.repo.ListDebtRecords(ctx, true)
	if err != nil {
		return nil, err
	}
	return debt.Group(s.toDebtRecords(ctx, records)), nil
}

func (s *Service) toDebtRecords(ctx context.Context, records []domain.DebtRecord) []debt.Record {
	out := make([]debt.Record, 0, len(records))
	for _, record := range records {
		entry := debt.Record{
			ID:            record.ID,
			CustomerName:  record.CustomerName,
			CustomerPhone: record.CustomerPhone,
			Due:           record.DebtAmount,
		}
		if record.DebtAmount < 0 {
			s.log.WithField("debt_record_id", record.ID).Warn("negative debt amount in storage")
			entry.Due = 0
		}
		sale, err := s.repo.GetSaleByID(ctx, record.SaleID)
		if err != nil {
			// A record whose sale detail is gone still owes its total.
			s.log.WithError(err).WithField("debt_record_id", record.ID).Warn("sale lookup failed for debt record")
		} else {
			entry.SaleTotal = sale.TotalSom
			for _, line := range sale.Lines {
				entry.Products = append(entry.Products, debt.ProductLine{
					Key:      line.ProductID,
					Name:     line.Name,
					Price:    line.TotalSom,
					Quantity: 1,
				})
			}
		}
		out = append(out, entry)
	}
	return out
}

func (s *Service) PayDebt(ctx context.Context, id string, amount int64) (domain.DebtPayResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.DebtPayResponse{}, fmt.Errorf("admin role required")
	}
	if strings.TrimSpace(id) == "" || amount <= 0 {
		return domain.DebtPayResponse{}, store.ErrInvalidInput
	}

	record, err := s.repo.GetDebtRecordByID(ctx, id)
	if err != nil {
		return domain.DebtPayResponse{}, err
	}
	if amount > record.DebtAmount {
		return domain.DebtPayResponse{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateDebtAmount(ctx, id, record.DebtAmount-amount, time.Now().UTC())
	if err != nil {
		return domain.DebtPayResponse{}, err
	}

	s.logAudit(ctx, "debt_pay", "debt_record", id, fmt.Sprintf("amount=%d,remaining=%d", amount, updated.DebtAmount))
	return domain.DebtPayResponse{
		DebtRecordID: updated.ID,
		Paid:         amount,
		Remaining:    updated.DebtAmount,
		Settled:      updated.DebtAmount == 0,
	}, nil
}

// PayDebtLine pays against one product's share of a record within the
// customer's grouped view. The amount is validated against the apportioned
// line before the authoritative record is touched.
func (s *Service) PayDebtLine(ctx context.Context, req domain.DebtLinePayRequest) (domain.DebtPayResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.DebtPayResponse{}, fmt.Errorf("admin role required")
	}
	if strings.TrimSpace(req.DebtRecordID) == "" || strings.TrimSpace(req.ProductKey) == "" {
		return domain.DebtPayResponse{}, store.ErrInvalidInput
	}

	groups, err := s.GroupedDebtors(ctx)
	if err != nil {
		return domain.DebtPayResponse{}, err
	}
	var group *debt.CustomerGroup
	for i := range groups {
		for _, recordID := range groups[i].RecordIDs {
			if recordID == req.DebtRecordID {
				group = &groups[i]
				break
			}
		}
		if group != nil {
			break
		}
	}
	if group == nil {
		return domain.DebtPayResponse{}, store.ErrNotFound
	}

	if _, _, err := debt.ApplyPayment(*group, req.DebtRecordID, req.ProductKey, req.Amount); err != nil {
		switch {
		case errors.Is(err, debt.ErrLineNotFound):
			return domain.DebtPayResponse{}, store.ErrNotFound
		default:
			return domain.DebtPayResponse{}, store.ErrInvalidInput
		}
	}

	record, err := s.repo.GetDebtRecordByID(ctx, req.DebtRecordID)
	if err != nil {
		return domain.DebtPayResponse{}, err
	}
	remaining := record.DebtAmount - req.Amount
	if remaining < 0 {
		remaining = 0
	}
	updated, err := s.repo.UpdateDebtAmount(ctx, req.DebtRecordID, remaining, time.Now().UTC())
	if err != nil {
		return domain.DebtPayResponse{}, err
	}

	s.logAudit(ctx, "debt_pay_line", "debt_record", req.DebtRecordID, fmt.Sprintf("product=%s,amount=%d,remaining=%d", req.ProductKey, req.Amount, updated.DebtAmount))
	return domain.DebtPayResponse{
		DebtRecordID: updated.ID,
		Paid:         req.Amount,
		Remaining:    updated.DebtAmount,
		Settled:      updated.DebtAmount == 0,
	}, nil
}

func (s *Service) SettleDebts(ctx context.Context, req domain.DebtSettleRequest) (domain.DebtSettleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.DebtSettleResponse{}, fmt.Errorf("admin role required")
	}

	recordIDs := append([]string(nil), req.DebtRecordIDs...)
	if key := strings.TrimSpace(req.CustomerKey); key != "" {
		groups, err := s.GroupedDebtors(ctx)
		if err != nil {
			return domain.DebtSettleResponse{}, err
		}
		found := false
		for _, group := range groups {
			if group.Key == key {
				recordIDs = append(recordIDs, debt.SettleAll(group)...)
				found = true
				break
			}
		}
		if !found {
			return domain.DebtSettleResponse{}, store.ErrNotFound
		}
	}
	if len(recordIDs) == 0 {
		return domain.DebtSettleResponse{}, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	resp := domain.DebtSettleResponse{}
	seen := make(map[string]struct{}, len(recordIDs))
	for _, id := range recordIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		record, err := s.repo.GetDebtRecordByID(ctx, id)
		if err != nil {
			return resp, err
		}
		if record.DebtAmount <= 0 {
			continue
		}
		if _, err := s.repo.UpdateDebtAmount(ctx, id, 0, now); err != nil {
			return resp, err
		}
		resp.SettledIDs = append(resp.SettledIDs, id)
		resp.TotalPaid += record.DebtAmount
		s.logAudit(ctx, "debt_settle", "debt_record", id, fmt.Sprintf("amount=%d", record.DebtAmount))
	}
	return resp, nil
}

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Employee{}, fmt.Errorf("admin role required")
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))

	if req.FullName == "" || req.SalarySom < 0 {
		return domain.Employee{}, store.ErrInvalidInput
	}
	switch req.JobType {
	case domain.JobMonthly, domain.JobContract, domain.JobManager:
	default:
		return domain.Employee{}, store.ErrInvalidInput
	}

	employee := domain.Employee{
		ID:        ids.New("emp"),
		FullName:  req.FullName,
		Phone:     req.Phone,
		JobType:   req.JobType,
		SalarySom: req.SalarySom,
		Username:  req.Username,
		CreatedAt: time.Now().UTC(),
	}

	if req.Username != "" {
		if strings.TrimSpace(req.Password) == "" {
			return domain.Employee{}, store.ErrInvalidInput
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Employee{}, err
		}
		employee.Password = string(hash)
		if err := s.repo.CreateUser(ctx, domain.UserAccount{
			Username: req.Username,
			Password: string(hash),
			Role:     "employee",
		}); err != nil {
			return domain.Employee{}, err
		}
	}

	created, err := s.repo.CreateEmployee(ctx, employee)
	if err != nil {
		return domain.Employee{}, err
	}

	s.logAudit(ctx, "employee_create", "employee", created.ID, fmt.Sprintf("job=%s,salary=%d", created.JobType, created.SalarySom))
	return *created, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListEmployees(ctx)
}

func (s *Service) UpdateEmployeeSalary(ctx context.Context, id string, req domain.EmployeeSalaryUpdateRequest) (domain.Employee, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Employee{}, fmt.Errorf("admin role required")
	}
	if strings.TrimSpace(id) == "" || req.SalarySom < 0 {
		return domain.Employee{}, store.ErrInvalidInput
	}
	updated, err := s.repo.UpdateEmployeeSalary(ctx, id, req.SalarySom)
	if err != nil {
		return domain.Employee{}, err
	}
	s.logAudit(ctx, "employee_salary_update", "employee", id, fmt.Sprintf("salary=%d", req.SalarySom))
	return *updated, nil
}

func (s *Service) DeleteEmployee(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteEmployee(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "employee_delete", "employee", id, "")
	return nil
}

func (s *Service) PaySalary(ctx context.Context, req domain.SalaryPayRequest) (domain.SalaryPayment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SalaryPayment{}, fmt.Errorf("admin role required")
	}
	if req.AmountSom <= 0 || req.Month < 1 || req.Month > 12 || req.Year < 2000 {
		return domain.SalaryPayment{}, store.ErrInvalidInput
	}

	employee, err := s.repo.GetEmployeeByID(ctx, req.EmployeeID)
	if err != nil {
		return domain.SalaryPayment{}, err
	}

	payment, err := s.repo.CreateSalaryPayment(ctx, domain.SalaryPayment{
		ID:         ids.New("salary"),
		EmployeeID: employee.ID,
		FullName:   employee.FullName,
		Phone:      employee.Phone,
		JobType:    employee.JobType,
		AmountSom:  req.AmountSom,
		Month:      req.Month,
		Year:       req.Year,
		PaidAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.SalaryPayment{}, err
	}

	s.logAudit(ctx, "salary_pay", "employee", employee.ID, fmt.Sprintf("amount=%d,month=%d,year=%d", req.AmountSom, req.Month, req.Year))
	return *payment, nil
}

func (s *Service) GiveAdvance(ctx context.Context, req domain.AdvanceRequest) (domain.AdvanceResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.AdvanceResponse{}, fmt.Errorf("admin role required")
	}
	if req.AmountSom <= 0 {
		return domain.AdvanceResponse{}, store.ErrInvalidInput
	}

	employee, err := s.repo.GetEmployeeByID(ctx, req.EmployeeID)
	if err != nil {
		return domain.AdvanceResponse{}, err
	}

	now := time.Now().UTC()
	limit := employee.SalarySom * advanceLimitPercent / 100

	existing, err := s.repo.ListAdvancePayments(ctx, employee.ID)
	if err != nil {
		return domain.AdvanceResponse{}, err
	}
	monthToDate := int64(0)
	for _, advance := range existing {
		if advance.PaidAt.Year() == now.Year() && advance.PaidAt.Month() == now.Month() {
			monthToDate += advance.AmountSom
		}
	}

	advance, err := s.repo.CreateAdvancePayment(ctx, domain.AdvancePayment{
		ID:         ids.New("advance"),
		EmployeeID: employee.ID,
		FullName:   employee.FullName,
		Phone:      employee.Phone,
		JobType:    employee.JobType,
		AmountSom:  req.AmountSom,
		Note:       strings.TrimSpace(req.Note),
		PaidAt:     now,
	})
	if err != nil {
		return domain.AdvanceResponse{}, err
	}

	overLimit := limit > 0 && monthToDate+req.AmountSom > limit
	if overLimit {
		s.log.WithFields(logrus.Fields{
			"employee_id": employee.ID,
			"month_total": monthToDate + req.AmountSom,
			"limit_som":   limit,
		}).Warn("advance exceeds monthly limit")
	}

	s.logAudit(ctx, "advance_give", "employee", employee.ID, fmt.Sprintf("amount=%d,over_limit=%t", req.AmountSom, overLimit))
	return domain.AdvanceResponse{
		Advance:   *advance,
		OverLimit: overLimit,
		LimitSom:  limit,
	}, nil
}

func (s *Service) ListSalaryHistory(ctx context.Context, employeeID string) ([]domain.SalaryPayment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListSalaryPayments(ctx, strings.TrimSpace(employeeID))
}

func (s *Service) ListAdvanceHistory(ctx context.Context, employeeID string) ([]domain.AdvancePayment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListAdvancePayments(ctx, strings.TrimSpace(employeeID))
}

func (s *Service) AddExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Expense{}, fmt.Errorf("admin role required")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.AmountSom <= 0 {
		return domain.Expense{}, store.ErrInvalidInput
	}

	spentAt := time.Now().UTC()
	if req.SpentAt != "" {
		parsed, err := time.Parse("2006-01-02", req.SpentAt)
		if err != nil {
			return domain.Expense{}, store.ErrInvalidInput
		}
		spentAt = parsed
	}

	expense, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:        ids.New("expense"),
		Title:     req.Title,
		Category:  strings.TrimSpace(req.Category),
		AmountSom: req.AmountSom,
		Note:      strings.TrimSpace(req.Note),
		SpentAt:   spentAt,
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_create", "expense", expense.ID, fmt.Sprintf("amount=%d,category=%s", expense.AmountSom, expense.Category))
	return *expense, nil
}

func (s *Service) ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListExpenses(ctx, filter)
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "expense_delete", "expense", id, "")
	return nil
}

func (s *Service) ExpenseStats(ctx context.Context, filter domain.ExpenseFilter) (domain.ExpenseStats, error) {
	expenses, err := s.ListExpenses(ctx, filter)
	if err != nil {
		return domain.ExpenseStats{}, err
	}

	stats := domain.ExpenseStats{Count: len(expenses)}
	byCategory := map[string]*domain.ExpenseCategoryStat{}
	for _, expense := range expenses {
		stats.TotalSom += expense.AmountSom
		category := expense.Category
		if category == "" {
			category = "boshqa"
		}
		entry := byCategory[category]
		if entry == nil {
			entry = &domain.ExpenseCategoryStat{Category: category}
			byCategory[category] = entry
		}
		entry.AmountSom += expense.AmountSom
		entry.Count++
	}
	for _, entry := range byCategory {
		stats.ByCategory = append(stats.ByCategory, *entry)
	}
	sort.Slice(stats.ByCategory, func(i, j int) bool {
		if stats.ByCategory[i].AmountSom == stats.ByCategory[j].AmountSom {
			return stats.ByCategory[i].Category < stats.ByCategory[j].Category
		}
		return stats.ByCategory[i].AmountSom > stats.ByCategory[j].AmountSom
	})
	return stats, nil
}

func (s *Service) StatsOverview(ctx context.Context) (domain.StatsOverview, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.StatsOverview{}, fmt.Errorf("admin role required")
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleListFilter{})
	if err != nil {
		return domain.StatsOverview{}, err
	}
	debts, err := s.repo.ListDebtRecords(ctx, true)
	if err != nil {
		return domain.StatsOverview{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, domain.ExpenseFilter{})
	if err != nil {
		return domain.StatsOverview{}, err
	}
	salaries, err := s.repo.ListSalaryPayments(ctx, "")
	if err != nil {
		return domain.StatsOverview{}, err
	}
	advances, err := s.repo.ListAdvancePayments(ctx, "")
	if err != nil {
		return domain.StatsOverview{}, err
	}

	overview := domain.StatsOverview{Sales: len(sales)}
	for _, sale := range sales {
		overview.GrossSom += sale.TotalSom
		kub := 0.0
		for _, line := range sale.Lines {
			kub += line.Kub
		}
		switch sale.PaymentType {
		case domain.PaymentCash:
			overview.KubByPayment.Cash += kub
		case domain.PaymentCredit:
			overview.KubByPayment.Credit += kub
		case domain.PaymentCard:
			overview.KubByPayment.Card += kub
		}
	}
	for _, record := range debts {
		if record.DebtAmount > 0 {
			overview.OutstandingSom += record.DebtAmount
		}
	}
	for _, expense := range expenses {
		overview.ExpensesSom += expense.AmountSom
	}
	for _, payment := range salaries {
		overview.SalariesPaidSom += payment.AmountSom
	}
	for _, advance := range advances {
		overview.AdvancesSom += advance.AmountSom
	}
	return overview, nil
}

// CustomerRanking orders customers by purchased volume, then by spend.
func (s *Service) CustomerRanking(ctx context.Context, limit int) ([]domain.CustomerStat, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 20
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleListFilter{})
	if err != nil {
		return nil, err
	}

	byCustomer := map[string]*domain.CustomerStat{}
	order := make([]string, 0, len(sales))
	for _, sale := range sales {
		name := strings.TrimSpace(sale.CustomerName)
		phone := strings.TrimSpace(sale.CustomerPhone)
		if name == "" && phone == "" {
			continue
		}
		key := debt.CustomerKey(name, phone)
		entry := byCustomer[key]
		if entry == nil {
			entry = &domain.CustomerStat{CustomerName: name, CustomerPhone: phone}
			byCustomer[key] = entry
			order = append(order, key)
		}
		entry.TotalSom += sale.TotalSom
		entry.Sales++
		for _, line := range sale.Lines {
			entry.TotalKub += line.Kub
		}
	}

	ranking := make([]domain.CustomerStat, 0, len(order))
	for _, key := range order {
		ranking = append(ranking, *byCustomer[key])
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		if ranking[i].TotalKub == ranking[j].TotalKub {
			return ranking[i].TotalSom > ranking[j].TotalSom
		}
		return ranking[i].TotalKub > ranking[j].TotalKub
	})
	if len(ranking) > limit {
		ranking = ranking[:limit]
	}
	return ranking, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            ids.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"action":    action,
			"entity":    entityType,
			"entity_id": entityID,
		}).Warn("failed to write audit log")
	}
}

func validUnit(unit string) bool {
	return unit == domain.UnitPiece || unit == domain.UnitCubic
}

func validCurrency(curr string) bool {
	return curr == domain.CurrencySom || curr == domain.CurrencyUSD
}
