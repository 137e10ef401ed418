package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"yogochsavdo/backend/internal/domain"
	"yogochsavdo/backend/internal/ids"
	"yogochsavdo/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	productIDByCode map[string]string
	sales           map[string]domain.Sale
	debts           map[string]domain.DebtRecord
	employees       map[string]domain.Employee
	salaryPayments  []domain.SalaryPayment
	advancePayments []domain.AdvancePayment
	expenses        map[string]domain.Expense
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// The admin password is read from SEED_ADMIN_PASSWORD; if unset, a hardcoded
// dev default is used with a warning. These credentials are never used in
// production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return map[string]domain.UserAccount{
		"admin": {
			Username:  "admin",
			Password:  string(hash),
			Role:      "admin",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-taxta-25", Name: "Taxta 25x150", Code: "TX-25-150", Category: "taxta", WidthMM: 25, HeightMM: 150, LengthMM: 6000, Unit: domain.UnitCubic, Quantity: 180, SellPrice: 2100000, CostPrice: 1700000, Currency: domain.CurrencySom, CreatedAt: now},
		{ID: "prod-taxta-50", Name: "Taxta 50x150", Code: "TX-50-150", Category: "taxta", WidthMM: 50, HeightMM: 150, LengthMM: 6000, Unit: domain.UnitCubic, Quantity: 140, SellPrice: 175, CostPrice: 140, Currency: domain.CurrencyUSD, CreatedAt: now},
		{ID: "prod-brus-100", Name: "Brus 100x100", Code: "BR-100", Category: "brus", WidthMM: 100, HeightMM: 100, LengthMM: 6000, Unit: domain.UnitCubic, Quantity: 90, SellPrice: 2250000, CostPrice: 1850000, Currency: domain.CurrencySom, CreatedAt: now},
		{ID: "prod-reyka-20", Name: "Reyka 20x40", Code: "RK-20-40", Category: "reyka", WidthMM: 20, HeightMM: 40, LengthMM: 3000, Unit: domain.UnitPiece, Quantity: 400, SellPrice: 14000, CostPrice: 10000, Currency: domain.CurrencySom, CreatedAt: now},
		{ID: "prod-fanera-18", Name: "Fanera 18mm", Code: "FN-18", Category: "fanera", WidthMM: 1525, HeightMM: 18, LengthMM: 1525, Unit: domain.UnitPiece, Quantity: 60, SellPrice: 32, CostPrice: 25, Currency: domain.CurrencyUSD, CreatedAt: now},
		{ID: "prod-shifer-8", Name: "Shifer 8 to'lqin", Code: "SH-8", Category: "shifer", WidthMM: 1130, HeightMM: 5, LengthMM: 1750, Unit: domain.UnitPiece, Quantity: 4, SellPrice: 78000, CostPrice: 62000, Currency: domain.CurrencySom, CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	codeIndex := make(map[string]string, len(products))
	for _, p := range products {
		productMap[p.ID] = p
		codeIndex[p.Code] = p.ID
	}

	return &Store{
		products:        productMap,
		productIDByCode: codeIndex,
		sales:           make(map[string]domain.Sale),
		debts:           make(map[string]domain.DebtRecord),
		employees:       make(map[string]domain.Employee),
		salaryPayments:  make([]domain.SalaryPayment, 0, 32),
		advancePayments: make([]domain.AdvancePayment, 0, 32),
		expenses:        make(map[string]domain.Expense),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductListFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		switch filter.Stock {
		case domain.StockFilterLow:
			if p.Quantity < 1 || p.Quantity > 5 {
				continue
			}
		case domain.StockFilterFinished:
			if p.Quantity != 0 {
				continue
			}
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Code), search) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductByCode(_ context.Context, code string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.productIDByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	product := s.products[id]
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Code == "" || product.Quantity < 0 || product.SellPrice <= 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productIDByCode[product.Code]; exists {
		return nil, store.ErrDuplicateCode
	}
	if product.ID == "" {
		product.ID = ids.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	s.products[product.ID] = product
	s.productIDByCode[product.Code] = product.ID
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Quantity < 0 || product.SellPrice <= 0 {
		return nil, store.ErrInvalidInput
	}
	// Code is immutable once assigned.
	product.Code = current.Code
	product.CreatedAt = current.CreatedAt

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	delete(s.productIDByCode, product.Code)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	next := product.Quantity + delta
	if next < 0 {
		return store.ErrInsufficientStock
	}
	product.Quantity = next
	s.products[productID] = product
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 || sale.TotalSom < 0 || sale.PaidSom < 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = ids.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	s.sales[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleListFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.PaymentType != "" && sale.PaymentType != filter.PaymentType {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(sale.CustomerName), search) &&
			!strings.Contains(strings.ToLower(sale.CustomerPhone), search) {
			continue
		}
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, cloneSale(sale))
	}

	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) CreateDebtRecord(_ context.Context, record domain.DebtRecord) (*domain.DebtRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.SaleID == "" || record.DebtAmount < 0 {
		return nil, store.ErrInvalidInput
	}
	if record.ID == "" {
		record.ID = ids.New("debt")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	s.debts[record.ID] = record
	created := record
	return &created, nil
}

func (s *Store) ListDebtRecords(_ context.Context, openOnly bool) ([]domain.DebtRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DebtRecord, 0, len(s.debts))
	for _, record := range s.debts {
		if openOnly && record.DebtAmount <= 0 {
			continue
		}
		result = append(result, record)
	}

	// Oldest first so grouped views are stable across calls.
	slices.SortFunc(result, func(a, b domain.DebtRecord) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetDebtRecordByID(_ context.Context, id string) (*domain.DebtRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.debts[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyRecord := record
	return &copyRecord, nil
}

func (s *Store) UpdateDebtAmount(_ context.Context, id string, amount int64, updatedAt time.Time) (*domain.DebtRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount < 0 {
		return nil, store.ErrInvalidInput
	}
	record, exists := s.debts[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	record.DebtAmount = amount
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	record.UpdatedAt = updatedAt
	s.debts[id] = record
	copyRecord := record
	return &copyRecord, nil
}

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if employee.FullName == "" || employee.SalarySom < 0 {
		return nil, store.ErrInvalidInput
	}
	if employee.ID == "" {
		employee.ID = ids.New("emp")
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}

	s.employees[employee.ID] = employee
	created := employee
	return &created, nil
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]domain.Employee, 0, len(s.employees))
	for _, employee := range s.employees {
		employees = append(employees, employee)
	}
	slices.SortFunc(employees, func(a, b domain.Employee) int {
		return cmpString(a.FullName, b.FullName)
	})
	return employees, nil
}

func (s *Store) GetEmployeeByID(_ context.Context, id string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, exists := s.employees[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyEmployee := employee
	return &copyEmployee, nil
}

func (s *Store) UpdateEmployeeSalary(_ context.Context, id string, salarySom int64) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if salarySom < 0 {
		return nil, store.ErrInvalidInput
	}
	employee, exists := s.employees[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	employee.SalarySom = salarySom
	s.employees[id] = employee
	copyEmployee := employee
	return &copyEmployee, nil
}

func (s *Store) DeleteEmployee(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.employees[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.employees, id)
	return nil
}

func (s *Store) CreateSalaryPayment(_ context.Context, payment domain.SalaryPayment) (*domain.SalaryPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.EmployeeID == "" || payment.AmountSom <= 0 {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = ids.New("salary")
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}

	s.salaryPayments = append(s.salaryPayments, payment)
	created := payment
	return &created, nil
}

func (s *Store) ListSalaryPayments(_ context.Context, employeeID string) ([]domain.SalaryPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalaryPayment, 0, len(s.salaryPayments))
	for _, payment := range s.salaryPayments {
		if employeeID != "" && payment.EmployeeID != employeeID {
			continue
		}
		result = append(result, payment)
	}
	slices.SortFunc(result, func(a, b domain.SalaryPayment) int {
		if a.PaidAt.Equal(b.PaidAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.PaidAt.After(b.PaidAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateAdvancePayment(_ context.Context, advance domain.AdvancePayment) (*domain.AdvancePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if advance.EmployeeID == "" || advance.AmountSom <= 0 {
		return nil, store.ErrInvalidInput
	}
	if advance.ID == "" {
		advance.ID = ids.New("advance")
	}
	if advance.PaidAt.IsZero() {
		advance.PaidAt = time.Now().UTC()
	}

	s.advancePayments = append(s.advancePayments, advance)
	created := advance
	return &created, nil
}

func (s *Store) ListAdvancePayments(_ context.Context, employeeID string) ([]domain.AdvancePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AdvancePayment, 0, len(s.advancePayments))
	for _, advance := range s.advancePayments {
		if employeeID != "" && advance.EmployeeID != employeeID {
			continue
		}
		result = append(result, advance)
	}
	slices.SortFunc(result, func(a, b domain.AdvancePayment) int {
		if a.PaidAt.Equal(b.PaidAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.PaidAt.After(b.PaidAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.Title == "" || expense.AmountSom <= 0 {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = ids.New("expense")
	}
	if expense.SpentAt.IsZero() {
		expense.SpentAt = time.Now().UTC()
	}

	s.expenses[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category := strings.ToLower(strings.TrimSpace(filter.Category))
	result := make([]domain.Expense, 0, len(s.expenses))
	for _, expense := range s.expenses {
		if category != "" && strings.ToLower(expense.Category) != category {
			continue
		}
		if !filter.From.IsZero() && expense.SpentAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !expense.SpentAt.Before(filter.To) {
			continue
		}
		result = append(result, expense)
	}

	slices.SortFunc(result, func(a, b domain.Expense) int {
		if a.SpentAt.Equal(b.SpentAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.SpentAt.After(b.SpentAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = ids.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "employee"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	lines := make([]domain.SaleLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	if src.DueDate != nil {
		due := *src.DueDate
		dup.DueDate = &due
	}
	return dup
}
