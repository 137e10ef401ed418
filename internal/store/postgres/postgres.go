package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"yogochsavdo/backend/internal/domain"
	"yogochsavdo/backend/internal/ids"
	"yogochsavdo/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductListFilter) ([]domain.Product, error) {
	query := `
		SELECT id, name, code, category, width_mm, height_mm, length_mm, unit, quantity, sell_price, cost_price, currency, created_at
		FROM products
	`
	conds := make([]string, 0, 2)
	args := make([]any, 0, 2)
	switch filter.Stock {
	case domain.StockFilterLow:
		conds = append(conds, "quantity BETWEEN 1 AND 5")
	case domain.StockFilterFinished:
		conds = append(conds, "quantity = 0")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		conds = append(conds, "(lower(name) LIKE $1 OR lower(code) LIKE $1)")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY category, name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.Category, &p.WidthMM, &p.HeightMM, &p.LengthMM, &p.Unit, &p.Quantity, &p.SellPrice, &p.CostPrice, &p.Currency, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, "id", id)
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	return s.getProduct(ctx, "code", code)
}

func (s *Store) getProduct(ctx context.Context, column string, value string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, code, category, width_mm, height_mm, length_mm, unit, quantity, sell_price, cost_price, currency, created_at
		FROM products
		WHERE `+column+` = $1
	`, value).Scan(&p.ID, &p.Name, &p.Code, &p.Category, &p.WidthMM, &p.HeightMM, &p.LengthMM, &p.Unit, &p.Quantity, &p.SellPrice, &p.CostPrice, &p.Currency, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Code == "" || product.Quantity < 0 || product.SellPrice <= 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = ids.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, code, category, width_mm, height_mm, length_mm, unit, quantity, sell_price, cost_price, currency, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, product.ID, product.Name, product.Code, product.Category, product.WidthMM, product.HeightMM, product.LengthMM, product.Unit, product.Quantity, product.SellPrice, product.CostPrice, product.Currency, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateCode
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Quantity < 0 || product.SellPrice <= 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, width_mm = $4, height_mm = $5, length_mm = $6, unit = $7,
			quantity = $8, sell_price = $9, cost_price = $10, currency = $11
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.WidthMM, product.HeightMM, product.LengthMM, product.Unit, product.Quantity, product.SellPrice, product.CostPrice, product.Currency)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2
		WHERE id = $1 AND quantity + $2 >= 0
	`, productID, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := s.GetProductByID(ctx, productID); getErr != nil {
			return getErr
		}
		return store.ErrInsufficientStock
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 || sale.TotalSom < 0 || sale.PaidSom < 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = ids.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	lines, err := json.Marshal(sale.Lines)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, lines, payment_type, total_som, paid_som, due_som, due_date, customer_name, customer_phone, rate_som_per_usd, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, lines, sale.PaymentType, sale.TotalSom, sale.PaidSom, sale.DueSom, sale.DueDate, sale.CustomerName, sale.CustomerPhone, sale.RateSomPerUSD, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, error) {
	query := `
		SELECT id, lines, payment_type, total_som, paid_som, due_som, due_date, customer_name, customer_phone, rate_som_per_usd, created_at
		FROM sales
	`
	conds := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if filter.PaymentType != "" {
		args = append(args, filter.PaymentType)
		conds = append(conds, argCond("payment_type =", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		n := len(args)
		conds = append(conds, "(lower(customer_name) LIKE "+placeholder(n)+" OR lower(customer_phone) LIKE "+placeholder(n)+")")
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, argCond("created_at >=", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, argCond("created_at <", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lines, payment_type, total_som, paid_som, due_som, due_date, customer_name, customer_phone, rate_som_per_usd, created_at
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var lines []byte
	var dueDate sql.NullTime
	if err := row.Scan(&sale.ID, &lines, &sale.PaymentType, &sale.TotalSom, &sale.PaidSom, &sale.DueSom, &dueDate, &sale.CustomerName, &sale.CustomerPhone, &sale.RateSomPerUSD, &sale.CreatedAt); err != nil {
		return nil, err
	}
	if dueDate.Valid {
		due := dueDate.Time
		sale.DueDate = &due
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &sale.Lines); err != nil {
			return nil, err
		}
	}
	return &sale, nil
}

func (s *Store) CreateDebtRecord(ctx context.Context, record domain.DebtRecord) (*domain.DebtRecord, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO debt_records (id, sale_id, customer_name, customer_phone, debt_amount, due_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, record.ID, record.SaleID, record.CustomerName, record.CustomerPhone, record.DebtAmount, record.DueDate, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	created := record
	return &created, nil
}

func (s *Store) ListDebtRecords(ctx context.Context, openOnly bool) ([]domain.DebtRecord, error) {
	query := `
		SELECT id, sale_id, customer_name, customer_phone, debt_amount, due_date, created_at, updated_at
		FROM debt_records
	`
	if openOnly {
		query += " WHERE debt_amount > 0"
	}
	// Oldest first so grouped views are stable across calls.
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.DebtRecord, 0, 64)
	for rows.Next() {
		record, err := scanDebtRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) GetDebtRecordByID(ctx context.Context, id string) (*domain.DebtRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, customer_name, customer_phone, debt_amount, due_date, created_at, updated_at
		FROM debt_records
		WHERE id = $1
	`, id)
	record, err := scanDebtRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func scanDebtRecord(row rowScanner) (*domain.DebtRecord, error) {
	var record domain.DebtRecord
	var dueDate sql.NullTime
	if err := row.Scan(&record.ID, &record.SaleID, &record.CustomerName, &record.CustomerPhone, &record.DebtAmount, &dueDate, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return nil, err
	}
	if dueDate.Valid {
		due := dueDate.Time
		record.DueDate = &due
	}
	return &record, nil
}

func (s *Store) UpdateDebtAmount(ctx context.Context, id string, amount int64, updatedAt time.Time) (*domain.DebtRecord, error) {
	if amount < 0 {
		return nil, store.ErrInvalidInput
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE debt_records
		SET debt_amount = $2, updated_at = $3
		WHERE id = $1
	`, id, amount, updatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetDebtRecordByID(ctx, id)
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.FullName == "" || employee.SalarySom < 0 {
		return nil, store.ErrInvalidInput
	}
	if employee.ID == "" {
		employee.ID = ids.New("emp")
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, full_name, phone, job_type, salary_som, username, password, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, employee.ID, employee.FullName, employee.Phone, employee.JobType, employee.SalarySom, employee.Username, employee.Password, employee.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := employee
	return &created, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, phone, job_type, salary_som, username, password, created_at
		FROM employees
		ORDER BY full_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 32)
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.FullName, &e.Phone, &e.JobType, &e.SalarySom, &e.Username, &e.Password, &e.CreatedAt); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return employees, nil
}

func (s *Store) GetEmployeeByID(ctx context.Context, id string) (*domain.Employee, error) {
	var e domain.Employee
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, phone, job_type, salary_som, username, password, created_at
		FROM employees
		WHERE id = $1
	`, id).Scan(&e.ID, &e.FullName, &e.Phone, &e.JobType, &e.SalarySom, &e.Username, &e.Password, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) UpdateEmployeeSalary(ctx context.Context, id string, salarySom int64) (*domain.Employee, error) {
	if salarySom < 0 {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE employees SET salary_som = $2 WHERE id = $1
	`, id, salarySom)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetEmployeeByID(ctx, id)
}

func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSalaryPayment(ctx context.Context, payment domain.SalaryPayment) (*domain.SalaryPayment, error) {
	if payment.EmployeeID == "" || payment.AmountSom <= 0 {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = ids.New("salary")
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO salary_payments (id, employee_id, full_name, phone, job_type, amount_som, month, year, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, payment.ID, payment.EmployeeID, payment.FullName, payment.Phone, payment.JobType, payment.AmountSom, payment.Month, payment.Year, payment.PaidAt)
	if err != nil {
		return nil, err
	}

	created := payment
	return &created, nil
}

func (s *Store) ListSalaryPayments(ctx context.Context, employeeID string) ([]domain.SalaryPayment, error) {
	query := `
		SELECT id, employee_id, full_name, phone, job_type, amount_som, month, year, paid_at
		FROM salary_payments
	`
	args := make([]any, 0, 1)
	if employeeID != "" {
		args = append(args, employeeID)
		query += " WHERE employee_id = $1"
	}
	query += " ORDER BY paid_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.SalaryPayment, 0, 32)
	for rows.Next() {
		var p domain.SalaryPayment
		if err := rows.Scan(&p.ID, &p.EmployeeID, &p.FullName, &p.Phone, &p.JobType, &p.AmountSom, &p.Month, &p.Year, &p.PaidAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) CreateAdvancePayment(ctx context.Context, advance domain.AdvancePayment) (*domain.AdvancePayment, error) {
	if advance.EmployeeID == "" || advance.AmountSom <= 0 {
		return nil, store.ErrInvalidInput
	}
	if advance.ID == "" {
		advance.ID = ids.New("advance")
	}
	if advance.PaidAt.IsZero() {
		advance.PaidAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO advance_payments (id, employee_id, full_name, phone, job_type, amount_som, note, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, advance.ID, advance.EmployeeID, advance.FullName, advance.Phone, advance.JobType, advance.AmountSom, advance.Note, advance.PaidAt)
	if err != nil {
		return nil, err
	}

	created := advance
	return &created, nil
}

func (s *Store) ListAdvancePayments(ctx context.Context, employeeID string) ([]domain.AdvancePayment, error) {
	query := `
		SELECT id, employee_id, full_name, phone, job_type, amount_som, note, paid_at
		FROM advance_payments
	`
	args := make([]any, 0, 1)
	if employeeID != "" {
		args = append(args, employeeID)
		query += " WHERE employee_id = $1"
	}
	query += " ORDER BY paid_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	advances := make([]domain.AdvancePayment, 0, 32)
	for rows.Next() {
		var a domain.AdvancePayment
		if err := rows.Scan(&a.ID, &a.EmployeeID, &a.FullName, &a.Phone, &a.JobType, &a.AmountSom, &a.Note, &a.PaidAt); err != nil {
			return nil, err
		}
		advances = append(advances, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return advances, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Title == "" || expense.AmountSom <= 0 {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = ids.New("expense")
	}
	if expense.SpentAt.IsZero() {
		expense.SpentAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, title, category, amount_som, note, spent_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, expense.ID, expense.Title, expense.Category, expense.AmountSom, expense.Note, expense.SpentAt)
	if err != nil {
		return nil, err
	}

	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	query := `
		SELECT id, title, category, amount_som, note, spent_at
		FROM expenses
	`
	conds := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if category := strings.TrimSpace(filter.Category); category != "" {
		args = append(args, strings.ToLower(category))
		conds = append(conds, argCond("lower(category) =", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, argCond("spent_at >=", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, argCond("spent_at <", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY spent_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Title, &e.Category, &e.AmountSom, &e.Note, &e.SpentAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = ids.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}
	query := `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
	`
	conds := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if !from.IsZero() {
		args = append(args, from)
		conds = append(conds, argCond("created_at >=", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conds = append(conds, argCond("created_at <", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC, id DESC LIMIT " + placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "employee"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func argCond(prefix string, n int) string {
	return prefix + " " + placeholder(n)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
