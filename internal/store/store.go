package store

import (
	"context"
	"errors"
	"time"

	"yogochsavdo/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateCode     = errors.New("duplicate code")
)

type Repository interface {
	ListProducts(ctx context.Context, filter domain.ProductListFilter) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByCode(ctx context.Context, code string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, productID string, delta int) error

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)

	CreateDebtRecord(ctx context.Context, record domain.DebtRecord) (*domain.DebtRecord, error)
	ListDebtRecords(ctx context.Context, openOnly bool) ([]domain.DebtRecord, error)
	GetDebtRecordByID(ctx context.Context, id string) (*domain.DebtRecord, error)
	UpdateDebtAmount(ctx context.Context, id string, amount int64, updatedAt time.Time) (*domain.DebtRecord, error)

	CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	GetEmployeeByID(ctx context.Context, id string) (*domain.Employee, error)
	UpdateEmployeeSalary(ctx context.Context, id string, salarySom int64) (*domain.Employee, error)
	DeleteEmployee(ctx context.Context, id string) error
	CreateSalaryPayment(ctx context.Context, payment domain.SalaryPayment) (*domain.SalaryPayment, error)
	ListSalaryPayments(ctx context.Context, employeeID string) ([]domain.SalaryPayment, error)
	CreateAdvancePayment(ctx context.Context, advance domain.AdvancePayment) (*domain.AdvancePayment, error)
	ListAdvancePayments(ctx context.Context, employeeID string) ([]domain.AdvancePayment, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
