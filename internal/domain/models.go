package domain

import "time"

// Currency markers as the storefront records them. Prices live either in
// Uzbek so'm or in US dollars; dollar prices are converted at sale time.
const (
	CurrencySom = "so'm"
	CurrencyUSD = "$"
)

// Product units. "dona" is sold per piece, "kub" per cubic meter of timber.
const (
	UnitPiece = "dona"
	UnitCubic = "kub"
)

// Payment types on a sale.
const (
	PaymentCash   = "naqd"
	PaymentCard   = "karta"
	PaymentCredit = "qarz"
)

// Employee job types.
const (
	JobMonthly  = "oylik"
	JobContract = "dagavor"
	JobManager  = "menejer"
)

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Category  string    `json:"category"`
	WidthMM   float64   `json:"width_mm"`
	HeightMM  float64   `json:"height_mm"`
	LengthMM  float64   `json:"length_mm"`
	Unit      string    `json:"unit"`
	Quantity  int       `json:"quantity"`
	SellPrice float64   `json:"sell_price"`
	CostPrice float64   `json:"cost_price"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// UnitVolume is the volume of a single piece in cubic meters.
func (p Product) UnitVolume() float64 {
	return p.WidthMM * p.HeightMM * p.LengthMM / 1_000_000_000
}

type ProductCreateRequest struct {
	Name      string  `json:"name"`
	Code      string  `json:"code"`
	Category  string  `json:"category"`
	WidthMM   float64 `json:"width_mm"`
	HeightMM  float64 `json:"height_mm"`
	LengthMM  float64 `json:"length_mm"`
	Unit      string  `json:"unit"`
	Quantity  int     `json:"quantity"`
	SellPrice float64 `json:"sell_price"`
	CostPrice float64 `json:"cost_price"`
	Currency  string  `json:"currency"`
}

type ProductUpdateRequest struct {
	Name      *string  `json:"name,omitempty"`
	Category  *string  `json:"category,omitempty"`
	WidthMM   *float64 `json:"width_mm,omitempty"`
	HeightMM  *float64 `json:"height_mm,omitempty"`
	LengthMM  *float64 `json:"length_mm,omitempty"`
	Unit      *string  `json:"unit,omitempty"`
	Quantity  *int     `json:"quantity,omitempty"`
	SellPrice *float64 `json:"sell_price,omitempty"`
	CostPrice *float64 `json:"cost_price,omitempty"`
	Currency  *string  `json:"currency,omitempty"`
}

// Stock filter values for the catalog listing. "low" means 1..5 pieces left,
// "finished" means none.
const (
	StockFilterLow      = "low"
	StockFilterFinished = "finished"
)

type ProductListFilter struct {
	Stock  string
	Search string
}

type SaleLine struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Code      string  `json:"code"`
	Category  string  `json:"category"`
	Unit      string  `json:"unit"`
	Quantity  int     `json:"quantity"`
	Kub       float64 `json:"kub"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Cost      float64 `json:"cost"`
	TotalSom  int64   `json:"total_som"`
}

type Sale struct {
	ID            string     `json:"id"`
	Lines         []SaleLine `json:"lines"`
	PaymentType   string     `json:"payment_type"`
	TotalSom      int64      `json:"total_som"`
	PaidSom       int64      `json:"paid_som"`
	DueSom        int64      `json:"due_som"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	RateSomPerUSD float64    `json:"rate_som_per_usd"`
	CreatedAt     time.Time  `json:"created_at"`
}

type SaleLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleCreateRequest struct {
	Lines         []SaleLineRequest `json:"lines"`
	PaymentType   string            `json:"payment_type"`
	PaidSom       int64             `json:"paid_som"`
	DueDate       string            `json:"due_date,omitempty"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
}

type SaleCreateResponse struct {
	Sale         Sale   `json:"sale"`
	DebtRecordID string `json:"debt_record_id,omitempty"`
}

type SaleListFilter struct {
	PaymentType string
	Search      string
	From        time.Time
	To          time.Time
}

// DebtRecord is the authoritative remainder owed on one credit sale.
// DebtAmount of zero means settled; settled records stay in storage for
// history but are excluded from customer-facing aggregates.
type DebtRecord struct {
	ID            string     `json:"id"`
	SaleID        string     `json:"sale_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	DebtAmount    int64      `json:"debt_amount"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type DebtPayRequest struct {
	Amount int64 `json:"amount"`
}

type DebtPayResponse struct {
	DebtRecordID string `json:"debt_record_id"`
	Paid         int64  `json:"paid"`
	Remaining    int64  `json:"remaining"`
	Settled      bool   `json:"settled"`
}

type DebtLinePayRequest struct {
	DebtRecordID string `json:"debt_record_id"`
	ProductKey   string `json:"product_key"`
	Amount       int64  `json:"amount"`
}

type DebtSettleRequest struct {
	DebtRecordIDs []string `json:"debt_record_ids"`
	CustomerKey   string   `json:"customer_key,omitempty"`
}

type DebtSettleResponse struct {
	SettledIDs []string `json:"settled_ids"`
	TotalPaid  int64    `json:"total_paid"`
}

type Employee struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	JobType   string    `json:"job_type"`
	SalarySom int64     `json:"salary_som"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type EmployeeCreateRequest struct {
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	JobType   string `json:"job_type"`
	SalarySom int64  `json:"salary_som"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

type EmployeeSalaryUpdateRequest struct {
	SalarySom int64 `json:"salary_som"`
}

type SalaryPayment struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	FullName   string    `json:"full_name"`
	Phone      string    `json:"phone"`
	JobType    string    `json:"job_type"`
	AmountSom  int64     `json:"amount_som"`
	Month      int       `json:"month"`
	Year       int       `json:"year"`
	PaidAt     time.Time `json:"paid_at"`
}

type SalaryPayRequest struct {
	EmployeeID string `json:"employee_id"`
	AmountSom  int64  `json:"amount_som"`
	Month      int    `json:"month"`
	Year       int    `json:"year"`
}

type AdvancePayment struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	FullName   string    `json:"full_name"`
	Phone      string    `json:"phone"`
	JobType    string    `json:"job_type"`
	AmountSom  int64     `json:"amount_som"`
	Note       string    `json:"note"`
	PaidAt     time.Time `json:"paid_at"`
}

type AdvanceRequest struct {
	EmployeeID string `json:"employee_id"`
	AmountSom  int64  `json:"amount_som"`
	Note       string `json:"note"`
}

// AdvanceResponse carries the soft over-limit flag: the shop warns when an
// advance pushes past half the salary but never blocks the payment.
type AdvanceResponse struct {
	Advance   AdvancePayment `json:"advance"`
	OverLimit bool           `json:"over_limit"`
	LimitSom  int64          `json:"limit_som"`
}

type Expense struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	AmountSom int64     `json:"amount_som"`
	Note      string    `json:"note"`
	SpentAt   time.Time `json:"spent_at"`
}

type ExpenseCreateRequest struct {
	Title     string `json:"title"`
	Category  string `json:"category"`
	AmountSom int64  `json:"amount_som"`
	Note      string `json:"note"`
	SpentAt   string `json:"spent_at,omitempty"`
}

type ExpenseFilter struct {
	Category string
	From     time.Time
	To       time.Time
}

type ExpenseCategoryStat struct {
	Category  string `json:"category"`
	AmountSom int64  `json:"amount_som"`
	Count     int    `json:"count"`
}

type ExpenseStats struct {
	TotalSom   int64                 `json:"total_som"`
	Count      int                   `json:"count"`
	ByCategory []ExpenseCategoryStat `json:"by_category"`
}

type CustomerStat struct {
	CustomerName  string  `json:"customer_name"`
	CustomerPhone string  `json:"customer_phone"`
	TotalSom      int64   `json:"total_som"`
	TotalKub      float64 `json:"total_kub"`
	Sales         int     `json:"sales"`
}

type KubByPayment struct {
	Cash   float64 `json:"naqd"`
	Credit float64 `json:"qarz"`
	Card   float64 `json:"karta"`
}

type StatsOverview struct {
	Sales           int          `json:"sales"`
	GrossSom        int64        `json:"gross_som"`
	OutstandingSom  int64        `json:"outstanding_som"`
	ExpensesSom     int64        `json:"expenses_som"`
	SalariesPaidSom int64        `json:"salaries_paid_som"`
	AdvancesSom     int64        `json:"advances_som"`
	KubByPayment    KubByPayment `json:"kub_by_payment"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type ExchangeRateResponse struct {
	SomPerUSD float64 `json:"som_per_usd"`
	FetchedAt string  `json:"fetched_at"`
	Source    string  `json:"source"`
}
