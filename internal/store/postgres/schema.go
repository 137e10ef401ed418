package postgres

import "context"

// ensureSchema creates the tables the repository expects. Statements are
// idempotent so startup against an existing database is a no-op.
func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT '',
			width_mm DOUBLE PRECISION NOT NULL DEFAULT 0,
			height_mm DOUBLE PRECISION NOT NULL DEFAULT 0,
			length_mm DOUBLE PRECISION NOT NULL DEFAULT 0,
			unit TEXT NOT NULL DEFAULT 'dona',
			quantity INTEGER NOT NULL DEFAULT 0,
			sell_price DOUBLE PRECISION NOT NULL,
			cost_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'so''m',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			lines JSONB NOT NULL,
			payment_type TEXT NOT NULL,
			total_som BIGINT NOT NULL,
			paid_som BIGINT NOT NULL,
			due_som BIGINT NOT NULL,
			due_date TIMESTAMPTZ,
			customer_name TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			rate_som_per_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS debt_records (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id),
			customer_name TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			debt_amount BIGINT NOT NULL,
			due_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_debt_records_open ON debt_records (created_at) WHERE debt_amount > 0`,
		`CREATE TABLE IF NOT EXISTS employees (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			job_type TEXT NOT NULL DEFAULT 'oylik',
			salary_som BIGINT NOT NULL DEFAULT 0,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS salary_payments (
			id TEXT PRIMARY KEY,
			employee_id TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			job_type TEXT NOT NULL DEFAULT '',
			amount_som BIGINT NOT NULL,
			month INTEGER NOT NULL,
			year INTEGER NOT NULL,
			paid_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS advance_payments (
			id TEXT PRIMARY KEY,
			employee_id TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			job_type TEXT NOT NULL DEFAULT '',
			amount_som BIGINT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			paid_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			amount_som BIGINT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			spent_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor_username TEXT NOT NULL DEFAULT '',
			actor_role TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL DEFAULT '',
			entity_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'employee',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
