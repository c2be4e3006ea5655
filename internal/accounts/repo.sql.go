package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foamcrew/foamcrew/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the registry tables.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			company_name TEXT NOT NULL,
			tenant_id TEXT NOT NULL UNIQUE,
			crew_pin TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS trial_leads (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("accounts: ensure schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new account. A taken username maps to ErrDuplicate.
func (r *Repository) Create(ctx context.Context, acct Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (username, password_hash, company_name, tenant_id, crew_pin, email)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		acct.Username, acct.PasswordHash, acct.CompanyName, acct.TenantID, acct.CrewPin, acct.Email)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("accounts: username %s: %w", acct.Username, shared.ErrDuplicate)
	}
	return err
}

// ByUsername fetches one account.
func (r *Repository) ByUsername(ctx context.Context, username string) (Account, error) {
	var acct Account
	err := r.pool.QueryRow(ctx,
		`SELECT username, password_hash, company_name, tenant_id, crew_pin, email, created_at
		 FROM accounts WHERE username = $1`, username).
		Scan(&acct.Username, &acct.PasswordHash, &acct.CompanyName, &acct.TenantID, &acct.CrewPin, &acct.Email, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("accounts: %s: %w", username, shared.ErrNotFound)
	}
	return acct, err
}

// ByTenantID fetches the account owning a tenant.
func (r *Repository) ByTenantID(ctx context.Context, tenantID string) (Account, error) {
	var acct Account
	err := r.pool.QueryRow(ctx,
		`SELECT username, password_hash, company_name, tenant_id, crew_pin, email, created_at
		 FROM accounts WHERE tenant_id = $1`, tenantID).
		Scan(&acct.Username, &acct.PasswordHash, &acct.CompanyName, &acct.TenantID, &acct.CrewPin, &acct.Email, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("accounts: tenant %s: %w", tenantID, shared.ErrNotFound)
	}
	return acct, err
}

// UpdatePasswordHash swaps the stored credential.
func (r *Repository) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2 WHERE username = $1`, username, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("accounts: %s: %w", username, shared.ErrNotFound)
	}
	return nil
}

// UpdateCrewPin sets the tenant's crew access PIN.
func (r *Repository) UpdateCrewPin(ctx context.Context, tenantID, pin string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET crew_pin = $2 WHERE tenant_id = $1`, tenantID, pin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("accounts: tenant %s: %w", tenantID, shared.ErrNotFound)
	}
	return nil
}

// InsertTrialLead appends one trial interest row.
func (r *Repository) InsertTrialLead(ctx context.Context, lead TrialLead) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO trial_leads (name, email, phone) VALUES ($1, $2, $3)`,
		lead.Name, lead.Email, lead.Phone)
	return err
}
