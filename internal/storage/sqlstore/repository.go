// Package sqlstore is a SQLite principal repository.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// Repository stores buyers, merchants and administrators in SQLite.
type Repository struct {
	db *sql.DB
}

var (
	_ service.PrincipalRepository = (*Repository)(nil)
	_ service.PrincipalResolver   = (*Repository)(nil)
)

// Open opens the database at path (":memory:" for a private in-memory
// database) and creates the schema.
func Open(ctx context.Context, path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: pragma: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	tables := []struct{ name, ddl string }{
		{"buyers", `
			CREATE TABLE IF NOT EXISTS buyers (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL UNIQUE,
				name          TEXT NOT NULL,
				active        INTEGER NOT NULL DEFAULT 1,
				password_hash TEXT NOT NULL,
				last_login_at INTEGER NOT NULL DEFAULT 0
			);`},
		{"merchants", `
			CREATE TABLE IF NOT EXISTS merchants (
				id            TEXT PRIMARY KEY,
				seller_key    TEXT NOT NULL UNIQUE,
				store_name    TEXT NOT NULL,
				company_name  TEXT NOT NULL,
				email         TEXT NOT NULL DEFAULT '',
				active        INTEGER NOT NULL DEFAULT 1,
				password_hash TEXT NOT NULL,
				last_login_at INTEGER NOT NULL DEFAULT 0
			);`},
		{"administrators", `
			CREATE TABLE IF NOT EXISTS administrators (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL UNIQUE,
				active        INTEGER NOT NULL DEFAULT 1,
				password_hash TEXT NOT NULL,
				last_login_at INTEGER NOT NULL DEFAULT 0
			);`},
	}
	for _, t := range tables {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("sqlstore: init %q table schema: %w", t.name, err)
		}
	}
	return nil
}

// ============================================================================
// Seeding
// ============================================================================

// InsertBuyer inserts or replaces a buyer account.
func (r *Repository) InsertBuyer(ctx context.Context, a domain.BuyerAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO buyers (id, email, name, active, password_hash, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, domain.NormalizeEmail(a.Email), a.Name, a.Active, a.PasswordHash, unixMilli(a.LastLoginAt))
	if err != nil {
		return fmt.Errorf("sqlstore: insert buyer: %w", err)
	}
	return nil
}

// InsertMerchant inserts or replaces a merchant account.
func (r *Repository) InsertMerchant(ctx context.Context, a domain.MerchantAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO merchants (id, seller_key, store_name, company_name, email, active, password_hash, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, domain.SellerKey(a.StoreName, a.CompanyName), a.StoreName, a.CompanyName, a.Email,
		a.Active, a.PasswordHash, unixMilli(a.LastLoginAt))
	if err != nil {
		return fmt.Errorf("sqlstore: insert merchant: %w", err)
	}
	return nil
}

// InsertAdministrator inserts or replaces an administrator account.
func (r *Repository) InsertAdministrator(ctx context.Context, a domain.AdministratorAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO administrators (id, username, active, password_hash, last_login_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, strings.ToLower(a.Username), a.Active, a.PasswordHash, unixMilli(a.LastLoginAt))
	if err != nil {
		return fmt.Errorf("sqlstore: insert administrator: %w", err)
	}
	return nil
}

// SetActive toggles a principal's active flag.
func (r *Repository) SetActive(ctx context.Context, kind domain.PrincipalKind, id string, active bool) error {
	table, ok := tableFor(kind)
	if !ok {
		return domain.ErrUserNotFound
	}
	res, err := r.db.ExecContext(ctx, "UPDATE "+table+" SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("sqlstore: set active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ============================================================================
// PrincipalRepository
// ============================================================================

// FindBuyerByEmail looks a buyer up by normalized email.
func (r *Repository) FindBuyerByEmail(ctx context.Context, email string) (*domain.BuyerAccount, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, active, password_hash, last_login_at
		FROM buyers WHERE email = ?`, domain.NormalizeEmail(email))

	var (
		a    domain.BuyerAccount
		last int64
	)
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Active, &a.PasswordHash, &last); err != nil {
		return nil, notFound(err, "buyer")
	}
	a.LastLoginAt = fromMilli(last)
	return &a, nil
}

// FindMerchantBySellerKey looks a merchant up by its composite seller key.
func (r *Repository) FindMerchantBySellerKey(ctx context.Context, sellerKey string) (*domain.MerchantAccount, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, store_name, company_name, email, active, password_hash, last_login_at
		FROM merchants WHERE seller_key = ?`, sellerKey)

	var (
		a    domain.MerchantAccount
		last int64
	)
	if err := row.Scan(&a.ID, &a.StoreName, &a.CompanyName, &a.Email, &a.Active, &a.PasswordHash, &last); err != nil {
		return nil, notFound(err, "merchant")
	}
	a.LastLoginAt = fromMilli(last)
	return &a, nil
}

// FindAdministrator looks an administrator up by username, ignoring case.
func (r *Repository) FindAdministrator(ctx context.Context, username string) (*domain.AdministratorAccount, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, active, password_hash, last_login_at
		FROM administrators WHERE username = ?`, strings.ToLower(username))

	var (
		a    domain.AdministratorAccount
		last int64
	)
	if err := row.Scan(&a.ID, &a.Username, &a.Active, &a.PasswordHash, &last); err != nil {
		return nil, notFound(err, "administrator")
	}
	a.LastLoginAt = fromMilli(last)
	return &a, nil
}

// RecordLogin stamps last_login_at.
func (r *Repository) RecordLogin(ctx context.Context, kind domain.PrincipalKind, id string, at time.Time) error {
	table, ok := tableFor(kind)
	if !ok {
		return domain.ErrUserNotFound
	}
	res, err := r.db.ExecContext(ctx, "UPDATE "+table+" SET last_login_at = ? WHERE id = ?", unixMilli(at), id)
	if err != nil {
		return fmt.Errorf("sqlstore: record login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ResolvePrincipal loads the current state of a principal by ID.
func (r *Repository) ResolvePrincipal(ctx context.Context, kind domain.PrincipalKind, id string) (domain.Principal, error) {
	switch kind {
	case domain.KindBuyer:
		var b domain.Buyer
		err := r.db.QueryRowContext(ctx,
			"SELECT id, email, name, active FROM buyers WHERE id = ?", id).
			Scan(&b.ID, &b.Email, &b.Name, &b.Active)
		if err != nil {
			return nil, notFound(err, "buyer")
		}
		return &b, nil

	case domain.KindMerchant:
		var m domain.Merchant
		err := r.db.QueryRowContext(ctx,
			"SELECT id, store_name, company_name, email, active FROM merchants WHERE id = ?", id).
			Scan(&m.ID, &m.StoreName, &m.CompanyName, &m.Email, &m.Active)
		if err != nil {
			return nil, notFound(err, "merchant")
		}
		return &m, nil

	case domain.KindAdministrator:
		var a domain.Administrator
		err := r.db.QueryRowContext(ctx,
			"SELECT id, username, active FROM administrators WHERE id = ?", id).
			Scan(&a.ID, &a.Username, &a.Active)
		if err != nil {
			return nil, notFound(err, "administrator")
		}
		return &a, nil
	}
	return nil, domain.ErrUserNotFound
}

func tableFor(kind domain.PrincipalKind) (string, bool) {
	switch kind {
	case domain.KindBuyer:
		return "buyers", true
	case domain.KindMerchant:
		return "merchants", true
	case domain.KindAdministrator:
		return "administrators", true
	}
	return "", false
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	return domain.ErrStorage.WithCause(fmt.Errorf("sqlstore: load %s: %w", what, err))
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
