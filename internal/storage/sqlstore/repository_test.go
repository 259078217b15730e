package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

func openSeeded(t *testing.T, path string) *Repository {
	t.Helper()
	ctx := context.Background()

	r, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(r.InsertBuyer(ctx, domain.BuyerAccount{
		Buyer:        domain.Buyer{ID: "b-1", Email: "Jane@Example.com", Name: "Jane", Active: true},
		PasswordHash: "$argon2id$stub",
	}))
	must(r.InsertMerchant(ctx, domain.MerchantAccount{
		Merchant:     domain.Merchant{ID: "m-1", StoreName: "Acme Shop", CompanyName: "Acme Ltd", Email: "ops@acme.test", Active: true},
		PasswordHash: "$argon2id$stub",
	}))
	must(r.InsertAdministrator(ctx, domain.AdministratorAccount{
		Administrator: domain.Administrator{ID: "a-1", Username: "Root", Active: true},
		PasswordHash:  "$argon2id$stub",
	}))
	return r
}

func TestRepository_Find(t *testing.T) {
	r := openSeeded(t, ":memory:")
	ctx := context.Background()

	b, err := r.FindBuyerByEmail(ctx, "JANE@example.com")
	if err != nil {
		t.Fatalf("FindBuyerByEmail() error = %v", err)
	}
	if b.ID != "b-1" || b.Name != "Jane" || !b.Active || b.PasswordHash == "" {
		t.Errorf("buyer = %+v", b)
	}
	if !b.LastLoginAt.IsZero() {
		t.Errorf("LastLoginAt = %v, want zero", b.LastLoginAt)
	}

	m, err := r.FindMerchantBySellerKey(ctx, domain.SellerKey(" acme shop", "ACME LTD"))
	if err != nil || m.StoreName != "Acme Shop" || m.CompanyName != "Acme Ltd" {
		t.Errorf("FindMerchantBySellerKey() = %+v, %v", m, err)
	}

	a, err := r.FindAdministrator(ctx, "ROOT")
	if err != nil || a.ID != "a-1" {
		t.Errorf("FindAdministrator() = %+v, %v", a, err)
	}

	if _, err := r.FindAdministrator(ctx, "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("missing admin error = %v", err)
	}
	if _, err := r.FindMerchantBySellerKey(ctx, domain.SellerKey("Acme Shop", "Other")); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("partial seller key error = %v", err)
	}
}

func TestRepository_RecordLogin(t *testing.T) {
	r := openSeeded(t, ":memory:")
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_123)

	if err := r.RecordLogin(ctx, domain.KindBuyer, "b-1", at); err != nil {
		t.Fatal(err)
	}
	b, _ := r.FindBuyerByEmail(ctx, "jane@example.com")
	if !b.LastLoginAt.Equal(at) {
		t.Errorf("LastLoginAt = %v, want %v", b.LastLoginAt, at)
	}

	if err := r.RecordLogin(ctx, domain.KindBuyer, "ghost", at); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("RecordLogin(ghost) = %v", err)
	}
}

func TestRepository_ResolvePrincipal(t *testing.T) {
	r := openSeeded(t, ":memory:")
	ctx := context.Background()

	for _, tc := range []struct {
		kind domain.PrincipalKind
		id   string
		name string
	}{
		{domain.KindBuyer, "b-1", "Jane"},
		{domain.KindMerchant, "m-1", "Acme Shop"},
		{domain.KindAdministrator, "a-1", "root"},
	} {
		p, err := r.ResolvePrincipal(ctx, tc.kind, tc.id)
		if err != nil {
			t.Fatalf("ResolvePrincipal(%s) error = %v", tc.kind, err)
		}
		if p.Kind() != tc.kind || p.DisplayName() != tc.name || !p.IsActive() {
			t.Errorf("ResolvePrincipal(%s) = %+v", tc.kind, p)
		}
	}

	if err := r.SetActive(ctx, domain.KindMerchant, "m-1", false); err != nil {
		t.Fatal(err)
	}
	p, _ := r.ResolvePrincipal(ctx, domain.KindMerchant, "m-1")
	if p.IsActive() {
		t.Error("merchant should be inactive")
	}

	if _, err := r.ResolvePrincipal(ctx, domain.KindAnonymous, "b-1"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("anonymous kind error = %v", err)
	}
}

func TestRepository_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "principals.db")
	ctx := context.Background()

	r := openSeeded(t, path)
	r.Close()

	r2, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	if _, err := r2.FindBuyerByEmail(ctx, "jane@example.com"); err != nil {
		t.Errorf("reopened database lost data: %v", err)
	}
}
