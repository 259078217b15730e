package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// Repository is an in-memory principal repository.
type Repository struct {
	mu        sync.RWMutex
	buyers    map[string]*domain.BuyerAccount         // normalized email
	merchants map[string]*domain.MerchantAccount      // seller key
	admins    map[string]*domain.AdministratorAccount // lower-cased username
	ids       map[string]string                       // kind/id -> lookup key
}

var (
	_ service.PrincipalRepository = (*Repository)(nil)
	_ service.PrincipalResolver   = (*Repository)(nil)
)

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		buyers:    make(map[string]*domain.BuyerAccount),
		merchants: make(map[string]*domain.MerchantAccount),
		admins:    make(map[string]*domain.AdministratorAccount),
		ids:       make(map[string]string),
	}
}

func idKey(kind domain.PrincipalKind, id string) string {
	return string(kind) + "/" + id
}

func (r *Repository) claimID(kind domain.PrincipalKind, id, lookup string) error {
	if id == "" {
		return fmt.Errorf("memory: %s id is required", kind)
	}
	k := idKey(kind, id)
	if existing, ok := r.ids[k]; ok && existing != lookup {
		return fmt.Errorf("memory: duplicate %s id %q", kind, id)
	}
	r.ids[k] = lookup
	return nil
}

// AddBuyer stores or replaces a buyer account.
func (r *Repository) AddBuyer(acct domain.BuyerAccount) error {
	key := domain.NormalizeEmail(acct.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claimID(domain.KindBuyer, acct.ID, key); err != nil {
		return err
	}
	r.buyers[key] = &acct
	return nil
}

// AddMerchant stores or replaces a merchant account.
func (r *Repository) AddMerchant(acct domain.MerchantAccount) error {
	key := domain.SellerKey(acct.StoreName, acct.CompanyName)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claimID(domain.KindMerchant, acct.ID, key); err != nil {
		return err
	}
	r.merchants[key] = &acct
	return nil
}

// AddAdministrator stores or replaces an administrator account.
func (r *Repository) AddAdministrator(acct domain.AdministratorAccount) error {
	key := strings.ToLower(acct.Username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claimID(domain.KindAdministrator, acct.ID, key); err != nil {
		return err
	}
	r.admins[key] = &acct
	return nil
}

// SetActive toggles a principal's active flag.
func (r *Repository) SetActive(kind domain.PrincipalKind, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lookup, ok := r.ids[idKey(kind, id)]
	if !ok {
		return domain.ErrUserNotFound
	}
	switch kind {
	case domain.KindBuyer:
		r.buyers[lookup].Active = active
	case domain.KindMerchant:
		r.merchants[lookup].Active = active
	case domain.KindAdministrator:
		r.admins[lookup].Active = active
	}
	return nil
}

// FindBuyerByEmail returns a copy of the buyer account.
func (r *Repository) FindBuyerByEmail(_ context.Context, email string) (*domain.BuyerAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.buyers[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *acct
	return &c, nil
}

// FindMerchantBySellerKey returns a copy of the merchant account.
func (r *Repository) FindMerchantBySellerKey(_ context.Context, sellerKey string) (*domain.MerchantAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.merchants[sellerKey]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *acct
	return &c, nil
}

// FindAdministrator returns a copy of the administrator account.
func (r *Repository) FindAdministrator(_ context.Context, username string) (*domain.AdministratorAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.admins[strings.ToLower(username)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *acct
	return &c, nil
}

// RecordLogin stamps the last login time.
func (r *Repository) RecordLogin(_ context.Context, kind domain.PrincipalKind, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lookup, ok := r.ids[idKey(kind, id)]
	if !ok {
		return domain.ErrUserNotFound
	}
	switch kind {
	case domain.KindBuyer:
		r.buyers[lookup].LastLoginAt = at
	case domain.KindMerchant:
		r.merchants[lookup].LastLoginAt = at
	case domain.KindAdministrator:
		r.admins[lookup].LastLoginAt = at
	}
	return nil
}

// ResolvePrincipal returns the current principal for an ID.
func (r *Repository) ResolvePrincipal(_ context.Context, kind domain.PrincipalKind, id string) (domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lookup, ok := r.ids[idKey(kind, id)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	switch kind {
	case domain.KindBuyer:
		b := r.buyers[lookup].Buyer
		return &b, nil
	case domain.KindMerchant:
		m := r.merchants[lookup].Merchant
		return &m, nil
	case domain.KindAdministrator:
		a := r.admins[lookup].Administrator
		return &a, nil
	}
	return nil, domain.ErrUserNotFound
}

// Count returns the number of accounts per kind.
func (r *Repository) Count() map[domain.PrincipalKind]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[domain.PrincipalKind]int{
		domain.KindBuyer:         len(r.buyers),
		domain.KindMerchant:      len(r.merchants),
		domain.KindAdministrator: len(r.admins),
	}
}
