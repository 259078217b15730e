package domain

import (
	"strings"
	"time"
)

// PrincipalKind identifies which of the three principal types authenticated.
type PrincipalKind string

const (
	// KindAnonymous is the zero kind, used for unauthenticated requests.
	KindAnonymous PrincipalKind = ""

	KindBuyer         PrincipalKind = "buyer"
	KindMerchant      PrincipalKind = "merchant"
	KindAdministrator PrincipalKind = "administrator"
)

// PrincipalKinds lists the authenticated kinds.
var PrincipalKinds = []PrincipalKind{KindBuyer, KindMerchant, KindAdministrator}

// IsValid reports whether k is one of the authenticated kinds.
func (k PrincipalKind) IsValid() bool {
	switch k {
	case KindBuyer, KindMerchant, KindAdministrator:
		return true
	}
	return false
}

// Label returns the kind for display; anonymous renders as "anonymous".
func (k PrincipalKind) Label() string {
	if k == KindAnonymous {
		return "anonymous"
	}
	return string(k)
}

// ParsePrincipalKind parses a kind name case-insensitively.
func ParsePrincipalKind(s string) (PrincipalKind, bool) {
	k := PrincipalKind(strings.ToLower(strings.TrimSpace(s)))
	if k == "admin" {
		k = KindAdministrator
	}
	return k, k.IsValid()
}

// Principal is an authenticated entity. The set of implementations is closed:
// Buyer, Merchant and Administrator.
type Principal interface {
	Kind() PrincipalKind
	SubjectID() string
	IsActive() bool
	DisplayName() string

	sealed()
}

// Buyer is a storefront customer.
type Buyer struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (b *Buyer) Kind() PrincipalKind { return KindBuyer }
func (b *Buyer) SubjectID() string { return b.ID }
func (b *Buyer) IsActive() bool { return b.Active }
func (b *Buyer) DisplayName() string { return b.Name }
func (b *Buyer) sealed() {}

// Merchant is a seller-console user. StoreName+CompanyName identifies it.
type Merchant struct {
	ID          string `json:"id"`
	StoreName   string `json:"store_name"`
	CompanyName string `json:"company_name"`
	Email       string `json:"email"`
	Active      bool   `json:"active"`
}

func (m *Merchant) Kind() PrincipalKind { return KindMerchant }
func (m *Merchant) SubjectID() string { return m.ID }
func (m *Merchant) IsActive() bool { return m.Active }
func (m *Merchant) DisplayName() string { return m.StoreName }
func (m *Merchant) sealed() {}

// Administrator is a back-office operator.
type Administrator struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Active   bool   `json:"active"`
}

func (a *Administrator) Kind() PrincipalKind { return KindAdministrator }
func (a *Administrator) SubjectID() string { return a.ID }
func (a *Administrator) IsActive() bool { return a.Active }
func (a *Administrator) DisplayName() string { return a.Username }
func (a *Administrator) sealed() {}

// SellerKey builds the case-insensitive composite lookup key for a merchant.
func SellerKey(storeName, companyName string) string {
	return strings.ToLower(strings.TrimSpace(storeName)) + "|" + strings.ToLower(strings.TrimSpace(companyName))
}

// NormalizeEmail lower-cases and trims an email for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PrincipalSummary is the non-sensitive projection of a principal that may be
// persisted client-side.
type PrincipalSummary struct {
	ID          string        `json:"id"`
	Kind        PrincipalKind `json:"kind"`
	DisplayName string        `json:"display_name"`
}

// Summarize projects p into a PrincipalSummary.
func Summarize(p Principal) PrincipalSummary {
	return PrincipalSummary{
		ID:          p.SubjectID(),
		Kind:        p.Kind(),
		DisplayName: p.DisplayName(),
	}
}

// ============================================================================
// Account records returned by repositories
// ============================================================================

// BuyerAccount is a buyer plus its stored credential.
type BuyerAccount struct {
	Buyer
	PasswordHash string
	LastLoginAt  time.Time
}

// MerchantAccount is a merchant plus its stored credential.
type MerchantAccount struct {
	Merchant
	PasswordHash string
	LastLoginAt  time.Time
}

// AdministratorAccount is an administrator plus its stored credential.
type AdministratorAccount struct {
	Administrator
	PasswordHash string
	LastLoginAt  time.Time
}

// PrincipalFromSummary rebuilds a principal from its summary. The result is
// marked active; only identity fields are populated.
func PrincipalFromSummary(s PrincipalSummary) (Principal, bool) {
	switch s.Kind {
	case KindBuyer:
		return &Buyer{ID: s.ID, Name: s.DisplayName, Active: true}, true
	case KindMerchant:
		return &Merchant{ID: s.ID, StoreName: s.DisplayName, Active: true}, true
	case KindAdministrator:
		return &Administrator{ID: s.ID, Username: s.DisplayName, Active: true}, true
	}
	return nil, false
}
