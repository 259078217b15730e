package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/infra/clock"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

var (
	testAccessSecret  = []byte("access-secret-0123456789abcdef-0123")
	testRefreshSecret = []byte("refresh-secret-0123456789abcdef-012")
	testEpoch         = time.Unix(1_700_000_000, 0)
)

func testDeps(clk clock.Clock) Deps {
	return Deps{Clock: clk, Logger: logger.Discard()}
}

func newTestIssuer(t *testing.T, clk clock.Clock, mutate func(*TokenIssuerConfig)) *TokenIssuer {
	t.Helper()
	cfg := TokenIssuerConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ti, err := NewTokenIssuer(cfg, nil, testDeps(clk))
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	return ti
}

var (
	testBuyer    = &domain.Buyer{ID: "b-1", Email: "jane@example.com", Name: "Jane", Active: true}
	testMerchant = &domain.Merchant{ID: "m-1", StoreName: "Corner Shop", CompanyName: "Corner & Co.", Active: true}
	testAdmin    = &domain.Administrator{ID: "a-1", Username: "ops", Active: true}
)

// ============================================================================
// mockStore implements SecureStore.
// ============================================================================

type mockStore struct {
	mu      sync.Mutex
	values  map[string]string
	attrs   map[string]EntryAttributes
	setErr  error
	deletes int
}

func newMockStore() *mockStore {
	return &mockStore{
		values: make(map[string]string),
		attrs:  make(map[string]EntryAttributes),
	}
}

func (m *mockStore) Get(ctx context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *mockStore) Set(ctx context.Context, name, value string, attrs EntryAttributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[name] = value
	m.attrs[name] = attrs
	return nil
}

func (m *mockStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
	delete(m.attrs, name)
	m.deletes++
	return nil
}

func (m *mockStore) value(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok
}

func (m *mockStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// ============================================================================
// mockRepo implements PrincipalRepository and PrincipalResolver.
// ============================================================================

type mockRepo struct {
	mu         sync.Mutex
	buyers     map[string]*domain.BuyerAccount
	merchants  map[string]*domain.MerchantAccount
	admins     map[string]*domain.AdministratorAccount
	logins     map[string]time.Time
	findErr    error
	resolveErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		buyers:    make(map[string]*domain.BuyerAccount),
		merchants: make(map[string]*domain.MerchantAccount),
		admins:    make(map[string]*domain.AdministratorAccount),
		logins:    make(map[string]time.Time),
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return h
}

func (m *mockRepo) addBuyer(b domain.Buyer, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buyers[domain.NormalizeEmail(b.Email)] = &domain.BuyerAccount{Buyer: b, PasswordHash: hash}
}

func (m *mockRepo) addMerchant(mc domain.Merchant, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchants[domain.SellerKey(mc.StoreName, mc.CompanyName)] = &domain.MerchantAccount{Merchant: mc, PasswordHash: hash}
}

func (m *mockRepo) addAdmin(a domain.Administrator, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[strings.ToLower(a.Username)] = &domain.AdministratorAccount{Administrator: a, PasswordHash: hash}
}

func (m *mockRepo) FindBuyerByEmail(ctx context.Context, email string) (*domain.BuyerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if a, ok := m.buyers[email]; ok {
		c := *a
		return &c, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockRepo) FindMerchantBySellerKey(ctx context.Context, key string) (*domain.MerchantAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if a, ok := m.merchants[key]; ok {
		c := *a
		return &c, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockRepo) FindAdministrator(ctx context.Context, username string) (*domain.AdministratorAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if a, ok := m.admins[username]; ok {
		c := *a
		return &c, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockRepo) RecordLogin(ctx context.Context, kind domain.PrincipalKind, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[string(kind)+"/"+id] = at
	return nil
}

func (m *mockRepo) ResolvePrincipal(ctx context.Context, kind domain.PrincipalKind, id string) (domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	switch kind {
	case domain.KindBuyer:
		for _, a := range m.buyers {
			if a.ID == id {
				b := a.Buyer
				return &b, nil
			}
		}
	case domain.KindAdministrator:
		for _, a := range m.admins {
			if a.ID == id {
				ad := a.Administrator
				return &ad, nil
			}
		}
	}
	return nil, domain.ErrUserNotFound
}

// ============================================================================
// mockAuthority implements TokenAuthority with scripted refresh results.
// ============================================================================

type mockAuthority struct {
	inner      TokenAuthority
	verifyErr  error
	refreshErr error
	// release, when set, blocks Refresh until closed.
	release chan struct{}
	calls   atomic.Int32
}

func (m *mockAuthority) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.inner.Verify(ctx, token)
}

func (m *mockAuthority) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	m.calls.Add(1)
	if m.release != nil {
		<-m.release
	}
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return m.inner.Refresh(ctx, refreshToken)
}

// recordingHook implements RevocationHook.
type recordingHook struct {
	mu      sync.Mutex
	reasons []string
	err     error
}

func (h *recordingHook) SessionRevoked(ctx context.Context, s domain.Session, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reasons = append(h.reasons, reason)
	return h.err
}

func (h *recordingHook) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.reasons...)
}

var errBoom = errors.New("boom")
