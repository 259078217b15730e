package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/storage/memory"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// SessionCounts defines the number of concurrent sessions held in a store.
var SessionCounts = []int{1000, 10000, 50000, 100000}

// SmallSessionCounts for quick benchmarks.
var SmallSessionCounts = []int{100, 1000, 10000}

var (
	benchAccessSecret  = []byte("bench-access-secret-0123456789abcdef")
	benchRefreshSecret = []byte("bench-refresh-secret-0123456789abcde")
)

func benchDeps() service.Deps {
	return service.Deps{Logger: logger.Discard()}
}

func newIssuer(b *testing.B, resolver service.PrincipalResolver) *service.TokenIssuer {
	b.Helper()
	ti, err := service.NewTokenIssuer(service.TokenIssuerConfig{
		AccessSecret:  benchAccessSecret,
		RefreshSecret: benchRefreshSecret,
	}, resolver, benchDeps())
	if err != nil {
		b.Fatalf("NewTokenIssuer failed: %v", err)
	}
	return ti
}

// buyer returns the i-th synthetic buyer.
func buyer(i int) *domain.Buyer {
	return &domain.Buyer{
		ID:     fmt.Sprintf("b-%d", i),
		Email:  fmt.Sprintf("buyer-%d@example.com", i),
		Name:   fmt.Sprintf("Buyer %d", i),
		Active: true,
	}
}

// prefillSessions creates count sessions in separate namespaces of entries
// and returns their namespaces.
func prefillSessions(b *testing.B, issuer *service.TokenIssuer, entries *memory.EntryStore, count int) []string {
	b.Helper()
	ctx := context.Background()
	namespaces := make([]string, count)
	for i := 0; i < count; i++ {
		p := buyer(i)
		pair, err := issuer.Issue(p)
		if err != nil {
			b.Fatalf("Issue failed: %v", err)
		}
		ns := fmt.Sprintf("sid:%d", i)
		sm := newManager(issuer, entries, ns)
		if _, err := sm.CreateSession(ctx, p, pair); err != nil {
			b.Fatalf("CreateSession failed: %v", err)
		}
		namespaces[i] = ns
	}
	return namespaces
}

func newManager(issuer *service.TokenIssuer, entries *memory.EntryStore, ns string) *service.SessionManager {
	return service.NewSessionManager(issuer, entries.Namespace(ns), nil, issuer, &service.SessionConfig{}, benchDeps())
}
