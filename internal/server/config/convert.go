package config

import (
	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/service"
)

// TokenIssuerConfig converts the tokens section.
func (c *ServerConfig) TokenIssuerConfig() service.TokenIssuerConfig {
	return service.TokenIssuerConfig{
		AccessSecret:        []byte(c.Tokens.AccessSecret),
		RefreshSecret:       []byte(c.Tokens.RefreshSecret),
		AccessTTL:           c.Tokens.AccessTTL,
		RefreshTTL:          c.Tokens.RefreshTTL,
		Issuer:              c.Tokens.Issuer,
		RotateRefreshTokens: c.Tokens.RotateRefreshTokens,
		Permissions:         domain.DefaultPermissionMatrix,
	}
}

// SessionConfig converts the session section. Server-side managers live
// for one request, so renewal ticks are off.
func (c *ServerConfig) SessionConfig() *service.SessionConfig {
	return &service.SessionConfig{
		RefreshThreshold: c.Session.RefreshThreshold,
		SecureEntries:    c.Cookies.Secure,
	}
}

// ClassifierConfig converts the session warning and backoff settings.
func (c *ServerConfig) ClassifierConfig() *service.ClassifierConfig {
	return &service.ClassifierConfig{
		WarningLead: c.Session.WarningLead,
		BackoffBase: c.Session.BackoffBase,
		BackoffMax:  c.Session.BackoffMax,
	}
}

// CredentialConfig converts the lockout section.
func (c *ServerConfig) CredentialConfig() *service.CredentialConfig {
	return &service.CredentialConfig{
		Lockout: service.LockoutConfig{
			Threshold: c.Lockout.Threshold,
			Window:    c.Lockout.Window,
			Cooldown:  c.Lockout.Cooldown,
		},
	}
}

// AccessConfig converts the access section.
func (c *ServerConfig) AccessConfig() *service.AccessConfig {
	cfg := service.DefaultAccessConfig()
	cfg.AuditCapacity = c.Access.AuditCapacity
	cfg.BurstThreshold = c.Access.BurstThreshold
	cfg.BurstWindow = c.Access.BurstWindow
	if len(c.Access.PublicRoutes) > 0 {
		cfg.PublicRoutes = c.Access.PublicRoutes
	}
	return cfg
}

// SeedAccounts converts the configured accounts to domain records.
func (c *ServerConfig) SeedAccounts() ([]domain.BuyerAccount, []domain.MerchantAccount, []domain.AdministratorAccount) {
	buyers := make([]domain.BuyerAccount, 0, len(c.Accounts.Buyers))
	for _, b := range c.Accounts.Buyers {
		buyers = append(buyers, domain.BuyerAccount{
			Buyer:        domain.Buyer{ID: b.ID, Email: b.Email, Name: b.Name, Active: !b.Disabled},
			PasswordHash: b.PasswordHash,
		})
	}
	merchants := make([]domain.MerchantAccount, 0, len(c.Accounts.Merchants))
	for _, m := range c.Accounts.Merchants {
		merchants = append(merchants, domain.MerchantAccount{
			Merchant: domain.Merchant{
				ID: m.ID, StoreName: m.StoreName, CompanyName: m.CompanyName, Email: m.Email, Active: !m.Disabled,
			},
			PasswordHash: m.PasswordHash,
		})
	}
	admins := make([]domain.AdministratorAccount, 0, len(c.Accounts.Administrators))
	for _, a := range c.Accounts.Administrators {
		admins = append(admins, domain.AdministratorAccount{
			Administrator: domain.Administrator{ID: a.ID, Username: a.Username, Active: !a.Disabled},
			PasswordHash:  a.PasswordHash,
		})
	}
	return buyers, merchants, admins
}
