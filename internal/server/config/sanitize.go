package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	sanitized.Tokens.AccessSecret = maskSecret(cfg.Tokens.AccessSecret)
	sanitized.Tokens.RefreshSecret = maskSecret(cfg.Tokens.RefreshSecret)
	sanitized.Redis.Password = maskSecret(cfg.Redis.Password)

	sanitized.Accounts = AccountsSection{
		Buyers:         make([]BuyerSeed, len(cfg.Accounts.Buyers)),
		Merchants:      make([]MerchantSeed, len(cfg.Accounts.Merchants)),
		Administrators: make([]AdministratorSeed, len(cfg.Accounts.Administrators)),
	}
	for i, b := range cfg.Accounts.Buyers {
		b.PasswordHash = maskSecret(b.PasswordHash)
		sanitized.Accounts.Buyers[i] = b
	}
	for i, m := range cfg.Accounts.Merchants {
		m.PasswordHash = maskSecret(m.PasswordHash)
		sanitized.Accounts.Merchants[i] = m
	}
	for i, a := range cfg.Accounts.Administrators {
		a.PasswordHash = maskSecret(a.PasswordHash)
		sanitized.Accounts.Administrators[i] = a
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging. Empty stays empty.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
