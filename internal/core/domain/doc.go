// Package domain defines the core domain models for authcore.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Principal: the buyer, merchant and administrator union
//   - TokenClaims/TokenPair: library-independent token views
//   - Session: client session state and persisted entry names
//   - RoutePolicy/PermissionMatrix: static authorization tables
//   - AccessEvent: audit records for denied access
//   - AuthError: the closed error taxonomy with stable codes
package domain
