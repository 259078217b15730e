// Package service implements the authentication and session core.
//
// Services contain the business logic and depend on storage and transport
// only through the interfaces declared in ports.go, so every component can
// be exercised with in-memory fakes and an injectable clock.
//
// This package contains:
//
//   - TokenIssuer: signs and verifies access and refresh tokens
//   - SessionManager: owns one client's session and keeps it fresh
//   - CredentialValidator: buyer, merchant and administrator login flows
//   - AccessController: route and resource authorization plus the denial log
//   - ErrorClassifier: maps failures onto recovery actions and expiry notices
//
// All services are safe for concurrent use.
package service
