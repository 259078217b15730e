// Package main provides the entry point for authcore-server.
//
// authcore-server signs buyers, merchants and administrators in, keeps
// their sessions in cookies or a server-side store, and answers route and
// resource authorization questions over JSON/HTTP.
//
// Usage:
//
//	authcore-server -config /etc/authcore/server.yaml
//	authcore-server -hash-password < password.txt
package main
