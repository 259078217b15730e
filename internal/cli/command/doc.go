// Package command provides the authcore-cli commands, built on urfave/cli/v2.
//
// The CLI keeps its session in a Badger-backed credential jar, one namespace
// per server, and drives it with the same SessionManager the server uses.
// Token checks go to the server through connection.RemoteAuthority.
package command
