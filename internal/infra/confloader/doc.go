// Package confloader loads configuration with koanf and watches the
// configuration file for changes.
//
// Sources are applied in order, later ones winning:
//
//  1. Defaults (the values already in the target struct)
//  2. YAML configuration file
//  3. Environment variables
//
// Environment variables map onto keys by prefix and underscores: the first
// underscore separates the section, a double underscore nests further.
//
//	AUTHCORE_TOKENS_ACCESS_TTL=30m   -> tokens.access_ttl
//	AUTHCORE_HTTP_ADDR=:8080         -> http.addr
//	AUTHCORE_A__B__C_D=1             -> a.b.c_d
package confloader
