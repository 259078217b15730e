// Package adaptive seals small values at rest with an AEAD cipher chosen
// for the host CPU: AES-256-GCM where the architecture has AES
// instructions, ChaCha20-Poly1305 elsewhere.
//
// Keys are derived from a passphrase with HKDF-SHA256, so the same
// passphrase and salt always open the same data.
//
//	key, _ := adaptive.DeriveKey([]byte("passphrase"), salt, "authcore jar")
//	c, _ := adaptive.New(key)
//	sealed, _ := c.Encrypt([]byte("value"), []byte("access_token"))
package adaptive
