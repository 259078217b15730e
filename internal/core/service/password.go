package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for new hashes.
const (
	argon2Time    = 2
	argon2Memory  = 16384
	argon2Threads = 2
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// PasswordComparator checks a password against a stored hash.
type PasswordComparator interface {
	Compare(hash, password string) bool
}

// Argon2Comparator verifies Argon2id hashes in PHC string format.
type Argon2Comparator struct{}

// Compare implements PasswordComparator.
func (Argon2Comparator) Compare(hash, password string) bool {
	return verifyArgon2Hash(password, hash)
}

// HashPassword hashes password with Argon2id.
// Format: $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// verifyArgon2Hash verifies a secret against an Argon2id hash, using the
// cost parameters recorded in the hash.
func verifyArgon2Hash(secret, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	if memory == 0 || iterations == 0 || threads == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(secret), salt, iterations, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

var (
	dummyHashOnce sync.Once
	dummyHashStr  string
)

// dummyHash is compared against when no account matches, so unknown
// principals take as long as wrong passwords.
func dummyHash() string {
	dummyHashOnce.Do(func() {
		h, err := HashPassword("authcore-timing-equalizer")
		if err != nil {
			h = "$argon2id$v=19$m=16384,t=2,p=2$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
		}
		dummyHashStr = h
	})
	return dummyHashStr
}
