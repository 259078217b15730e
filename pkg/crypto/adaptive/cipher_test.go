package adaptive

import (
	"bytes"
	"errors"
	"testing"
)

func testKey() []byte {
	k := make([]byte, KeySize)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestNewWithType(t *testing.T) {
	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		c, err := NewWithType(testKey(), typ)
		if err != nil {
			t.Fatalf("NewWithType(%s) error = %v", typ, err)
		}
		if c.Type() != typ {
			t.Errorf("Type() = %s, want %s", c.Type(), typ)
		}
		if c.Overhead() != 16 {
			t.Errorf("%s Overhead() = %d", typ, c.Overhead())
		}
	}

	if _, err := NewWithType(testKey(), "rot13"); err == nil {
		t.Error("unknown type should fail")
	}
	if _, err := NewWithType(make([]byte, 16), CipherAESGCM); err == nil {
		t.Error("short key should fail")
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		t.Run(string(typ), func(t *testing.T) {
			c, _ := NewWithType(testKey(), typ)
			plaintext := []byte("eyJhbGciOiJIUzI1NiJ9.payload.sig")
			aad := []byte("access_token")

			sealed, err := c.Encrypt(plaintext, aad)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if bytes.Contains(sealed, plaintext) {
				t.Error("ciphertext contains plaintext")
			}

			opened, err := c.Decrypt(sealed, aad)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Errorf("Decrypt() = %q", opened)
			}

			if _, err := c.Decrypt(sealed, []byte("refresh_token")); err == nil {
				t.Error("wrong additional data should fail")
			}

			sealed[len(sealed)-1] ^= 0xff
			if _, err := c.Decrypt(sealed, aad); err == nil {
				t.Error("tampered ciphertext should fail")
			}

			if _, err := c.Decrypt([]byte("short"), aad); !errors.Is(err, ErrCiphertextTooShort) {
				t.Errorf("short input error = %v", err)
			}
		})
	}
}

func TestCipher_NonceUniqueness(t *testing.T) {
	c, _ := New(testKey())
	a, _ := c.Encrypt([]byte("same"), nil)
	b, _ := c.Encrypt([]byte("same"), nil)
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext should differ")
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1, err := DeriveKey([]byte("hunter2"), salt, "jar")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(k1) != KeySize {
		t.Fatalf("len = %d", len(k1))
	}
	k2, _ := DeriveKey([]byte("hunter2"), salt, "jar")
	if !bytes.Equal(k1, k2) {
		t.Error("derivation should be deterministic")
	}
	k3, _ := DeriveKey([]byte("hunter2"), salt, "other")
	if bytes.Equal(k1, k3) {
		t.Error("info should separate keys")
	}
	if _, err := DeriveKey(nil, salt, "jar"); err == nil {
		t.Error("empty passphrase should fail")
	}

	s, err := NewSalt(16)
	if err != nil || len(s) != 16 {
		t.Errorf("NewSalt() = %v, %v", s, err)
	}
}
