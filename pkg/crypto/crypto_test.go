package crypto

import (
	"strings"
	"testing"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	c, err := New(key)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	plaintexts := []string{
		"binance-api-key-0001",
		"스팟 시크릿 키",
		strings.Repeat("x", 4096),
	}

	for _, pt := range plaintexts {
		encrypted, err := c.Encrypt(pt)
		if err != nil {
			t.Fatalf("encrypt failed: %v", err)
		}
		if encrypted == pt {
			t.Fatal("ciphertext equals plaintext")
		}

		decrypted, err := c.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("decrypt failed: %v", err)
		}
		if decrypted != pt {
			t.Errorf("round trip mismatch: got %q", decrypted)
		}
	}
}

func TestEncryptProducesUniqueCiphertext(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.Encrypt("same-secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	second, err := c.Encrypt("same-secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	// Random nonce makes repeated encryptions differ
	if first == second {
		t.Error("two encryptions of the same plaintext are identical")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c := newTestCipher(t)

	encrypted, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	tampered := []byte(encrypted)
	tampered[len(tampered)-5] ^= 0x01

	if _, err := c.Decrypt(string(tampered)); err == nil {
		t.Error("decrypt accepted tampered ciphertext")
	}
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	c1 := newTestCipher(t)
	c2 := newTestCipher(t)

	encrypted, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	if _, err := c2.Decrypt(encrypted); err == nil {
		t.Error("decrypt accepted ciphertext from another key")
	}
}

func TestEmptyInputs(t *testing.T) {
	c := newTestCipher(t)

	if _, err := c.Encrypt(""); err == nil {
		t.Error("encrypt accepted empty plaintext")
	}
	if _, err := c.Decrypt(""); err == nil {
		t.Error("decrypt accepted empty ciphertext")
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not base64", "%%%"},
		{"wrong length", "c2hvcnQ="},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.key); err == nil {
				t.Errorf("New accepted invalid key %q", tc.key)
			}
		})
	}
}
