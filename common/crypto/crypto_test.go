package crypto_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/Hanako/common/crypto"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, crypto.KeySize)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey()
	plaintext := []byte("sk-user-supplied-api-key")

	ciphertext, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("ciphertext leaks plaintext")
	}

	got, err := crypto.Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip: got %q, want %q", got, plaintext)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	ciphertext, err := crypto.Encrypt(testKey(), []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	wrong := bytes.Repeat([]byte{0x43}, crypto.KeySize)
	if _, err := crypto.Decrypt(wrong, ciphertext); err == nil {
		t.Fatal("expected authentication failure with wrong key")
	}
}

func TestInvalidKeySize(t *testing.T) {
	if _, err := crypto.Encrypt([]byte("short"), []byte("x")); !errors.Is(err, crypto.ErrInvalidKeySize) {
		t.Errorf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestCiphertextTooShort(t *testing.T) {
	if _, err := crypto.Decrypt(testKey(), []byte{1, 2, 3}); !errors.Is(err, crypto.ErrCiphertextTooShort) {
		t.Errorf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestParseMasterKey(t *testing.T) {
	hexKey := strings.Repeat("ab", crypto.KeySize)
	key, err := crypto.ParseMasterKey(" " + hexKey + "\n")
	if err != nil {
		t.Fatalf("ParseMasterKey: %v", err)
	}
	if len(key) != crypto.KeySize {
		t.Errorf("key length = %d", len(key))
	}

	if _, err := crypto.ParseMasterKey(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := crypto.ParseMasterKey("zz"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := crypto.ParseMasterKey("abcd"); err == nil {
		t.Error("expected error for short key")
	}
}
