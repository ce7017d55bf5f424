package crypto

import (
	"bytes"
	"regexp"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x1}, 32)
	plaintext := []byte("7|token|hash")

	encoded, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	decrypted, err := Decrypt(encoded, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}

	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("expected decrypted plaintext to match original, got %s", decrypted)
	}

	if _, err := Decrypt(encoded, bytes.Repeat([]byte{0x2}, 32)); err == nil {
		t.Fatal("expected decrypt with a different key to fail")
	}
}

func TestRandomString(t *testing.T) {
	token, err := RandomString(60)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9]{60}$`).MatchString(token) {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestSHA1Hex(t *testing.T) {
	if got := SHA1Hex("a@x.com"); len(got) != 40 {
		t.Fatalf("expected 40 hex chars, got %q", got)
	}
	if SHA1Hex("a@x.com") == SHA1Hex("b@x.com") {
		t.Fatal("expected different digests")
	}
}

func TestSignAndEqual(t *testing.T) {
	key := []byte("signing-key")
	sig := Sign(key, "/verify-email/1/abc?expires=10")

	if !Equal(sig, Sign(key, "/verify-email/1/abc?expires=10")) {
		t.Fatal("expected identical signatures")
	}
	if Equal(sig, Sign(key, "/verify-email/2/abc?expires=10")) {
		t.Fatal("expected payload change to alter the signature")
	}
	if Equal(sig, Sign([]byte("other"), "/verify-email/1/abc?expires=10")) {
		t.Fatal("expected key change to alter the signature")
	}
}
