package database

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash = %q, want argon2id prefix", hash)
	}

	ok, err := CheckPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("CheckPassword() error: %v", err)
	}
	if !ok {
		t.Error("CheckPassword() = false for correct password")
	}

	ok, err = CheckPassword("wrong", hash)
	if err != nil {
		t.Fatalf("CheckPassword() error: %v", err)
	}
	if ok {
		t.Error("CheckPassword() = true for wrong password")
	}
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	h1, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	h2, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password are identical")
	}
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"not-a-hash",
		"argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=4$c2FsdA$aGFzaA",
	} {
		if _, err := CheckPassword("pw", encoded); err == nil {
			t.Errorf("CheckPassword(%q) succeeded, want error", encoded)
		}
	}
}

// TestCheckPasswordUsesRecordedParams: verification derives the key with the
// work factors stored in the hash, not the current defaults, so old rows keep
// verifying after the defaults are raised.
func TestCheckPasswordUsesRecordedParams(t *testing.T) {
	salt := make([]byte, passwordSaltLen)
	key := argon2.IDKey([]byte("pw"), salt, 1, 8*1024, 1, passwordKeyLen)
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, 8*1024, 1, 1,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))

	ok, err := CheckPassword("pw", encoded)
	if err != nil {
		t.Fatalf("CheckPassword() error: %v", err)
	}
	if !ok {
		t.Error("CheckPassword() = false for a hash with non-default work factors")
	}
}
