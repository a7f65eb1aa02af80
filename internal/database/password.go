package database

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Admin credentials are stored as self-describing Argon2id strings
// ($argon2id$v=19$m=...,t=...,p=...$salt$key), so the work factors can be
// raised later without invalidating rows already in admin_users.
type argon2Params struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// hashParams are the work factors for newly hashed passwords: 64 MiB,
// 3 passes, 4 lanes.
var hashParams = argon2Params{memory: 64 * 1024, time: 3, threads: 4}

const (
	passwordSaltLen = 16
	passwordKeyLen  = 32
)

// HashPassword derives an Argon2id hash for a plaintext admin password with
// a fresh random salt and returns the encoded form for storage.
func HashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, hashParams.time, hashParams.memory, hashParams.threads, passwordKeyLen)

	var b strings.Builder
	fmt.Fprintf(&b, "$argon2id$v=%d$m=%d,t=%d,p=%d$",
		argon2.Version, hashParams.memory, hashParams.time, hashParams.threads)
	b.WriteString(base64.RawStdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(key))
	return b.String(), nil
}

// CheckPassword reports whether password matches the stored encoded hash. The
// key is re-derived with the work factors recorded in the hash itself and
// compared in constant time.
func CheckPassword(password, encoded string) (bool, error) {
	params, salt, want, err := parseEncodedHash(encoded)
	if err != nil {
		return false, fmt.Errorf("parsing stored hash: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// parseEncodedHash splits an encoded Argon2id string into its work factors,
// salt and derived key.
func parseEncodedHash(encoded string) (argon2Params, []byte, []byte, error) {
	var p argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, nil, nil, fmt.Errorf("malformed encoding")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("unexpected algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("reading work factors: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decoding key: %w", err)
	}

	return p, salt, key, nil
}
