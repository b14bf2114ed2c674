package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const keyPrefix = "mpk_"

// prefixLen is the number of leading plaintext characters stored alongside
// the hash for lookup. Covers "mpk_" plus 8 random hex chars.
const prefixLen = 12

// Argon2id parameters, OWASP recommended defaults.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 4
	argonKeyLength   = 32
	argonSaltLength  = 16
)

// GenerateKey mints a new client key. Only the hash and prefix are stored;
// the plaintext is shown to the operator once.
func GenerateKey() (plaintext, hash, prefix string, err error) {
	b := make([]byte, 20)
	if _, err = rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generating key material: %w", err)
	}
	plaintext = keyPrefix + hex.EncodeToString(b)
	hash, err = HashKey(plaintext)
	if err != nil {
		return "", "", "", err
	}
	return plaintext, hash, plaintext[:prefixLen], nil
}

// KeyPrefix returns the lookup prefix of a plaintext key, or "" when the key
// is not in our format.
func KeyPrefix(key string) string {
	if !strings.HasPrefix(key, keyPrefix) || len(key) < prefixLen {
		return ""
	}
	return key[:prefixLen]
}

// HashKey hashes a plaintext key with Argon2id and returns a PHC-format
// string: $argon2id$v=19$m=65536,t=3,p=4$<salt_b64>$<hash_b64>.
func HashKey(key string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	sum := argon2.IDKey([]byte(key), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum)), nil
}

// VerifyKey checks a plaintext key against a PHC-format Argon2id hash using
// a constant-time comparison.
func VerifyKey(key, phc string) (bool, error) {
	salt, params, want, err := parsePHC(phc)
	if err != nil {
		return false, fmt.Errorf("parsing key hash: %w", err)
	}

	got := argon2.IDKey([]byte(key), salt, params.iterations, params.memory, params.parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

type phcParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

// parsePHC splits $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func parsePHC(phc string) (salt []byte, params phcParams, hash []byte, err error) {
	parts := strings.Split(phc, "$")
	if len(parts) != 6 {
		return nil, params, nil, fmt.Errorf("expected 6 PHC parts, got %d", len(parts))
	}
	if parts[1] != "argon2id" {
		return nil, params, nil, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var m, t uint32
	var p uint8
	if n, scanErr := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); scanErr != nil || n != 3 {
		return nil, params, nil, fmt.Errorf("invalid parameters %q", parts[3])
	}
	params = phcParams{memory: m, iterations: t, parallelism: p}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, params, nil, fmt.Errorf("decoding salt: %w", err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, params, nil, fmt.Errorf("decoding hash: %w", err)
	}
	return salt, params, hash, nil
}
