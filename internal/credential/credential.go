package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

var (
	ErrMalformedHash = errors.New("malformed stored credential")
)

// scrypt parameters. Interactive-login strength is enough here: keys are
// high-entropy random tokens, not human passwords.
const (
	scryptN  = 32768
	scryptR  = 8
	scryptP  = 1
	hashLen  = 32
	saltLen  = 16
	tokenLen = 32
)

// GenerateAPIKey returns a random high-entropy token. The broker hands it to
// the clinic exactly once at onboarding; only the hash is stored.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, tokenLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Hash derives a salted scrypt hash of key and returns it in the stored
// form "hex(salt):hex(hash)".
func Hash(key string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	dk, err := scrypt.Key([]byte(key), salt, scryptN, scryptR, scryptP, hashLen)
	if err != nil {
		return "", fmt.Errorf("derive key hash: %w", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(dk), nil
}

// Verify recomputes the hash of key with the salt extracted from stored and
// compares in constant time.
func Verify(key, stored string) (bool, error) {
	saltHex, hashHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false, ErrMalformedHash
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, ErrMalformedHash
	}

	got, err := scrypt.Key([]byte(key), salt, scryptN, scryptR, scryptP, len(want))
	if err != nil {
		return false, fmt.Errorf("derive key hash: %w", err)
	}

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// VerifyInstallSecret gates the public onboarding endpoint. It proves "this
// is a legitimate build of the clinic software", not "this is clinic X", so
// a deployment-wide shared secret is all it checks.
func VerifyInstallSecret(presented, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
