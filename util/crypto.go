package util

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/scrypt"

	"github.com/zentity-id/go-zentity-server/global"
)

var (
	scryptN   = 32768 // N = CPU/memory cost parameter
	scryptR   = 8     // r and p must satisfy r * p < 2^30
	scryptP   = 1
	scryptLen = 32 // 32 bytes long
)

// ScryptEmail hashes an email identifier for lookups. Only the hash is ever
// stored; the configured salt keeps hashes server-specific.
func ScryptEmail(email string) (string, error) {
	salt := []byte(email)
	if global.Conf.EmailSaltHex != "" {
		if decoded, err := hex.DecodeString(global.Conf.EmailSaltHex); err == nil {
			salt = decoded
		}
	}
	dk, err := scrypt.Key([]byte(email), salt, scryptN, scryptR, scryptP, scryptLen)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(dk), nil
}

// HashBackupCode derives the at-rest form of a guardian backup code.
func HashBackupCode(code, userID string) (string, error) {
	dk, err := scrypt.Key([]byte(code), []byte(userID), scryptN, scryptR, scryptP, scryptLen)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(dk), nil
}

// CheckBackupCode compares a presented code against a stored hash in constant
// time.
func CheckBackupCode(code, userID, storedHash string) bool {
	computed, err := HashBackupCode(code, userID)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// RandomToken returns n random bytes as an unguessable base64url token.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
