// maintenance.go guards the audit maintenance endpoints with a bcrypt-hashed
// shared token. The raw token is never stored; operators generate the hash
// with cmd/hash and place it in configuration.
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for bcrypt hashing
const BcryptCost = 12

// HashMaintenanceToken returns the bcrypt hash of a maintenance token for
// storage in configuration.
func HashMaintenanceToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyMaintenanceToken reports whether the presented token matches the
// configured bcrypt hash. An empty hash always fails; it means the
// maintenance endpoints are disabled.
func VerifyMaintenanceToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
