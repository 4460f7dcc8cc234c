package utils

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost is the cost factor used for every stored credential.
const DefaultBcryptCost = 10

// HashPassword returns bcrypt hash using the given cost. A cost below the
// bcrypt minimum falls back to DefaultBcryptCost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = DefaultBcryptCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
