package utils // helpers for token creation, hashing and verification

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed HS256 JWT along with its expiry. The
// Token field contains the serialized JWT string. Access tokens are
// short-lived and sent in the Authorization header on protected routes.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken builds and signs an HS256 JWT for one session of a user.
// The claims carry the subject (sub), the role, and the id of the session
// row the token was minted for (refreshTokenId), so every access token can
// be correlated back to the exact device session that produced it.
func NewAccessToken(secret string, userID uint64, role, sessionID string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":            userID,
		"role":           role,
		"refreshTokenId": sessionID,
		"exp":            exp.Unix(),
		"iat":            now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewResetToken signs a single-purpose token for the password reset /
// account activation flow. It carries only the email and display name; the
// copy stored on the user row is what makes it single-use.
func NewResetToken(secret, email, name string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"email": email,
		"name":  name,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// NewRefreshToken returns a cryptographically secure opaque token: 64
// random bytes hex-encoded, so the raw string handed to the client is
// always 128 characters long.
func NewRefreshToken() (string, error) {
	return randomHex(64)
}

// HashRefreshRaw returns the SHA-256 hash of a raw refresh token as a hex
// string. Only the hash is persisted, so a leaked database row cannot be
// replayed as a refresh credential.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
