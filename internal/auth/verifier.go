package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks bearer tokens issued by the account service. The
// contract is shared with the issuer: HS256 over the same secret, user
// identity in the "userId" claim.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier around the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates the token signature and expiry and extracts the
// user id. Rejection is reported through ok, never through a panic:
// missing, malformed, expired and foreign-signed tokens all simply
// fail verification.
func (v *Verifier) Verify(token string) (userID string, ok bool) {
	if token == "" {
		return "", false
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", false
	}

	claims, okClaims := parsed.Claims.(jwt.MapClaims)
	if !okClaims {
		return "", false
	}

	id, okID := claims["userId"].(string)
	if !okID || id == "" {
		return "", false
	}
	return id, true
}
