package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eli-ai/eli-backend/internal/auth"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerifyValidToken(t *testing.T) {
	v := auth.NewVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"userId": "user-42",
		"email":  "someone@example.com",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	userID, ok := v.Verify(token)
	if !ok {
		t.Fatal("expected token to verify")
	}
	if userID != "user-42" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestVerifyRejections(t *testing.T) {
	v := auth.NewVerifier(testSecret)

	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"malformed", "not-a-jwt"},
		{"wrong secret", signToken(t, "other-secret", jwt.MapClaims{"userId": "user-42"})},
		{"expired", signToken(t, testSecret, jwt.MapClaims{
			"userId": "user-42",
			"exp":    time.Now().Add(-time.Hour).Unix(),
		})},
		{"missing claim", signToken(t, testSecret, jwt.MapClaims{"email": "x@example.com"})},
		{"empty claim", signToken(t, testSecret, jwt.MapClaims{"userId": ""})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if userID, ok := v.Verify(tc.token); ok {
				t.Fatalf("expected rejection, got user %q", userID)
			}
		})
	}
}

func TestVerifyRejectsUnexpectedAlgorithm(t *testing.T) {
	v := auth.NewVerifier(testSecret)

	// alg=none tokens must never pass signature checks.
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": "user-42"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, ok := v.Verify(token); ok {
		t.Fatal("expected alg=none token to be rejected")
	}
}
