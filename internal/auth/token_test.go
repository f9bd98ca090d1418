package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campuspulse/campuspulse/internal/model"
)

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func validClaims(sub string, role model.Role) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "campus-id",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
}

func TestVerifierAccepts(t *testing.T) {
	v := NewVerifier("s3cret", "campus-id")
	ac, err := v.Verify(sign(t, "s3cret", validClaims("42", model.RoleStaff)))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ac.UserID != 42 || ac.Role != model.RoleStaff {
		t.Errorf("auth = %+v, want user 42 staff", ac)
	}
}

func TestVerifierDefaultsRole(t *testing.T) {
	v := NewVerifier("s3cret", "")
	ac, err := v.Verify(sign(t, "s3cret", validClaims("5", "")))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ac.Role != model.RoleUser {
		t.Errorf("role = %q, want %q", ac.Role, model.RoleUser)
	}
}

func TestVerifierRejects(t *testing.T) {
	v := NewVerifier("s3cret", "campus-id")

	expired := validClaims("1", model.RoleStudent)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims("1", model.RoleStudent)
	wrongIssuer.Issuer = "elsewhere"

	tokens := map[string]string{
		"wrong secret": sign(t, "other", validClaims("1", model.RoleStudent)),
		"expired":      sign(t, "s3cret", expired),
		"wrong issuer": sign(t, "s3cret", wrongIssuer),
		"bad subject":  sign(t, "s3cret", validClaims("alice", model.RoleStudent)),
		"bad role":     sign(t, "s3cret", validClaims("1", "superuser")),
		"garbage":      "not.a.token",
	}
	for name, tok := range tokens {
		if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}
