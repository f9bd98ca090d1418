package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campuspulse/campuspulse/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the bearer token claims issued by the campus identity service.
// The subject is the numeric user id.
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier returns a Verifier for secret. A non-empty issuer must match
// the token's iss claim.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

func (v *Verifier) Verify(token string) (AuthContext, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return AuthContext{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	role := claims.Role
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return AuthContext{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}
	return AuthContext{UserID: userID, Role: role}, nil
}
