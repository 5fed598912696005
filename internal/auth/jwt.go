package auth

import (
	"errors"
	"time"

	"fleet-backend/internal/timeutil"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are issued by the hosted database's auth service. Only the
// subject, email and role are read here.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenValidator checks HS256 bearer tokens for the dashboard API
type TokenValidator struct {
	secret []byte
	issuer string
}

func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), issuer: issuer}
}

// ValidateToken verifies a JWT token and returns the claims
func (v *TokenValidator) ValidateToken(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("token validation is not configured")
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithTimeFunc(timeutil.Now)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.secret, nil
	}, opts...)

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// IssueToken signs a token the way the auth service does. Used by the
// local dev tooling and tests.
func (v *TokenValidator) IssueToken(subject, email, role string, ttl time.Duration) (string, error) {
	now := timeutil.Now()
	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
