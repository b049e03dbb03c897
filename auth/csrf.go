package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fuzzbed/gateway/apierr"
)

// CSRFClaims binds a CSRF token to the user it was issued for.
type CSRFClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// CSRF issues and validates double-submit CSRF tokens. The token is an
// HS256 JWT carried both in a cookie and in a request header; mutating
// requests must present matching copies signed for the session user.
type CSRF struct {
	secret     []byte
	expiration time.Duration
}

// NewCSRF builds the token service.
func NewCSRF(secret string, expiration time.Duration) *CSRF {
	return &CSRF{secret: []byte(secret), expiration: expiration}
}

// Issue signs a fresh token for a user.
func (c *CSRF) Issue(userID string) (string, error) {
	now := time.Now()
	claims := CSRFClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing csrf token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and expiry, and that the token was issued for
// userID.
func (c *CSRF) Validate(tokenString, userID string) error {
	token, err := jwt.ParseWithClaims(tokenString, &CSRFClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return apierr.ErrCSRFTokenInvalid
	}
	claims, ok := token.Claims.(*CSRFClaims)
	if !ok {
		return apierr.ErrCSRFTokenInvalid
	}
	if claims.UserID != userID {
		return apierr.ErrCSRFTokenUserMismatch
	}
	return nil
}

// Expiration reports the configured token lifetime.
func (c *CSRF) Expiration() time.Duration {
	return c.expiration
}
