// Package auth validates access tokens issued by the user service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/middleware"
)

// Issuer is the iss claim the user service stamps on access tokens.
const Issuer = "user-service"

// Claims mirrors the access token payload.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Validator verifies HS256 access tokens with a shared secret.
type Validator struct {
	secret []byte
	parser *jwt.Parser
}

// NewValidator creates a validator for tokens signed with secret.
func NewValidator(secret string, leeway time.Duration) *Validator {
	return &Validator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}
}

// Validate parses tokenString and returns the identity it carries.
func (v *Validator) Validate(tokenString string) (*middleware.Claims, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid access token claims")
	}

	accountID := claims.UserID
	if accountID == "" {
		accountID = claims.Subject
	}
	if accountID == "" {
		return nil, errors.New("access token has no subject")
	}

	return &middleware.Claims{AccountID: accountID, Email: claims.Email, Role: claims.Role}, nil
}
