// Package auth resolves bearer tokens into user identities. Zitadel tokens are
// checked against the issuer JWKS; HMAC tokens signed with the shared secret
// are accepted as a fallback for local development and tests.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotConfigured = errors.New("authentication not configured")
)

const legacyIssuer = "showrunner"

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Email  string
	Name   string
}

type legacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Authenticator tries the JWKS verifier first and the shared secret second
type Authenticator struct {
	verifier TokenVerifier
	secret   string
}

// NewAuthenticator accepts a nil verifier and/or an empty secret; with neither
// every token is rejected with ErrNotConfigured.
func NewAuthenticator(verifier TokenVerifier, secret string) *Authenticator {
	return &Authenticator{verifier: verifier, secret: secret}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

// Authenticate validates an Authorization header value.
func (a *Authenticator) Authenticate(header string) (*Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}
	if a.verifier == nil && a.secret == "" {
		return nil, ErrNotConfigured
	}

	if a.verifier != nil {
		if id, err := a.verifier.Validate(token); err == nil {
			return id, nil
		}
	}
	if a.secret != "" {
		if id, err := a.validateLegacy(token); err == nil {
			return id, nil
		}
	}
	return nil, ErrInvalidToken
}

func (a *Authenticator) validateLegacy(tokenString string) (*Identity, error) {
	var claims legacyClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(a.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// IssueLegacyToken signs an HMAC token for userID. A zero ttl means no expiry.
func IssueLegacyToken(secret, userID, email string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNotConfigured
	}
	claims := legacyClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   legacyIssuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
