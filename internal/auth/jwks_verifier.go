package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/avast/retry-go/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/makeasinger/showrunner/internal/config"
)

const discoveryTimeout = 30 * time.Second

// TokenVerifier checks an identity provider token
type TokenVerifier interface {
	Validate(tokenString string) (*Identity, error)
}

// oidcClaims are the Zitadel access token claims the service reads
type oidcClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWKSVerifier validates Zitadel tokens against the issuer's published keys
type JWKSVerifier struct {
	jwks     keyfunc.Keyfunc
	issuer   string
	audience string
}

// NewJWKSVerifier resolves the issuer's key set through OIDC discovery and
// starts the key refresher, which runs until ctx is cancelled.
func NewJWKSVerifier(ctx context.Context, cfg *config.ZitadelConfig) (*JWKSVerifier, error) {
	issuer := strings.TrimSuffix(cfg.Issuer, "/")
	if issuer == "" {
		return nil, errors.New("zitadel issuer is required")
	}

	discoverCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	jwksURL, err := retry.DoWithData(
		func() (string, error) { return discoverJWKSURL(discoverCtx, issuer) },
		retry.Context(discoverCtx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load jwks %s: %w", jwksURL, err)
	}
	return &JWKSVerifier{jwks: jwks, issuer: cfg.Issuer, audience: cfg.ClientID}, nil
}

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// discoverJWKSURL reads jwks_uri from the issuer's discovery document. The
// document must name the same issuer it was fetched from.
func discoverJWKSURL(ctx context.Context, issuer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", retry.Unrecoverable(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("discovery status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", retry.Unrecoverable(fmt.Errorf("discovery status %d", resp.StatusCode))
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("decode discovery document: %w", err))
	}
	if strings.TrimSuffix(doc.Issuer, "/") != issuer {
		return "", retry.Unrecoverable(fmt.Errorf("discovery issuer %q does not match %q", doc.Issuer, issuer))
	}
	if doc.JWKSURI == "" {
		return "", retry.Unrecoverable(errors.New("discovery document has no jwks_uri"))
	}
	return doc.JWKSURI, nil
}

// Validate checks signature, issuer, expiry and (when configured) audience.
func (v *JWKSVerifier) Validate(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims oidcClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, v.jwks.Keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}
