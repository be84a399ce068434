package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/makeasinger/showrunner/internal/config"
)

type fakeIssuer struct {
	server *httptest.Server
	key    *rsa.PrivateKey
	// advertised overrides the issuer named in the discovery document
	advertised string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	fi := &fakeIssuer{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		issuer := fi.server.URL
		if fi.advertised != "" {
			issuer = fi.advertised
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   issuer,
			"jwks_uri": fi.server.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test-key",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	fi.server = httptest.NewServer(mux)
	t.Cleanup(fi.server.Close)
	return fi
}

func (fi *fakeIssuer) sign(t *testing.T, claims oidcClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(fi.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestDiscoverJWKSURL(t *testing.T) {
	fi := newFakeIssuer(t)

	got, err := discoverJWKSURL(context.Background(), fi.server.URL)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got != fi.server.URL+"/keys" {
		t.Errorf("jwks url = %q", got)
	}
}

func TestDiscoverRejectsForeignIssuer(t *testing.T) {
	fi := newFakeIssuer(t)
	fi.advertised = "https://other.example.com"

	if _, err := discoverJWKSURL(context.Background(), fi.server.URL); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestJWKSVerifierValidate(t *testing.T) {
	fi := newFakeIssuer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := NewJWKSVerifier(ctx, &config.ZitadelConfig{Issuer: fi.server.URL, ClientID: "showrunner"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	claims := func(aud string, exp time.Time) oidcClaims {
		return oidcClaims{
			Email: "ada@example.com",
			Name:  "Ada",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				Issuer:    fi.server.URL,
				Audience:  jwt.ClaimStrings{aud},
				ExpiresAt: jwt.NewNumericDate(exp),
			},
		}
	}

	id, err := v.Validate(fi.sign(t, claims("showrunner", time.Now().Add(time.Hour))))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id.UserID != "user-1" || id.Email != "ada@example.com" || id.Name != "Ada" {
		t.Errorf("unexpected identity %+v", id)
	}

	if _, err := v.Validate(fi.sign(t, claims("someone-else", time.Now().Add(time.Hour)))); err == nil {
		t.Error("expected audience mismatch to fail")
	}
	if _, err := v.Validate(fi.sign(t, claims("showrunner", time.Now().Add(-time.Minute)))); err == nil {
		t.Error("expected expired token to fail")
	}
}

func TestNewJWKSVerifierRequiresIssuer(t *testing.T) {
	if _, err := NewJWKSVerifier(context.Background(), &config.ZitadelConfig{}); err == nil {
		t.Fatal("expected error without issuer")
	}
}
