package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKid = "test-key-1"

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func mockJWKSServer(t *testing.T, publicKey *rsa.PublicKey) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwks := JWKS{Keys: []JWK{{
			Kid: testKid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
		}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims(issuer string) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{"veridoc"},
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TenantID: "acme",
		Email:    "user@example.com",
	}
}

func TestVerifySuccess(t *testing.T) {
	key := generateTestKey(t)
	srv := mockJWKSServer(t, &key.PublicKey)
	defer srv.Close()

	v := NewVerifier(Config{
		Issuer:   "https://issuer.example.com",
		JWKSURL:  srv.URL,
		Audience: "veridoc",
	})

	token := signToken(t, key, baseClaims("https://issuer.example.com"))
	claims, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestVerifyInvalidSignature(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	srv := mockJWKSServer(t, &key.PublicKey)
	defer srv.Close()

	v := NewVerifier(Config{Issuer: "https://issuer.example.com", JWKSURL: srv.URL})

	token := signToken(t, otherKey, baseClaims("https://issuer.example.com"))
	_, err := v.Verify(context.Background(), token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyExpired(t *testing.T) {
	key := generateTestKey(t)
	srv := mockJWKSServer(t, &key.PublicKey)
	defer srv.Close()

	v := NewVerifier(Config{Issuer: "https://issuer.example.com", JWKSURL: srv.URL})

	claims := baseClaims("https://issuer.example.com")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err := v.Verify(context.Background(), signToken(t, key, claims))
	assert.True(t, errors.Is(err, ErrTokenExpired))
}

func TestVerifyWrongIssuer(t *testing.T) {
	key := generateTestKey(t)
	srv := mockJWKSServer(t, &key.PublicKey)
	defer srv.Close()

	v := NewVerifier(Config{Issuer: "https://issuer.example.com", JWKSURL: srv.URL})

	_, err := v.Verify(context.Background(), signToken(t, key, baseClaims("https://evil.example.com")))
	assert.True(t, errors.Is(err, ErrInvalidIssuer))
}

func TestVerifyWrongAudience(t *testing.T) {
	key := generateTestKey(t)
	srv := mockJWKSServer(t, &key.PublicKey)
	defer srv.Close()

	v := NewVerifier(Config{
		Issuer:   "https://issuer.example.com",
		JWKSURL:  srv.URL,
		Audience: "some-other-service",
	})

	_, err := v.Verify(context.Background(), signToken(t, key, baseClaims("https://issuer.example.com")))
	assert.True(t, errors.Is(err, ErrInvalidAudience))
}

func TestVerifyMalformedToken(t *testing.T) {
	v := NewVerifier(Config{Issuer: "https://issuer.example.com", JWKSURL: "http://127.0.0.1:0"})
	_, err := v.Verify(context.Background(), "not-a-jwt")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyTokenWithoutTenantClaim(t *testing.T) {
	key := generateTestKey(t)
	srv := mockJWKSServer(t, &key.PublicKey)
	defer srv.Close()

	v := NewVerifier(Config{Issuer: "https://issuer.example.com", JWKSURL: srv.URL})

	claims := baseClaims("https://issuer.example.com")
	claims.TenantID = ""
	got, err := v.Verify(context.Background(), signToken(t, key, claims))
	require.NoError(t, err, "verification itself passes; requiring a tenant is gate policy")
	assert.Empty(t, got.TenantID)
}

func TestServiceVerifier(t *testing.T) {
	key := generateTestKey(t)
	srv := mockJWKSServer(t, &key.PublicKey)
	defer srv.Close()

	cfg := Config{Issuer: "https://tasks.example.com", JWKSURL: srv.URL}
	v := NewServiceVerifier(cfg, "dispatcher@veridoc.iam.example.com")

	claims := baseClaims("https://tasks.example.com")
	claims.TenantID = ""
	claims.Email = "dispatcher@veridoc.iam.example.com"
	got, err := v.VerifyInvocation(context.Background(), signToken(t, key, claims))
	require.NoError(t, err)
	assert.Equal(t, "dispatcher@veridoc.iam.example.com", got.Email)

	claims.Email = "attacker@example.com"
	_, err = v.VerifyInvocation(context.Background(), signToken(t, key, claims))
	assert.True(t, errors.Is(err, ErrWrongServiceAccount))
}

func TestJWKSCaching(t *testing.T) {
	key := generateTestKey(t)
	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		jwks := JWKS{Keys: []JWK{{
			Kid: testKid,
			Kty: "RSA",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}}
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	v := NewVerifier(Config{Issuer: "https://issuer.example.com", JWKSURL: srv.URL})

	token := signToken(t, key, baseClaims("https://issuer.example.com"))
	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fetches, "key set is fetched once and cached")
}
