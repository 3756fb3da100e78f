package usertoken

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

func TestNewVerifierRequiresJWKSURL(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatalf("expected missing jwks url to fail")
	}
}

func TestJWKSVerifyIdentityAndRefreshOnUnknownKid(t *testing.T) {
	key1, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key1: %v", err)
	}
	key2, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key2: %v", err)
	}

	active := "kid-1"
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=1")
		pub := key1.PublicKey
		if active == "kid-2" {
			pub = key2.PublicKey
		}
		resp := map[string]any{"keys": []map[string]string{toJWK(active, pub)}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer jwksServer.Close()

	v, err := NewVerifier(Config{
		JWKSURL:  jwksServer.URL,
		Issuer:   "issuer-a",
		Audience: "aud-a",
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	// First token uses kid-1.
	signed1 := signToken(t, key1, "kid-1", "user-a", "manager", time.Now())
	id, err := v.VerifyIdentity(signed1)
	if err != nil {
		t.Fatalf("verify token1: %v", err)
	}
	if id.UserID != "user-a" || id.Role != domain.RoleManager {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// Rotate to kid-2; verifier should refresh JWKS on unknown kid and pass.
	active = "kid-2"
	signed2 := signToken(t, key2, "kid-2", "user-b", "user", time.Now())
	id, err = v.VerifyIdentity(signed2)
	if err != nil {
		t.Fatalf("verify token2: %v", err)
	}
	if id.UserID != "user-b" || id.Role != domain.RoleUser {
		t.Fatalf("unexpected identity after rotation: %+v", id)
	}
}

func TestJWKSRejectsUnknownRole(t *testing.T) {
	key, v := newSingleKeyVerifier(t)

	signed := signToken(t, key, "kid-1", "user-1", "superadmin", time.Now())
	if _, err := v.VerifyIdentity(signed); err == nil {
		t.Fatalf("expected unknown role to fail")
	}

	signed = signToken(t, key, "kid-1", "user-1", "", time.Now())
	if _, err := v.VerifyIdentity(signed); err == nil {
		t.Fatalf("expected missing role to fail")
	}
}

func TestJWKSRejectsFutureIssuedAt(t *testing.T) {
	key, v := newSingleKeyVerifier(t)

	signed := signToken(t, key, "kid-1", "user-1", "user", time.Now().Add(2*time.Minute))
	if _, err := v.VerifyIdentity(signed); err == nil {
		t.Fatalf("expected future iat token to fail")
	}
}

func newSingleKeyVerifier(t *testing.T) (*rsa.PrivateKey, *Verifier) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{"keys": []map[string]string{toJWK("kid-1", key.PublicKey)}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(jwksServer.Close)

	v, err := NewVerifier(Config{
		JWKSURL:  jwksServer.URL,
		Issuer:   "issuer-a",
		Audience: "aud-a",
		Leeway:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return key, v
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid, subject, role string, issuedAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, accessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "issuer-a",
			Audience:  jwt.ClaimStrings{"aud-a"},
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-time.Second)),
		},
	})
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func toJWK(kid string, key rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
