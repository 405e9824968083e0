package claims

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "app-client-1"

// fakeIssuer serves OIDC discovery and a JWKS like a Cognito user pool.
type fakeIssuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey
	kid string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{key: key, kid: "pool-key-1"}

	jwks, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &key.PublicKey,
		KeyID:     f.kid,
		Algorithm: "RS256",
		Use:       "sig",
	}}})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                f.srv.URL,
			"jwks_uri":                              f.srv.URL + "/.well-known/jwks.json",
			"authorization_endpoint":                f.srv.URL + "/oauth2/authorize",
			"token_endpoint":                        f.srv.URL + "/oauth2/token",
			"response_types_supported":              []string{"code", "token"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIssuer) sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = f.kid
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func (f *fakeIssuer) accessClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            f.srv.URL,
		"sub":            "3f1c-user",
		"token_use":      "access",
		"client_id":      testClientID,
		"username":       "alice@example.com",
		"cognito:groups": []string{"user"},
		"exp":            now.Add(time.Hour).Unix(),
		"iat":            now.Unix(),
	}
}

func newTestJWKS(t *testing.T, f *fakeIssuer) *JWKSResolver {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r, err := NewJWKS(ctx, JWKSConfig{Issuer: f.srv.URL, ClientID: testClientID})
	require.NoError(t, err)
	return r
}

func TestIssuerURL(t *testing.T) {
	assert.Equal(t,
		"https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_AbC123",
		IssuerURL("eu-west-1", "eu-west-1_AbC123"),
	)
}

func TestJWKS_AccessToken(t *testing.T) {
	f := newFakeIssuer(t)
	r := newTestJWKS(t, f)

	tok := f.sign(t, jwt.SigningMethodRS256, f.key, f.accessClaims())

	user, err := r.Resolve(context.Background(), tok)

	require.NoError(t, err)
	assert.Equal(t, "3f1c-user", user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, []string{"user"}, user.Groups)
}

func TestJWKS_IDToken(t *testing.T) {
	f := newFakeIssuer(t)
	r := newTestJWKS(t, f)

	c := f.accessClaims()
	delete(c, "client_id")
	delete(c, "username")
	c["token_use"] = "id"
	c["aud"] = testClientID
	c["email"] = "bob@example.com"
	c["cognito:groups"] = []string{"admin", "user"}

	user, err := r.Resolve(context.Background(), f.sign(t, jwt.SigningMethodRS256, f.key, c))

	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.True(t, user.HasGroup("admin"))
}

func TestJWKS_AccessTokenWithGeneratedUsername(t *testing.T) {
	f := newFakeIssuer(t)
	r := newTestJWKS(t, f)

	access := f.accessClaims()
	access["username"] = "3f1c2e4a-7b3d-4e5f-8a6b-1c2d3e4f5a6b"

	user, err := r.Resolve(context.Background(), f.sign(t, jwt.SigningMethodRS256, f.key, access))
	require.NoError(t, err)
	assert.Empty(t, user.Email)

	id := f.accessClaims()
	delete(id, "client_id")
	id["username"] = "3f1c2e4a-7b3d-4e5f-8a6b-1c2d3e4f5a6b"
	id["token_use"] = "id"
	id["aud"] = testClientID
	id["email"] = "alice@example.com"

	user, err = r.Resolve(context.Background(), f.sign(t, jwt.SigningMethodRS256, f.key, id))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestJWKS_Rejections(t *testing.T) {
	f := newFakeIssuer(t)
	r := newTestJWKS(t, f)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token func() string
	}{
		{"empty", func() string { return "" }},
		{"garbage", func() string { return "not.a.jwt" }},
		{"expired", func() string {
			c := f.accessClaims()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return f.sign(t, jwt.SigningMethodRS256, f.key, c)
		}},
		{"missing exp", func() string {
			c := f.accessClaims()
			delete(c, "exp")
			return f.sign(t, jwt.SigningMethodRS256, f.key, c)
		}},
		{"wrong issuer", func() string {
			c := f.accessClaims()
			c["iss"] = "https://evil.example.com"
			return f.sign(t, jwt.SigningMethodRS256, f.key, c)
		}},
		{"wrong key", func() string {
			return f.sign(t, jwt.SigningMethodRS256, otherKey, f.accessClaims())
		}},
		{"hs256 downgrade", func() string {
			return f.sign(t, jwt.SigningMethodHS256, []byte("secret"), f.accessClaims())
		}},
		{"other client", func() string {
			c := f.accessClaims()
			c["client_id"] = "someone-else"
			return f.sign(t, jwt.SigningMethodRS256, f.key, c)
		}},
		{"id token wrong audience", func() string {
			c := f.accessClaims()
			c["token_use"] = "id"
			c["aud"] = "someone-else"
			return f.sign(t, jwt.SigningMethodRS256, f.key, c)
		}},
		{"unknown token use", func() string {
			c := f.accessClaims()
			c["token_use"] = "refresh"
			return f.sign(t, jwt.SigningMethodRS256, f.key, c)
		}},
		{"missing sub", func() string {
			c := f.accessClaims()
			delete(c, "sub")
			return f.sign(t, jwt.SigningMethodRS256, f.key, c)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := r.Resolve(context.Background(), tt.token())
			assert.Nil(t, user)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestNewJWKS_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewJWKS(context.Background(), JWKSConfig{Issuer: srv.URL, ClientID: testClientID})
	assert.Error(t, err)
}

func TestNewJWKS_RequiresConfig(t *testing.T) {
	_, err := NewJWKS(context.Background(), JWKSConfig{ClientID: testClientID})
	assert.Error(t, err)

	_, err = NewJWKS(context.Background(), JWKSConfig{Issuer: "https://example.com"})
	assert.Error(t, err)
}
