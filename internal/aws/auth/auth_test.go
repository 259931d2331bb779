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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHmacToken(t *testing.T) {
	v := NewValidator("secret", "slpuzzle")

	token, err := IssueToken("secret", "slpuzzle", "alice", time.Minute)
	require.NoError(t, err)
	sub, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)

	forged, err := IssueToken("other", "slpuzzle", "alice", time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(forged)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := IssueToken("secret", "slpuzzle", "alice", -time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := IssueToken("secret", "elsewhere", "alice", time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(foreign)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRsaTokenFromJwks(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kid: "k1",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v := NewValidator("", "")
	require.NoError(t, v.LoadPublicKeys(context.Background(), srv.Client(), srv.URL))

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "bob",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	sub, err := v.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "bob", sub)

	hmac, err := IssueToken("secret", "", "bob", time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(hmac)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserIdFromRequest(t *testing.T) {
	v := NewValidator("secret", "")
	token, err := IssueToken("secret", "", "carol", time.Minute)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/match/1", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	sub, err := v.UserIdFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "carol", sub)

	r = httptest.NewRequest(http.MethodGet, "/socket?token="+token, nil)
	sub, err = v.UserIdFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "carol", sub)

	r = httptest.NewRequest(http.MethodGet, "/socket", nil)
	_, err = v.UserIdFromRequest(r)
	require.ErrorIs(t, err, ErrNoAuthorization)
}
