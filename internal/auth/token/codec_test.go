package token

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/hyperion/internal/auth/scope"
	"github.com/smallbiznis/hyperion/internal/clock"
	"github.com/smallbiznis/hyperion/internal/config"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) (*Codec, *clock.FakeClock, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	codec := NewCodec(config.Config{
		ClientURL:            "https://hyperion.example.org/",
		AccessTokenSecretKey: []byte("0123456789abcdef0123456789abcdef"),
		RSAPrivateKey:        key,
		AccessTokenExpire:    30 * time.Minute,
	}, clk)
	return codec, clk, key
}

func TestAccessTokenRoundTrip(t *testing.T) {
	codec, _, _ := newTestCodec(t)

	raw, err := codec.SignAccessToken("42", []scope.Scope{scope.OpenID, scope.Profile}, "nextcloud")
	require.NoError(t, err)

	claims, err := codec.ParseAccessToken(raw)
	require.NoError(t, err)
	require.Equal(t, "42", claims.Subject)
	require.Equal(t, "openid profile", claims.Scopes)
	require.Equal(t, "nextcloud", claims.ClientID)
	require.NotEmpty(t, claims.ID)
	require.Equal(t, 1800, codec.ExpiresIn())
}

func TestAccessTokenExpiry(t *testing.T) {
	codec, clk, _ := newTestCodec(t)

	raw, err := codec.SignAccessToken("42", []scope.Scope{scope.API}, "")
	require.NoError(t, err)

	clk.Advance(31 * time.Minute)
	_, err = codec.ParseAccessToken(raw)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestAccessTokenRejectsForeignSignatures(t *testing.T) {
	codec, _, key := newTestCodec(t)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Scopes:           "API",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	forged, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	_, err = codec.ParseAccessToken(forged)
	require.ErrorIs(t, err, ErrInvalidToken)

	// An RS256 token must not be accepted where HS256 is expected.
	rs := jwt.NewWithClaims(jwt.SigningMethodRS256, AccessClaims{
		Scopes:           "API",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	rsSigned, err := rs.SignedString(key)
	require.NoError(t, err)
	_, err = codec.ParseAccessToken(rsSigned)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = codec.ParseAccessToken("not.a.jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIDTokenVerifiesWithJWKS(t *testing.T) {
	codec, _, _ := newTestCodec(t)

	raw, err := codec.SignIDToken(IDToken{
		Subject:  "42",
		Audience: "nextcloud",
		Nonce:    "n-0S6_WzA2Mj",
		Userinfo: map[string]any{"name": "Alice", "iss": "spoofed"},
	})
	require.NoError(t, err)

	encoded, err := json.Marshal(codec.JWKS())
	require.NoError(t, err)
	var set jose.JSONWebKeySet
	require.NoError(t, json.Unmarshal(encoded, &set))
	keys := set.Key(KeyID)
	require.Len(t, keys, 1)

	parsed, err := jwt.Parse(raw, func(tok *jwt.Token) (any, error) {
		require.Equal(t, KeyID, tok.Header["kid"])
		return keys[0].Key, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithTimeFunc(func() time.Time {
		return time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	}))
	require.NoError(t, err)

	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "https://hyperion.example.org", claims["iss"])
	require.Equal(t, "nextcloud", claims["aud"])
	require.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
	require.Equal(t, "Alice", claims["name"])
}
