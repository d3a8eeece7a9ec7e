// Package token signs and verifies the JWTs issued by the authorization
// server: HS256 access tokens for the API and RS256 identity tokens for OIDC
// consumers.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/hyperion/internal/auth/scope"
	"github.com/smallbiznis/hyperion/internal/clock"
	"github.com/smallbiznis/hyperion/internal/config"
)

// KeyID identifies the RSA key in the JWKS and in identity token headers.
const KeyID = "RSA-JWK-1"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// AccessClaims is the claim set of access tokens.
type AccessClaims struct {
	Scopes string `json:"scopes"`
	// ClientID is only set when the profile scope was granted; the userinfo
	// endpoint needs it to pick the client's profile.
	ClientID string `json:"cid,omitempty"`
	jwt.RegisteredClaims
}

func (c AccessClaims) ScopeList() []scope.Scope {
	return scope.Parse(c.Scopes)
}

// IDToken describes an identity token before signing.
type IDToken struct {
	Subject  string
	Audience string
	Nonce    string
	// Userinfo is inlined for clients that cannot call the userinfo endpoint.
	Userinfo map[string]any
}

type Codec struct {
	secret    []byte
	key       *rsa.PrivateKey
	issuer    string
	accessTTL time.Duration
	clock     clock.Clock
}

func NewCodec(cfg config.Config, clk clock.Clock) *Codec {
	return &Codec{
		secret:    cfg.AccessTokenSecretKey,
		key:       cfg.RSAPrivateKey,
		issuer:    cfg.Issuer(),
		accessTTL: cfg.AccessTokenExpire,
		clock:     clk,
	}
}

// ExpiresIn is the access token lifetime in seconds.
func (c *Codec) ExpiresIn() int {
	return int(c.accessTTL / time.Second)
}

func (c *Codec) SignAccessToken(subject string, scopes []scope.Scope, clientID string) (string, error) {
	now := c.clock.Now()
	claims := AccessClaims{
		Scopes:   scope.Join(scopes),
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
			ID:        ulid.Make().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, algorithm and expiry.
func (c *Codec) ParseAccessToken(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func (c *Codec) SignIDToken(t IDToken) (string, error) {
	now := c.clock.Now()
	claims := jwt.MapClaims{}
	for k, v := range t.Userinfo {
		claims[k] = v
	}
	claims["iss"] = c.issuer
	claims["sub"] = t.Subject
	claims["aud"] = t.Audience
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(c.accessTTL).Unix()
	if t.Nonce != "" {
		claims["nonce"] = t.Nonce
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = KeyID
	signed, err := tok.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}
	return signed, nil
}

// JWKS publishes the public half of the identity token key.
func (c *Codec) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &c.key.PublicKey,
			KeyID:     KeyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}},
	}
}
