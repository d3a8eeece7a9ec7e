package oauth2provider

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-jose/go-jose/v4"
	"github.com/smallbiznis/hyperion/internal/auth/client"
	authdomain "github.com/smallbiznis/hyperion/internal/auth/domain"
	"github.com/smallbiznis/hyperion/internal/auth/scope"
	"github.com/smallbiznis/hyperion/internal/auth/token"
	"github.com/smallbiznis/hyperion/internal/authorization"
	"github.com/smallbiznis/hyperion/internal/clock"
	obscontext "github.com/smallbiznis/hyperion/internal/observability/context"
	"github.com/smallbiznis/hyperion/internal/observability/logger"
	"github.com/smallbiznis/hyperion/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantPassword          = "password"
)

type TokenGenerator interface {
	NewToken() (string, error)
}

type defaultTokenGenerator struct{}

func (defaultTokenGenerator) NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type Params struct {
	fx.In

	Cfg      Config
	Store    Store
	Users    authdomain.Service
	Groups   authorization.Service
	Registry *client.Registry
	Codec    *token.Codec
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

// Service is the authorization server. It owns the authorization-code and
// refresh-token state machines; HTTP concerns stay in Handler.
type Service struct {
	cfg      Config
	store    Store
	users    authdomain.Service
	groups   authorization.Service
	registry *client.Registry
	codec    *token.Codec
	clock    clock.Clock
	tokenGen TokenGenerator
	metrics  *metrics.Metrics
	access   *zap.Logger
	security *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		cfg:      p.Cfg,
		store:    p.Store,
		users:    p.Users,
		groups:   p.Groups,
		registry: p.Registry,
		codec:    p.Codec,
		clock:    p.Clock,
		tokenGen: defaultTokenGenerator{},
		metrics:  p.Metrics,
		access:   p.Log.Named("hyperion.access"),
		security: logger.Security(p.Log),
	}
}

type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Email               string
	Password            string
}

// query rebuilds the request parameters the login UI needs to restart the
// flow. Credentials are never echoed.
func (r AuthorizeRequest) query() url.Values {
	values := url.Values{}
	set := func(key, value string) {
		if value != "" {
			values.Set(key, value)
		}
	}
	set("response_type", r.ResponseType)
	set("client_id", r.ClientID)
	set("redirect_uri", r.RedirectURI)
	set("scope", r.Scope)
	set("state", r.State)
	set("nonce", r.Nonce)
	set("code_challenge", r.CodeChallenge)
	set("code_challenge_method", r.CodeChallengeMethod)
	return values
}

// AuthorizeResult is always delivered to the browser as a 302.
type AuthorizeResult struct {
	Location string
	// Outcome is empty when a code was issued.
	Outcome string
}

// Authorize validates the resource owner credentials submitted from the
// login UI and issues an authorization code. Every protocol failure becomes
// a redirect; only persistence failures are returned as errors.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	log := logger.WithContext(ctx, s.access).With(zap.String("client_id", req.ClientID))
	log.Info("authorize-validation: starting")

	authClient, ok := s.registry.Get(req.ClientID)
	if !ok {
		log.Warn("authorize-validation: unknown client_id")
		return &AuthorizeResult{Location: s.cfg.MessageURL(CodeInvalidClientID), Outcome: CodeInvalidClientID}, nil
	}

	redirectURI, err := authClient.ResolveRedirectURI(req.RedirectURI)
	if err != nil {
		log.Warn("authorize-validation: mismatching redirect_uri",
			zap.String("redirect_uri", req.RedirectURI),
			zap.Strings("expected", authClient.RedirectURIs),
		)
		return &AuthorizeResult{Location: s.cfg.MessageURL(CodeMismatchingRedirectURI), Outcome: CodeMismatchingRedirectURI}, nil
	}

	if req.ResponseType != "code" {
		log.Warn("authorize-validation: unsupported response_type", zap.String("response_type", req.ResponseType))
		params := url.Values{"error": {CodeUnsupportedResponseType}}
		if req.State != "" {
			params.Set("state", req.State)
		}
		return &AuthorizeResult{Location: appendQuery(redirectURI, params), Outcome: CodeUnsupportedResponseType}, nil
	}

	user, err := s.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, authdomain.ErrInvalidCredentials) {
			return nil, err
		}
		s.security.Warn("authorize-validation: invalid email or password",
			zap.String("client_id", req.ClientID),
			zap.String("request_id", requestIDFrom(ctx)),
		)
		params := req.query()
		params.Set("credentials_error", "true")
		return &AuthorizeResult{Location: s.cfg.LoginURL(params.Encode()), Outcome: "credentials_error"}, nil
	}
	log = log.With(zap.String("user_id", user.Subject()))

	if authClient.Permission != "" {
		allowed, err := s.groups.HasPermission(ctx, user.Subject(), authClient.Permission)
		if err != nil {
			return nil, err
		}
		if !allowed {
			log.Warn("authorize-validation: user is not member of an allowed group", zap.String("permission", authClient.Permission))
			return &AuthorizeResult{Location: s.cfg.MessageURL(CodeNotMemberOfGroup), Outcome: CodeNotMemberOfGroup}, nil
		}
	}

	now := s.clock.Now()
	if purged, err := s.store.PurgeExpiredAuthorizationCodes(ctx, now); err != nil {
		log.Warn("authorize-validation: purge expired codes failed", zap.Error(err))
	} else if purged > 0 {
		log.Debug("authorize-validation: purged expired codes", zap.Int64("count", purged))
	}

	code, err := s.tokenGen.NewToken()
	if err != nil {
		return nil, err
	}
	row := &AuthorizationCode{
		ClientID:            authClient.ClientID,
		UserID:              user.ID,
		Scope:               req.Scope,
		RedirectURI:         redirectURI,
		Nonce:               optional(req.Nonce),
		CodeChallenge:       optional(req.CodeChallenge),
		CodeChallengeMethod: optional(req.CodeChallengeMethod),
		ExpireOn:            now.Add(s.cfg.CodeTTL),
	}
	if err := s.store.CreateAuthorizationCode(ctx, code, row); err != nil {
		return nil, fmt.Errorf("create authorization code: %w", err)
	}

	params := url.Values{"code": {code}}
	if req.State != "" {
		params.Set("state", req.State)
	}
	log.Info("authorize-validation: authorization code issued")
	return &AuthorizeResult{Location: appendQuery(redirectURI, params)}, nil
}

type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
}

// Token dispatches on grant_type.
func (s *Service) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	logger.WithContext(ctx, s.access).Info("token: starting grant",
		zap.String("grant_type", req.GrantType),
		zap.String("client_id", req.ClientID),
	)

	var (
		resp *TokenResponse
		err  error
	)
	switch req.GrantType {
	case GrantAuthorizationCode:
		resp, err = s.ExchangeAuthorizationCode(ctx, req)
	case GrantRefreshToken:
		resp, err = s.ExchangeRefreshToken(ctx, req)
	default:
		err = &Error{
			Code:        CodeUnsupportedGrantType,
			Description: fmt.Sprintf("%s is not supported", req.GrantType),
			Status:      http.StatusBadRequest,
		}
	}

	grant := req.GrantType
	if grant != GrantAuthorizationCode && grant != GrantRefreshToken {
		grant = "other"
	}
	if oauthErr, ok := AsError(err); ok {
		s.metrics.RecordTokenError(ctx, grant, oauthErr.Code)
	} else if err == nil {
		s.metrics.RecordTokenIssued(ctx, req.GrantType, req.ClientID)
	}
	return resp, err
}

// ExchangeAuthorizationCode redeems a code. The code is deleted before any
// client check so that it can never be retried.
func (s *Service) ExchangeAuthorizationCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	log := logger.WithContext(ctx, s.access).With(zap.String("client_id", req.ClientID))

	if req.Code == "" {
		log.Warn("token authorization_code: unprovided authorization code")
		return nil, invalidRequest("An authorization code should be provided")
	}

	code, err := s.store.GetAuthorizationCode(ctx, req.Code)
	if errors.Is(err, ErrCodeNotFound) {
		log.Warn("token authorization_code: invalid authorization code")
		return nil, invalidRequest("The provided authorization code is invalid")
	}
	if err != nil {
		return nil, err
	}

	deleted, err := s.store.DeleteAuthorizationCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if !deleted {
		s.security.Warn("token authorization_code: authorization code redeemed concurrently",
			zap.String("client_id", req.ClientID),
			zap.String("request_id", requestIDFrom(ctx)),
		)
		return nil, invalidRequest("The provided authorization code is invalid")
	}

	authClient, ok := s.registry.Get(req.ClientID)
	if !ok {
		log.Warn("token authorization_code: invalid client_id")
		return nil, invalidClient()
	}
	if code.ClientID != authClient.ClientID {
		s.security.Warn("token authorization_code: code issued to another client",
			zap.String("client_id", req.ClientID),
			zap.String("request_id", requestIDFrom(ctx)),
		)
		return nil, invalidClient()
	}

	switch {
	case !authClient.IsPublic():
		// PKCE parameters sent alongside a secret are tolerated.
		if !authClient.CheckSecret(req.ClientSecret) {
			s.security.Warn("token authorization_code: invalid client secret",
				zap.String("client_id", req.ClientID),
				zap.String("request_id", requestIDFrom(ctx)),
			)
			return nil, invalidClient()
		}
	case code.CodeChallenge != nil && req.CodeVerifier != "":
		if !verifyPKCE(*code.CodeChallenge, req.CodeVerifier) {
			s.security.Warn("token authorization_code: invalid code_verifier",
				zap.String("client_id", req.ClientID),
				zap.String("request_id", requestIDFrom(ctx)),
			)
			return nil, invalidRequest("Invalid code_verifier")
		}
	default:
		log.Warn("token authorization_code: neither client_secret nor code_verifier")
		return nil, invalidRequest("Client must provide a client_secret or a code_verifier")
	}

	now := s.clock.Now()
	if code.ExpireOn.Before(now) {
		log.Warn("token authorization_code: expired authorization code")
		return nil, invalidRequest("Expired authorization code")
	}

	redirectURI, err := authClient.ResolveRedirectURI(req.RedirectURI)
	if err != nil {
		log.Warn("token authorization_code: redirect_uri does not match registered ones", zap.String("redirect_uri", req.RedirectURI))
		return nil, invalidRequest("redirect_uri does not match")
	}
	if redirectURI != code.RedirectURI {
		log.Warn("token authorization_code: redirect_uri differs from the authorization request",
			zap.String("redirect_uri", redirectURI),
			zap.String("expected", code.RedirectURI),
		)
		return nil, invalidRequest("redirect_uri should remain identical")
	}

	refresh, err := s.mintRefreshToken(ctx, authClient.ClientID, code.UserID, code.Scope, code.Nonce)
	if err != nil {
		return nil, err
	}
	return s.buildResponse(ctx, authClient, code.UserID.String(), code.Scope, deref(code.Nonce), refresh)
}

// ExchangeRefreshToken rotates a refresh token. Presenting a revoked token
// revokes every token of the (client, user) pair and that revocation is
// kept even though the request fails.
func (s *Service) ExchangeRefreshToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	log := logger.WithContext(ctx, s.access).With(zap.String("client_id", req.ClientID))

	if req.RefreshToken == "" {
		log.Warn("token refresh_token: refresh_token was not provided")
		return nil, invalidRequest("refresh_token is required")
	}

	stored, err := s.store.GetRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, ErrRefreshNotFound) {
		log.Warn("token refresh_token: invalid refresh token")
		return nil, invalidRequest("Invalid refresh token")
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if stored.Revoked() {
		return nil, s.revokeFamily(ctx, stored)
	}

	revoked, err := s.store.RevokeRefreshToken(ctx, req.RefreshToken, now)
	if err != nil {
		return nil, err
	}
	if !revoked {
		// Lost a race against another exchange of the same token.
		return nil, s.revokeFamily(ctx, stored)
	}

	if stored.ExpireOn.Before(now) {
		log.Warn("token refresh_token: expired refresh token")
		return nil, invalidRequest("The provided refresh token has expired")
	}

	authClient, ok := s.registry.Get(req.ClientID)
	if !ok {
		log.Warn("token refresh_token: invalid client_id")
		return nil, invalidClient()
	}
	if stored.ClientID != authClient.ClientID {
		s.security.Warn("token refresh_token: refresh token issued to another client",
			zap.String("client_id", req.ClientID),
			zap.String("request_id", requestIDFrom(ctx)),
		)
		return nil, invalidClient()
	}
	if authClient.IsPublic() {
		if req.ClientSecret != "" {
			log.Warn("token refresh_token: client secret sent by a PKCE client")
			return nil, invalidClient()
		}
	} else if !authClient.CheckSecret(req.ClientSecret) {
		s.security.Warn("token refresh_token: invalid client secret",
			zap.String("client_id", req.ClientID),
			zap.String("request_id", requestIDFrom(ctx)),
		)
		return nil, invalidClient()
	}

	// The rotated token keeps the nonce of the authorization it descends from.
	refresh, err := s.mintRefreshToken(ctx, stored.ClientID, stored.UserID, stored.Scope, stored.Nonce)
	if err != nil {
		return nil, err
	}
	return s.buildResponse(ctx, authClient, stored.UserID.String(), stored.Scope, deref(stored.Nonce), refresh)
}

func (s *Service) revokeFamily(ctx context.Context, stored *RefreshToken) error {
	count, err := s.store.RevokeRefreshTokensForClientUser(ctx, stored.ClientID, stored.UserID, s.clock.Now())
	if err != nil {
		return err
	}
	s.metrics.RecordRefreshReuse(ctx, stored.ClientID)
	s.security.Warn("token refresh_token: attempt to use a revoked refresh token",
		zap.String("client_id", stored.ClientID),
		zap.String("user_id", stored.UserID.String()),
		zap.Int64("revoked", count),
		zap.String("request_id", requestIDFrom(ctx)),
	)
	return invalidRequest("The provided refresh token has been revoked")
}

func (s *Service) mintRefreshToken(ctx context.Context, clientID string, userID snowflake.ID, scopes string, nonce *string) (string, error) {
	value, err := s.tokenGen.NewToken()
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	row := &RefreshToken{
		ClientID:  clientID,
		UserID:    userID,
		Scope:     scopes,
		Nonce:     nonce,
		CreatedOn: now,
		ExpireOn:  now.Add(s.cfg.RefreshTTL),
	}
	if err := s.store.CreateRefreshToken(ctx, value, row); err != nil {
		return "", fmt.Errorf("create refresh token: %w", err)
	}
	return value, nil
}

// buildResponse grants the intersection of the requested scopes with what
// the client profile allows, and signs the tokens.
func (s *Service) buildResponse(ctx context.Context, authClient *client.AuthClient, subject, requestedScope, nonce, refresh string) (*TokenResponse, error) {
	granted, refused := authClient.FilterScopes(scope.Parse(requestedScope))
	if len(refused) > 0 {
		s.security.Warn("token: refused scopes",
			zap.Strings("refused", scope.Strings(refused)),
			zap.String("client_id", authClient.ClientID),
			zap.String("request_id", requestIDFrom(ctx)),
		)
	}
	logger.WithContext(ctx, s.access).Info("token: granting scopes",
		zap.String("client_id", authClient.ClientID),
		zap.String("scope", scope.Join(granted)),
	)

	// The userinfo endpoint only learns the client through cid.
	var cid string
	if scope.Has(granted, scope.Profile) || scope.Has(granted, scope.OpenID) {
		cid = authClient.ClientID
	}

	var idToken string
	if scope.Has(granted, scope.OpenID) {
		claims := token.IDToken{
			Subject:  subject,
			Audience: authClient.ClientID,
			Nonce:    nonce,
		}
		if authClient.UserinfoInIDToken() {
			info, err := s.userinfoFor(ctx, authClient, subject)
			if err != nil {
				s.security.Error("token: could not load userinfo for id_token", zap.String("user_id", subject), zap.Error(err))
				return nil, err
			}
			claims.Userinfo = info
		}
		signed, err := s.codec.SignIDToken(claims)
		if err != nil {
			return nil, err
		}
		idToken = signed
	}

	accessToken, err := s.codec.SignAccessToken(subject, granted, cid)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    s.codec.ExpiresIn(),
		Scope:        scope.Join(granted),
		RefreshToken: refresh,
		IDToken:      idToken,
	}, nil
}

type IntrospectRequest struct {
	Token         string
	TokenTypeHint string
	ClientID      string
	ClientSecret  string
}

// Introspect reports whether a token is active. The reason for an inactive
// token is never revealed.
func (s *Service) Introspect(ctx context.Context, req IntrospectRequest) (bool, error) {
	authClient, ok := s.registry.Get(req.ClientID)
	if !ok || authClient.IsPublic() || !authClient.AllowTokenIntrospection || !authClient.CheckSecret(req.ClientSecret) {
		s.security.Warn("introspect: unauthorized client",
			zap.String("client_id", req.ClientID),
			zap.String("request_id", requestIDFrom(ctx)),
		)
		return false, &Error{Code: CodeInvalidClient, Description: "Invalid client_id or secret", Status: http.StatusUnauthorized}
	}

	if strings.Count(req.Token, ".") == 2 {
		_, err := s.codec.ParseAccessToken(req.Token)
		return err == nil, nil
	}

	stored, err := s.store.GetRefreshToken(ctx, req.Token)
	if errors.Is(err, ErrRefreshNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !stored.Revoked() && stored.ExpireOn.After(s.clock.Now()), nil
}

// UserInfo shapes the resource owner profile for the client named in the
// access token.
func (s *Service) UserInfo(ctx context.Context, claims *token.AccessClaims) (map[string]any, error) {
	log := logger.WithContext(ctx, s.access)
	if claims.ClientID == "" {
		log.Warn("userinfo: unprovided client_id")
		return nil, &Error{Code: CodeInvalidRequest, Description: "Unprovided client_id", Status: http.StatusUnauthorized}
	}
	authClient, ok := s.registry.Get(claims.ClientID)
	if !ok {
		log.Warn("userinfo: invalid client_id", zap.String("client_id", claims.ClientID))
		return nil, &Error{Code: CodeInvalidClient, Description: "Invalid client_id", Status: http.StatusUnauthorized}
	}
	info, err := s.userinfoFor(ctx, authClient, claims.Subject)
	if errors.Is(err, authdomain.ErrUserNotFound) {
		return nil, &Error{Code: CodeInvalidRequest, Description: "Could not validate credentials", Status: http.StatusUnauthorized}
	}
	return info, err
}

func (s *Service) userinfoFor(ctx context.Context, authClient *client.AuthClient, subject string) (map[string]any, error) {
	user, err := s.users.GetUserByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	groups, err := s.groups.GroupsOf(ctx, subject)
	if err != nil {
		return nil, err
	}
	return authClient.GetUserinfo(client.Subject{User: user, Groups: groups}), nil
}

// SimpleToken is the resource owner password grant used by first-party
// tooling. It always grants the API scope and no refresh token.
func (s *Service) SimpleToken(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, authdomain.ErrInvalidCredentials) {
			s.security.Warn("simple_token: incorrect login or password", zap.String("request_id", requestIDFrom(ctx)))
			s.metrics.RecordTokenError(ctx, GrantPassword, CodeInvalidRequest)
			return "", &Error{Code: CodeInvalidRequest, Description: "Incorrect login or password", Status: http.StatusUnauthorized}
		}
		return "", err
	}
	signed, err := s.codec.SignAccessToken(user.Subject(), []scope.Scope{scope.API}, "")
	if err != nil {
		return "", err
	}
	s.metrics.RecordTokenIssued(ctx, GrantPassword, "")
	return signed, nil
}

// ParseAccessToken exposes the codec to the bearer middleware of the
// userinfo route.
func (s *Service) ParseAccessToken(raw string) (*token.AccessClaims, error) {
	return s.codec.ParseAccessToken(raw)
}

func (s *Service) JWKS() jose.JSONWebKeySet {
	return s.codec.JWKS()
}

// verifyPKCE compares the stored S256 challenge, padded like a standard
// base64url digest, with the one recomputed from the verifier.
func verifyPKCE(challenge, verifier string) bool {
	if !strings.HasSuffix(challenge, "=") {
		challenge += "="
	}
	computed := oauth2.S256ChallengeFromVerifier(verifier) + "="
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
}

func appendQuery(rawURL string, params url.Values) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + params.Encode()
	}
	query := parsed.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func requestIDFrom(ctx context.Context) string {
	return obscontext.RequestIDFromContext(ctx)
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
