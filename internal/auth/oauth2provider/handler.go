package oauth2provider

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hyperion/internal/auth/scope"
	"github.com/smallbiznis/hyperion/internal/auth/token"
	"github.com/smallbiznis/hyperion/internal/observability/metrics"
	"github.com/smallbiznis/hyperion/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type HandlerParams struct {
	fx.In

	Svc     *Service
	Log     *zap.Logger
	Limiter *ratelimit.LoginLimiter `optional:"true"`
	Metrics *metrics.Metrics        `optional:"true"`
}

// Handler exposes the authorization server over HTTP.
type Handler struct {
	svc     *Service
	limiter *ratelimit.LoginLimiter
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		svc:     p.Svc,
		limiter: p.Limiter,
		metrics: p.Metrics,
		log:     p.Log.Named("auth.oauth2.handler"),
	}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	auth := r.Group("/auth")
	auth.GET("/authorize", h.AuthorizePage)
	auth.POST("/authorize", h.AuthorizePage)
	auth.POST("/authorization-flow/authorize-validation", h.throttle("authorize_validation"), h.AuthorizeValidation)
	auth.POST("/token", h.throttle("token"), h.Token)
	auth.POST("/simple_token", h.throttle("simple_token"), h.SimpleToken)
	auth.POST("/introspect", h.Introspect)
	auth.GET("/userinfo", h.UserInfo)

	r.GET("/oidc/authorization-flow/jwks_uri", h.JWKS)
	r.GET("/.well-known/openid-configuration", h.Discovery)
	r.GET("/.well-known/oauth-authorization-server", h.Discovery)
}

// AuthorizePage sends the browser to the login UI with the authorization
// request untouched; the UI posts it back to AuthorizeValidation.
func (h *Handler) AuthorizePage(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}
	c.Redirect(http.StatusFound, h.svc.cfg.LoginURL(c.Request.Form.Encode()))
}

func (h *Handler) AuthorizeValidation(c *gin.Context) {
	req := AuthorizeRequest{
		ClientID:            c.PostForm("client_id"),
		RedirectURI:         c.PostForm("redirect_uri"),
		ResponseType:        c.PostForm("response_type"),
		Scope:               c.PostForm("scope"),
		State:               c.PostForm("state"),
		Nonce:               c.PostForm("nonce"),
		CodeChallenge:       c.PostForm("code_challenge"),
		CodeChallengeMethod: c.PostForm("code_challenge_method"),
		Email:               c.PostForm("email"),
		Password:            c.PostForm("password"),
	}

	result, err := h.svc.Authorize(c.Request.Context(), req)
	if err != nil {
		h.log.Error("authorize-validation failed",
			zap.String("request_id", requestID(c)),
			zap.String("client_id", req.ClientID),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}
	// 302 lets a POST-originated flow continue as a GET.
	c.Redirect(http.StatusFound, result.Location)
}

func (h *Handler) Token(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		writeOAuthError(c, invalidRequest("Malformed form body"))
		return
	}

	req := TokenRequest{
		GrantType:    strings.TrimSpace(c.PostForm("grant_type")),
		Code:         strings.TrimSpace(c.PostForm("code")),
		RedirectURI:  strings.TrimSpace(c.PostForm("redirect_uri")),
		ClientID:     strings.TrimSpace(c.PostForm("client_id")),
		ClientSecret: strings.TrimSpace(c.PostForm("client_secret")),
		CodeVerifier: strings.TrimSpace(c.PostForm("code_verifier")),
		RefreshToken: strings.TrimSpace(c.PostForm("refresh_token")),
	}
	if basicID, basicSecret, ok := parseBasicAuth(c); ok {
		req.ClientID = basicID
		req.ClientSecret = basicSecret
	}

	resp, err := h.svc.Token(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info("token issued",
		zap.String("request_id", requestID(c)),
		zap.String("client_id", req.ClientID),
		zap.String("grant_type", req.GrantType),
	)
	noStore(c)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SimpleToken(c *gin.Context) {
	accessToken, err := h.svc.SimpleToken(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		if oauthErr, ok := AsError(err); ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(oauthErr.Status, gin.H{"detail": oauthErr.Description})
			return
		}
		h.handleError(c, err)
		return
	}
	noStore(c)
	c.JSON(http.StatusOK, gin.H{"access_token": accessToken, "token_type": "bearer"})
}

func (h *Handler) Introspect(c *gin.Context) {
	req := IntrospectRequest{
		Token:         strings.TrimSpace(c.PostForm("token")),
		TokenTypeHint: strings.TrimSpace(c.PostForm("token_type_hint")),
		ClientID:      strings.TrimSpace(c.PostForm("client_id")),
		ClientSecret:  strings.TrimSpace(c.PostForm("client_secret")),
	}
	if basicID, basicSecret, ok := parseBasicAuth(c); ok {
		req.ClientID = basicID
		req.ClientSecret = basicSecret
	}

	active, err := h.svc.Introspect(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	noStore(c)
	c.JSON(http.StatusOK, gin.H{"active": active})
}

func (h *Handler) UserInfo(c *gin.Context) {
	raw, ok := bearerToken(c)
	if !ok {
		unauthorized(c, "Not authenticated")
		return
	}
	claims, err := h.svc.ParseAccessToken(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			unauthorized(c, "Token expired")
			return
		}
		unauthorized(c, "Could not validate credentials")
		return
	}
	scopes := claims.ScopeList()
	if !scope.Has(scopes, scope.OpenID) && !scope.Has(scopes, scope.Profile) {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Unauthorized, token does not contain the required scopes"})
		return
	}

	info, err := h.svc.UserInfo(c.Request.Context(), claims)
	if err != nil {
		if oauthErr, ok := AsError(err); ok {
			unauthorized(c, oauthErr.Description)
			return
		}
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) JWKS(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.JWKS())
}

func (h *Handler) Discovery(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Discovery())
}

// throttle applies the per-IP login rate limit to credential endpoints.
func (h *Handler) throttle(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil {
			c.Next()
			return
		}
		if h.limiter.Allow(c.Request.Context(), endpoint+":"+c.ClientIP()) {
			c.Next()
			return
		}
		h.metrics.RecordRateLimitDenied(c.Request.Context(), endpoint)
		h.log.Warn("login rate limit exceeded",
			zap.String("request_id", requestID(c)),
			zap.String("endpoint", endpoint),
			zap.String("client_ip", c.ClientIP()),
		)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Too many requests"})
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	if oauthErr, ok := AsError(err); ok {
		writeOAuthError(c, oauthErr)
		return
	}
	h.log.Error("oauth2 request failed", zap.String("request_id", requestID(c)), zap.Error(err))
	_ = c.Error(err)
	noStore(c)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
}

func writeOAuthError(c *gin.Context, err *Error) {
	noStore(c)
	status := err.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Basic")
	}
	c.JSON(status, gin.H{"error": err.Code, "error_description": err.Description})
}

func unauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.JSON(http.StatusUnauthorized, gin.H{"detail": detail})
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

func parseBasicAuth(c *gin.Context) (string, string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", "", false
	}
	creds := strings.SplitN(string(decoded), ":", 2)
	if len(creds) != 2 {
		return "", "", false
	}
	return creds[0], creds[1], true
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func requestID(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetString("request_id")); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader("X-Request-ID"))
}
