package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hyperion/internal/auth/scope"
	"github.com/smallbiznis/hyperion/internal/auth/token"
	obscontext "github.com/smallbiznis/hyperion/internal/observability/context"
	obslogger "github.com/smallbiznis/hyperion/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextUserIDKey = "user_id"

	// TransferSignatureHeader carries hex(HMAC-SHA256(secret, body)) on
	// transfer callbacks.
	TransferSignatureHeader = "X-Hyperion-Signature"
	maxCallbackBody         = 64 << 10
)

// BearerRequired authenticates the access token and requires the given
// scope. The user id is stored on the gin and request contexts.
func (s *Server) BearerRequired(required scope.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "Not authenticated")
			return
		}
		claims, err := s.codec.ParseAccessToken(raw)
		if err != nil {
			if errors.Is(err, token.ErrExpiredToken) {
				unauthorized(c, "Token expired")
				return
			}
			unauthorized(c, "Could not validate credentials")
			return
		}
		if !scope.Has(claims.ScopeList(), required) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{
				Detail: "Unauthorized, token does not contain the required scopes",
			})
			return
		}
		userID, err := snowflake.ParseString(claims.Subject)
		if err != nil || userID <= 0 {
			unauthorized(c, "Could not validate credentials")
			return
		}

		c.Set(contextUserIDKey, userID.String())
		ctx := obscontext.WithUserID(c.Request.Context(), userID.String())
		if claims.ClientID != "" {
			ctx = obscontext.WithClientID(ctx, claims.ClientID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.GetString(contextUserIDKey))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Detail: detail})
}

// TransferWebhookRequired only lets through callbacks whose body is signed
// with the shared webhook secret. The body is restored for the handler.
func (s *Server) TransferWebhookRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.MyECLPayTransferWebhookSecret
		if len(secret) == 0 {
			s.log.Error("transfer callback refused: webhook secret is not configured")
			unauthorizedWebhook(c)
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		if !validWebhookSignature(secret, body, c.GetHeader(TransferSignatureHeader)) {
			obslogger.Security(s.log).Warn("transfer callback refused: bad signature",
				zap.String("client_ip", c.ClientIP()),
				zap.Bool("signature_present", c.GetHeader(TransferSignatureHeader) != ""),
			)
			unauthorizedWebhook(c)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// SignTransferCallback is what the payment provider computes over the raw
// callback body.
func SignTransferCallback(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validWebhookSignature(secret, body []byte, header string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func unauthorizedWebhook(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Detail: "Invalid callback signature"})
}
