package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/hyperion/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "hyperion/http"

// GinMiddleware opens a server span per request. Once the handlers ran, the
// span is named after the route and tagged with the hyperion area it hit and
// the authenticated user and OAuth client, when known.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
			attribute.String("hyperion.area", RouteArea(route)),
		)...)
		// Bearer middleware stores the principal on the request it forwards.
		span.SetAttributes(principalAttributes(c)...)

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusTooManyRequests:
			span.AddEvent("hyperion.access_denied", trace.WithAttributes(attribute.Int("http.status_code", status)))
		}
	}
}

// RouteArea maps a gin route to the part of hyperion serving it.
func RouteArea(route string) string {
	switch {
	case strings.HasPrefix(route, "/auth/"), strings.HasPrefix(route, "/oidc/"), strings.HasPrefix(route, "/.well-known/"):
		return "oauth2"
	case strings.HasPrefix(route, "/myeclpay/transfer/callback"):
		return "myeclpay.webhook"
	case strings.HasPrefix(route, "/myeclpay/"):
		return "myeclpay"
	case strings.HasPrefix(route, "/users/"):
		return "users"
	case route == "/health" || route == "/metrics":
		return "ops"
	default:
		return "other"
	}
}

func principalAttributes(c *gin.Context) []attribute.KeyValue {
	ctx := c.Request.Context()
	var attrs []attribute.KeyValue
	if userID := obscontext.UserIDFromContext(ctx); userID != "" {
		attrs = append(attrs, attribute.String("hyperion.user_id", userID))
	}
	if clientID := obscontext.ClientIDFromContext(ctx); clientID != "" {
		attrs = append(attrs, attribute.String("hyperion.client_id", clientID))
	}
	if storeID := c.Param("id"); storeID != "" && strings.HasPrefix(c.FullPath(), "/myeclpay/stores/") {
		attrs = append(attrs, attribute.String("hyperion.store_id", storeID))
	}
	return attrs
}

func withRequestBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
