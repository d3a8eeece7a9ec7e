package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/hyperion/internal/observability/context"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedRouter(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(GinMiddleware())
	return r, recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareTagsPrincipal(t *testing.T) {
	r, recorder := newTracedRouter(t)
	r.POST("/myeclpay/stores/:id/scan", func(c *gin.Context) {
		ctx := obscontext.WithUserID(c.Request.Context(), "42")
		ctx = obscontext.WithClientID(ctx, "app")
		c.Request = c.Request.WithContext(ctx)
		c.Status(http.StatusCreated)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/myeclpay/stores/1234/scan", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "HTTP POST /myeclpay/stores/:id/scan", spans[0].Name())
	attrs := spanAttributes(spans[0])
	require.Equal(t, "myeclpay", attrs["hyperion.area"].AsString())
	require.Equal(t, "42", attrs["hyperion.user_id"].AsString())
	require.Equal(t, "app", attrs["hyperion.client_id"].AsString())
	require.Equal(t, "1234", attrs["hyperion.store_id"].AsString())
	require.EqualValues(t, http.StatusCreated, attrs["http.status_code"].AsInt64())
}

func TestGinMiddlewareMarksDeniedCallbacks(t *testing.T) {
	r, recorder := newTracedRouter(t)
	r.POST("/myeclpay/transfer/callback", func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/myeclpay/transfer/callback", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttributes(spans[0])
	require.Equal(t, "myeclpay.webhook", attrs["hyperion.area"].AsString())
	_, hasUser := attrs["hyperion.user_id"]
	require.False(t, hasUser)
	require.Len(t, spans[0].Events(), 1)
	require.Equal(t, "hyperion.access_denied", spans[0].Events()[0].Name)
}

func TestRouteArea(t *testing.T) {
	cases := map[string]string{
		"/auth/token":                       "oauth2",
		"/.well-known/openid-configuration": "oauth2",
		"/oidc/authorization-flow/jwks_uri": "oauth2",
		"/myeclpay/transfer/callback":       "myeclpay.webhook",
		"/myeclpay/users/me/wallet":         "myeclpay",
		"/users/me/deletion-check":          "users",
		"/health":                           "ops",
		"unknown":                           "other",
	}
	for route, want := range cases {
		require.Equal(t, want, RouteArea(route), route)
	}
}
