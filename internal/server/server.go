package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/hyperion/internal/auth/scope"
	"github.com/smallbiznis/hyperion/internal/auth/token"
	"github.com/smallbiznis/hyperion/internal/config"
	paydomain "github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/observability"
	obslogger "github.com/smallbiznis/hyperion/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/hyperion/internal/observability/metrics"
	obstracing "github.com/smallbiznis/hyperion/internal/observability/tracing"
	"github.com/smallbiznis/hyperion/internal/userdeletion"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	codec    *token.Codec
	payments paydomain.Service
	deletion *userdeletion.Registry
	log      *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Codec    *token.Codec
	Payments paydomain.Service
	Deletion *userdeletion.Registry
	Log      *zap.Logger
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		codec:    p.Codec,
		payments: p.Payments,
		deletion: p.Deletion,
		log:      p.Log.Named("http.server"),
	}
}

func registerRoutes(s *Server) {
	s.registerUserRoutes()
	s.registerMyECLPayRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerUserRoutes() {
	users := s.engine.Group("/users", s.BearerRequired(scope.API))
	users.GET("/me/deletion-check", s.DeletionCheck)
}

func (s *Server) registerMyECLPayRoutes() {
	pay := s.engine.Group("/myeclpay")

	// No bearer token: reached from the activation email and the checkout
	// provider, which signs its callbacks instead.
	pay.GET("/devices/activate", s.ActivateDevice)
	pay.POST("/transfer/callback", s.TransferWebhookRequired(), s.TransferCallback)

	authed := pay.Group("", s.BearerRequired(scope.API))

	me := authed.Group("/users/me")
	me.POST("/register", s.RegisterUser)
	me.GET("/tos", s.GetTOS)
	me.POST("/tos", s.SignTOS)
	me.GET("/wallet", s.GetWallet)
	me.GET("/wallet/history", s.GetHistory)
	me.GET("/wallet/devices", s.ListDevices)
	me.POST("/wallet/devices", s.CreateDevice)
	me.POST("/wallet/devices/:id/revoke", s.RevokeDevice)

	authed.POST("/stores", s.CreateStore)
	authed.POST("/stores/:id/sellers", s.CreateSeller)
	authed.POST("/stores/:id/scan", s.StoreScan)

	authed.POST("/transactions/:id/refund", s.RefundTransaction)
	authed.POST("/transactions/:id/cancel", s.CancelTransaction)
	authed.GET("/transactions/:id/receipt", s.TransactionReceipt)

	authed.POST("/transfer/init", s.InitTransfer)
}
